/*
scene.go Collaborator interfaces between the power network and the host simulation.
The network never owns scene objects; it addresses them by uuid and asks these services to act.
*/

package scene

import "github.com/google/uuid"

// Classification tags written on plug objects.
const (
	TagUnplugged = "unplugged-plug"
	TagPlugged   = "plugged-plug"
	TagSolid     = "solid"
	TagGrabbed   = "grabbed"
)

// DetachOffset is the distance a released plug is pushed along the anchor facing.
const DetachOffset = 5.0

// Tagger reads and writes string tags on scene objects.
type Tagger interface {
	HasTag(object uuid.UUID, tag string) bool
	AddTag(object uuid.UUID, tag string)
	RemoveTag(object uuid.UUID, tag string)
}

// Physics is the spatial collaborator. It owns rigid bodies, colliders and the transform hierarchy.
type Physics interface {
	// Snap copies the anchor's world position and orientation onto object.
	Snap(object, anchor uuid.UUID)
	// SetSimulated enables or disables both the rigid body and the collider of object.
	SetSimulated(object uuid.UUID, enabled bool)
	// SetParent re-parents object under parent, keeping its world transform. uuid.Nil detaches it.
	SetParent(object, parent uuid.UUID)
	// Nudge displaces object by distance along the anchor's facing.
	Nudge(object, anchor uuid.UUID, distance float64)
}

// Audio plays one-shot cues.
type Audio interface {
	Play(cue string)
}

// Cue is a looping sound point that can be switched on and off.
type Cue interface {
	SetEnabled(enabled bool)
}

// Light is a switchable light source.
type Light interface {
	SetEnabled(enabled bool)
}

// Material selects a renderer material group.
type Material interface {
	SetMaterialGroup(group string)
}

// Vector is a world space position or direction.
type Vector struct {
	X float64 `json:"X"`
	Y float64 `json:"Y"`
	Z float64 `json:"Z"`
}

// Add returns v + o*k
func (v Vector) Add(o Vector, k float64) Vector {
	return Vector{v.X + o.X*k, v.Y + o.Y*k, v.Z + o.Z*k}
}

// Spawner creates scene objects for configured plugs and socket anchors.
type Spawner interface {
	Spawn(name string, position Vector, tags ...string) uuid.UUID
}

// Presentation resolves named presentation elements for device variants.
type Presentation interface {
	Light(name string) Light
	Material(name string) Material
	Cue(name string) Cue
}

// Host is everything the network builder needs from the hosting simulation.
type Host interface {
	Tagger
	Physics
	Audio
	Spawner
	Presentation
}

// Services bundles the collaborators a socket needs.
type Services struct {
	Tags    Tagger
	Physics Physics
	Audio   Audio
}
