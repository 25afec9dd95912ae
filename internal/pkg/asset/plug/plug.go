package plug

import (
	"github.com/google/uuid"
)

// Plug is the handle carried by a movable scene object. It bridges exactly one battery and
// one device while plugged in. References are handles, so a destroyed endpoint is detected by
// the owner of the handle tables rather than by the plug itself.
type Plug struct {
	pid     uuid.UUID
	object  uuid.UUID
	name    string
	isInput bool
	battery uuid.UUID
	device  uuid.UUID
}

// Config holds the plug configuration parameters
type Config struct {
	Name    string `json:"Name"`
	IsInput bool   `json:"IsInput"`
}

// New returns a Plug attached to the scene object.
func New(object uuid.UUID, config Config) (*Plug, error) {
	pid, err := uuid.NewUUID()
	if err != nil {
		return nil, err
	}
	return &Plug{
		pid:     pid,
		object:  object,
		name:    config.Name,
		isInput: config.IsInput,
	}, nil
}

// PID is a getter for the plug PID
func (p Plug) PID() uuid.UUID {
	return p.pid
}

// Object is the scene object carrying the plug
func (p Plug) Object() uuid.UUID {
	return p.object
}

// Name is a getter for the configured name
func (p Plug) Name() string {
	return p.name
}

// IsInput reports the semantic role: device input (true) or source output such as a charger (false).
func (p Plug) IsInput() bool {
	return p.isInput
}

// Battery is the connected battery handle, uuid.Nil if none.
func (p Plug) Battery() uuid.UUID {
	return p.battery
}

// Device is the connected device handle, uuid.Nil if none.
func (p Plug) Device() uuid.UUID {
	return p.device
}

// SetBattery replaces the battery reference.
func (p *Plug) SetBattery(pid uuid.UUID) {
	p.battery = pid
}

// SetDevice replaces the device reference.
func (p *Plug) SetDevice(pid uuid.UUID) {
	p.device = pid
}

// Clear drops both references.
func (p *Plug) Clear() {
	p.battery = uuid.Nil
	p.device = uuid.Nil
}

// Bridges reports whether the plug currently references both a battery and a device.
func (p Plug) Bridges() bool {
	return p.battery != uuid.Nil && p.device != uuid.Nil
}

// Status is the published plug snapshot.
type Status struct {
	PID     uuid.UUID `json:"PID"`
	Name    string    `json:"Name"`
	Object  uuid.UUID `json:"Object"`
	IsInput bool      `json:"IsInput"`
	Battery uuid.UUID `json:"Battery"`
	Device  uuid.UUID `json:"Device"`
}

// Status returns a snapshot for publication.
func (p Plug) Status() Status {
	return Status{
		PID:     p.pid,
		Name:    p.name,
		Object:  p.object,
		IsInput: p.isInput,
		Battery: p.battery,
		Device:  p.device,
	}
}
