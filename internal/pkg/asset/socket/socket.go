/*
socket.go A fixed connection point on a battery or a device. The socket owns the attach and
detach protocol: it validates a candidate plug, completes the plug's battery/device pair from its
own endpoint, registers the edge with the battery and hands the plug object over to the anchor.
*/

package socket

import (
	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/ohowland/powernet/internal/pkg/asset/battery"
	"github.com/ohowland/powernet/internal/pkg/asset/device"
	"github.com/ohowland/powernet/internal/pkg/asset/plug"
	"github.com/ohowland/powernet/internal/pkg/scene"
)

// Registry resolves handles for the socket. A missing entry means the object was destroyed.
type Registry interface {
	Plug(uuid.UUID) (*plug.Plug, bool)
	PlugOf(object uuid.UUID) (*plug.Plug, bool)
	Battery(uuid.UUID) (*battery.Battery, bool)
	Device(uuid.UUID) (*device.Device, bool)
	// Served reports whether device already draws from a battery through a plug other than except.
	Served(device, except uuid.UUID) bool
}

// Endpoint is the fixed role of a socket. At most one field is set.
type Endpoint struct {
	Battery uuid.UUID
	Device  uuid.UUID
}

// Socket is a connection point fixed to a battery or a device.
type Socket struct {
	pid      uuid.UUID
	config   Config
	endpoint Endpoint
	anchor   uuid.UUID
	registry Registry
	services scene.Services
	log      *logrus.Entry

	object        uuid.UUID
	plugPID       uuid.UUID
	cachedBattery uuid.UUID
	cachedDevice  uuid.UUID
}

// Config holds the socket configuration parameters
type Config struct {
	Name       string `json:"Name"`
	IsInput    bool   `json:"IsInput"`
	ConnectCue string `json:"ConnectCue"`
}

// Status is the published socket snapshot.
type Status struct {
	PID         uuid.UUID `json:"PID"`
	Name        string    `json:"Name"`
	Battery     uuid.UUID `json:"Battery"`
	Device      uuid.UUID `json:"Device"`
	IsPluggedIn bool      `json:"IsPluggedIn"`
	Object      uuid.UUID `json:"Object"`
	Plug        uuid.UUID `json:"Plug"`
}

// New returns a configured Socket. anchor is the scene object plugs snap to; uuid.Nil leaves the
// socket unable to accept plugs.
func New(config Config, endpoint Endpoint, anchor uuid.UUID, registry Registry, services scene.Services) (*Socket, error) {
	if endpoint.Battery != uuid.Nil && endpoint.Device != uuid.Nil {
		return nil, pkgerrors.Errorf("socket %q: endpoint must be a battery or a device, not both", config.Name)
	}
	if registry == nil {
		return nil, pkgerrors.Errorf("socket %q: registry is nil", config.Name)
	}
	if services.Tags == nil || services.Physics == nil {
		return nil, pkgerrors.Errorf("socket %q: tag and physics services are required", config.Name)
	}

	pid, err := uuid.NewUUID()
	if err != nil {
		return nil, err
	}

	return &Socket{
		pid:      pid,
		config:   config,
		endpoint: endpoint,
		anchor:   anchor,
		registry: registry,
		services: services,
		log: logrus.WithFields(logrus.Fields{
			"component": "socket",
			"name":      config.Name,
		}),
	}, nil
}

// PID is a getter for the socket PID
func (s Socket) PID() uuid.UUID {
	return s.pid
}

// Name is a getter for the configured name
func (s Socket) Name() string {
	return s.config.Name
}

// IsInput reports the semantic role of the socket.
func (s Socket) IsInput() bool {
	return s.config.IsInput
}

// Endpoint returns the configured battery or device.
func (s Socket) Endpoint() Endpoint {
	return s.endpoint
}

// Anchor is the snap target object.
func (s Socket) Anchor() uuid.UUID {
	return s.anchor
}

// IsPluggedIn reports whether an object is attached.
func (s Socket) IsPluggedIn() bool {
	return s.object != uuid.Nil
}

// PluggedObject is the attached scene object, uuid.Nil if none.
func (s Socket) PluggedObject() uuid.UUID {
	return s.object
}

// PluggedPlug is the plug of the attached object, uuid.Nil if none.
func (s Socket) PluggedPlug() uuid.UUID {
	return s.plugPID
}

// Attach tries to plug object into the socket. It is invoked when object overlaps the socket
// volume and reports whether the object was accepted. A refused object is left untouched.
func (s *Socket) Attach(object uuid.UUID) bool {
	if s.IsPluggedIn() || s.anchor == uuid.Nil {
		return false
	}
	if s.endpoint.Battery == uuid.Nil && s.endpoint.Device == uuid.Nil {
		return false
	}
	if object == uuid.Nil || !s.services.Tags.HasTag(object, scene.TagUnplugged) {
		return false
	}
	p, ok := s.registry.PlugOf(object)
	if !ok {
		return false
	}

	if s.endpoint.Device != uuid.Nil && p.Device() != uuid.Nil {
		s.log.WithField("plug", p.Name()).Warn("refused device to device connection")
		return false
	}
	if s.endpoint.Battery != uuid.Nil && p.Battery() != uuid.Nil {
		s.log.WithField("plug", p.Name()).Warn("refused battery to battery connection")
		return false
	}

	batteryPID, devicePID := p.Battery(), p.Device()
	if s.endpoint.Battery != uuid.Nil {
		batteryPID = s.endpoint.Battery
	} else {
		devicePID = s.endpoint.Device
	}
	b, ok := s.registry.Battery(batteryPID)
	if !ok {
		return false
	}
	if _, ok := s.registry.Device(devicePID); !ok {
		return false
	}
	if s.registry.Served(devicePID, p.PID()) {
		s.log.WithField("plug", p.Name()).Warn("refused connection, device already served by a battery")
		return false
	}

	physics := s.services.Physics
	physics.Snap(object, s.anchor)

	tags := s.services.Tags
	tags.RemoveTag(object, scene.TagUnplugged)
	tags.RemoveTag(object, scene.TagSolid)
	tags.RemoveTag(object, scene.TagGrabbed)
	tags.AddTag(object, scene.TagPlugged)

	physics.SetSimulated(object, false)
	physics.SetParent(object, s.anchor)

	if s.endpoint.Battery != uuid.Nil {
		// the plug hangs off a device
		s.cachedDevice = p.Device()
		p.SetBattery(s.endpoint.Battery)
	} else {
		// the plug hangs off a battery
		s.cachedBattery = p.Battery()
		p.SetDevice(s.endpoint.Device)
	}
	b.AddConnection(p.PID())

	s.object = object
	s.plugPID = p.PID()

	if s.services.Audio != nil && s.config.ConnectCue != "" {
		s.services.Audio.Play(s.config.ConnectCue)
	}
	s.log.WithFields(logrus.Fields{
		"plug":    p.Name(),
		"battery": b.Name(),
	}).Info("plug connected")
	return true
}

// Detach releases the attached object. It is a no-op when nothing is attached, so calling it
// repeatedly is safe. The plug keeps the endpoint it is wired to and loses the one the socket lent it.
func (s *Socket) Detach() bool {
	if !s.IsPluggedIn() || s.anchor == uuid.Nil {
		return false
	}
	object := s.object

	if p, ok := s.registry.Plug(s.plugPID); ok {
		if b, ok := s.registry.Battery(p.Battery()); ok {
			b.RemoveConnection(p.PID())
		}
		p.Clear()
		if s.cachedDevice != uuid.Nil {
			p.SetDevice(s.cachedDevice)
		}
		if s.cachedBattery != uuid.Nil {
			p.SetBattery(s.cachedBattery)
		}
		s.log.WithField("plug", p.Name()).Info("plug disconnected")
	}

	physics := s.services.Physics
	physics.SetParent(object, uuid.Nil)

	tags := s.services.Tags
	tags.RemoveTag(object, scene.TagPlugged)
	tags.AddTag(object, scene.TagUnplugged)
	tags.AddTag(object, scene.TagSolid)

	physics.Nudge(object, s.anchor, scene.DetachOffset)
	physics.SetSimulated(object, true)

	s.object = uuid.Nil
	s.plugPID = uuid.Nil
	s.cachedBattery = uuid.Nil
	s.cachedDevice = uuid.Nil
	return true
}

// Status returns a snapshot for publication.
func (s Socket) Status() Status {
	return Status{
		PID:         s.pid,
		Name:        s.config.Name,
		Battery:     s.endpoint.Battery,
		Device:      s.endpoint.Device,
		IsPluggedIn: s.IsPluggedIn(),
		Object:      s.object,
		Plug:        s.plugPID,
	}
}
