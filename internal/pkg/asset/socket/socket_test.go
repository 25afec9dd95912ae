package socket

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"gotest.tools/v3/assert"

	"github.com/ohowland/powernet/internal/lib/scene/virtualscene"
	"github.com/ohowland/powernet/internal/pkg/asset/battery"
	"github.com/ohowland/powernet/internal/pkg/asset/device"
	"github.com/ohowland/powernet/internal/pkg/asset/plug"
	"github.com/ohowland/powernet/internal/pkg/scene"
)

type registry struct {
	plugs     map[uuid.UUID]*plug.Plug
	objects   map[uuid.UUID]uuid.UUID
	batteries map[uuid.UUID]*battery.Battery
	devices   map[uuid.UUID]*device.Device
}

func newRegistry() *registry {
	return &registry{
		plugs:     make(map[uuid.UUID]*plug.Plug),
		objects:   make(map[uuid.UUID]uuid.UUID),
		batteries: make(map[uuid.UUID]*battery.Battery),
		devices:   make(map[uuid.UUID]*device.Device),
	}
}

func (r *registry) Plug(pid uuid.UUID) (*plug.Plug, bool) {
	p, ok := r.plugs[pid]
	return p, ok
}

func (r *registry) PlugOf(object uuid.UUID) (*plug.Plug, bool) {
	return r.Plug(r.objects[object])
}

func (r *registry) Battery(pid uuid.UUID) (*battery.Battery, bool) {
	b, ok := r.batteries[pid]
	return b, ok
}

func (r *registry) Device(pid uuid.UUID) (*device.Device, bool) {
	d, ok := r.devices[pid]
	return d, ok
}

func (r *registry) Served(devicePID, except uuid.UUID) bool {
	for pid, p := range r.plugs {
		if pid == except || p.Device() != devicePID {
			continue
		}
		if b, ok := r.batteries[p.Battery()]; ok && b.HasConnection(pid) {
			return true
		}
	}
	return false
}

type fixture struct {
	scene    *virtualscene.Scene
	registry *registry
	services scene.Services
}

func newFixture() fixture {
	s := virtualscene.New()
	return fixture{
		scene:    s,
		registry: newRegistry(),
		services: scene.Services{Tags: s, Physics: s, Audio: s},
	}
}

func (f fixture) battery(t *testing.T) *battery.Battery {
	t.Helper()
	b, err := battery.NewWithConfig(battery.DefaultConfig(), f.registry)
	assert.NilError(t, err)
	f.registry.batteries[b.PID()] = b
	return b
}

func (f fixture) device(t *testing.T, consumption float64) *device.Device {
	t.Helper()
	d, err := device.NewWithConfig(device.Config{Name: "TEST_Device", PowerConsumption: consumption, Active: true}, nil)
	assert.NilError(t, err)
	f.registry.devices[d.PID()] = d
	return d
}

// plug spawns a loose plug object wired to one endpoint.
func (f fixture) plug(t *testing.T, batteryPID, devicePID uuid.UUID) (uuid.UUID, *plug.Plug) {
	t.Helper()
	object := f.scene.Spawn("plug", virtualscene.Vector{Y: 3}, scene.TagUnplugged, scene.TagSolid, scene.TagGrabbed)
	p, err := plug.New(object, plug.Config{Name: "TEST_Plug"})
	assert.NilError(t, err)
	p.SetBattery(batteryPID)
	p.SetDevice(devicePID)
	f.registry.plugs[p.PID()] = p
	f.registry.objects[object] = p.PID()
	return object, p
}

func (f fixture) socket(t *testing.T, endpoint Endpoint) *Socket {
	t.Helper()
	anchor := f.scene.Spawn("anchor", virtualscene.Vector{X: 1, Y: 1})
	s, err := New(Config{Name: "TEST_Socket", ConnectCue: "plug-in"}, endpoint, anchor, f.registry, f.services)
	assert.NilError(t, err)
	return s
}

func TestNewRejectsDualEndpoint(t *testing.T) {
	f := newFixture()
	_, err := New(Config{}, Endpoint{Battery: uuid.New(), Device: uuid.New()}, uuid.New(), f.registry, f.services)
	assert.ErrorContains(t, err, "not both")

	_, err = New(Config{}, Endpoint{}, uuid.New(), f.registry, scene.Services{})
	assert.ErrorContains(t, err, "required")
}

func TestAttachDevicePlugToBatterySocket(t *testing.T) {
	f := newFixture()
	b := f.battery(t)
	d := f.device(t, 120)
	object, p := f.plug(t, uuid.Nil, d.PID())
	s := f.socket(t, Endpoint{Battery: b.PID()})

	assert.Assert(t, s.Attach(object))

	assert.Assert(t, s.IsPluggedIn())
	assert.Equal(t, s.PluggedObject(), object)
	assert.Equal(t, p.Battery(), b.PID())
	assert.Equal(t, p.Device(), d.PID())
	assert.Assert(t, b.HasConnection(p.PID()))

	o, _ := f.scene.Object(object)
	anchor, _ := f.scene.Object(s.Anchor())
	assert.DeepEqual(t, o.Tags, []string{scene.TagPlugged})
	assert.Assert(t, !o.Simulated)
	assert.Equal(t, o.Parent, s.Anchor())
	assert.Equal(t, o.Position, anchor.Position)
	assert.DeepEqual(t, f.scene.Played(), []string{"plug-in"})

	b.Update(time.Hour)
	assert.Equal(t, d.PowerIn(), 120.0)
}

func TestAttachBatteryPlugToDeviceSocket(t *testing.T) {
	f := newFixture()
	b := f.battery(t)
	d := f.device(t, 60)
	object, p := f.plug(t, b.PID(), uuid.Nil)
	s := f.socket(t, Endpoint{Device: d.PID()})

	assert.Assert(t, s.Attach(object))
	assert.Equal(t, p.Device(), d.PID())
	assert.Assert(t, b.HasConnection(p.PID()))

	assert.Assert(t, s.Detach())
	assert.Equal(t, p.Battery(), b.PID())
	assert.Equal(t, p.Device(), uuid.Nil)
	assert.Assert(t, !b.HasConnection(p.PID()))
}

func TestAttachRejectsBatteryToBattery(t *testing.T) {
	f := newFixture()
	b1 := f.battery(t)
	b2 := f.battery(t)
	object, p := f.plug(t, b1.PID(), uuid.Nil)
	s := f.socket(t, Endpoint{Battery: b2.PID()})

	assert.Assert(t, !s.Attach(object))

	assert.Assert(t, !s.IsPluggedIn())
	assert.Equal(t, len(b1.Connections()), 0)
	assert.Equal(t, len(b2.Connections()), 0)
	assert.Equal(t, p.Battery(), b1.PID())
	assert.Equal(t, p.Device(), uuid.Nil)
	assert.Assert(t, f.scene.HasTag(object, scene.TagUnplugged))
	assert.Equal(t, len(f.scene.Played()), 0)
}

func TestAttachRejectsDeviceToDevice(t *testing.T) {
	f := newFixture()
	d1 := f.device(t, 10)
	d2 := f.device(t, 10)
	object, p := f.plug(t, uuid.Nil, d1.PID())
	s := f.socket(t, Endpoint{Device: d2.PID()})

	assert.Assert(t, !s.Attach(object))
	assert.Equal(t, p.Device(), d1.PID())
}

func TestAttachGuards(t *testing.T) {
	f := newFixture()
	b := f.battery(t)
	d := f.device(t, 10)

	// missing tag
	object, _ := f.plug(t, uuid.Nil, d.PID())
	f.scene.RemoveTag(object, scene.TagUnplugged)
	s := f.socket(t, Endpoint{Battery: b.PID()})
	assert.Assert(t, !s.Attach(object))

	// no plug facet
	bare := f.scene.Spawn("crate", virtualscene.Vector{}, scene.TagUnplugged)
	assert.Assert(t, !s.Attach(bare))

	// unconfigured socket
	object2, _ := f.plug(t, uuid.Nil, d.PID())
	unconfigured := f.socket(t, Endpoint{})
	assert.Assert(t, !unconfigured.Attach(object2))

	// no anchor
	noAnchor, err := New(Config{}, Endpoint{Battery: b.PID()}, uuid.Nil, f.registry, f.services)
	assert.NilError(t, err)
	assert.Assert(t, !noAnchor.Attach(object2))

	// plug without any endpoint cannot form an edge
	loose, _ := f.plug(t, uuid.Nil, uuid.Nil)
	assert.Assert(t, !s.Attach(loose))

	// destroyed device
	delete(f.registry.devices, d.PID())
	assert.Assert(t, !s.Attach(object2))

	assert.Equal(t, len(b.Connections()), 0)
}

func TestAttachRejectsSecondObject(t *testing.T) {
	f := newFixture()
	b := f.battery(t)
	first, _ := f.plug(t, uuid.Nil, f.device(t, 10).PID())
	second, _ := f.plug(t, uuid.Nil, f.device(t, 10).PID())
	s := f.socket(t, Endpoint{Battery: b.PID()})

	assert.Assert(t, s.Attach(first))
	assert.Assert(t, !s.Attach(second))
	assert.Equal(t, s.PluggedObject(), first)
	assert.Equal(t, len(b.Connections()), 1)
}

func TestAttachRejectsDeviceServedTwice(t *testing.T) {
	f := newFixture()
	b1 := f.battery(t)
	b2 := f.battery(t)
	d := f.device(t, 10)
	first, _ := f.plug(t, uuid.Nil, d.PID())
	second, _ := f.plug(t, uuid.Nil, d.PID())
	s1 := f.socket(t, Endpoint{Battery: b1.PID()})
	s2 := f.socket(t, Endpoint{Battery: b2.PID()})

	assert.Assert(t, s1.Attach(first))
	assert.Assert(t, !s2.Attach(second))
	assert.Equal(t, len(b2.Connections()), 0)
}

func TestDetachRestoresObject(t *testing.T) {
	f := newFixture()
	b := f.battery(t)
	d := f.device(t, 120)
	object, p := f.plug(t, uuid.Nil, d.PID())
	s := f.socket(t, Endpoint{Battery: b.PID()})
	assert.Assert(t, s.Attach(object))
	b.Update(time.Second)

	assert.Assert(t, s.Detach())

	assert.Assert(t, !s.IsPluggedIn())
	assert.Equal(t, s.PluggedObject(), uuid.Nil)
	assert.Equal(t, p.Battery(), uuid.Nil)
	assert.Equal(t, p.Device(), d.PID())
	assert.Assert(t, !b.HasConnection(p.PID()))
	assert.Equal(t, d.PowerIn(), 0.0)

	o, _ := f.scene.Object(object)
	anchor, _ := f.scene.Object(s.Anchor())
	assert.DeepEqual(t, o.Tags, []string{scene.TagSolid, scene.TagUnplugged})
	assert.Assert(t, o.Simulated)
	assert.Equal(t, o.Parent, uuid.Nil)
	assert.Equal(t, o.Position, anchor.Position.Add(anchor.Facing, scene.DetachOffset))

	// the released plug can be plugged again
	assert.Assert(t, s.Attach(object))
}

func TestDetachIdempotent(t *testing.T) {
	f := newFixture()
	b := f.battery(t)
	d := f.device(t, 120)
	object, p := f.plug(t, uuid.Nil, d.PID())
	s := f.socket(t, Endpoint{Battery: b.PID()})
	assert.Assert(t, s.Attach(object))

	assert.Assert(t, s.Detach())
	statusAfterFirst := s.Status()
	objectAfterFirst, _ := f.scene.Object(object)
	plugAfterFirst := *p

	assert.Assert(t, !s.Detach())

	assert.DeepEqual(t, s.Status(), statusAfterFirst)
	objectAfterSecond, _ := f.scene.Object(object)
	assert.DeepEqual(t, objectAfterSecond, objectAfterFirst)
	assert.Equal(t, *p, plugAfterFirst)
	assert.Equal(t, len(b.Connections()), 0)
}

func TestDetachAfterPlugDestroyed(t *testing.T) {
	f := newFixture()
	b := f.battery(t)
	d := f.device(t, 10)
	object, p := f.plug(t, uuid.Nil, d.PID())
	s := f.socket(t, Endpoint{Battery: b.PID()})
	assert.Assert(t, s.Attach(object))

	delete(f.registry.plugs, p.PID())

	assert.Assert(t, s.Detach())
	assert.Assert(t, !s.IsPluggedIn())
}
