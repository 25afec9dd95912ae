/*
network.go The connection graph between batteries and devices. The Network owns the handle tables
for every battery, device, plug and socket, resolves handles for them, and advances the simulation
one tick at a time. Interactions arrive as events and are applied at the start of the next tick, so
no connection set changes while a battery distributes power.
*/

package network

import (
	"sync"
	"time"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/ohowland/powernet/internal/pkg/asset"
	"github.com/ohowland/powernet/internal/pkg/asset/battery"
	"github.com/ohowland/powernet/internal/pkg/asset/device"
	"github.com/ohowland/powernet/internal/pkg/asset/plug"
	"github.com/ohowland/powernet/internal/pkg/asset/socket"
	"github.com/ohowland/powernet/internal/pkg/msg"
	"github.com/ohowland/powernet/internal/pkg/scene"
)

// Network is a single power network.
type Network struct {
	mux       *sync.Mutex
	pid       uuid.UUID
	name      string
	t         *tables
	services  scene.Services
	events    *queue
	publisher *msg.PubSub
	ticks     uint64
	elapsed   time.Duration
	snapshot  Snapshot
	log       *logrus.Entry
}

// New returns an empty Network using services for plug handling.
func New(name string, services scene.Services) (*Network, error) {
	if services.Tags == nil || services.Physics == nil {
		return nil, pkgerrors.New("network: tag and physics services are required")
	}
	pid, err := uuid.NewUUID()
	if err != nil {
		return nil, err
	}
	n := &Network{
		mux:       &sync.Mutex{},
		pid:       pid,
		name:      name,
		t:         newTables(),
		services:  services,
		events:    newQueue(),
		publisher: msg.NewPublisher(pid),
		log: logrus.WithFields(logrus.Fields{
			"component": "network",
			"name":      name,
		}),
	}
	n.snapshot = n.t.snapshot(0, 0)
	return n, nil
}

// PID is a getter for the network PID
func (n *Network) PID() uuid.UUID {
	return n.pid
}

// Name is a getter for the network name
func (n *Network) Name() string {
	return n.name
}

// Subscribe implements msg.Publisher
func (n *Network) Subscribe(pid uuid.UUID, topic msg.Topic) (<-chan msg.Msg, error) {
	return n.publisher.Subscribe(pid, topic)
}

// Unsubscribe implements msg.Publisher
func (n *Network) Unsubscribe(pid uuid.UUID) {
	n.publisher.Unsubscribe(pid)
}

// Close drops every subscriber.
func (n *Network) Close() {
	n.publisher.Close()
}

// AddBattery creates a battery backed by the network's handle tables.
func (n *Network) AddBattery(config battery.Config) (*battery.Battery, error) {
	n.mux.Lock()
	defer n.mux.Unlock()
	b, err := battery.NewWithConfig(config, n.t)
	if err != nil {
		return nil, err
	}
	n.t.batteries[b.PID()] = b
	n.t.batteryOrder = append(n.t.batteryOrder, b.PID())
	n.log.WithFields(asset.Fields("battery", b)).Debug("battery added")
	return b, nil
}

// AddDevice creates a device. handler may be nil.
func (n *Network) AddDevice(config device.Config, handler device.PowerChangeHandler) (*device.Device, error) {
	n.mux.Lock()
	defer n.mux.Unlock()
	d, err := device.NewWithConfig(config, handler)
	if err != nil {
		return nil, err
	}
	n.t.devices[d.PID()] = d
	n.t.deviceOrder = append(n.t.deviceOrder, d.PID())
	n.log.WithFields(asset.Fields("device", d)).Debug("device added")
	return d, nil
}

// AddPlug creates a plug carried by a scene object. One object carries at most one plug.
func (n *Network) AddPlug(object uuid.UUID, config plug.Config) (*plug.Plug, error) {
	n.mux.Lock()
	defer n.mux.Unlock()
	if _, exists := n.t.plugObjects[object]; exists {
		return nil, pkgerrors.Errorf("plug %q: object %v already carries a plug", config.Name, object)
	}
	p, err := plug.New(object, config)
	if err != nil {
		return nil, err
	}
	n.t.plugs[p.PID()] = p
	n.t.plugObjects[object] = p.PID()
	n.t.plugOrder = append(n.t.plugOrder, p.PID())
	n.log.WithFields(asset.Fields("plug", p)).Debug("plug added")
	return p, nil
}

// WirePlug sets the endpoint a loose plug is wired to. Setting both is refused.
func (n *Network) WirePlug(plugPID uuid.UUID, endpoint socket.Endpoint) error {
	n.mux.Lock()
	defer n.mux.Unlock()
	p, ok := n.t.plugs[plugPID]
	if !ok {
		return pkgerrors.Errorf("unknown plug %v", plugPID)
	}
	if endpoint.Battery != uuid.Nil && endpoint.Device != uuid.Nil {
		return pkgerrors.Errorf("plug %q: endpoint must be a battery or a device, not both", p.Name())
	}
	if endpoint.Battery != uuid.Nil {
		if _, ok := n.t.batteries[endpoint.Battery]; !ok {
			return pkgerrors.Errorf("plug %q: unknown battery %v", p.Name(), endpoint.Battery)
		}
	}
	if endpoint.Device != uuid.Nil {
		if _, ok := n.t.devices[endpoint.Device]; !ok {
			return pkgerrors.Errorf("plug %q: unknown device %v", p.Name(), endpoint.Device)
		}
	}
	p.SetBattery(endpoint.Battery)
	p.SetDevice(endpoint.Device)
	return nil
}

// Attach plugs object into socket immediately. Use it while building a network, before
// Tick runs concurrently with other callers; afterwards report overlaps with Overlap.
func (n *Network) Attach(socketPID, object uuid.UUID) bool {
	n.mux.Lock()
	defer n.mux.Unlock()
	return n.apply(Event{Kind: Overlap, Target: socketPID, Object: object})
}

// AddSocket creates a socket on a battery or device of this network.
func (n *Network) AddSocket(config socket.Config, endpoint socket.Endpoint, anchor uuid.UUID) (*socket.Socket, error) {
	n.mux.Lock()
	defer n.mux.Unlock()
	if endpoint.Battery != uuid.Nil {
		if _, ok := n.t.batteries[endpoint.Battery]; !ok {
			return nil, pkgerrors.Errorf("socket %q: unknown battery %v", config.Name, endpoint.Battery)
		}
	}
	if endpoint.Device != uuid.Nil {
		if _, ok := n.t.devices[endpoint.Device]; !ok {
			return nil, pkgerrors.Errorf("socket %q: unknown device %v", config.Name, endpoint.Device)
		}
	}
	s, err := socket.New(config, endpoint, anchor, n.t, n.services)
	if err != nil {
		return nil, err
	}
	n.t.sockets[s.PID()] = s
	n.t.socketOrder = append(n.t.socketOrder, s.PID())
	n.log.WithFields(asset.Fields("socket", s)).Debug("socket added")
	return s, nil
}

// DestroyDevice removes a device. Every edge serving it is dropped and plugs wired to it
// lose the reference.
func (n *Network) DestroyDevice(pid uuid.UUID) bool {
	n.mux.Lock()
	defer n.mux.Unlock()
	d, ok := n.t.devices[pid]
	if !ok {
		return false
	}
	for _, ppid := range n.t.plugOrder {
		p := n.t.plugs[ppid]
		if p.Device() != pid {
			continue
		}
		if b, ok := n.t.batteries[p.Battery()]; ok {
			b.RemoveConnection(ppid)
		}
		p.SetDevice(uuid.Nil)
	}
	delete(n.t.devices, pid)
	n.t.deviceOrder = without(n.t.deviceOrder, pid)
	n.log.WithFields(asset.Fields("device", d)).Info("device destroyed")
	return true
}

// DestroyBattery removes a battery, its edges and every plug reference to it.
func (n *Network) DestroyBattery(pid uuid.UUID) bool {
	n.mux.Lock()
	defer n.mux.Unlock()
	b, ok := n.t.batteries[pid]
	if !ok {
		return false
	}
	for _, ppid := range b.Connections() {
		b.RemoveConnection(ppid)
	}
	for _, p := range n.t.plugs {
		if p.Battery() == pid {
			p.SetBattery(uuid.Nil)
		}
	}
	delete(n.t.batteries, pid)
	n.t.batteryOrder = without(n.t.batteryOrder, pid)
	n.log.WithFields(asset.Fields("battery", b)).Info("battery destroyed")
	return true
}

// DestroyPlug removes a plug. A socket holding it is released first.
func (n *Network) DestroyPlug(pid uuid.UUID) bool {
	n.mux.Lock()
	defer n.mux.Unlock()
	p, ok := n.t.plugs[pid]
	if !ok {
		return false
	}
	for _, spid := range n.t.socketOrder {
		if s := n.t.sockets[spid]; s.PluggedPlug() == pid {
			s.Detach()
		}
	}
	if b, ok := n.t.batteries[p.Battery()]; ok {
		b.RemoveConnection(pid)
	}
	delete(n.t.plugs, pid)
	delete(n.t.plugObjects, p.Object())
	n.t.plugOrder = without(n.t.plugOrder, pid)
	n.log.WithFields(asset.Fields("plug", p)).Info("plug destroyed")
	return true
}

// Tick applies queued events, updates every battery in creation order and publishes the
// resulting snapshot.
func (n *Network) Tick(dt time.Duration) Snapshot {
	n.mux.Lock()
	defer n.mux.Unlock()

	applied := make([]Applied, 0)
	for _, e := range n.events.drain() {
		a := Applied{Event: e, Accepted: n.apply(e)}
		applied = append(applied, a)
		n.log.WithFields(logrus.Fields{
			"event":    e.Kind,
			"accepted": a.Accepted,
		}).Debug("event applied")
	}

	served := make(map[uuid.UUID]bool)
	for _, bpid := range n.t.batteryOrder {
		b := n.t.batteries[bpid]
		b.Update(dt)
		for _, ppid := range b.Connections() {
			if p, ok := n.t.plugs[ppid]; ok {
				served[p.Device()] = true
			}
		}
	}
	for _, dpid := range n.t.deviceOrder {
		if !served[dpid] {
			n.t.devices[dpid].SetPowerIn(0)
		}
	}

	n.ticks++
	n.elapsed += dt
	n.snapshot = n.t.snapshot(n.ticks, n.elapsed)
	n.publish(applied)
	return n.snapshot
}

// Snapshot returns the state published by the last tick.
func (n *Network) Snapshot() Snapshot {
	n.mux.Lock()
	defer n.mux.Unlock()
	return n.snapshot
}

func (n *Network) refresh() {
	n.mux.Lock()
	defer n.mux.Unlock()
	n.snapshot = n.t.snapshot(n.ticks, n.elapsed)
}

// PublishConfig broadcasts the configuration of every entity on the Config topic.
func (n *Network) PublishConfig() {
	n.mux.Lock()
	defer n.mux.Unlock()
	for _, pid := range n.t.batteryOrder {
		n.publisher.Forward(msg.New(pid, msg.Config, n.t.batteries[pid].Config()))
	}
	for _, pid := range n.t.deviceOrder {
		n.publisher.Forward(msg.New(pid, msg.Config, n.t.devices[pid].Config()))
	}
}

func (n *Network) publish(applied []Applied) {
	for _, a := range applied {
		n.publisher.Publish(msg.Event, a)
	}
	for _, s := range n.snapshot.Batteries {
		n.publisher.Forward(msg.New(s.PID, msg.Status, s))
	}
	for _, s := range n.snapshot.Devices {
		n.publisher.Forward(msg.New(s.PID, msg.Status, s))
	}
	for _, s := range n.snapshot.Sockets {
		n.publisher.Forward(msg.New(s.PID, msg.Status, s))
	}
}

func without(order []uuid.UUID, pid uuid.UUID) []uuid.UUID {
	out := order[:0]
	for _, v := range order {
		if v != pid {
			out = append(out, v)
		}
	}
	return out
}
