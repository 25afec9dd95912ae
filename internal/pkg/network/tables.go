package network

import (
	"time"

	"github.com/google/uuid"

	"github.com/ohowland/powernet/internal/pkg/asset/battery"
	"github.com/ohowland/powernet/internal/pkg/asset/device"
	"github.com/ohowland/powernet/internal/pkg/asset/plug"
	"github.com/ohowland/powernet/internal/pkg/asset/socket"
)

var (
	_ battery.Registry = &tables{}
	_ socket.Registry  = &tables{}
)

// tables are the handle tables. They are only touched with the network lock held; batteries
// and sockets call back into them from inside Tick and the Destroy methods.
type tables struct {
	batteries   map[uuid.UUID]*battery.Battery
	devices     map[uuid.UUID]*device.Device
	plugs       map[uuid.UUID]*plug.Plug
	plugObjects map[uuid.UUID]uuid.UUID
	sockets     map[uuid.UUID]*socket.Socket

	batteryOrder []uuid.UUID
	deviceOrder  []uuid.UUID
	plugOrder    []uuid.UUID
	socketOrder  []uuid.UUID
}

func newTables() *tables {
	return &tables{
		batteries:   make(map[uuid.UUID]*battery.Battery),
		devices:     make(map[uuid.UUID]*device.Device),
		plugs:       make(map[uuid.UUID]*plug.Plug),
		plugObjects: make(map[uuid.UUID]uuid.UUID),
		sockets:     make(map[uuid.UUID]*socket.Socket),
	}
}

func (t *tables) Plug(pid uuid.UUID) (*plug.Plug, bool) {
	p, ok := t.plugs[pid]
	return p, ok
}

func (t *tables) PlugOf(object uuid.UUID) (*plug.Plug, bool) {
	pid, ok := t.plugObjects[object]
	if !ok {
		return nil, false
	}
	return t.Plug(pid)
}

func (t *tables) Battery(pid uuid.UUID) (*battery.Battery, bool) {
	b, ok := t.batteries[pid]
	return b, ok
}

func (t *tables) Device(pid uuid.UUID) (*device.Device, bool) {
	d, ok := t.devices[pid]
	return d, ok
}

// Served reports whether a battery already has an edge to devicePID through a plug other
// than except.
func (t *tables) Served(devicePID, except uuid.UUID) bool {
	for _, bpid := range t.batteryOrder {
		for _, ppid := range t.batteries[bpid].Connections() {
			if ppid == except {
				continue
			}
			if p, ok := t.plugs[ppid]; ok && p.Device() == devicePID {
				return true
			}
		}
	}
	return false
}

func (t *tables) snapshot(tick uint64, elapsed time.Duration) Snapshot {
	s := Snapshot{
		Tick:      tick,
		Elapsed:   elapsed,
		Batteries: make([]battery.Status, 0, len(t.batteryOrder)),
		Devices:   make([]device.Status, 0, len(t.deviceOrder)),
		Plugs:     make([]plug.Status, 0, len(t.plugOrder)),
		Sockets:   make([]socket.Status, 0, len(t.socketOrder)),
	}
	for _, pid := range t.batteryOrder {
		s.Batteries = append(s.Batteries, t.batteries[pid].Status())
	}
	for _, pid := range t.deviceOrder {
		s.Devices = append(s.Devices, t.devices[pid].Status())
	}
	for _, pid := range t.plugOrder {
		s.Plugs = append(s.Plugs, t.plugs[pid].Status())
	}
	for _, pid := range t.socketOrder {
		s.Sockets = append(s.Sockets, t.sockets[pid].Status())
	}
	return s
}
