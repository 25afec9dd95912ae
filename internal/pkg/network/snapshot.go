package network

import (
	"strings"
	"time"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"

	"github.com/ohowland/powernet/internal/pkg/asset/battery"
	"github.com/ohowland/powernet/internal/pkg/asset/device"
	"github.com/ohowland/powernet/internal/pkg/asset/plug"
	"github.com/ohowland/powernet/internal/pkg/asset/socket"
)

// Snapshot is the state of every entity after a tick. Slices are never modified once published.
type Snapshot struct {
	Tick      uint64           `json:"Tick"`
	Elapsed   time.Duration    `json:"Elapsed"`
	Batteries []battery.Status `json:"Batteries"`
	Devices   []device.Status  `json:"Devices"`
	Plugs     []plug.Status    `json:"Plugs"`
	Sockets   []socket.Status  `json:"Sockets"`
}

// Battery finds a battery status by PID.
func (s Snapshot) Battery(pid uuid.UUID) (battery.Status, bool) {
	for _, b := range s.Batteries {
		if b.PID == pid {
			return b, true
		}
	}
	return battery.Status{}, false
}

// Device finds a device status by PID.
func (s Snapshot) Device(pid uuid.UUID) (device.Status, bool) {
	for _, d := range s.Devices {
		if d.PID == pid {
			return d, true
		}
	}
	return device.Status{}, false
}

// Socket finds a socket status by PID.
func (s Snapshot) Socket(pid uuid.UUID) (socket.Status, bool) {
	for _, k := range s.Sockets {
		if k.PID == pid {
			return k, true
		}
	}
	return socket.Status{}, false
}

// Validate checks the connection graph is bipartite: every edge joins one battery and one
// device through a plug, no plug sits in two connection sets and no device is served twice.
func (n *Network) Validate() error {
	n.mux.Lock()
	defer n.mux.Unlock()

	var problems []string
	owner := make(map[uuid.UUID]uuid.UUID)    // plug -> battery
	served := make(map[uuid.UUID]bool) // device

	for _, bpid := range n.t.batteryOrder {
		b := n.t.batteries[bpid]
		for _, ppid := range b.Connections() {
			p, ok := n.t.plugs[ppid]
			if !ok {
				problems = append(problems, "battery "+b.Name()+" holds a destroyed plug")
				continue
			}
			if other, dup := owner[ppid]; dup && other != bpid {
				problems = append(problems, "plug "+p.Name()+" is connected to two batteries")
			}
			owner[ppid] = bpid

			if p.Battery() != bpid {
				problems = append(problems, "plug "+p.Name()+" does not reference battery "+b.Name())
			}
			if _, ok := n.t.batteries[p.Device()]; ok {
				problems = append(problems, "battery "+b.Name()+" is connected to a battery")
				continue
			}
			if _, ok := n.t.devices[p.Device()]; !ok {
				problems = append(problems, "plug "+p.Name()+" on battery "+b.Name()+" has no device")
				continue
			}
			if served[p.Device()] {
				problems = append(problems, "device "+n.t.devices[p.Device()].Name()+" is served twice")
			}
			served[p.Device()] = true
		}
	}

	for _, spid := range n.t.socketOrder {
		s := n.t.sockets[spid]
		e := s.Endpoint()
		if e.Battery != uuid.Nil && e.Device != uuid.Nil {
			problems = append(problems, "socket "+s.Name()+" has two endpoints")
		}
	}

	if len(problems) > 0 {
		return pkgerrors.Errorf("network %s: %s", n.name, strings.Join(problems, "; "))
	}
	return nil
}
