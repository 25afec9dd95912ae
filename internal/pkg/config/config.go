/*
config.go Scene and sink configuration files. Entities refer to each other by name; names are
resolved to PIDs when the network is built.
*/

package config

import (
	"encoding/json"
	"os"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/ohowland/powernet/internal/pkg/asset/battery"
	"github.com/ohowland/powernet/internal/pkg/asset/device"
	"github.com/ohowland/powernet/internal/pkg/asset/plug"
	"github.com/ohowland/powernet/internal/pkg/asset/socket"
	"github.com/ohowland/powernet/internal/pkg/scene"
)

var (
	ErrDuplicateName = pkgerrors.New("duplicate name")
	ErrUnknownName   = pkgerrors.New("unknown name")
	ErrBadEndpoint   = pkgerrors.New("endpoint names both a battery and a device")
	ErrBadEvent      = pkgerrors.New("bad timeline event")
)

// DefaultTickRate is used when the scene omits TickRate.
const DefaultTickRate = 100 * time.Millisecond

// Scene describes one power network.
type Scene struct {
	Name      string    `json:"Name"`
	TickRate  int       `json:"TickRate"` // ms
	Batteries []Battery `json:"Batteries"`
	Devices   []Device  `json:"Devices"`
	Plugs     []Plug    `json:"Plugs"`
	Sockets   []Socket  `json:"Sockets"`
	Timeline  []Event   `json:"Timeline"`
}

// Battery decodes onto battery.DefaultConfig, so absent fields keep their defaults.
type Battery struct {
	battery.Config
}

// UnmarshalJSON implements json.Unmarshaler
func (b *Battery) UnmarshalJSON(data []byte) error {
	c := battery.DefaultConfig()
	if err := json.Unmarshal(data, &c); err != nil {
		return err
	}
	b.Config = c
	return nil
}

// Device adds the presentation elements a device variant binds to.
type Device struct {
	device.Config
	Light    string `json:"Light"`
	Material string `json:"Material"`
	Cue      string `json:"Cue"`
}

// Plug is a movable plug object. It is wired to one battery or one device and may start
// plugged into a socket.
type Plug struct {
	plug.Config
	Battery     string       `json:"Battery"`
	Device      string       `json:"Device"`
	Position    scene.Vector `json:"Position"`
	PluggedInto string       `json:"PluggedInto"`
}

// Socket is a fixed connection point on one battery or one device.
type Socket struct {
	socket.Config
	Battery string       `json:"Battery"`
	Device  string       `json:"Device"`
	Anchor  scene.Vector `json:"Anchor"`
}

// Event kinds accepted in a timeline.
const (
	EventOverlap   = "overlap"
	EventUnplug    = "unplug"
	EventToggle    = "toggle"
	EventSetActive = "setActive"
)

// Event is a scripted interaction fired once the simulation clock reaches At seconds.
type Event struct {
	At     float64 `json:"At"`
	Kind   string  `json:"Kind"`
	Socket string  `json:"Socket"`
	Plug   string  `json:"Plug"`
	Device string  `json:"Device"`
	Active bool    `json:"Active"`
}

// Offset returns At as a duration from simulation start.
func (e Event) Offset() time.Duration {
	return time.Duration(e.At * float64(time.Second))
}

// Tick returns the configured tick period.
func (s Scene) Tick() time.Duration {
	if s.TickRate <= 0 {
		return DefaultTickRate
	}
	return time.Duration(s.TickRate) * time.Millisecond
}

// LoadScene reads and validates a scene file.
func LoadScene(path string) (Scene, error) {
	jsonConfig, err := os.ReadFile(path)
	if err != nil {
		return Scene{}, pkgerrors.Wrapf(err, "read scene %s", path)
	}
	return ParseScene(jsonConfig)
}

// ParseScene decodes and validates a scene.
func ParseScene(jsonConfig []byte) (Scene, error) {
	s := Scene{}
	if err := json.Unmarshal(jsonConfig, &s); err != nil {
		return Scene{}, pkgerrors.Wrap(err, "decode scene")
	}
	if err := s.Validate(); err != nil {
		return Scene{}, err
	}
	return s, nil
}

// Validate checks name uniqueness and that every reference resolves.
func (s Scene) Validate() error {
	batteries, err := names("battery", len(s.Batteries), func(i int) string { return s.Batteries[i].Name })
	if err != nil {
		return err
	}
	devices, err := names("device", len(s.Devices), func(i int) string { return s.Devices[i].Name })
	if err != nil {
		return err
	}
	plugs, err := names("plug", len(s.Plugs), func(i int) string { return s.Plugs[i].Name })
	if err != nil {
		return err
	}
	sockets, err := names("socket", len(s.Sockets), func(i int) string { return s.Sockets[i].Name })
	if err != nil {
		return err
	}

	for _, p := range s.Plugs {
		if err := endpoint("plug "+p.Name, p.Battery, p.Device, batteries, devices); err != nil {
			return err
		}
		if p.PluggedInto != "" && !sockets[p.PluggedInto] {
			return pkgerrors.Wrapf(ErrUnknownName, "plug %s: socket %q", p.Name, p.PluggedInto)
		}
	}
	for _, k := range s.Sockets {
		if err := endpoint("socket "+k.Name, k.Battery, k.Device, batteries, devices); err != nil {
			return err
		}
	}

	for i, e := range s.Timeline {
		if e.At < 0 {
			return pkgerrors.Wrapf(ErrBadEvent, "event %d: negative time %v", i, e.At)
		}
		switch e.Kind {
		case EventOverlap:
			if !sockets[e.Socket] || !plugs[e.Plug] {
				return pkgerrors.Wrapf(ErrUnknownName, "event %d: overlap needs a socket and a plug", i)
			}
		case EventUnplug:
			if !sockets[e.Socket] {
				return pkgerrors.Wrapf(ErrUnknownName, "event %d: socket %q", i, e.Socket)
			}
		case EventToggle, EventSetActive:
			if !devices[e.Device] {
				return pkgerrors.Wrapf(ErrUnknownName, "event %d: device %q", i, e.Device)
			}
		default:
			return pkgerrors.Wrapf(ErrBadEvent, "event %d: kind %q", i, e.Kind)
		}
	}
	return nil
}

func names(kind string, n int, name func(int) string) (map[string]bool, error) {
	seen := make(map[string]bool, n)
	for i := 0; i < n; i++ {
		v := name(i)
		if seen[v] {
			return nil, pkgerrors.Wrapf(ErrDuplicateName, "%s %q", kind, v)
		}
		seen[v] = true
	}
	return seen, nil
}

// endpoint checks a plug or socket names at most one endpoint and that it exists. Naming none is
// allowed: the plug is loose, the socket never accepts.
func endpoint(owner, b, d string, batteries, devices map[string]bool) error {
	if b != "" && d != "" {
		return pkgerrors.Wrap(ErrBadEndpoint, owner)
	}
	if b != "" && !batteries[b] {
		return pkgerrors.Wrapf(ErrUnknownName, "%s: battery %q", owner, b)
	}
	if d != "" && !devices[d] {
		return pkgerrors.Wrapf(ErrUnknownName, "%s: device %q", owner, d)
	}
	return nil
}
