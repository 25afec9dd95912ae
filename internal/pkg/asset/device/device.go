package device

import (
	"encoding/json"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/ohowland/powernet/internal/pkg/scene"
)

// Kind names a device variant in configuration.
type Kind string

// Device variants known to the network builder.
const (
	Generic Kind = "generic"
	Lamp    Kind = "lamp"
	Charger Kind = "charger"
)

// PowerChangeHandler is implemented by device variants that react to power state transitions.
// It is only invoked when a write changed the computed Powered or Running value.
type PowerChangeHandler interface {
	OnPowerChange(State)
}

// HandlerFunc adapts a function to PowerChangeHandler.
type HandlerFunc func(State)

// OnPowerChange calls f(s).
func (f HandlerFunc) OnPowerChange(s State) {
	f(s)
}

// Device is a consumer (positive consumption) or producer (negative consumption) of power.
type Device struct {
	pid     uuid.UUID
	config  Config
	active  bool
	powerIn float64
	cue     scene.Cue
	handler PowerChangeHandler
	log     *logrus.Entry
}

// Config holds the device configuration parameters
type Config struct {
	Name             string  `json:"Name"`
	Kind             Kind    `json:"Kind"`
	PowerConsumption float64 `json:"PowerConsumption"` // W, negative for producers
	Active           bool    `json:"Active"`
}

// State is the device power state observed by handlers.
type State struct {
	Active  bool
	Powered bool
	Running bool
	PowerIn float64
}

// Status is the published device snapshot.
type Status struct {
	PID              uuid.UUID `json:"PID"`
	Name             string    `json:"Name"`
	Kind             Kind      `json:"Kind"`
	Active           bool      `json:"Active"`
	Powered          bool      `json:"Powered"`
	Running          bool      `json:"Running"`
	PowerIn          float64   `json:"PowerIn"`
	PowerConsumption float64   `json:"PowerConsumption"`
}

// New returns a configured Device. A nil handler logs transitions.
func New(jsonConfig []byte, handler PowerChangeHandler) (*Device, error) {
	config := Config{}
	if err := json.Unmarshal(jsonConfig, &config); err != nil {
		return nil, pkgerrors.Wrap(err, "decode device config")
	}
	return NewWithConfig(config, handler)
}

// NewWithConfig returns a Device from an already decoded Config.
func NewWithConfig(config Config, handler PowerChangeHandler) (*Device, error) {
	pid, err := uuid.NewUUID()
	if err != nil {
		return nil, err
	}
	if config.Kind == "" {
		config.Kind = Generic
	}
	d := &Device{
		pid:    pid,
		config: config,
		active: config.Active,
		log: logrus.WithFields(logrus.Fields{
			"component": "device",
			"name":      config.Name,
		}),
	}
	d.handler = handler
	if d.handler == nil {
		d.handler = HandlerFunc(d.logPowerChange)
	}
	return d, nil
}

// PID is a getter for the device PID
func (d Device) PID() uuid.UUID {
	return d.pid
}

// Name is a getter for the configured name
func (d Device) Name() string {
	return d.config.Name
}

// Kind is a getter for the configured variant
func (d Device) Kind() Kind {
	return d.config.Kind
}

// Config returns the device configuration.
func (d Device) Config() Config {
	return d.config
}

// PowerConsumption is the requested power in watts.
func (d Device) PowerConsumption() float64 {
	return d.config.PowerConsumption
}

// IsProducer reports whether the device feeds power into a battery.
func (d Device) IsProducer() bool {
	return d.config.PowerConsumption <= 0
}

// Active is the externally controlled on/off intent.
func (d Device) Active() bool {
	return d.active
}

// PowerIn is the power delivered during the last tick.
func (d Device) PowerIn() float64 {
	return d.powerIn
}

// Powered reports whether delivered power meets consumption.
func (d Device) Powered() bool {
	return d.powerIn >= d.config.PowerConsumption
}

// Running is Active and Powered.
func (d Device) Running() bool {
	return d.active && d.Powered()
}

// State returns the current power state.
func (d Device) State() State {
	return State{
		Active:  d.active,
		Powered: d.Powered(),
		Running: d.Running(),
		PowerIn: d.powerIn,
	}
}

// SetCue attaches the looping sound point enabled while the device is active.
func (d *Device) SetCue(c scene.Cue) {
	d.cue = c
	if c != nil {
		c.SetEnabled(d.active)
	}
}

// SetActive toggles the device. Deactivation zeroes delivered power.
func (d *Device) SetActive(b bool) {
	if d.active == b {
		return
	}
	before := d.edge()
	d.active = b
	if !b {
		d.powerIn = 0
	}
	if d.cue != nil {
		d.cue.SetEnabled(b)
	}
	d.notify(before)
}

// Toggle flips the active state.
func (d *Device) Toggle() {
	d.SetActive(!d.active)
}

// SetPowerIn records the power delivered this tick.
func (d *Device) SetPowerIn(w float64) {
	if d.powerIn == w {
		return
	}
	before := d.edge()
	d.powerIn = w
	d.notify(before)
}

// Status returns a snapshot for publication.
func (d Device) Status() Status {
	return Status{
		PID:              d.pid,
		Name:             d.config.Name,
		Kind:             d.config.Kind,
		Active:           d.active,
		Powered:          d.Powered(),
		Running:          d.Running(),
		PowerIn:          d.powerIn,
		PowerConsumption: d.config.PowerConsumption,
	}
}

type edge struct {
	powered bool
	running bool
}

func (d Device) edge() edge {
	return edge{d.Powered(), d.Running()}
}

func (d *Device) notify(before edge) {
	if d.edge() == before {
		return
	}
	d.handler.OnPowerChange(d.State())
}

func (d *Device) logPowerChange(s State) {
	if s.Running {
		d.log.Debug("power state changed: running")
		return
	}
	d.log.Debug("power state changed: not running")
}
