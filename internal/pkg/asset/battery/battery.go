package battery

import (
	"encoding/json"
	"math"
	"time"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/ohowland/powernet/internal/pkg/asset/device"
	"github.com/ohowland/powernet/internal/pkg/asset/plug"
)

// Registry resolves handles held in the connection set. A missing entry means the
// referenced object was destroyed.
type Registry interface {
	Plug(uuid.UUID) (*plug.Plug, bool)
	Device(uuid.UUID) (*device.Device, bool)
}

// ChargeStatus is the direction of energy flow observed during the last tick.
type ChargeStatus int

// Charge status values. Discharging is -1 for compatibility with existing scenes.
const (
	Discharging ChargeStatus = -1
	Idle        ChargeStatus = 0
	Charging    ChargeStatus = 1
)

func (s ChargeStatus) String() string {
	switch s {
	case Discharging:
		return "Discharging"
	case Charging:
		return "Charging"
	}
	return "Idle"
}

// Battery stores energy and services the devices plugged into it.
type Battery struct {
	pid         uuid.UUID
	config      Config
	charge      float64
	status      ChargeStatus
	connections []uuid.UUID
	registry    Registry
	updating    bool
	pending     []func()
	staged      map[uuid.UUID]bool // membership once pending runs
	log         *logrus.Entry
}

// Config holds the battery configuration parameters
type Config struct {
	Name               string  `json:"Name"`
	InstantRelease     bool    `json:"InstantRelease"`
	CurrentCharge      float64 `json:"CurrentCharge"`      // Ah
	MaxCharge          float64 `json:"MaxCharge"`          // Ah
	Voltage            float64 `json:"Voltage"`            // V
	MaxDischargeRate   float64 `json:"MaxDischargeRate"`   // A
	MaxChargeRate      float64 `json:"MaxChargeRate"`      // A
	InternalResistance float64 `json:"InternalResistance"` // Ohm
	Temperature        float64 `json:"Temperature"`        // C
	MinVoltage         float64 `json:"MinVoltage"`         // V
	MaxVoltage         float64 `json:"MaxVoltage"`         // V
	RateLimited        bool    `json:"RateLimited"`
}

// DefaultConfig returns the configuration used for fields absent from a config file.
func DefaultConfig() Config {
	return Config{
		Name:               "Battery",
		CurrentCharge:      50,
		MaxCharge:          100,
		Voltage:            12,
		MaxDischargeRate:   10,
		MaxChargeRate:      5,
		InternalResistance: 0.05,
		Temperature:        25,
		MinVoltage:         10,
		MaxVoltage:         14.4,
	}
}

// Status is the published battery snapshot.
type Status struct {
	PID              uuid.UUID    `json:"PID"`
	Name             string       `json:"Name"`
	CurrentCharge    float64      `json:"CurrentCharge"`
	MaxCharge        float64      `json:"MaxCharge"`
	ChargePercentage float64      `json:"ChargePercentage"`
	Voltage          float64      `json:"Voltage"`
	Temperature      float64      `json:"Temperature"`
	ChargeStatus     ChargeStatus `json:"ChargeStatus"`
	InstantRelease   bool         `json:"InstantRelease"`
	Connections      int          `json:"Connections"`
}

// New returns a configured Battery. Fields missing from jsonConfig keep DefaultConfig values.
func New(jsonConfig []byte, registry Registry) (*Battery, error) {
	config := DefaultConfig()
	if err := json.Unmarshal(jsonConfig, &config); err != nil {
		return nil, pkgerrors.Wrap(err, "decode battery config")
	}
	return NewWithConfig(config, registry)
}

// NewWithConfig returns a Battery from an already decoded Config.
func NewWithConfig(config Config, registry Registry) (*Battery, error) {
	if config.MaxCharge <= 0 {
		return nil, pkgerrors.Errorf("battery %q: MaxCharge must be positive, got %v", config.Name, config.MaxCharge)
	}
	if config.Voltage <= 0 {
		return nil, pkgerrors.Errorf("battery %q: Voltage must be positive, got %v", config.Name, config.Voltage)
	}
	if config.CurrentCharge < 0 || config.CurrentCharge > config.MaxCharge {
		return nil, pkgerrors.Errorf("battery %q: CurrentCharge %v outside [0, %v]", config.Name, config.CurrentCharge, config.MaxCharge)
	}
	if registry == nil {
		return nil, pkgerrors.New("battery registry is nil")
	}

	pid, err := uuid.NewUUID()
	if err != nil {
		return nil, err
	}

	return &Battery{
		pid:         pid,
		config:      config,
		charge:      config.CurrentCharge,
		status:      Idle,
		connections: make([]uuid.UUID, 0),
		registry:    registry,
		log: logrus.WithFields(logrus.Fields{
			"component": "battery",
			"name":      config.Name,
		}),
	}, nil
}

// PID is a getter for the battery PID
func (b Battery) PID() uuid.UUID {
	return b.pid
}

// Name is a getter for the configured name
func (b Battery) Name() string {
	return b.config.Name
}

// Config returns the battery configuration. CurrentCharge holds the initial charge.
func (b Battery) Config() Config {
	return b.config
}

// CurrentCharge in Ah
func (b Battery) CurrentCharge() float64 {
	return b.charge
}

// ChargeStatus observed during the last tick
func (b Battery) ChargeStatus() ChargeStatus {
	return b.status
}

// IsDepleted returns true if the battery holds no charge
func (b Battery) IsDepleted() bool {
	return b.charge <= 0
}

// IsFull returns true if the battery is fully charged
func (b Battery) IsFull() bool {
	return b.charge >= b.config.MaxCharge
}

// ChargePercentage returns the state of charge in percent, rounded to 2 decimals.
func (b Battery) ChargePercentage() float64 {
	return round(b.charge/b.config.MaxCharge*100, 2)
}

// ChargeRounded returns the charge in Ah rounded to dp decimals.
func (b Battery) ChargeRounded(dp int) float64 {
	return round(b.charge, dp)
}

// OutputVoltage is the terminal voltage under loadCurrent amps.
func (b Battery) OutputVoltage(loadCurrent float64) float64 {
	return b.config.Voltage - loadCurrent*b.config.InternalResistance
}

// Charge adds amount Ah, clamped to MaxCharge. Rejected when full or amount is negative.
func (b *Battery) Charge(amount float64) bool {
	if b.IsFull() {
		return false
	}
	if amount < 0 || math.IsNaN(amount) {
		return false
	}
	b.charge = math.Min(b.charge+amount, b.config.MaxCharge)
	return true
}

// Discharge removes amount Ah, clamped to 0. Rejected when empty or amount is negative.
func (b *Battery) Discharge(amount float64) bool {
	if b.IsDepleted() {
		return false
	}
	if amount < 0 || math.IsNaN(amount) {
		return false
	}
	b.charge = math.Max(b.charge-amount, 0)
	return true
}

// Connections returns a copy of the ordered connection set.
func (b Battery) Connections() []uuid.UUID {
	out := make([]uuid.UUID, len(b.connections))
	copy(out, b.connections)
	return out
}

// HasConnection reports whether plug is in the connection set.
func (b Battery) HasConnection(plugPID uuid.UUID) bool {
	return b.indexOf(plugPID) >= 0
}

// AddConnection registers a plug. Duplicate and unknown plugs are refused.
// Called during Update, the change is applied once the tick finishes.
func (b *Battery) AddConnection(plugPID uuid.UUID) bool {
	if _, ok := b.registry.Plug(plugPID); !ok {
		return false
	}
	if b.updating {
		if b.member(plugPID) {
			return false
		}
		b.stage(plugPID, true)
		b.pending = append(b.pending, func() { b.addConnection(plugPID) })
		return true
	}
	return b.addConnection(plugPID)
}

// member reports whether plug will be connected once deferred changes are applied.
func (b Battery) member(plugPID uuid.UUID) bool {
	if in, ok := b.staged[plugPID]; ok {
		return in
	}
	return b.HasConnection(plugPID)
}

func (b *Battery) stage(plugPID uuid.UUID, in bool) {
	if b.staged == nil {
		b.staged = make(map[uuid.UUID]bool)
	}
	b.staged[plugPID] = in
}

func (b *Battery) addConnection(plugPID uuid.UUID) bool {
	if b.HasConnection(plugPID) {
		return false
	}
	b.connections = append(b.connections, plugPID)
	return true
}

// RemoveConnection drops plug from the connection set, zeroes the power delivered to its
// device and clears the plug's battery reference. Unknown plugs are ignored.
func (b *Battery) RemoveConnection(plugPID uuid.UUID) {
	if b.updating {
		b.stage(plugPID, false)
		b.pending = append(b.pending, func() { b.removeConnection(plugPID) })
		return
	}
	b.removeConnection(plugPID)
}

func (b *Battery) removeConnection(plugPID uuid.UUID) {
	i := b.indexOf(plugPID)
	if i < 0 {
		return
	}
	b.connections = append(b.connections[:i], b.connections[i+1:]...)

	p, ok := b.registry.Plug(plugPID)
	if !ok {
		return
	}
	if d, ok := b.registry.Device(p.Device()); ok {
		d.SetPowerIn(0)
	}
	if p.Battery() == b.pid {
		p.SetBattery(uuid.Nil)
	}
}

func (b Battery) indexOf(plugPID uuid.UUID) int {
	for i, pid := range b.connections {
		if pid == plugPID {
			return i
		}
	}
	return -1
}

// device resolves the device behind a connection, skipping stale handles.
func (b Battery) device(plugPID uuid.UUID) (*device.Device, bool) {
	p, ok := b.registry.Plug(plugPID)
	if !ok {
		return nil, false
	}
	return b.registry.Device(p.Device())
}

// Update advances the battery by one tick of length dt. Every connected device has its
// delivered power written before Update returns.
func (b *Battery) Update(dt time.Duration) {
	b.updating = true
	if b.config.InstantRelease {
		b.distributeInstantRelease()
	} else {
		b.distributeCapacity(dt)
	}
	b.updating = false

	pending := b.pending
	b.pending = nil
	b.staged = nil
	for _, f := range pending {
		f()
	}
}

// distributeInstantRelease pools the output of active producers and hands it to active
// consumers in connection order.
func (b *Battery) distributeInstantRelease() {
	pool := 0.0
	for _, pid := range b.connections {
		d, ok := b.device(pid)
		if !ok {
			continue
		}
		if d.Active() && d.IsProducer() {
			pool += -d.PowerConsumption()
		}
	}

	for _, pid := range b.connections {
		d, ok := b.device(pid)
		if !ok {
			continue
		}
		if d.IsProducer() {
			if d.Active() {
				d.SetPowerIn(d.PowerConsumption())
			} else {
				d.SetPowerIn(0)
			}
			continue
		}
		if !d.Active() || pool <= 0 {
			d.SetPowerIn(0)
			continue
		}
		delivered := math.Min(pool, d.PowerConsumption())
		d.SetPowerIn(delivered)
		pool -= delivered
	}
	b.status = Idle
}

// distributeCapacity converts each active device's wattage over dt into Ah and moves it
// in or out of the battery.
func (b *Battery) distributeCapacity(dt time.Duration) {
	accumulator := 0.0
	for _, pid := range b.connections {
		d, ok := b.device(pid)
		if !ok {
			continue
		}
		power := d.PowerConsumption()

		if !d.Active() {
			// inactive devices draw nothing and contribute nothing
			if b.charge > 0 {
				d.SetPowerIn(power)
			} else {
				d.SetPowerIn(0)
			}
			continue
		}

		energy := math.Abs(power) * dt.Seconds() / 3600 // Wh
		amount := energy / b.config.Voltage             // Ah

		delivered := true
		switch {
		case power > 0:
			delivered = b.withinRate(power, b.config.MaxDischargeRate) && b.Discharge(amount)
			if delivered {
				accumulator -= amount
			}
		case power < 0:
			delivered = b.withinRate(power, b.config.MaxChargeRate) && b.Charge(amount)
			if delivered {
				accumulator += amount
			}
		}

		if delivered {
			d.SetPowerIn(power)
		} else {
			d.SetPowerIn(0)
		}
	}

	switch {
	case accumulator < 0:
		b.status = Discharging
	case accumulator > 0:
		b.status = Charging
	default:
		b.status = Idle
	}
	b.log.WithFields(logrus.Fields{
		"charge": b.charge,
		"status": b.status,
	}).Trace("tick")
}

func (b Battery) withinRate(power, rate float64) bool {
	if !b.config.RateLimited {
		return true
	}
	return math.Abs(power)/b.config.Voltage <= rate
}

// Status returns a snapshot for publication.
func (b Battery) Status() Status {
	return Status{
		PID:              b.pid,
		Name:             b.config.Name,
		CurrentCharge:    b.charge,
		MaxCharge:        b.config.MaxCharge,
		ChargePercentage: b.ChargePercentage(),
		Voltage:          b.config.Voltage,
		Temperature:      b.config.Temperature,
		ChargeStatus:     b.status,
		InstantRelease:   b.config.InstantRelease,
		Connections:      len(b.connections),
	}
}

func round(v float64, dp int) float64 {
	p := math.Pow(10, float64(dp))
	return math.Round(v*p) / p
}
