package battery

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"gotest.tools/v3/assert"

	"github.com/ohowland/powernet/internal/pkg/asset/device"
	"github.com/ohowland/powernet/internal/pkg/asset/plug"
)

// registry is a minimal handle table for battery tests
type registry struct {
	plugs   map[uuid.UUID]*plug.Plug
	devices map[uuid.UUID]*device.Device
}

func newRegistry() *registry {
	return &registry{
		plugs:   make(map[uuid.UUID]*plug.Plug),
		devices: make(map[uuid.UUID]*device.Device),
	}
}

func (r *registry) Plug(pid uuid.UUID) (*plug.Plug, bool) {
	p, ok := r.plugs[pid]
	return p, ok
}

func (r *registry) Device(pid uuid.UUID) (*device.Device, bool) {
	d, ok := r.devices[pid]
	return d, ok
}

// connect wires a new device through a new plug into b.
func (r *registry) connect(t *testing.T, b *Battery, consumption float64, active bool) (*device.Device, *plug.Plug) {
	t.Helper()
	d, err := device.NewWithConfig(device.Config{Name: "TEST_Device", PowerConsumption: consumption, Active: active}, nil)
	assert.NilError(t, err)
	p, err := plug.New(uuid.New(), plug.Config{Name: "TEST_Plug", IsInput: true})
	assert.NilError(t, err)
	p.SetDevice(d.PID())
	p.SetBattery(b.PID())
	r.devices[d.PID()] = d
	r.plugs[p.PID()] = p
	assert.Assert(t, b.AddConnection(p.PID()))
	return d, p
}

func newBattery(t *testing.T, r Registry, charge, max float64) *Battery {
	t.Helper()
	config := DefaultConfig()
	config.Name = "TEST_Battery"
	config.CurrentCharge = charge
	config.MaxCharge = max
	b, err := NewWithConfig(config, r)
	assert.NilError(t, err)
	return b
}

func TestNew(t *testing.T) {
	b, err := New([]byte(`{"Name":"TEST_Battery","CurrentCharge":20}`), newRegistry())
	assert.NilError(t, err)
	assert.Equal(t, b.Name(), "TEST_Battery")
	assert.Equal(t, b.CurrentCharge(), 20.0)
	// absent fields keep defaults
	assert.Equal(t, b.Config().MaxCharge, 100.0)
	assert.Equal(t, b.Config().Voltage, 12.0)
	assert.Equal(t, b.ChargeStatus(), Idle)
}

func TestNewRejectsBadConfig(t *testing.T) {
	_, err := New([]byte(`{"CurrentCharge":120}`), newRegistry())
	assert.ErrorContains(t, err, "outside")

	_, err = New([]byte(`{"Voltage":0}`), newRegistry())
	assert.ErrorContains(t, err, "Voltage")

	_, err = New([]byte(`{}`), nil)
	assert.ErrorContains(t, err, "registry")
}

func TestChargeDischarge(t *testing.T) {
	b := newBattery(t, newRegistry(), 50, 100)

	assert.Assert(t, b.Charge(30))
	assert.Equal(t, b.CurrentCharge(), 80.0)

	assert.Assert(t, b.Charge(30))
	assert.Equal(t, b.CurrentCharge(), 100.0)
	assert.Assert(t, b.IsFull())

	assert.Assert(t, !b.Charge(1))
	assert.Equal(t, b.CurrentCharge(), 100.0)

	assert.Assert(t, b.Discharge(150))
	assert.Equal(t, b.CurrentCharge(), 0.0)
	assert.Assert(t, b.IsDepleted())

	assert.Assert(t, !b.Discharge(1))
	assert.Equal(t, b.CurrentCharge(), 0.0)
}

func TestNegativeAmountsRejected(t *testing.T) {
	b := newBattery(t, newRegistry(), 50, 100)
	assert.Assert(t, !b.Charge(-1))
	assert.Assert(t, !b.Discharge(-1))
	assert.Equal(t, b.CurrentCharge(), 50.0)
}

func TestHelpers(t *testing.T) {
	b := newBattery(t, newRegistry(), 33.3333, 100)
	assert.Equal(t, b.ChargePercentage(), 33.33)
	assert.Equal(t, b.ChargeRounded(1), 33.3)
	assert.Equal(t, b.OutputVoltage(10), 12-10*0.05)
}

func TestSimpleDischarge(t *testing.T) {
	r := newRegistry()
	b := newBattery(t, r, 50, 100)
	d, _ := r.connect(t, b, 120, true)

	b.Update(time.Hour)

	assert.Equal(t, b.CurrentCharge(), 40.0)
	assert.Equal(t, d.PowerIn(), 120.0)
	assert.Assert(t, d.Running())
	assert.Equal(t, b.ChargeStatus(), Discharging)
}

func TestInactiveConsumer(t *testing.T) {
	r := newRegistry()
	b := newBattery(t, r, 50, 100)
	d, _ := r.connect(t, b, 75, false)

	b.Update(time.Hour)

	assert.Equal(t, b.CurrentCharge(), 50.0)
	assert.Equal(t, d.PowerIn(), 75.0)
	assert.Assert(t, !d.Running())
	assert.Equal(t, b.ChargeStatus(), Idle)
}

func TestInactiveConsumerEmptyBattery(t *testing.T) {
	r := newRegistry()
	b := newBattery(t, r, 0, 100)
	d, _ := r.connect(t, b, 75, false)

	b.Update(time.Hour)
	assert.Equal(t, d.PowerIn(), 0.0)
}

func TestEmptyBatteryBlocksDelivery(t *testing.T) {
	r := newRegistry()
	b := newBattery(t, r, 5, 100)
	d, _ := r.connect(t, b, 120, true)

	b.Update(time.Hour) // 10Ah requested, clamps to 0
	assert.Equal(t, b.CurrentCharge(), 0.0)
	assert.Equal(t, d.PowerIn(), 120.0)

	b.Update(time.Hour)
	assert.Equal(t, d.PowerIn(), 0.0)
	assert.Assert(t, !d.Running())
	assert.Equal(t, b.ChargeStatus(), Idle)
}

func TestProducerCharges(t *testing.T) {
	r := newRegistry()
	b := newBattery(t, r, 50, 100)
	d, _ := r.connect(t, b, -240, true)

	b.Update(time.Hour)

	assert.Equal(t, b.CurrentCharge(), 70.0)
	assert.Equal(t, d.PowerIn(), -240.0)
	assert.Equal(t, b.ChargeStatus(), Charging)
}

func TestFullBatteryRefusesProducer(t *testing.T) {
	r := newRegistry()
	b := newBattery(t, r, 100, 100)
	d, _ := r.connect(t, b, -240, true)

	b.Update(time.Hour)
	assert.Equal(t, b.CurrentCharge(), 100.0)
	assert.Equal(t, d.PowerIn(), 0.0)
	assert.Equal(t, b.ChargeStatus(), Idle)
}

func TestInactiveProducerContributesNothing(t *testing.T) {
	r := newRegistry()
	b := newBattery(t, r, 50, 100)
	r.connect(t, b, -240, false)

	b.Update(time.Hour)
	assert.Equal(t, b.CurrentCharge(), 50.0)
}

func TestRateLimited(t *testing.T) {
	r := newRegistry()
	config := DefaultConfig()
	config.RateLimited = true
	b, err := NewWithConfig(config, r)
	assert.NilError(t, err)

	ok, _ := r.connect(t, b, 120, true)       // 10A, at the limit
	over, _ := r.connect(t, b, 240, true)     // 20A
	charger, _ := r.connect(t, b, -120, true) // 10A > 5A charge limit

	b.Update(time.Second)
	assert.Equal(t, ok.PowerIn(), 120.0)
	assert.Equal(t, over.PowerIn(), 0.0)
	assert.Equal(t, charger.PowerIn(), 0.0)
}

func TestInstantReleasePooling(t *testing.T) {
	r := newRegistry()
	config := DefaultConfig()
	config.InstantRelease = true
	b, err := NewWithConfig(config, r)
	assert.NilError(t, err)

	producer, _ := r.connect(t, b, -200, true)
	first, _ := r.connect(t, b, 80, true)
	second, _ := r.connect(t, b, 150, true)

	b.Update(time.Hour)

	assert.Equal(t, first.PowerIn(), 80.0)
	assert.Equal(t, second.PowerIn(), 120.0)
	assert.Assert(t, first.Running())
	assert.Assert(t, !second.Running())
	assert.Equal(t, producer.PowerIn(), -200.0)
	assert.Equal(t, b.CurrentCharge(), 50.0)
	assert.Equal(t, b.ChargeStatus(), Idle)
}

func TestInstantReleaseExhaustedAndInactive(t *testing.T) {
	r := newRegistry()
	config := DefaultConfig()
	config.InstantRelease = true
	b, err := NewWithConfig(config, r)
	assert.NilError(t, err)

	r.connect(t, b, -100, true)
	idle, _ := r.connect(t, b, 50, false)
	first, _ := r.connect(t, b, 100, true)
	starved, _ := r.connect(t, b, 10, true)

	b.Update(time.Second)

	assert.Equal(t, idle.PowerIn(), 0.0)
	assert.Equal(t, first.PowerIn(), 100.0)
	assert.Equal(t, starved.PowerIn(), 0.0)
}

func TestRemoveConnection(t *testing.T) {
	r := newRegistry()
	b := newBattery(t, r, 50, 100)
	d, p := r.connect(t, b, 10, true)
	b.Update(time.Second)
	assert.Equal(t, d.PowerIn(), 10.0)

	b.RemoveConnection(p.PID())

	assert.Assert(t, !b.HasConnection(p.PID()))
	assert.Equal(t, d.PowerIn(), 0.0)
	assert.Equal(t, p.Battery(), uuid.Nil)
	assert.Equal(t, p.Device(), d.PID())

	// unknown plug is ignored
	b.RemoveConnection(uuid.New())
	assert.Equal(t, len(b.Connections()), 0)
}

func TestAddConnectionRefusesDuplicatesAndUnknown(t *testing.T) {
	r := newRegistry()
	b := newBattery(t, r, 50, 100)
	_, p := r.connect(t, b, 10, true)

	assert.Assert(t, !b.AddConnection(p.PID()))
	assert.Assert(t, !b.AddConnection(uuid.New()))
	assert.Equal(t, len(b.Connections()), 1)
}

func TestDestroyedDeviceSkipped(t *testing.T) {
	r := newRegistry()
	b := newBattery(t, r, 50, 100)
	d, _ := r.connect(t, b, 120, true)
	other, _ := r.connect(t, b, 120, true)
	delete(r.devices, d.PID())

	b.Update(time.Hour)

	assert.Equal(t, b.CurrentCharge(), 40.0)
	assert.Equal(t, other.PowerIn(), 120.0)
}

func TestMutationDuringUpdateIsDeferred(t *testing.T) {
	r := newRegistry()
	b := newBattery(t, r, 50, 100)
	var victim *plug.Plug

	// a handler that unplugs another connection from inside the tick
	d, err := device.NewWithConfig(device.Config{PowerConsumption: 10, Active: true}, device.HandlerFunc(func(device.State) {
		b.RemoveConnection(victim.PID())
	}))
	assert.NilError(t, err)
	p, err := plug.New(uuid.New(), plug.Config{})
	assert.NilError(t, err)
	p.SetDevice(d.PID())
	r.devices[d.PID()] = d
	r.plugs[p.PID()] = p
	assert.Assert(t, b.AddConnection(p.PID()))

	_, victim = r.connect(t, b, 10, true)

	b.Update(time.Second)
	assert.Assert(t, !b.HasConnection(victim.PID()))
	assert.Equal(t, len(b.Connections()), 1)
}

func TestDeferredAddRefusesDuplicates(t *testing.T) {
	r := newRegistry()
	b := newBattery(t, r, 50, 100)
	_, existing := r.connect(t, b, 10, true)
	extra, err := plug.New(uuid.New(), plug.Config{})
	assert.NilError(t, err)
	r.plugs[extra.PID()] = extra

	var accepted []bool
	d, err := device.NewWithConfig(device.Config{PowerConsumption: 10, Active: true}, device.HandlerFunc(func(device.State) {
		accepted = append(accepted,
			b.AddConnection(existing.PID()),
			b.AddConnection(extra.PID()),
			b.AddConnection(extra.PID()),
		)
		b.RemoveConnection(existing.PID())
		accepted = append(accepted, b.AddConnection(existing.PID()))
	}))
	assert.NilError(t, err)
	p, err := plug.New(uuid.New(), plug.Config{})
	assert.NilError(t, err)
	p.SetDevice(d.PID())
	r.devices[d.PID()] = d
	r.plugs[p.PID()] = p
	assert.Assert(t, b.AddConnection(p.PID()))

	b.Update(time.Second)

	assert.DeepEqual(t, accepted, []bool{false, true, false, true})
	assert.Assert(t, b.HasConnection(extra.PID()))
	assert.Assert(t, b.HasConnection(existing.PID()))
	assert.Equal(t, len(b.Connections()), 3)
}
