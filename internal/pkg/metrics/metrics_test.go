package metrics

import (
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"gotest.tools/v3/assert"

	"github.com/ohowland/powernet/internal/pkg/asset/battery"
	"github.com/ohowland/powernet/internal/pkg/asset/device"
	"github.com/ohowland/powernet/internal/pkg/asset/socket"
	"github.com/ohowland/powernet/internal/pkg/network"
)

type source network.Snapshot

func (s source) Snapshot() network.Snapshot {
	return network.Snapshot(s)
}

func testSource() source {
	return source{
		Tick: 7,
		Batteries: []battery.Status{
			{PID: uuid.New(), Name: "bank", CurrentCharge: 40, ChargePercentage: 40, ChargeStatus: battery.Discharging, Connections: 1},
		},
		Devices: []device.Status{
			{PID: uuid.New(), Name: "lamp", Kind: device.Lamp, Active: true, Running: true, PowerIn: 60},
			{PID: uuid.New(), Name: "drill", Kind: device.Generic},
		},
		Sockets: []socket.Status{
			{PID: uuid.New(), Name: "bank-1", IsPluggedIn: true},
		},
	}
}

func TestDescribe(t *testing.T) {
	c := NewCollector(testSource())
	ch := make(chan *prometheus.Desc, 20)
	c.Describe(ch)
	close(ch)

	count := 0
	for range ch {
		count++
	}
	assert.Equal(t, count, 9)
}

func TestCollect(t *testing.T) {
	c := NewCollector(testSource())

	assert.Equal(t, testutil.CollectAndCount(c), 1+4+3*2+1)
	assert.Equal(t, testutil.CollectAndCount(c, "powernet_device_running"), 2)

	registry := prometheus.NewPedanticRegistry()
	assert.NilError(t, registry.Register(c))
	families, err := registry.Gather()
	assert.NilError(t, err)

	values := map[string]float64{}
	for _, f := range families {
		for _, m := range f.GetMetric() {
			if m.GetGauge() != nil {
				values[f.GetName()] += m.GetGauge().GetValue()
			}
			if m.GetCounter() != nil {
				values[f.GetName()] += m.GetCounter().GetValue()
			}
		}
	}
	assert.Equal(t, values["powernet_ticks_total"], 7.0)
	assert.Equal(t, values["powernet_battery_charge_ah"], 40.0)
	assert.Equal(t, values["powernet_battery_charge_status"], -1.0)
	assert.Equal(t, values["powernet_device_power_in_watts"], 60.0)
	assert.Equal(t, values["powernet_device_running"], 1.0)
	assert.Equal(t, values["powernet_socket_plugged"], 1.0)
}
