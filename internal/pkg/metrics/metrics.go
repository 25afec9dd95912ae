package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ohowland/powernet/internal/pkg/network"
)

// Source provides the snapshot exported on each scrape.
type Source interface {
	Snapshot() network.Snapshot
}

// Collector implements prometheus.Collector for a power network
type Collector struct {
	source Source

	ticks             *prometheus.Desc
	batteryCharge     *prometheus.Desc
	batteryPercent    *prometheus.Desc
	batteryStatus     *prometheus.Desc
	batteryConnection *prometheus.Desc
	devicePowerIn     *prometheus.Desc
	deviceActive      *prometheus.Desc
	deviceRunning     *prometheus.Desc
	socketPlugged     *prometheus.Desc
}

// NewCollector creates a collector reading from source
func NewCollector(source Source) *Collector {
	return &Collector{
		source: source,
		ticks: prometheus.NewDesc(
			"powernet_ticks_total",
			"Number of simulation ticks run",
			nil, nil,
		),
		batteryCharge: prometheus.NewDesc(
			"powernet_battery_charge_ah",
			"Battery charge in amp hours",
			[]string{"battery"}, nil,
		),
		batteryPercent: prometheus.NewDesc(
			"powernet_battery_charge_percent",
			"Battery state of charge in percent",
			[]string{"battery"}, nil,
		),
		batteryStatus: prometheus.NewDesc(
			"powernet_battery_charge_status",
			"Direction of energy flow during the last tick (-1 discharging, 0 idle, 1 charging)",
			[]string{"battery"}, nil,
		),
		batteryConnection: prometheus.NewDesc(
			"powernet_battery_connections",
			"Number of plugs connected to the battery",
			[]string{"battery"}, nil,
		),
		devicePowerIn: prometheus.NewDesc(
			"powernet_device_power_in_watts",
			"Power delivered to the device during the last tick",
			[]string{"device", "kind"}, nil,
		),
		deviceActive: prometheus.NewDesc(
			"powernet_device_active",
			"Device switched on (1=yes, 0=no)",
			[]string{"device", "kind"}, nil,
		),
		deviceRunning: prometheus.NewDesc(
			"powernet_device_running",
			"Device active and powered (1=yes, 0=no)",
			[]string{"device", "kind"}, nil,
		),
		socketPlugged: prometheus.NewDesc(
			"powernet_socket_plugged",
			"Socket holds a plug (1=yes, 0=no)",
			[]string{"socket"}, nil,
		),
	}
}

// Describe implements prometheus.Collector
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.ticks
	ch <- c.batteryCharge
	ch <- c.batteryPercent
	ch <- c.batteryStatus
	ch <- c.batteryConnection
	ch <- c.devicePowerIn
	ch <- c.deviceActive
	ch <- c.deviceRunning
	ch <- c.socketPlugged
}

// Collect implements prometheus.Collector
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snap := c.source.Snapshot()

	ch <- prometheus.MustNewConstMetric(c.ticks, prometheus.CounterValue, float64(snap.Tick))

	for _, b := range snap.Batteries {
		ch <- prometheus.MustNewConstMetric(c.batteryCharge, prometheus.GaugeValue, b.CurrentCharge, b.Name)
		ch <- prometheus.MustNewConstMetric(c.batteryPercent, prometheus.GaugeValue, b.ChargePercentage, b.Name)
		ch <- prometheus.MustNewConstMetric(c.batteryStatus, prometheus.GaugeValue, float64(b.ChargeStatus), b.Name)
		ch <- prometheus.MustNewConstMetric(c.batteryConnection, prometheus.GaugeValue, float64(b.Connections), b.Name)
	}
	for _, d := range snap.Devices {
		kind := string(d.Kind)
		ch <- prometheus.MustNewConstMetric(c.devicePowerIn, prometheus.GaugeValue, d.PowerIn, d.Name, kind)
		ch <- prometheus.MustNewConstMetric(c.deviceActive, prometheus.GaugeValue, flag(d.Active), d.Name, kind)
		ch <- prometheus.MustNewConstMetric(c.deviceRunning, prometheus.GaugeValue, flag(d.Running), d.Name, kind)
	}
	for _, s := range snap.Sockets {
		ch <- prometheus.MustNewConstMetric(c.socketPlugged, prometheus.GaugeValue, flag(s.IsPluggedIn), s.Name)
	}
}

func flag(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
