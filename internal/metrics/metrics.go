package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricPrefix = "thermosync_"

// Metrics holds the synchronizer's instrumentation. Pass a dedicated
// registry in tests; main wires the default one.
type Metrics struct {
	PollCycles     *prometheus.CounterVec
	FailureStreak  prometheus.Gauge
	CloudConnected prometheus.Gauge
	PollInterval   prometheus.Gauge
	OnlineDevices  prometheus.Gauge
	Commands       *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PollCycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metricPrefix + "poll_cycles_total",
			Help: "Completed poll cycles by result",
		}, []string{"result"}),
		FailureStreak: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metricPrefix + "consecutive_comm_failures",
			Help: "Current consecutive communication failure streak",
		}),
		CloudConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metricPrefix + "cloud_connected",
			Help: "Connectivity flag: 1 connected, 0 not",
		}),
		PollInterval: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metricPrefix + "poll_interval_seconds",
			Help: "Delay until the next scheduled poll cycle",
		}),
		OnlineDevices: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metricPrefix + "online_devices",
			Help: "Devices reported online on the last cycle",
		}),
		Commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metricPrefix + "commands_total",
			Help: "Apply commands by mode and outcome",
		}, []string{"mode", "outcome"}),
	}

	reg.MustRegister(
		m.PollCycles,
		m.FailureStreak,
		m.CloudConnected,
		m.PollInterval,
		m.OnlineDevices,
		m.Commands,
	)
	m.CloudConnected.Set(1)
	return m
}
