package statistics

import "github.com/prometheus/client_golang/prometheus"

const (
	namespace = "tachmon"
)

func Register(collector prometheus.Collector) {
	prometheus.MustRegister(collector)
}

var (
	// FanStatusChanges counts fan-level functional verdict flips
	FanStatusChanges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "system",
			Name:      "fan_status_changes_total",
			Help:      "Number of fan functional state changes, by direction",
		},
		[]string{"fan", "direction"},
	)

	// FanMissingErrors counts sustained-absence conditions
	FanMissingErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "system",
			Name:      "fan_missing_errors_total",
			Help:      "Number of sustained fan absence conditions",
		},
		[]string{"fan"},
	)

	// SensorErrors counts sustained sensor fault conditions
	SensorErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "system",
			Name:      "sensor_errors_total",
			Help:      "Number of sustained sensor fault conditions",
		},
		[]string{"fan", "sensor"},
	)
)

func init() {
	Register(FanStatusChanges)
	Register(FanMissingErrors)
	Register(SensorErrors)
}
