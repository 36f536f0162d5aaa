package statistics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const fanSubsystem = "fan"

// FanStat is the read-only view of a monitored fan used for metrics.
type FanStat interface {
	Name() string
	Functional() bool
	Present() bool
}

type FanCollector struct {
	fans []FanStat

	functional *prometheus.Desc
	present    *prometheus.Desc
}

func NewFanCollector(fans []FanStat) *FanCollector {
	return &FanCollector{
		fans: fans,
		functional: prometheus.NewDesc(prometheus.BuildFQName(namespace, fanSubsystem, "functional"),
			"Whether the fan is currently reported functional in the inventory",
			[]string{"id"}, nil,
		),
		present: prometheus.NewDesc(prometheus.BuildFQName(namespace, fanSubsystem, "present"),
			"Whether the fan is currently physically present",
			[]string{"id"}, nil,
		),
	}
}

func (collector *FanCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- collector.functional
	ch <- collector.present
}

func (collector *FanCollector) Collect(ch chan<- prometheus.Metric) {
	for _, fan := range collector.fans {
		fanId := fan.Name()
		ch <- prometheus.MustNewConstMetric(collector.functional, prometheus.GaugeValue, boolToGauge(fan.Functional()), fanId)
		ch <- prometheus.MustNewConstMetric(collector.present, prometheus.GaugeValue, boolToGauge(fan.Present()), fanId)
	}
}

func boolToGauge(value bool) float64 {
	if value {
		return 1
	}
	return 0
}
