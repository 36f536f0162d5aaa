package statistics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const sensorSubsystem = "sensor"

// SensorStat is the read-only view of a tach sensor used for metrics.
type SensorStat interface {
	Name() string
	FanName() string
	GetInput() float64
	GetTarget() float64
	Functional() bool
	GetCounter() int
}

type SensorCollector struct {
	sensors []SensorStat

	input      *prometheus.Desc
	target     *prometheus.Desc
	functional *prometheus.Desc
	counter    *prometheus.Desc
}

func NewSensorCollector(sensors []SensorStat) *SensorCollector {
	return &SensorCollector{
		sensors: sensors,
		input: prometheus.NewDesc(prometheus.BuildFQName(namespace, sensorSubsystem, "input"),
			"Current tach input value of the sensor",
			[]string{"fan", "id"}, nil,
		),
		target: prometheus.NewDesc(prometheus.BuildFQName(namespace, sensorSubsystem, "target"),
			"Current target speed of the sensor",
			[]string{"fan", "id"}, nil,
		),
		functional: prometheus.NewDesc(prometheus.BuildFQName(namespace, sensorSubsystem, "functional"),
			"Whether the sensor is currently considered functional",
			[]string{"fan", "id"}, nil,
		),
		counter: prometheus.NewDesc(prometheus.BuildFQName(namespace, sensorSubsystem, "counter"),
			"Current hysteresis counter value of count method sensors",
			[]string{"fan", "id"}, nil,
		),
	}
}

func (collector *SensorCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- collector.input
	ch <- collector.target
	ch <- collector.functional
	ch <- collector.counter
}

func (collector *SensorCollector) Collect(ch chan<- prometheus.Metric) {
	for _, sensor := range collector.sensors {
		fanId := sensor.FanName()
		sensorId := sensor.Name()
		ch <- prometheus.MustNewConstMetric(collector.input, prometheus.GaugeValue, sensor.GetInput(), fanId, sensorId)
		ch <- prometheus.MustNewConstMetric(collector.target, prometheus.GaugeValue, sensor.GetTarget(), fanId, sensorId)
		ch <- prometheus.MustNewConstMetric(collector.functional, prometheus.GaugeValue, boolToGauge(sensor.Functional()), fanId, sensorId)
		ch <- prometheus.MustNewConstMetric(collector.counter, prometheus.GaugeValue, float64(sensor.GetCounter()), fanId, sensorId)
	}
}
