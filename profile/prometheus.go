package profile

import "github.com/prometheus/client_golang/prometheus"

var (
	callsDesc = prometheus.NewDesc(
		"redev_function_calls_total",
		"Number of calls recorded per instrumented function",
		[]string{"function"}, nil,
	)
	secondsDesc = prometheus.NewDesc(
		"redev_function_seconds_total",
		"Accumulated seconds recorded per instrumented function",
		[]string{"function"}, nil,
	)
)

// Collector adapts the profiling registry to a prometheus.Collector.
type Collector struct{}

// NewCollector returns a collector over the process-wide registry. Register
// it with a prometheus.Registerer to scrape redev timings.
func NewCollector() *Collector { return &Collector{} }

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- callsDesc
	ch <- secondsDesc
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for name, e := range snapshot() {
		ch <- prometheus.MustNewConstMetric(callsDesc, prometheus.CounterValue, float64(e.calls), name)
		ch <- prometheus.MustNewConstMetric(secondsDesc, prometheus.CounterValue, e.seconds, name)
	}
}
