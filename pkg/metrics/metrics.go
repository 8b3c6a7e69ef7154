// Package metrics exposes the forwarding counters over Prometheus. The
// collector reads a stats snapshot on every scrape and never touches
// the forwarding path.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/mazdakn/ufwd/pkg/engine"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Source provides per-worker counter snapshots; the engine implements
// it.
type Source interface {
	Snapshot() []engine.WorkerStats
}

type Collector struct {
	source      Source
	received    *prometheus.Desc
	transmitted *prometheus.Desc
	dropped     *prometheus.Desc
}

func NewCollector(source Source) *Collector {
	return &Collector{
		source: source,
		received: prometheus.NewDesc(
			"ufwd_packets_received_total",
			"Total packets received, per worker.",
			[]string{"worker"}, nil,
		),
		transmitted: prometheus.NewDesc(
			"ufwd_packets_transmitted_total",
			"Total packets transmitted, per worker.",
			[]string{"worker"}, nil,
		),
		dropped: prometheus.NewDesc(
			"ufwd_packets_dropped_total",
			"Total packets dropped on transmit overload, per worker.",
			[]string{"worker"}, nil,
		),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.received
	ch <- c.transmitted
	ch <- c.dropped
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, stats := range c.source.Snapshot() {
		worker := strconv.Itoa(stats.Worker)
		ch <- prometheus.MustNewConstMetric(c.received, prometheus.CounterValue,
			float64(stats.Received), worker)
		ch <- prometheus.MustNewConstMetric(c.transmitted, prometheus.CounterValue,
			float64(stats.Transmitted), worker)
		ch <- prometheus.MustNewConstMetric(c.dropped, prometheus.CounterValue,
			float64(stats.Dropped), worker)
	}
}

// Serve blocks on an HTTP listener exposing /metrics for the given
// source.
func Serve(addr string, source Source) error {
	registry := prometheus.NewRegistry()
	registry.MustRegister(NewCollector(source))

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	logrus.Infof("Serving metrics on %v", addr)
	return http.ListenAndServe(addr, mux)
}
