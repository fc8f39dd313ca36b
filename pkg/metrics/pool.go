package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/getmockd/switchboard/pkg/pool"
)

// StatsSource is anything reporting pool statistics.
type StatsSource interface {
	Stats() pool.Stats
}

type poolCollector struct {
	src StatsSource

	hits      *prometheus.Desc
	misses    *prometheus.Desc
	evictions *prometheus.Desc
	pooled    *prometheus.Desc
	hosts     *prometheus.Desc
}

// NewPoolCollector exports the statistics of src. Values are read at
// scrape time.
func NewPoolCollector(src StatsSource) prometheus.Collector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(Namespace, "pool", name), help, nil, nil)
	}
	return &poolCollector{
		src:       src,
		hits:      desc("hits_total", "Pool lookups served by an idle connection"),
		misses:    desc("misses_total", "Pool lookups that found no healthy connection"),
		evictions: desc("evictions_total", "Connections closed by the pool"),
		pooled:    desc("idle_connections", "Idle connections held by the pool"),
		hosts:     desc("hosts", "Keys with at least one idle connection"),
	}
}

func (c *poolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.hits
	ch <- c.misses
	ch <- c.evictions
	ch <- c.pooled
	ch <- c.hosts
}

func (c *poolCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.src.Stats()
	ch <- prometheus.MustNewConstMetric(c.hits, prometheus.CounterValue, float64(s.Hits))
	ch <- prometheus.MustNewConstMetric(c.misses, prometheus.CounterValue, float64(s.Misses))
	ch <- prometheus.MustNewConstMetric(c.evictions, prometheus.CounterValue, float64(s.Evictions))
	ch <- prometheus.MustNewConstMetric(c.pooled, prometheus.GaugeValue, float64(s.Pooled))
	ch <- prometheus.MustNewConstMetric(c.hosts, prometheus.GaugeValue, float64(s.Hosts))
}

// RegisterPool exports the statistics of p.
func (m *Metrics) RegisterPool(p StatsSource) error {
	return m.registry.Register(NewPoolCollector(p))
}
