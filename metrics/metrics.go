// Package metrics exports CHOKe queue counters to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/marcopolo/choke"
)

const namespace = "choke"

// StatsSource is anything that can snapshot queue counters, such as a
// *choke.Link or a *choke.ChokeQueue guarded by the caller.
type StatsSource interface {
	Stats() choke.Stats
}

// Collector reads a StatsSource on every scrape.
type Collector struct {
	source StatsSource

	packetsDesc  *prometheus.Desc
	bytesDesc    *prometheus.Desc
	dropsDesc    *prometheus.Desc
	marksDesc    *prometheus.Desc
	queueDesc    *prometheus.Desc
	avgQueueDesc *prometheus.Desc
}

// NewCollector returns a Collector for source. constLabels are attached to
// every metric, which lets several queues share a registry.
func NewCollector(source StatsSource, constLabels prometheus.Labels) *Collector {
	return &Collector{
		source: source,
		packetsDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "queue", "packets_total"),
			"Packets seen by the queue, by stage",
			[]string{"stage"}, constLabels,
		),
		bytesDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "queue", "bytes_total"),
			"Bytes seen by the queue, by stage",
			[]string{"stage"}, constLabels,
		),
		dropsDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "queue", "drops_total"),
			"Packets dropped, by reason",
			[]string{"reason"}, constLabels,
		),
		marksDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "queue", "marks_total"),
			"Packets marked congestion experienced, by reason",
			[]string{"reason"}, constLabels,
		),
		queueDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "queue", "size"),
			"Current queue occupancy in the queue's unit",
			nil, constLabels,
		),
		avgQueueDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "queue", "average_size"),
			"Exponentially weighted average queue size",
			nil, constLabels,
		),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.packetsDesc
	ch <- c.bytesDesc
	ch <- c.dropsDesc
	ch <- c.marksDesc
	ch <- c.queueDesc
	ch <- c.avgQueueDesc
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.source.Stats()

	counter := func(desc *prometheus.Desc, v int, label string) {
		ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, float64(v), label)
	}

	counter(c.packetsDesc, s.PacketsReceived, "received")
	counter(c.packetsDesc, s.PacketsEnqueued, "enqueued")
	counter(c.packetsDesc, s.PacketsDequeued, "dequeued")
	counter(c.bytesDesc, s.BytesReceived, "received")
	counter(c.bytesDesc, s.BytesEnqueued, "enqueued")
	counter(c.bytesDesc, s.BytesDequeued, "dequeued")

	counter(c.dropsDesc, s.MatchedDrops, "matched")
	counter(c.dropsDesc, s.ForcedDrops, "forced")
	counter(c.dropsDesc, s.UnforcedDrops, "unforced")
	counter(c.dropsDesc, s.QueueLimitDrops, "queue_limit")
	counter(c.dropsDesc, s.MTUDrops, "mtu")

	counter(c.marksDesc, s.ForcedMarks, "forced")
	counter(c.marksDesc, s.UnforcedMarks, "unforced")

	ch <- prometheus.MustNewConstMetric(c.queueDesc, prometheus.GaugeValue, float64(s.QueueSize))
	ch <- prometheus.MustNewConstMetric(c.avgQueueDesc, prometheus.GaugeValue, s.AverageQueue)
}
