// Package metrics exposes Prometheus counters for collection runs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "news_collector"

// Collector holds the ingestion metrics. A nil *Collector records nothing.
type Collector struct {
	keywordsSearched prometheus.Counter
	keywordsFailed   prometheus.Counter
	itemsStored      prometheus.Counter
	itemsFailed      prometheus.Counter
	imageLocate      *prometheus.CounterVec
	imageArchive     *prometheus.CounterVec
	runDuration      prometheus.Histogram
}

// New registers the collector's metrics with reg.
func New(reg prometheus.Registerer) *Collector {
	f := promauto.With(reg)
	return &Collector{
		keywordsSearched: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "keywords_searched_total",
			Help:      "Keywords whose search call succeeded",
		}),
		keywordsFailed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "keywords_failed_total",
			Help:      "Keywords skipped after the search call failed",
		}),
		itemsStored: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_stored_total",
			Help:      "News items written to the store",
		}),
		itemsFailed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_failed_total",
			Help:      "News items dropped because the store write failed",
		}),
		imageLocate: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "image_locate_total",
			Help:      "Image location attempts by outcome",
		}, []string{"outcome"}),
		imageArchive: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "image_archive_total",
			Help:      "Image archive attempts by outcome",
		}, []string{"outcome"}),
		runDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of one collection run",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
	}
}

func (c *Collector) KeywordSearched() {
	if c != nil {
		c.keywordsSearched.Inc()
	}
}

func (c *Collector) KeywordFailed() {
	if c != nil {
		c.keywordsFailed.Inc()
	}
}

func (c *Collector) ItemStored() {
	if c != nil {
		c.itemsStored.Inc()
	}
}

func (c *Collector) ItemFailed() {
	if c != nil {
		c.itemsFailed.Inc()
	}
}

func (c *Collector) ImageLocated(found bool) {
	if c != nil {
		c.imageLocate.WithLabelValues(outcome(found)).Inc()
	}
}

func (c *Collector) ImageArchived(ok bool) {
	if c != nil {
		c.imageArchive.WithLabelValues(outcome(ok)).Inc()
	}
}

func (c *Collector) ObserveRun(d time.Duration) {
	if c != nil {
		c.runDuration.Observe(d.Seconds())
	}
}

func outcome(ok bool) string {
	if ok {
		return "found"
	}
	return "none"
}
