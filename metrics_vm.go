package ecstore

import (
	"time"

	"github.com/VictoriaMetrics/metrics"
)

// VMMetricsCollector publishes engine metrics into a VictoriaMetrics
// metrics set, suitable for scraping via metrics.WritePrometheus.
type VMMetricsCollector struct {
	set *metrics.Set

	creates         *metrics.Counter
	createErrors    *metrics.Counter
	createdEntities *metrics.Counter
	deletes         *metrics.Counter
	queries         *metrics.Counter
	compactions     *metrics.Counter
	compactedSlots  *metrics.Counter

	createSeconds  *metrics.Histogram
	querySeconds   *metrics.Histogram
	compactSeconds *metrics.Histogram
}

// NewVMMetricsCollector creates a collector writing into set. If set is
// nil a private set is created; access it via Set.
func NewVMMetricsCollector(set *metrics.Set) *VMMetricsCollector {
	if set == nil {
		set = metrics.NewSet()
	}
	return &VMMetricsCollector{
		set:             set,
		creates:         set.GetOrCreateCounter(`ecstore_creates_total`),
		createErrors:    set.GetOrCreateCounter(`ecstore_create_errors_total`),
		createdEntities: set.GetOrCreateCounter(`ecstore_created_entities_total`),
		deletes:         set.GetOrCreateCounter(`ecstore_deletes_total`),
		queries:         set.GetOrCreateCounter(`ecstore_queries_total`),
		compactions:     set.GetOrCreateCounter(`ecstore_compactions_total`),
		compactedSlots:  set.GetOrCreateCounter(`ecstore_compacted_slots_total`),
		createSeconds:   set.GetOrCreateHistogram(`ecstore_create_duration_seconds`),
		querySeconds:    set.GetOrCreateHistogram(`ecstore_query_duration_seconds`),
		compactSeconds:  set.GetOrCreateHistogram(`ecstore_compaction_duration_seconds`),
	}
}

// Set returns the underlying metrics set.
func (c *VMMetricsCollector) Set() *metrics.Set {
	return c.set
}

// RecordCreate implements MetricsCollector.
func (c *VMMetricsCollector) RecordCreate(count int, duration time.Duration, err error) {
	c.creates.Inc()
	c.createSeconds.Update(duration.Seconds())
	if err != nil {
		c.createErrors.Inc()
		return
	}
	c.createdEntities.Add(count)
}

// RecordDelete implements MetricsCollector.
func (c *VMMetricsCollector) RecordDelete(time.Duration) {
	c.deletes.Inc()
}

// RecordQuery implements MetricsCollector.
func (c *VMMetricsCollector) RecordQuery(stores int, duration time.Duration) {
	c.queries.Inc()
	c.querySeconds.Update(duration.Seconds())
}

// RecordCompaction implements MetricsCollector.
func (c *VMMetricsCollector) RecordCompaction(live, removed uint64, duration time.Duration) {
	c.compactions.Inc()
	c.compactedSlots.Add(int(removed))
	c.compactSeconds.Update(duration.Seconds())
}
