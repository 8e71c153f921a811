// Package stats implements the C9 process-wide search counters: nq,
// nlist (lists scanned), ndis (distance computations), nheap_updates,
// and cumulative quantization/search timing. Counters are additive
// across concurrently running searches — there is no per-search
// isolation, matching §4.5 — and are cheap enough to bump from every
// parallel worker via atomics, the same tradeoff the teacher's
// Prometheus counters make.
package stats

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Sink accumulates counters. The zero value is usable; WithPrometheus
// additionally mirrors every increment into process-wide Prometheus
// metrics for scraping.
type Sink struct {
	nq                 uint64
	nlist              uint64
	ndis               uint64
	nheapUpdates       uint64
	quantizationTimeNs uint64
	searchTimeNs       uint64

	prom *promMetrics
}

type promMetrics struct {
	queries            prometheus.Counter
	listsScanned       prometheus.Counter
	distances          prometheus.Counter
	heapUpdates        prometheus.Counter
	quantizationLatency prometheus.Histogram
	searchLatency      prometheus.Histogram
}

// New creates a Sink with no Prometheus backing.
func New() *Sink { return &Sink{} }

// NewWithPrometheus creates a Sink that also registers and updates the
// package's Prometheus metrics, grounded on the teacher's
// promauto-registered counters/histograms.
func NewWithPrometheus() *Sink {
	return &Sink{prom: &promMetrics{
		queries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ivfindex_search_queries_total",
			Help: "Total number of queries processed (nq).",
		}),
		listsScanned: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ivfindex_lists_scanned_total",
			Help: "Total number of inverted lists scanned (nlist).",
		}),
		distances: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ivfindex_distance_computations_total",
			Help: "Total number of candidate distance computations (ndis).",
		}),
		heapUpdates: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ivfindex_heap_updates_total",
			Help: "Total number of result-heap root replacements.",
		}),
		quantizationLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name: "ivfindex_quantization_seconds",
			Help: "Coarse quantizer assignment latency.",
		}),
		searchLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name: "ivfindex_search_seconds",
			Help: "End-to-end search latency.",
		}),
	}}
}

func (s *Sink) AddQueries(n int) {
	atomic.AddUint64(&s.nq, uint64(n))
	if s.prom != nil {
		s.prom.queries.Add(float64(n))
	}
}

func (s *Sink) AddListsScanned(n int) {
	atomic.AddUint64(&s.nlist, uint64(n))
	if s.prom != nil {
		s.prom.listsScanned.Add(float64(n))
	}
}

func (s *Sink) AddDistances(n int) {
	atomic.AddUint64(&s.ndis, uint64(n))
	if s.prom != nil {
		s.prom.distances.Add(float64(n))
	}
}

func (s *Sink) AddHeapUpdates(n int) {
	atomic.AddUint64(&s.nheapUpdates, uint64(n))
	if s.prom != nil {
		s.prom.heapUpdates.Add(float64(n))
	}
}

func (s *Sink) AddQuantizationTime(d time.Duration) {
	atomic.AddUint64(&s.quantizationTimeNs, uint64(d))
	if s.prom != nil {
		s.prom.quantizationLatency.Observe(d.Seconds())
	}
}

func (s *Sink) AddSearchTime(d time.Duration) {
	atomic.AddUint64(&s.searchTimeNs, uint64(d))
	if s.prom != nil {
		s.prom.searchLatency.Observe(d.Seconds())
	}
}

// Snapshot is a point-in-time read of every counter.
type Snapshot struct {
	NQ                  uint64
	NList               uint64
	NDis                uint64
	NHeapUpdates        uint64
	QuantizationTimeMs  float64
	SearchTimeMs        float64
}

func (s *Sink) Snapshot() Snapshot {
	return Snapshot{
		NQ:                 atomic.LoadUint64(&s.nq),
		NList:              atomic.LoadUint64(&s.nlist),
		NDis:               atomic.LoadUint64(&s.ndis),
		NHeapUpdates:       atomic.LoadUint64(&s.nheapUpdates),
		QuantizationTimeMs: time.Duration(atomic.LoadUint64(&s.quantizationTimeNs)).Seconds() * 1000,
		SearchTimeMs:       time.Duration(atomic.LoadUint64(&s.searchTimeNs)).Seconds() * 1000,
	}
}

// Reset zeroes every counter in place. Prometheus counters are
// cumulative by design and are intentionally left untouched.
func (s *Sink) Reset() {
	atomic.StoreUint64(&s.nq, 0)
	atomic.StoreUint64(&s.nlist, 0)
	atomic.StoreUint64(&s.ndis, 0)
	atomic.StoreUint64(&s.nheapUpdates, 0)
	atomic.StoreUint64(&s.quantizationTimeNs, 0)
	atomic.StoreUint64(&s.searchTimeNs, 0)
}
