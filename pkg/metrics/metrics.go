// Package metrics defines the Prometheus collectors used by the miner and
// exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for a mining run. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	CandidatesTotal   *prometheus.CounterVec
	FrequentSetsTotal *prometheus.CounterVec
	LevelDuration     *prometheus.HistogramVec
	EntitiesCounted   prometheus.Counter
	ClosureCacheSize  prometheus.Gauge
	CurrentLevel      prometheus.Gauge
	SinkWritesTotal   *prometheus.CounterVec
	SinkFailuresTotal *prometheus.CounterVec
}

// New creates all collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		CandidatesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "termset_candidates_total",
				Help: "Distinct candidate term-sets counted, by level.",
			},
			[]string{"level"},
		),
		FrequentSetsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "termset_frequent_total",
				Help: "Term-sets that met the support threshold, by level.",
			},
			[]string{"level"},
		),
		LevelDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "termset_level_duration_seconds",
				Help:    "Wall-clock time to count and prune one level.",
				Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 15, 60, 300, 900, 3600},
			},
			[]string{"level"},
		),
		EntitiesCounted: f.NewCounter(
			prometheus.CounterOpts{
				Name: "termset_entities_counted_total",
				Help: "Entity term-sets processed by counting workers.",
			},
		),
		ClosureCacheSize: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "termset_closure_cache_entries",
				Help: "Terms with a memoised ancestor/descendant closure.",
			},
		),
		CurrentLevel: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "termset_current_level",
				Help: "Cardinality of the term-sets being counted.",
			},
		),
		SinkWritesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "termset_sink_writes_total",
				Help: "Frequent term-sets delivered, by sink.",
			},
			[]string{"sink"},
		),
		SinkFailuresTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "termset_sink_failures_total",
				Help: "Failed level deliveries, by sink.",
			},
			[]string{"sink"},
		),
	}
}

// ObserveLevel records one finished level.
func (m *Metrics) ObserveLevel(level, candidates, frequent int, elapsed time.Duration) {
	if m == nil {
		return
	}
	l := strconv.Itoa(level)
	m.CandidatesTotal.WithLabelValues(l).Add(float64(candidates))
	m.FrequentSetsTotal.WithLabelValues(l).Add(float64(frequent))
	m.LevelDuration.WithLabelValues(l).Observe(elapsed.Seconds())
}

func (m *Metrics) StartLevel(level int) {
	if m == nil {
		return
	}
	m.CurrentLevel.Set(float64(level))
}

func (m *Metrics) AddEntities(n int) {
	if m == nil {
		return
	}
	m.EntitiesCounted.Add(float64(n))
}

func (m *Metrics) SetClosureCacheSize(n int) {
	if m == nil {
		return
	}
	m.ClosureCacheSize.Set(float64(n))
}

func (m *Metrics) SinkWrite(sink string, n int) {
	if m == nil {
		return
	}
	m.SinkWritesTotal.WithLabelValues(sink).Add(float64(n))
}

func (m *Metrics) SinkFailure(sink string) {
	if m == nil {
		return
	}
	m.SinkFailuresTotal.WithLabelValues(sink).Inc()
}

// Handler returns the Prometheus scrape HTTP handler for g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
