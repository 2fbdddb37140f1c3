package comparator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	cache   *prometheus.CounterVec
	fetches *prometheus.CounterVec
	skipped prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)
	return &metrics{
		cache: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sidebyside",
			Name:      "comparison_cache_lookups_total",
			Help:      "Comparison cache lookups by result (hit, miss, expired).",
		}, []string{"result"}),
		fetches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sidebyside",
			Name:      "release_note_fetches_total",
			Help:      "Release-note fetches by result (ok, missing, error).",
		}, []string{"result"}),
		skipped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "sidebyside",
			Name:      "release_note_items_skipped_total",
			Help:      "Release-note items or pages that could not be classified.",
		}),
	}
}
