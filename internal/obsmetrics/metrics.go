// Package obsmetrics exposes prometheus counters/histograms for the
// resolve/fetch/configure operations, surfaced as text by "bpkg status
// --metrics" (no HTTP endpoint: spec.md's Non-goals exclude providing a
// networked service).
package obsmetrics

import (
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/common/expfmt"
)

var registry = prometheus.NewRegistry()

var (
	ResolveAttempts = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Name: "bpkg_resolve_attempts_total",
		Help: "Number of dependency resolution attempts, by outcome.",
	}, []string{"outcome"})

	ResolveDuration = promauto.With(registry).NewHistogram(prometheus.HistogramOpts{
		Name:    "bpkg_resolve_duration_seconds",
		Help:    "Wall-clock time spent resolving a set of roots.",
		Buckets: prometheus.DefBuckets,
	})

	FetchBytes = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Name: "bpkg_fetch_bytes_total",
		Help: "Bytes fetched, by repository scheme.",
	}, []string{"scheme"})

	FetchCacheHits = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Name: "bpkg_fetch_cache_total",
		Help: "Fetch cache lookups, by hit/miss/stale.",
	}, []string{"result"})

	ConfigureDuration = promauto.With(registry).NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bpkg_configure_duration_seconds",
		Help:    "Wall-clock time spent in the build-system configure step, by package.",
		Buckets: prometheus.DefBuckets,
	}, []string{"package"})

	PackageStateTransitions = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Name: "bpkg_package_state_transitions_total",
		Help: "Package state machine transitions, by from/to state.",
	}, []string{"from", "to"})
)

// Registry exposes the registry backing these collectors, so the CLI's
// "status --metrics" subcommand can gather and render it as text without
// starting an HTTP listener.
func Registry() *prometheus.Registry { return registry }

// Dump writes every collected metric family to w in Prometheus text
// exposition format, used by "bpkg status --metrics" in place of serving
// them over /metrics.
func Dump(w io.Writer) error {
	families, err := registry.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}
