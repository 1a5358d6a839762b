// Package metrics exposes Prometheus collectors for rule loading and filter
// passes.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "simplerules"

// Reload results.
const (
	ReloadSuccess = "success"
	ReloadFailure = "failure"
)

var (
	// Registry holds every simplerules collector.
	Registry = prometheus.NewRegistry()

	rulesLoaded = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rules_loaded",
			Help:      "Number of rules currently loaded.",
		},
	)
	ruleIssues = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rule_issues_total",
			Help:      "Count of rule file problems found while loading, including warnings.",
		},
	)
	flagsApplied = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flags_applied_total",
			Help:      "Count of flags attached to processes, by flag name.",
		},
		[]string{"flag"},
	)
	passDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pass_duration_seconds",
			Help:      "Duration of a filter pass over all processes.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
	)
	reloads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reloads_total",
			Help:      "Count of rule reloads, by result.",
		},
		[]string{"result"},
	)
)

var registerMetrics sync.Once

// Register all metrics, plus the Go runtime and process collectors.
func Register() {
	registerMetrics.Do(func() {
		Registry.MustRegister(rulesLoaded)
		Registry.MustRegister(ruleIssues)
		Registry.MustRegister(flagsApplied)
		Registry.MustRegister(passDuration)
		Registry.MustRegister(reloads)
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

// Handler returns an HTTP handler serving [Registry].
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}

// RecordRulesLoaded sets the number of loaded rules and adds issues found
// while loading them.
func RecordRulesLoaded(rules, issues int) {
	rulesLoaded.Set(float64(rules))
	ruleIssues.Add(float64(issues))
}

// RecordFlagApplied counts one flag attached to a process.
func RecordFlagApplied(name string) {
	flagsApplied.WithLabelValues(name).Inc()
}

// RecordPassDuration observes the duration of one filter pass.
func RecordPassDuration(d time.Duration) {
	passDuration.Observe(d.Seconds())
}

// RecordReload counts a reload with the given result.
func RecordReload(ok bool) {
	result := ReloadSuccess
	if !ok {
		result = ReloadFailure
	}

	reloads.WithLabelValues(result).Inc()
}
