// Package metrics exposes Prometheus collectors for the Round
// Controller, Dispatcher, and Green-Branch Manager. These are ambient
// observability only -- nothing in internal/round, internal/dispatcher,
// or internal/greenbranch reads a metric back to make a decision.
package metrics

import (
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// Registry is the registry every collector below is registered to.
// Callers that run an HTTP metrics endpoint expose it with
// promhttp.HandlerFor(Registry, ...); callers that only want a local
// text dump use WritePrometheus. No command in internal/cmd does either.
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(
		RoundsStarted, RoundsCompleted, RoundScore, RoundDuration,
		UnitsDispatched, UnitsCompleted, UnitsFailed,
		MergeConflicts, MergeBisections, FixupSessionsRun,
		WorkspacePoolInUse, WorkspacePoolCapacity,
		VerificationPass, VerificationFail, VerificationDuration,
	)
}

// RoundsStarted counts rounds the Round Controller has begun.
var RoundsStarted = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "missionctl_rounds_started_total",
	Help: "Rounds the Round Controller has begun.",
})

// RoundsCompleted counts rounds that ran to completion, by stop reason.
var RoundsCompleted = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "missionctl_rounds_completed_total",
	Help: "Rounds completed, labeled by the mission's eventual stopped_reason.",
}, []string{"stopped_reason"})

// RoundScore records each round's evaluation score.
var RoundScore = prometheus.NewHistogram(prometheus.HistogramOpts{
	Name:    "missionctl_round_score",
	Help:    "Evaluation score recorded at the end of each round.",
	Buckets: []float64{0, 0.2, 0.4, 0.6, 0.8, 0.9, 0.95, 1.0},
})

// RoundDuration records wall-clock time spent per round.
var RoundDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
	Name:    "missionctl_round_duration_seconds",
	Help:    "Wall-clock duration of a single round.",
	Buckets: prometheus.ExponentialBuckets(5, 2, 10),
})

// UnitsDispatched counts work units handed to the Dispatcher.
var UnitsDispatched = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "missionctl_units_dispatched_total",
	Help: "Work units the Dispatcher has sent to a worker.",
})

// UnitsCompleted counts work units that finished successfully.
var UnitsCompleted = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "missionctl_units_completed_total",
	Help: "Work units that finished with status completed.",
})

// UnitsFailed counts work units that finished failed, by reason.
var UnitsFailed = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "missionctl_units_failed_total",
	Help: "Work units that finished failed, labeled by failure category.",
}, []string{"category"})

// MergeConflicts counts Green-Branch merge attempts that conflicted.
var MergeConflicts = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "missionctl_merge_conflicts_total",
	Help: "Work-unit merges onto the green branch that hit a conflict.",
})

// MergeBisections counts speculative batch merges that required bisection.
var MergeBisections = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "missionctl_merge_bisections_total",
	Help: "Speculative merge batches that failed verification and were bisected.",
})

// FixupSessionsRun counts fixup sessions the Green-Branch Manager launched.
var FixupSessionsRun = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "missionctl_fixup_sessions_total",
	Help: "Fixup sessions run against the green branch after a failing round.",
})

// WorkspacePoolInUse gauges clones currently checked out of the pool.
var WorkspacePoolInUse = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "missionctl_workspace_pool_in_use",
	Help: "Workspace clones currently checked out.",
})

// WorkspacePoolCapacity gauges the pool's configured max clones.
var WorkspacePoolCapacity = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "missionctl_workspace_pool_capacity",
	Help: "Workspace Pool's configured maximum clone count.",
})

// VerificationPass counts verification runs where every required node passed.
var VerificationPass = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "missionctl_verification_pass_total",
	Help: "Verification runs where every required node passed.",
})

// VerificationFail counts verification runs with at least one failing required node.
var VerificationFail = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "missionctl_verification_fail_total",
	Help: "Verification runs with at least one failing required node.",
})

// VerificationDuration records wall-clock time spent running verification nodes.
var VerificationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "missionctl_verification_duration_seconds",
	Help:    "Wall-clock duration of a verification node run, by kind.",
	Buckets: prometheus.DefBuckets,
}, []string{"kind"})

// WritePrometheus writes the current state of Registry in Prometheus
// text exposition format to w, for callers that want a one-shot dump
// rather than standing up an HTTP scrape endpoint.
func WritePrometheus(w io.Writer) error {
	families, err := Registry.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.FmtText)
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}
