package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Workflow metrics
	WorkflowsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "prospector_workflows_started_total",
			Help: "Total number of workflow runs started",
		},
	)

	WorkflowsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prospector_workflows_completed_total",
			Help: "Total number of workflow runs completed",
		},
		[]string{"outcome"},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "prospector_stage_duration_seconds",
			Help:    "Duration of each workflow stage in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	PlanRevisions = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "prospector_plan_revisions",
			Help:    "Number of approval-loop revisions per workflow run",
			Buckets: []float64{0, 1, 2, 3, 5, 10},
		},
	)

	RetryRounds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "prospector_retry_rounds",
			Help:    "Number of sufficiency retry rounds per workflow run",
			Buckets: []float64{0, 1, 2, 3, 5},
		},
	)

	// Session metrics
	SessionsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "prospector_sessions_created_total",
			Help: "Total number of sessions created",
		},
	)

	QueriesStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "prospector_queries_started_total",
			Help: "Total number of logical queries started",
		},
	)

	QueriesCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prospector_queries_completed_total",
			Help: "Total number of logical queries completed",
		},
		[]string{"status"},
	)

	ClarificationRounds = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "prospector_clarification_rounds_total",
			Help: "Total number of clarification round-trips",
		},
	)

	// Connector metrics
	ConnectorCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prospector_connector_calls_total",
			Help: "Total connector invocations by source and status",
		},
		[]string{"source", "status"},
	)

	ConnectorDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "prospector_connector_duration_ms",
			Help:    "Connector call duration in milliseconds",
			Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000},
		},
		[]string{"source"},
	)

	StepsSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "prospector_steps_skipped_total",
			Help: "Total plan steps skipped because a dependency failed",
		},
	)

	// Approval metrics
	ApprovalDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prospector_approval_decisions_total",
			Help: "Total approval gate decisions by status",
		},
		[]string{"status"},
	)

	// Archive metrics
	ArchiveWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prospector_archive_writes_total",
			Help: "Total history archive writes by sink and status",
		},
		[]string{"sink", "status"},
	)
)
