// Package workflow implements the controller driving one query end-to-end:
// plan, approval loop, execution, sufficiency loop, report. The controller
// writes its progress into the history entry it is handed, so partial state
// stays inspectable whatever the outcome.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/oakmere/prospector/internal/agents"
	"github.com/oakmere/prospector/internal/approval"
	"github.com/oakmere/prospector/internal/metrics"
	"github.com/oakmere/prospector/internal/models"
	"github.com/oakmere/prospector/internal/tracing"
)

// OutcomeType tags the terminal state a run reached.
type OutcomeType string

const (
	ReportReady            OutcomeType = "report_ready"
	ClarificationRequested OutcomeType = "clarification_requested"
	Rejected               OutcomeType = "rejected"
	Failed                 OutcomeType = "failed"
)

// Outcome is the terminal result of one controller run.
type Outcome struct {
	Type          OutcomeType
	Report        string
	Clarification *models.ClarificationRequest
	Err           error
}

// Policy carries the controller's loop bounds.
type Policy struct {
	// MaxRetryRounds bounds the sufficiency retry loop. Exceeding it fails
	// the run with a retry-exhausted error.
	MaxRetryRounds int
}

// DefaultPolicy is used when a zero Policy is supplied.
var DefaultPolicy = Policy{MaxRetryRounds: 2}

// Controller composes the stage collaborators into the workflow state
// machine.
type Controller struct {
	planner     agents.Planner
	summarizer  agents.Summarizer
	executor    agents.Executor
	sufficiency agents.Sufficiency
	reporter    agents.Reporter
	gate        approval.Gate
	policy      Policy
	logger      *zap.Logger
}

func NewController(
	planner agents.Planner,
	summarizer agents.Summarizer,
	executor agents.Executor,
	sufficiency agents.Sufficiency,
	reporter agents.Reporter,
	gate approval.Gate,
	policy Policy,
	logger *zap.Logger,
) *Controller {
	if policy.MaxRetryRounds <= 0 {
		policy.MaxRetryRounds = DefaultPolicy.MaxRetryRounds
	}
	return &Controller{
		planner:     planner,
		summarizer:  summarizer,
		executor:    executor,
		sufficiency: sufficiency,
		reporter:    reporter,
		gate:        gate,
		policy:      policy,
		logger:      logger,
	}
}

// Run drives one query through the state machine, recording progress on
// entry. Collaborator errors are not retried; they surface as a Failed
// outcome tagged with the originating stage.
func (c *Controller) Run(ctx context.Context, query string, entry *models.QueryHistoryEntry) Outcome {
	metrics.WorkflowsStarted.Inc()
	start := time.Now()

	outcome := c.run(ctx, query, entry)

	metrics.WorkflowsCompleted.WithLabelValues(string(outcome.Type)).Inc()
	c.logger.Info("Workflow finished",
		zap.String("outcome", string(outcome.Type)),
		zap.Duration("duration", time.Since(start)),
	)
	return outcome
}

func (c *Controller) run(ctx context.Context, query string, entry *models.QueryHistoryEntry) Outcome {
	// Plan.
	plan, err := timed(ctx, models.StagePlan, func(ctx context.Context) (*models.ExecutionPlan, error) {
		return c.planner.CreatePlan(ctx, query)
	})
	if err != nil {
		return c.fail(entry, models.NewAdapterError(models.StagePlan, err))
	}
	entry.Plan = plan

	// Clarification short-circuits before any source is touched.
	if plan.NeedsClarification() {
		return c.requestClarification(entry, plan.Clarification)
	}

	// Approval loop. The gate is the sole arbiter of when it ends.
	plan, outcome, done := c.approvalLoop(ctx, query, plan, entry)
	if done {
		return outcome
	}

	// Execute.
	results, err := timed(ctx, models.StageExecute, func(ctx context.Context) (*models.AggregatedResults, error) {
		return c.executor.Execute(ctx, plan, query)
	})
	if err != nil {
		return c.fail(entry, models.NewAdapterError(models.StageExecute, err))
	}
	entry.Results = results

	// Sufficiency loop, bounded by policy.
	return c.sufficiencyLoop(ctx, query, plan, results, entry)
}

// approvalLoop presents the plan (and its revisions) to the gate until it
// approves or rejects. Returns the approved plan, or a terminal outcome with
// done=true.
func (c *Controller) approvalLoop(ctx context.Context, query string, plan *models.ExecutionPlan, entry *models.QueryHistoryEntry) (*models.ExecutionPlan, Outcome, bool) {
	for revision := 1; ; revision++ {
		summary, err := timed(ctx, models.StageApproval, func(ctx context.Context) (models.PlanSummary, error) {
			return c.summarizer.SummarizePlan(ctx, plan, query)
		})
		if err != nil {
			return nil, c.fail(entry, models.NewAdapterError(models.StageApproval, err)), true
		}

		fb, err := c.gate.Review(ctx, summary, revision)
		if err != nil {
			return nil, c.fail(entry, models.NewAdapterError(models.StageApproval, err)), true
		}
		metrics.ApprovalDecisions.WithLabelValues(string(fb.Status)).Inc()
		entry.Revisions = append(entry.Revisions, models.PlanRevision{
			Number:    revision,
			Plan:      plan,
			Summary:   summary,
			Feedback:  &fb,
			Timestamp: time.Now(),
		})

		switch fb.Status {
		case models.ApprovalApproved:
			metrics.PlanRevisions.Observe(float64(revision - 1))
			entry.Plan = plan
			return plan, Outcome{}, false

		case models.ApprovalRejected:
			c.logger.Info("Plan rejected by approval gate", zap.Int("revision", revision))
			entry.Status = models.StatusRejected
			entry.CompletedAt = time.Now()
			return nil, Outcome{Type: Rejected, Err: models.ErrRejected}, true

		case models.ApprovalRevise:
			c.logger.Info("Plan sent back for revision",
				zap.Int("revision", revision),
				zap.String("feedback", fb.Text),
			)
			revised, err := timed(ctx, models.StagePlan, func(ctx context.Context) (*models.ExecutionPlan, error) {
				return c.planner.RevisePlan(ctx, plan, fb.Text, query)
			})
			if err != nil {
				return nil, c.fail(entry, models.NewAdapterError(models.StagePlan, err)), true
			}
			plan = revised
			entry.Plan = plan

		default:
			err := fmt.Errorf("approval gate returned unknown status %q", fb.Status)
			return nil, c.fail(entry, models.NewAdapterError(models.StageApproval, err)), true
		}
	}
}

// sufficiencyLoop evaluates results and either reports, asks for
// clarification, or retries the named steps. The retry loop is bounded so a
// checker that perpetually asks for retries cannot spin forever.
func (c *Controller) sufficiencyLoop(ctx context.Context, query string, plan *models.ExecutionPlan, results *models.AggregatedResults, entry *models.QueryHistoryEntry) Outcome {
	for round := 0; ; round++ {
		verdict, err := timed(ctx, models.StageSufficiency, func(ctx context.Context) (*models.SufficiencyResult, error) {
			return c.sufficiency.Evaluate(ctx, results)
		})
		if err != nil {
			return c.fail(entry, models.NewAdapterError(models.StageSufficiency, err))
		}
		if err := verdict.Validate(); err != nil {
			return c.fail(entry, models.NewAdapterError(models.StageSufficiency, err))
		}
		entry.Sufficiency = verdict

		switch verdict.Status {
		case models.Sufficient:
			metrics.RetryRounds.Observe(float64(round))
			return c.report(ctx, results, entry)

		case models.ClarificationNeeded:
			return c.requestClarification(entry, verdict.Clarification)

		case models.RetryNeeded:
			if round >= c.policy.MaxRetryRounds {
				c.logger.Warn("Retry rounds exhausted",
					zap.Int("rounds", round),
					zap.Ints("outstanding_steps", verdict.RetrySteps),
				)
				return c.fail(entry, models.ErrRetryExhausted)
			}
			c.logger.Info("Retrying failed steps",
				zap.Int("round", round+1),
				zap.Ints("steps", verdict.RetrySteps),
			)
			retried, err := timed(ctx, models.StageExecute, func(ctx context.Context) ([]models.SearchResult, error) {
				return c.executor.ExecuteSteps(ctx, plan, query, verdict.RetrySteps, results.Results)
			})
			if err != nil {
				return c.fail(entry, models.NewAdapterError(models.StageExecute, err))
			}
			results.Merge(retried)
			entry.Results = results
			entry.RetryRounds = round + 1
		}
	}
}

// report filters existing clients out of the results, extracts the
// remaining prospect entities, and renders the final report.
func (c *Controller) report(ctx context.Context, results *models.AggregatedResults, entry *models.QueryHistoryEntry) Outcome {
	if removed := agents.FilterExistingClients(results, crmClientNames(results)); removed > 0 {
		c.logger.Info("Existing clients filtered from results", zap.Int("removed", removed))
	}

	entities := agents.ExtractEntities(results.Results)
	entry.Entities = &entities
	c.logger.Info("Entities extracted",
		zap.Int("companies", len(entities.Companies)),
		zap.Int("individuals", len(entities.Individuals)),
	)

	report, err := timed(ctx, models.StageReport, func(ctx context.Context) (string, error) {
		return c.reporter.Generate(ctx, results)
	})
	if err != nil {
		return c.fail(entry, models.NewAdapterError(models.StageReport, err))
	}

	entry.Report = report
	entry.Status = models.StatusSufficient
	entry.CompletedAt = time.Now()
	return Outcome{Type: ReportReady, Report: report}
}

func (c *Controller) requestClarification(entry *models.QueryHistoryEntry, req *models.ClarificationRequest) Outcome {
	entry.Clarifications = append(entry.Clarifications, models.ClarificationExchange{
		Question: req.Question,
		AskedAt:  time.Now(),
	})
	entry.Status = models.StatusClarification
	c.logger.Info("Clarification requested", zap.String("question", req.Question))
	return Outcome{Type: ClarificationRequested, Clarification: req}
}

func (c *Controller) fail(entry *models.QueryHistoryEntry, err error) Outcome {
	entry.Status = models.StatusFailed
	entry.CompletedAt = time.Now()
	c.logger.Error("Workflow failed",
		zap.String("stage", string(models.StageOf(err))),
		zap.Error(err),
	)
	return Outcome{Type: Failed, Err: err}
}

// timed wraps one collaborator call in a stage span and duration metric.
func timed[T any](ctx context.Context, stage models.Stage, fn func(context.Context) (T, error)) (T, error) {
	ctx, span := tracing.StartStageSpan(ctx, string(stage))
	defer span.End()

	start := time.Now()
	out, err := fn(ctx)
	metrics.StageDuration.WithLabelValues(string(stage)).Observe(time.Since(start).Seconds())
	return out, err
}

// crmClientNames pulls matched client names out of the CRM check results so
// the report filter can exclude them.
func crmClientNames(results *models.AggregatedResults) []string {
	var names []string
	for _, r := range results.Results {
		if r.Source != models.SourceInternalCRM || !r.Success {
			continue
		}
		data, ok := r.Data.(map[string]interface{})
		if !ok {
			continue
		}
		items, ok := data["items"].([]map[string]interface{})
		if !ok {
			continue
		}
		for _, item := range items {
			if name, ok := item["name"].(string); ok && strings.TrimSpace(name) != "" {
				names = append(names, name)
			}
		}
	}
	return names
}

// RetryExhausted reports whether the outcome failed on the retry bound.
func (o Outcome) RetryExhausted() bool {
	return o.Type == Failed && errors.Is(o.Err, models.ErrRetryExhausted)
}
