// Package agents declares the stage collaborators the workflow controller
// composes, and provides both heuristic (offline) and HTTP-backed
// implementations.
package agents

import (
	"context"

	"github.com/oakmere/prospector/internal/models"
)

// Planner turns a query into an execution plan and revises plans on
// decision-maker feedback.
type Planner interface {
	CreatePlan(ctx context.Context, query string) (*models.ExecutionPlan, error)
	RevisePlan(ctx context.Context, prior *models.ExecutionPlan, feedback, query string) (*models.ExecutionPlan, error)
}

// Summarizer condenses a plan into the digest shown to the approval gate.
type Summarizer interface {
	SummarizePlan(ctx context.Context, plan *models.ExecutionPlan, query string) (models.PlanSummary, error)
}

// Executor runs an approved plan, or a restricted subset of its steps,
// against the data sources. Per-step failures are data in the results, not
// errors; an error return means the execution stage itself broke.
type Executor interface {
	Execute(ctx context.Context, plan *models.ExecutionPlan, query string) (*models.AggregatedResults, error)
	ExecuteSteps(ctx context.Context, plan *models.ExecutionPlan, query string, stepIDs []int, prior []models.SearchResult) ([]models.SearchResult, error)
}

// Sufficiency judges whether aggregated results answer the original query.
type Sufficiency interface {
	Evaluate(ctx context.Context, results *models.AggregatedResults) (*models.SufficiencyResult, error)
}

// Reporter renders sufficient results into the final report text.
type Reporter interface {
	Generate(ctx context.Context, results *models.AggregatedResults) (string, error)
}
