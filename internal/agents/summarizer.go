package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/oakmere/prospector/internal/models"
)

// displayNames maps source identifiers to the names shown to reviewers.
var displayNames = map[models.DataSource]string{
	models.SourceOrbis:          "Orbis",
	models.SourceWealthX:        "Wealth-X",
	models.SourceWealthMonitor:  "Wealth Monitor",
	models.SourceCompaniesHouse: "Companies House",
	models.SourceDunBradstreet:  "Dun & Bradstreet",
	models.SourceCrunchbase:     "Crunchbase",
	models.SourcePitchBook:      "PitchBook",
	models.SourceSerpAPI:        "Web Search",
	models.SourceInternalCRM:    "Internal CRM",
}

// DisplayName returns the reviewer-facing name for a source.
func DisplayName(src models.DataSource) string {
	if n, ok := displayNames[src]; ok {
		return n
	}
	return string(src)
}

// HeuristicSummarizer renders plans into reviewer-facing summaries without
// any model call.
type HeuristicSummarizer struct{}

func NewHeuristicSummarizer() *HeuristicSummarizer {
	return &HeuristicSummarizer{}
}

func (s *HeuristicSummarizer) SummarizePlan(_ context.Context, plan *models.ExecutionPlan, query string) (models.PlanSummary, error) {
	actions := make([]string, 0, len(plan.Steps))
	sources := make([]string, 0, len(plan.Steps))
	seen := make(map[models.DataSource]bool)

	for _, step := range plan.Steps {
		action := fmt.Sprintf("%d. %s: %s", step.ID, DisplayName(step.Source), step.Reason)
		if len(step.DependsOn) > 0 {
			deps := make([]string, len(step.DependsOn))
			for i, d := range step.DependsOn {
				deps[i] = fmt.Sprintf("%d", d)
			}
			action += fmt.Sprintf(" (after step %s)", strings.Join(deps, ", "))
		}
		actions = append(actions, action)
		if !seen[step.Source] {
			seen[step.Source] = true
			sources = append(sources, DisplayName(step.Source))
		}
	}

	return models.PlanSummary{
		Query:            query,
		DataSources:      sources,
		KeyActions:       actions,
		EstimatedSources: plan.EstimatedSources,
		Confidence:       plan.Confidence,
		Reasoning:        summarizeReasoning(plan.Reasoning),
	}, nil
}

// summarizeReasoning trims the planner's reasoning to its first sentence so
// the approval prompt stays scannable.
func summarizeReasoning(reasoning string) string {
	if idx := strings.Index(reasoning, ". "); idx > 0 {
		return reasoning[:idx+1]
	}
	return reasoning
}
