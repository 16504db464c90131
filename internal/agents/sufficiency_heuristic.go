package agents

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/oakmere/prospector/internal/models"
)

// HeuristicSufficiency judges results with record-count rules instead of a
// model call: failed steps ask for a retry, an empty result set asks the
// user to broaden the query, anything else is sufficient.
type HeuristicSufficiency struct {
	logger *zap.Logger
}

func NewHeuristicSufficiency(logger *zap.Logger) *HeuristicSufficiency {
	return &HeuristicSufficiency{logger: logger}
}

func (s *HeuristicSufficiency) Evaluate(_ context.Context, results *models.AggregatedResults) (*models.SufficiencyResult, error) {
	failed := results.FailedStepIDs()
	if len(failed) > 0 {
		gaps := make([]string, 0, len(failed))
		for _, id := range failed {
			if r, ok := results.ResultByStep(id); ok {
				gaps = append(gaps, fmt.Sprintf("step %d (%s): %s", id, DisplayName(r.Source), r.Error))
			}
		}
		s.logger.Info("Sufficiency verdict: retry needed",
			zap.Ints("failed_steps", failed),
		)
		return &models.SufficiencyResult{
			Status:     models.RetryNeeded,
			Reasoning:  fmt.Sprintf("%d of %d steps failed; the gathered data is incomplete.", len(failed), len(results.Results)),
			Gaps:       gaps,
			RetrySteps: failed,
		}, nil
	}

	if results.TotalRecords == 0 {
		s.logger.Info("Sufficiency verdict: clarification needed", zap.String("reason", "no records"))
		return &models.SufficiencyResult{
			Status:    models.ClarificationNeeded,
			Reasoning: "Every step succeeded but no records matched; the search criteria are likely too narrow.",
			Gaps:      []string{"no matching records in any queried source"},
			Clarification: &models.ClarificationRequest{
				Question: "No records matched the current criteria. Should the search be broadened?",
				Options:  []string{"Widen the date range", "Drop the location filter", "Include earlier funding stages"},
				Context:  "All data sources returned empty result sets.",
			},
		}, nil
	}

	return &models.SufficiencyResult{
		Status:    models.Sufficient,
		Reasoning: fmt.Sprintf("All %d steps succeeded with %d records across %d sources.", len(results.Results), results.TotalRecords, len(results.SourcesQueried)),
	}, nil
}

// FilterExistingClients removes records naming a known client from list
// results. The CRM check step supplies the client names; prospecting output
// should not resurface accounts the firm already holds.
func FilterExistingClients(results *models.AggregatedResults, clientNames []string) int {
	if len(clientNames) == 0 {
		return 0
	}
	lowered := make([]string, len(clientNames))
	for i, n := range clientNames {
		lowered[i] = strings.ToLower(n)
	}

	removed := 0
	for i, r := range results.Results {
		if !r.Success || r.Source == models.SourceInternalCRM {
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
		kept := items[:0:0]
		for _, item := range items {
			if matchesClient(item, lowered) {
				removed++
				continue
			}
			kept = append(kept, item)
		}
		if len(kept) != len(items) {
			data["items"] = kept
			data["count"] = len(kept)
			results.Results[i].Data = data
			results.Results[i].RecordCount = len(kept)
		}
	}
	if removed > 0 {
		recountAggregate(results)
	}
	return removed
}

func matchesClient(item map[string]interface{}, lowered []string) bool {
	for _, key := range []string{"company", "name", "company_name", "organization"} {
		v, ok := item[key].(string)
		if !ok {
			continue
		}
		lv := strings.ToLower(v)
		for _, client := range lowered {
			if lv == client {
				return true
			}
		}
	}
	return false
}

func recountAggregate(results *models.AggregatedResults) {
	total := 0
	for _, r := range results.Results {
		total += r.RecordCount
	}
	results.TotalRecords = total
}
