package agents

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/oakmere/prospector/internal/models"
)

// HeuristicPlanner builds deterministic plans from query keywords. It stands
// in for the LLM planning capability when running offline, and gives tests a
// planner with predictable output.
type HeuristicPlanner struct {
	logger *zap.Logger
}

func NewHeuristicPlanner(logger *zap.Logger) *HeuristicPlanner {
	return &HeuristicPlanner{logger: logger}
}

// CreatePlan derives a plan from recognizable query terms. Queries with no
// recognizable funding or company angle come back as a clarification request
// rather than a guessed plan.
func (p *HeuristicPlanner) CreatePlan(_ context.Context, query string) (*models.ExecutionPlan, error) {
	q := strings.ToLower(query)

	wantsFunding := strings.Contains(q, "series") || strings.Contains(q, "funding") || strings.Contains(q, "raised")
	wantsWealth := strings.Contains(q, "wealth") || strings.Contains(q, "uhnw") || strings.Contains(q, "net worth")
	wantsNews := strings.Contains(q, "news") || strings.Contains(q, "recent")

	if !wantsFunding && !wantsWealth && !wantsNews {
		return &models.ExecutionPlan{
			Reasoning: "The query does not name a funding stage, wealth signal or news angle, so the search cannot be scoped to the right sources.",
			Clarification: &models.ClarificationRequest{
				Question: "What kind of prospects are you looking for?",
				Options:  []string{"Recently funded companies", "Wealthy individuals", "Companies in the news"},
				Context:  "The query was too broad to choose data sources from.",
			},
			Confidence: 0.2,
		}, nil
	}

	var steps []models.PlanStep
	next := 1
	add := func(s models.PlanStep) int {
		s.ID = next
		next++
		steps = append(steps, s)
		return s.ID
	}

	investmentType := detectInvestmentType(q)
	location := ""
	if strings.Contains(q, "uk") || strings.Contains(q, "united kingdom") || strings.Contains(q, "british") {
		location = "united-kingdom"
	}

	var anchor int
	if wantsFunding {
		anchor = add(models.PlanStep{
			Source: models.SourceCrunchbase,
			Action: "search_funding",
			Params: map[string]interface{}{
				"investment_type": investmentType,
				"location":        location,
			},
			Reason: "Find funding rounds matching the query criteria",
		})
		add(models.PlanStep{
			Source: models.SourcePitchBook,
			Action: "search_deals",
			Params: map[string]interface{}{
				"deal_type": investmentType,
				"location":  location,
			},
			Reason: "Cross-reference funding data with PitchBook deals",
		})
	}
	if wantsWealth {
		anchor = add(models.PlanStep{
			Source: models.SourceWealthX,
			Action: "search_profiles",
			Params: map[string]interface{}{"location": location},
			Reason: "Find wealthy individuals matching the query",
		})
	}
	if wantsNews {
		add(models.PlanStep{
			Source: models.SourceSerpAPI,
			Action: "news_search",
			Params: map[string]interface{}{"q": firstKeyword(q)},
			Reason: "Surface recent news coverage",
		})
	}

	if anchor > 0 && wantsFunding {
		add(models.PlanStep{
			Source:    models.SourceCompaniesHouse,
			Action:    "search",
			Params:    map[string]interface{}{"q": "$step_1.items[0].company"},
			Reason:    "Pull corporate filings for the top funded company",
			DependsOn: []int{anchor},
		})
		add(models.PlanStep{
			Source:    models.SourceInternalCRM,
			Action:    "check_clients",
			Params:    map[string]interface{}{"names": "$step_1.items[0].company"},
			Reason:    "Exclude companies that are already clients",
			DependsOn: []int{anchor},
		})
	}

	plan := &models.ExecutionPlan{
		Reasoning:        "Matched query terms to the funding, wealth and news source groups, anchoring enrichment steps on the primary search.",
		Steps:            steps,
		EstimatedSources: len(distinctSources(steps)),
		Confidence:       0.75,
	}
	p.logger.Debug("Heuristic plan created",
		zap.Int("steps", len(steps)),
		zap.Float64("confidence", plan.Confidence),
	)
	return plan, nil
}

// RevisePlan applies coarse feedback: "remove <source>" drops steps for a
// source, "add news" appends a news step. Anything else only amends the
// reasoning, leaving the step list intact.
func (p *HeuristicPlanner) RevisePlan(ctx context.Context, prior *models.ExecutionPlan, feedback, query string) (*models.ExecutionPlan, error) {
	fb := strings.ToLower(feedback)

	revised := &models.ExecutionPlan{
		Reasoning:        prior.Reasoning + " Revised per feedback: " + feedback,
		Steps:            append([]models.PlanStep(nil), prior.Steps...),
		EstimatedSources: prior.EstimatedSources,
		Confidence:       prior.Confidence,
	}

	for _, src := range models.AllSources {
		token := strings.ReplaceAll(string(src), "_", " ")
		if strings.Contains(fb, "remove "+token) || strings.Contains(fb, "drop "+token) {
			revised.Steps = removeSource(revised.Steps, src)
		}
	}
	if strings.Contains(fb, "add news") {
		revised.Steps = append(revised.Steps, models.PlanStep{
			ID:     maxStepID(revised.Steps) + 1,
			Source: models.SourceSerpAPI,
			Action: "news_search",
			Params: map[string]interface{}{"q": firstKeyword(strings.ToLower(query))},
			Reason: "News coverage requested during plan review",
		})
	}

	revised.EstimatedSources = len(distinctSources(revised.Steps))
	return revised, nil
}

func detectInvestmentType(q string) string {
	for _, stage := range []string{"series_a", "series_b", "series_c", "seed"} {
		spoken := strings.ReplaceAll(stage, "_", " ")
		if strings.Contains(q, spoken) || strings.Contains(q, stage) {
			return stage
		}
	}
	return ""
}

func firstKeyword(q string) string {
	for _, w := range strings.Fields(q) {
		if len(w) > 3 {
			return w
		}
	}
	return q
}

func distinctSources(steps []models.PlanStep) map[models.DataSource]bool {
	out := make(map[models.DataSource]bool)
	for _, s := range steps {
		out[s.Source] = true
	}
	return out
}

func removeSource(steps []models.PlanStep, src models.DataSource) []models.PlanStep {
	dropped := make(map[int]bool)
	kept := steps[:0:0]
	for _, s := range steps {
		if s.Source == src {
			dropped[s.ID] = true
			continue
		}
		kept = append(kept, s)
	}
	// Also drop dependents of removed steps; a dangling dependency would
	// make the plan invalid.
	for changed := true; changed; {
		changed = false
		filtered := kept[:0:0]
		for _, s := range kept {
			orphan := false
			for _, dep := range s.DependsOn {
				if dropped[dep] {
					orphan = true
					break
				}
			}
			if orphan {
				dropped[s.ID] = true
				changed = true
				continue
			}
			filtered = append(filtered, s)
		}
		kept = filtered
	}
	return kept
}

func maxStepID(steps []models.PlanStep) int {
	max := 0
	for _, s := range steps {
		if s.ID > max {
			max = s.ID
		}
	}
	return max
}
