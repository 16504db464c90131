package models

import "time"

// SearchResult captures the outcome of executing one plan step against its
// data source. Success=false implies Data is nil and Error is set.
type SearchResult struct {
	StepID      int         `json:"step_id"`
	Source      DataSource  `json:"source"`
	Success     bool        `json:"success"`
	Data        interface{} `json:"data,omitempty"`
	Error       string      `json:"error,omitempty"`
	RecordCount int         `json:"record_count"`
	Duration    time.Duration `json:"duration_ms"`
	Timestamp   time.Time   `json:"timestamp"`
}

// AggregatedResults collects the per-step results of one execution pass,
// in execution order, together with roll-up counters.
type AggregatedResults struct {
	OriginalQuery  string         `json:"original_query"`
	Plan           *ExecutionPlan `json:"plan"`
	Results        []SearchResult `json:"results"`
	TotalRecords   int            `json:"total_records"`
	SourcesQueried []DataSource   `json:"sources_queried"`
	Duration       time.Duration  `json:"duration_ms"`
}

// FailedStepIDs returns the IDs of steps whose result is a failure.
func (a *AggregatedResults) FailedStepIDs() []int {
	var ids []int
	for _, r := range a.Results {
		if !r.Success {
			ids = append(ids, r.StepID)
		}
	}
	return ids
}

// ResultByStep returns the result recorded for the given step ID.
func (a *AggregatedResults) ResultByStep(id int) (SearchResult, bool) {
	for _, r := range a.Results {
		if r.StepID == id {
			return r, true
		}
	}
	return SearchResult{}, false
}

// Merge replaces results by step ID with entries from the retry pass and
// recomputes the roll-up counters. Results for steps absent from the retry
// pass are left untouched.
func (a *AggregatedResults) Merge(retry []SearchResult) {
	byID := make(map[int]SearchResult, len(retry))
	for _, r := range retry {
		byID[r.StepID] = r
	}
	for i, r := range a.Results {
		if nr, ok := byID[r.StepID]; ok {
			a.Results[i] = nr
			delete(byID, r.StepID)
		}
	}
	// Retried steps that had no prior result (e.g. never attempted) append.
	for _, s := range a.Plan.Steps {
		if nr, ok := byID[s.ID]; ok {
			a.Results = append(a.Results, nr)
		}
	}
	a.recount()
}

func (a *AggregatedResults) recount() {
	total := 0
	seen := make(map[DataSource]bool)
	var sources []DataSource
	for _, r := range a.Results {
		total += r.RecordCount
		if !seen[r.Source] {
			seen[r.Source] = true
			sources = append(sources, r.Source)
		}
	}
	a.TotalRecords = total
	a.SourcesQueried = sources
}
