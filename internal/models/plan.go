package models

import (
	"fmt"
)

// DataSource identifies an external data provider that plan steps query.
type DataSource string

const (
	SourceOrbis          DataSource = "orbis"
	SourceWealthX        DataSource = "wealthx"
	SourceWealthMonitor  DataSource = "wealth_monitor"
	SourceCompaniesHouse DataSource = "companies_house"
	SourceDunBradstreet  DataSource = "dun_bradstreet"
	SourceCrunchbase     DataSource = "crunchbase"
	SourcePitchBook      DataSource = "pitchbook"
	SourceSerpAPI        DataSource = "serpapi"
	SourceInternalCRM    DataSource = "internal_crm"
)

// AllSources lists every known data source in a stable order.
var AllSources = []DataSource{
	SourceOrbis,
	SourceWealthX,
	SourceWealthMonitor,
	SourceCompaniesHouse,
	SourceDunBradstreet,
	SourceCrunchbase,
	SourcePitchBook,
	SourceSerpAPI,
	SourceInternalCRM,
}

// PlanStep is a single data source query within an execution plan.
type PlanStep struct {
	ID        int                    `json:"step_id"`
	Source    DataSource             `json:"source"`
	Action    string                 `json:"action"`
	Params    map[string]interface{} `json:"params,omitempty"`
	Reason    string                 `json:"reason"`
	DependsOn []int                  `json:"depends_on,omitempty"`
}

// ExecutionPlan is the full plan for answering one research query.
//
// A plan that carries a Clarification is not executable: Steps may be empty
// and the workflow must go back to the user before touching any source.
type ExecutionPlan struct {
	Reasoning        string                `json:"reasoning"`
	Steps            []PlanStep            `json:"steps"`
	Clarification    *ClarificationRequest `json:"clarification,omitempty"`
	EstimatedSources int                   `json:"estimated_sources"`
	Confidence       float64               `json:"confidence"`
}

// NeedsClarification reports whether the plan is blocked on user input.
func (p *ExecutionPlan) NeedsClarification() bool {
	return p != nil && p.Clarification != nil
}

// Sources returns the distinct data sources referenced by the plan steps,
// in first-appearance order.
func (p *ExecutionPlan) Sources() []DataSource {
	seen := make(map[DataSource]bool, len(p.Steps))
	var out []DataSource
	for _, s := range p.Steps {
		if !seen[s.Source] {
			seen[s.Source] = true
			out = append(out, s.Source)
		}
	}
	return out
}

// Validate checks the structural invariants of an executable plan: step IDs
// are unique, dependencies reference earlier-declared steps only (which also
// rules out cycles), and confidence stays in [0,1].
func (p *ExecutionPlan) Validate() error {
	if p == nil {
		return fmt.Errorf("plan is nil")
	}
	if p.Confidence < 0 || p.Confidence > 1 {
		return fmt.Errorf("confidence %.2f out of range [0,1]", p.Confidence)
	}
	if p.NeedsClarification() {
		// Not executable yet; steps are allowed to be empty or partial.
		return nil
	}
	declared := make(map[int]bool, len(p.Steps))
	for _, s := range p.Steps {
		if declared[s.ID] {
			return fmt.Errorf("duplicate step id %d", s.ID)
		}
		for _, dep := range s.DependsOn {
			if dep == s.ID {
				return fmt.Errorf("step %d depends on itself", s.ID)
			}
			if !declared[dep] {
				return fmt.Errorf("step %d depends on undeclared step %d", s.ID, dep)
			}
		}
		declared[s.ID] = true
	}
	return nil
}

// StepByID returns the plan step with the given ID, if present.
func (p *ExecutionPlan) StepByID(id int) (PlanStep, bool) {
	for _, s := range p.Steps {
		if s.ID == id {
			return s, true
		}
	}
	return PlanStep{}, false
}
