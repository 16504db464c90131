package models

import "fmt"

// SufficiencyStatus is the verdict of the sufficiency evaluation stage.
type SufficiencyStatus string

const (
	// Sufficient means the gathered data answers the query; proceed to report.
	Sufficient SufficiencyStatus = "sufficient"
	// ClarificationNeeded means user input is required to refine the search.
	ClarificationNeeded SufficiencyStatus = "clarification_needed"
	// RetryNeeded means specific steps should be re-run.
	RetryNeeded SufficiencyStatus = "retry_needed"
)

// SufficiencyResult is the outcome of evaluating aggregated results against
// the original query.
type SufficiencyResult struct {
	Status        SufficiencyStatus     `json:"status"`
	Reasoning     string                `json:"reasoning"`
	Gaps          []string              `json:"gaps,omitempty"`
	Clarification *ClarificationRequest `json:"clarification,omitempty"`
	RetrySteps    []int                 `json:"retry_steps,omitempty"`
}

// Validate enforces the per-status invariants: RetryNeeded carries a
// non-empty retry list, ClarificationNeeded carries a clarification.
func (s *SufficiencyResult) Validate() error {
	switch s.Status {
	case Sufficient:
		return nil
	case ClarificationNeeded:
		if s.Clarification == nil {
			return fmt.Errorf("clarification_needed verdict without a clarification request")
		}
		return nil
	case RetryNeeded:
		if len(s.RetrySteps) == 0 {
			return fmt.Errorf("retry_needed verdict with empty retry list")
		}
		return nil
	default:
		return fmt.Errorf("unknown sufficiency status %q", s.Status)
	}
}
