package models

import "time"

// QueryStatus is the final status tag recorded on a history entry.
type QueryStatus string

const (
	StatusProcessing    QueryStatus = "processing"
	StatusSufficient    QueryStatus = "sufficient"
	StatusClarification QueryStatus = "clarification_pending"
	StatusRejected      QueryStatus = "rejected"
	StatusFailed        QueryStatus = "failed"
)

// QueryHistoryEntry records the full lifecycle of one logical user query.
// The workflow controller mutates it in place as stages complete; a
// clarification round-trip continues the same entry rather than opening a
// new one. Entries are append-only within a session.
type QueryHistoryEntry struct {
	Sequence       int                     `json:"sequence"`
	Query          string                  `json:"query"`
	StartedAt      time.Time               `json:"started_at"`
	Plan           *ExecutionPlan          `json:"plan,omitempty"`
	Revisions      []PlanRevision          `json:"revisions,omitempty"`
	Results        *AggregatedResults      `json:"results,omitempty"`
	Sufficiency    *SufficiencyResult      `json:"sufficiency,omitempty"`
	Entities       *EntitySet              `json:"entities,omitempty"`
	Report         string                  `json:"report,omitempty"`
	Clarifications []ClarificationExchange `json:"clarifications,omitempty"`
	RetryRounds    int                     `json:"retry_rounds"`
	Status         QueryStatus             `json:"status"`
	CompletedAt    time.Time               `json:"completed_at,omitzero"`
}

// PendingClarification returns the unanswered clarification exchange, if
// the entry is waiting on one.
func (e *QueryHistoryEntry) PendingClarification() (*ClarificationExchange, bool) {
	if len(e.Clarifications) == 0 {
		return nil, false
	}
	last := &e.Clarifications[len(e.Clarifications)-1]
	if last.Answered() {
		return nil, false
	}
	return last, true
}

// SessionStatistics holds the session's running totals, derived from its
// history entries.
type SessionStatistics struct {
	QueriesStarted      int           `json:"queries_started"`
	QueriesSucceeded    int           `json:"queries_succeeded"`
	QueriesFailed       int           `json:"queries_failed"`
	QueriesRejected     int           `json:"queries_rejected"`
	ClarificationRounds int           `json:"clarification_rounds"`
	TotalRecords        int           `json:"total_records"`
	UniqueCompanies     int           `json:"unique_companies"`
	UniqueIndividuals   int           `json:"unique_individuals"`
	TotalDuration       time.Duration `json:"total_duration_ms"`
}
