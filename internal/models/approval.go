package models

import "time"

// ApprovalStatus is the decision returned by the approval gate for one
// presentation of a plan.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
	ApprovalRevise   ApprovalStatus = "needs_revision"
)

// Feedback records the decision-maker's response to a plan presentation.
// Text carries revision instructions when Status is ApprovalRevise.
type Feedback struct {
	Status    ApprovalStatus `json:"status"`
	Text      string         `json:"feedback_text,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// PlanSummary is the human-facing digest of an ExecutionPlan presented for
// approval. Produced by the summarizer stage.
type PlanSummary struct {
	Query            string   `json:"query"`
	DataSources      []string `json:"data_sources"`
	KeyActions       []string `json:"key_actions"`
	EstimatedSources int      `json:"estimated_sources"`
	Confidence       float64  `json:"confidence"`
	Reasoning        string   `json:"reasoning_summary"`
}

// PlanRevision is one round of the approval loop: the plan as presented,
// its summary, and the feedback it drew.
type PlanRevision struct {
	Number    int            `json:"revision_number"`
	Plan      *ExecutionPlan `json:"plan"`
	Summary   PlanSummary    `json:"summary"`
	Feedback  *Feedback      `json:"feedback,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}
