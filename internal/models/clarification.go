package models

import "time"

// ClarificationRequest is a follow-up question posed back to the query
// originator when intent or results are ambiguous. Immutable once created.
type ClarificationRequest struct {
	Question string   `json:"question"`
	Options  []string `json:"options,omitempty"`
	Context  string   `json:"context"`
}

// ClarificationExchange is one question/answer round-trip recorded on a
// history entry. Answer is empty while the question is still pending.
type ClarificationExchange struct {
	Question   string    `json:"question"`
	Answer     string    `json:"answer,omitempty"`
	AskedAt    time.Time `json:"asked_at"`
	AnsweredAt time.Time `json:"answered_at,omitzero"`
}

// Answered reports whether this exchange has received a user answer.
func (c *ClarificationExchange) Answered() bool {
	return c.Answer != ""
}
