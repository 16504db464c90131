// Package session sequences workflow runs for one user session: each
// logical query gets exactly one history entry, clarification round-trips
// continue the entry they started, and running statistics stay derivable
// from the history at all times.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/oakmere/prospector/internal/metrics"
	"github.com/oakmere/prospector/internal/models"
	"github.com/oakmere/prospector/internal/tracing"
	"github.com/oakmere/prospector/internal/workflow"
)

// QueryComposer builds the continuation query for a clarification
// round-trip from the original query and the user's answer.
type QueryComposer func(original, answer string) string

// DefaultComposer appends the clarification answer to the original query.
func DefaultComposer(original, answer string) string {
	return original + "\n\nClarification: " + answer
}

// QueryResult is the caller-facing summary of one ProcessQuery or
// ClarifyAndRetry call.
type QueryResult struct {
	SessionID     string                       `json:"session_id"`
	Sequence      int                          `json:"sequence"`
	Outcome       workflow.OutcomeType         `json:"outcome"`
	Report        string                       `json:"report,omitempty"`
	Clarification *models.ClarificationRequest `json:"clarification,omitempty"`
	Err           error                        `json:"-"`
}

// Archive receives session snapshots after each completed query. Archiving
// is best-effort; failures are logged, never surfaced to the caller.
type Archive interface {
	Snapshot(ctx context.Context, sessionID string, entries []models.QueryHistoryEntry, stats models.SessionStatistics) error
}

// Manager owns one session's history and statistics and runs the workflow
// controller once per logical query. Callers must serialize ProcessQuery
// and ClarifyAndRetry; History and Statistics are safe at any time.
type Manager struct {
	id         string
	controller *workflow.Controller
	composer   QueryComposer
	archive    Archive
	logger     *zap.Logger

	mu      sync.RWMutex
	history []*models.QueryHistoryEntry
	stats   models.SessionStatistics
}

// Option tweaks Manager construction.
type Option func(*Manager)

// WithArchive installs a snapshot sink.
func WithArchive(a Archive) Option {
	return func(m *Manager) { m.archive = a }
}

// WithComposer overrides the continuation-query composition.
func WithComposer(c QueryComposer) Option {
	return func(m *Manager) { m.composer = c }
}

func NewManager(controller *workflow.Controller, logger *zap.Logger, opts ...Option) *Manager {
	m := &Manager{
		id:         uuid.New().String(),
		controller: controller,
		composer:   DefaultComposer,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	metrics.SessionsCreated.Inc()
	m.logger.Info("Session created", zap.String("session_id", m.id))
	return m
}

// ID returns the session identifier.
func (m *Manager) ID() string { return m.id }

// ProcessQuery runs one new logical query through the workflow and records
// it as a fresh history entry.
func (m *Manager) ProcessQuery(ctx context.Context, query string) QueryResult {
	entry := &models.QueryHistoryEntry{
		Query:     query,
		StartedAt: time.Now(),
		Status:    models.StatusProcessing,
	}

	m.mu.Lock()
	entry.Sequence = len(m.history) + 1
	m.history = append(m.history, entry)
	m.stats.QueriesStarted++
	m.mu.Unlock()
	metrics.QueriesStarted.Inc()

	m.logger.Info("Processing query",
		zap.String("session_id", m.id),
		zap.Int("sequence", entry.Sequence),
	)

	ctx, span := tracing.StartQuerySpan(ctx, m.id)
	defer span.End()

	outcome := m.controller.Run(ctx, query, entry)
	return m.settle(ctx, entry, outcome)
}

// ClarifyAndRetry answers the pending clarification on the most recent
// entry and re-runs the workflow with the continuation query, reusing the
// same entry so one logical query stays one history record. Returns
// ErrInvalidState when no clarification is pending.
func (m *Manager) ClarifyAndRetry(ctx context.Context, answer string) (QueryResult, error) {
	m.mu.Lock()
	if len(m.history) == 0 {
		m.mu.Unlock()
		return QueryResult{}, fmt.Errorf("%w: no queries in session", models.ErrInvalidState)
	}
	entry := m.history[len(m.history)-1]
	pending, ok := entry.PendingClarification()
	if !ok {
		m.mu.Unlock()
		return QueryResult{}, fmt.Errorf("%w: no clarification pending", models.ErrInvalidState)
	}
	pending.Answer = answer
	pending.AnsweredAt = time.Now()
	entry.Status = models.StatusProcessing
	m.stats.ClarificationRounds++
	m.mu.Unlock()
	metrics.ClarificationRounds.Inc()

	continuation := m.composer(entry.Query, answer)
	m.logger.Info("Clarification answered, retrying query",
		zap.String("session_id", m.id),
		zap.Int("sequence", entry.Sequence),
	)

	ctx, span := tracing.StartQuerySpan(ctx, m.id)
	defer span.End()

	outcome := m.controller.Run(ctx, continuation, entry)
	return m.settle(ctx, entry, outcome), nil
}

// History returns a copy of the session's entries in order.
func (m *Manager) History() []models.QueryHistoryEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.QueryHistoryEntry, len(m.history))
	for i, e := range m.history {
		out[i] = *e
	}
	return out
}

// Statistics returns a snapshot of the running totals.
func (m *Manager) Statistics() models.SessionStatistics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stats
}

// settle folds a workflow outcome into the statistics and builds the
// caller-facing result.
func (m *Manager) settle(ctx context.Context, entry *models.QueryHistoryEntry, outcome workflow.Outcome) QueryResult {
	m.mu.Lock()
	switch outcome.Type {
	case workflow.ReportReady:
		m.stats.QueriesSucceeded++
	case workflow.Rejected:
		m.stats.QueriesRejected++
	case workflow.Failed:
		m.stats.QueriesFailed++
	}
	// Record, entity and duration totals count once per logical query, at
	// terminal settlement, so clarification rounds do not double-count.
	if entry.Results != nil && terminal(outcome.Type) {
		m.stats.TotalRecords += entry.Results.TotalRecords
		m.stats.TotalDuration += entry.Results.Duration
	}
	if entry.Entities != nil && terminal(outcome.Type) {
		m.stats.UniqueCompanies += len(entry.Entities.Companies)
		m.stats.UniqueIndividuals += len(entry.Entities.Individuals)
	}
	m.mu.Unlock()
	metrics.QueriesCompleted.WithLabelValues(string(outcome.Type)).Inc()

	if m.archive != nil {
		if err := m.archive.Snapshot(ctx, m.id, m.History(), m.Statistics()); err != nil {
			m.logger.Warn("Session archive write failed", zap.Error(err))
		}
	}

	return QueryResult{
		SessionID:     m.id,
		Sequence:      entry.Sequence,
		Outcome:       outcome.Type,
		Report:        outcome.Report,
		Clarification: outcome.Clarification,
		Err:           outcome.Err,
	}
}

func terminal(t workflow.OutcomeType) bool {
	return t == workflow.ReportReady || t == workflow.Rejected || t == workflow.Failed
}
