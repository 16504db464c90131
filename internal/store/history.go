// Package store persists completed query history entries to Postgres.
// Writes are queued and flushed by a background worker so the workflow path
// never blocks on the database.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/oakmere/prospector/internal/metrics"
	"github.com/oakmere/prospector/internal/models"
)

const insertEntry = `
INSERT INTO query_history (
	session_id, sequence, query, status, report,
	plan, results, sufficiency, clarifications,
	retry_rounds, started_at, completed_at
) VALUES (
	:session_id, :sequence, :query, :status, :report,
	:plan, :results, :sufficiency, :clarifications,
	:retry_rounds, :started_at, :completed_at
)`

// entryRow is the flattened database shape of a QueryHistoryEntry. Nested
// documents go in as JSONB; the document columns are pointers so a SQL NULL
// scans back as nil.
type entryRow struct {
	SessionID      string           `db:"session_id"`
	Sequence       int              `db:"sequence"`
	Query          string           `db:"query"`
	Status         string           `db:"status"`
	Report         string           `db:"report"`
	Plan           *json.RawMessage `db:"plan"`
	Results        *json.RawMessage `db:"results"`
	Sufficiency    *json.RawMessage `db:"sufficiency"`
	Clarifications *json.RawMessage `db:"clarifications"`
	RetryRounds    int              `db:"retry_rounds"`
	StartedAt      time.Time        `db:"started_at"`
	CompletedAt    *time.Time       `db:"completed_at"`
}

// Config holds history store settings.
type Config struct {
	DSN       string
	QueueSize int
}

// HistoryStore writes history entries asynchronously through a bounded
// queue. A full queue drops the write with a warning rather than stalling
// the caller.
type HistoryStore struct {
	db     *sqlx.DB
	logger *zap.Logger

	queue  chan queuedWrite
	stopCh chan struct{}
	wg     sync.WaitGroup
}

type queuedWrite struct {
	sessionID string
	entry     models.QueryHistoryEntry
}

// New connects to Postgres and starts the write worker.
func New(cfg Config, logger *zap.Logger) (*HistoryStore, error) {
	db, err := sqlx.Connect("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	s := newWithDB(db, cfg, logger)
	return s, nil
}

// NewWithDB builds a store around an existing connection. Used by tests.
func NewWithDB(db *sqlx.DB, logger *zap.Logger) *HistoryStore {
	return newWithDB(db, Config{}, logger)
}

func newWithDB(db *sqlx.DB, cfg Config, logger *zap.Logger) *HistoryStore {
	size := cfg.QueueSize
	if size <= 0 {
		size = 100
	}
	s := &HistoryStore{
		db:     db,
		logger: logger,
		queue:  make(chan queuedWrite, size),
		stopCh: make(chan struct{}),
	}
	s.wg.Add(1)
	go s.worker()
	return s
}

// SaveEntry queues one entry for persistence. Non-blocking; returns false
// when the queue is full.
func (s *HistoryStore) SaveEntry(sessionID string, entry models.QueryHistoryEntry) bool {
	select {
	case s.queue <- queuedWrite{sessionID: sessionID, entry: entry}:
		return true
	default:
		metrics.ArchiveWrites.WithLabelValues("postgres", "dropped").Inc()
		s.logger.Warn("History write queue full, entry dropped",
			zap.String("session_id", sessionID),
			zap.Int("sequence", entry.Sequence),
		)
		return false
	}
}

func (s *HistoryStore) worker() {
	defer s.wg.Done()
	for {
		select {
		case w := <-s.queue:
			s.write(w)
		case <-s.stopCh:
			// Drain what is already queued before exiting.
			for {
				select {
				case w := <-s.queue:
					s.write(w)
				default:
					return
				}
			}
		}
	}
}

func (s *HistoryStore) write(w queuedWrite) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	row, err := toRow(w.sessionID, w.entry)
	if err != nil {
		metrics.ArchiveWrites.WithLabelValues("postgres", "error").Inc()
		s.logger.Error("Failed to encode history entry", zap.Error(err))
		return
	}

	if _, err := s.db.NamedExecContext(ctx, insertEntry, row); err != nil {
		metrics.ArchiveWrites.WithLabelValues("postgres", "error").Inc()
		s.logger.Error("Failed to persist history entry",
			zap.String("session_id", w.sessionID),
			zap.Int("sequence", w.entry.Sequence),
			zap.Error(err),
		)
		return
	}
	metrics.ArchiveWrites.WithLabelValues("postgres", "ok").Inc()
}

// RecentEntries reads back the newest entries for a session, newest first.
func (s *HistoryStore) RecentEntries(ctx context.Context, sessionID string, limit int) ([]models.QueryHistoryEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []entryRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT session_id, sequence, query, status, report,
		       plan, results, sufficiency, clarifications,
		       retry_rounds, started_at, completed_at
		FROM query_history
		WHERE session_id = $1
		ORDER BY sequence DESC
		LIMIT $2`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}

	entries := make([]models.QueryHistoryEntry, 0, len(rows))
	for _, r := range rows {
		e, err := fromRow(r)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Close stops the worker, flushes queued writes, and closes the pool.
func (s *HistoryStore) Close() error {
	close(s.stopCh)
	s.wg.Wait()
	return s.db.Close()
}

func toRow(sessionID string, e models.QueryHistoryEntry) (entryRow, error) {
	row := entryRow{
		SessionID:   sessionID,
		Sequence:    e.Sequence,
		Query:       e.Query,
		Status:      string(e.Status),
		Report:      e.Report,
		RetryRounds: e.RetryRounds,
		StartedAt:   e.StartedAt,
	}
	if !e.CompletedAt.IsZero() {
		t := e.CompletedAt
		row.CompletedAt = &t
	}

	var err error
	if row.Plan, err = marshalOrNull(e.Plan); err != nil {
		return entryRow{}, err
	}
	if row.Results, err = marshalOrNull(e.Results); err != nil {
		return entryRow{}, err
	}
	if row.Sufficiency, err = marshalOrNull(e.Sufficiency); err != nil {
		return entryRow{}, err
	}
	if row.Clarifications, err = marshalOrNull(e.Clarifications); err != nil {
		return entryRow{}, err
	}
	return row, nil
}

func fromRow(r entryRow) (models.QueryHistoryEntry, error) {
	e := models.QueryHistoryEntry{
		Sequence:    r.Sequence,
		Query:       r.Query,
		Status:      models.QueryStatus(r.Status),
		Report:      r.Report,
		RetryRounds: r.RetryRounds,
		StartedAt:   r.StartedAt,
	}
	if r.CompletedAt != nil {
		e.CompletedAt = *r.CompletedAt
	}
	if err := unmarshalIfSet(r.Plan, &e.Plan); err != nil {
		return e, err
	}
	if err := unmarshalIfSet(r.Results, &e.Results); err != nil {
		return e, err
	}
	if err := unmarshalIfSet(r.Sufficiency, &e.Sufficiency); err != nil {
		return e, err
	}
	if err := unmarshalIfSet(r.Clarifications, &e.Clarifications); err != nil {
		return e, err
	}
	return e, nil
}

func marshalOrNull(v interface{}) (*json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode history field: %w", err)
	}
	if string(raw) == "null" {
		return nil, nil
	}
	msg := json.RawMessage(raw)
	return &msg, nil
}

func unmarshalIfSet(raw *json.RawMessage, out interface{}) error {
	if raw == nil || len(*raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(*raw, out); err != nil {
		return fmt.Errorf("decode history field: %w", err)
	}
	return nil
}
