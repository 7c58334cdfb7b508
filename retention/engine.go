// Package retention enforces data lifecycle policy: aging out low-value
// memories, archiving expired records, and folding old raw events into
// per-type aggregates so long-term trends survive the deletion of their
// source rows.
package retention

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/RajputVikashS5/Elixi-AI/memory"
)

// Report summarizes one retention run.
type Report struct {
	MemoriesArchived int64                 `json:"memories_archived"`
	ArchivedByType   map[memory.Type]int64 `json:"archived_by_type,omitempty"`
	ExpiredArchived  int64                 `json:"expired_archived"`
	EventsAggregated int64                 `json:"events_aggregated"`
	RanAt            time.Time             `json:"ran_at"`
}

// Engine runs the retention sweeps.
type Engine struct {
	db            *sql.DB
	memories      *memory.Store
	baseDays      int
	eventKeepDays int
	logger        zerolog.Logger
}

func NewEngine(db *sql.DB, memories *memory.Store, baseDays, eventKeepDays int, logger zerolog.Logger) (*Engine, error) {
	if db == nil {
		return nil, memory.ErrNotConfigured
	}
	if memories == nil {
		return nil, errors.New("memory store is required")
	}
	if baseDays <= 0 {
		baseDays = 90
	}
	if eventKeepDays <= 0 {
		eventKeepDays = 60
	}
	return &Engine{
		db:            db,
		memories:      memories,
		baseDays:      baseDays,
		eventKeepDays: eventKeepDays,
		logger:        logger.With().Str("component", "retention_engine").Logger(),
	}, nil
}

// Run executes all sweeps in order: expiry first so explicitly expired
// records never survive an age sweep, then the age-based memory sweep, then
// event aggregation. Partial failures abort the run with the progress made
// so far in the report.
func (e *Engine) Run(ctx context.Context) (Report, error) {
	report := Report{RanAt: time.Now()}

	expired, err := e.memories.ArchiveExpired(ctx)
	if err != nil {
		return report, fmt.Errorf("expiry sweep: %w", err)
	}
	report.ExpiredArchived = expired

	archived, byType, err := e.memories.Cleanup(ctx, e.baseDays)
	if err != nil {
		return report, fmt.Errorf("memory sweep: %w", err)
	}
	report.MemoriesArchived = archived
	report.ArchivedByType = byType

	aggregated, err := e.SweepEvents(ctx)
	if err != nil {
		return report, fmt.Errorf("event sweep: %w", err)
	}
	report.EventsAggregated = aggregated

	e.logger.Info().
		Int64("expired", report.ExpiredArchived).
		Int64("archived", report.MemoriesArchived).
		Int64("events", report.EventsAggregated).
		Msg("Retention run completed")
	return report, nil
}

// SweepEvents folds raw events older than the keep window into
// event_aggregates and deletes them. The fold and delete share one
// transaction so an event is never counted twice or lost. Returns the
// number of events aggregated.
func (e *Engine) SweepEvents(ctx context.Context) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -e.eventKeepDays).Unix()

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin event sweep: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	rows, err := tx.QueryContext(ctx, `
SELECT event_type, COUNT(*), MIN(created_at), MAX(created_at)
FROM events
WHERE created_at < ?
GROUP BY event_type`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("aggregate events: %w", err)
	}

	type bucket struct {
		eventType   string
		count       int64
		first, last int64
	}
	var buckets []bucket
	for rows.Next() {
		var b bucket
		if err := rows.Scan(&b.eventType, &b.count, &b.first, &b.last); err != nil {
			rows.Close() //nolint:errcheck,gosec // already returning scan error
			return 0, err
		}
		buckets = append(buckets, b)
	}
	if err := rows.Err(); err != nil {
		rows.Close() //nolint:errcheck,gosec // already returning iteration error
		return 0, err
	}
	rows.Close() //nolint:errcheck,gosec // sqlite allows one active statement per tx

	if len(buckets) == 0 {
		return 0, nil
	}

	nowUnix := time.Now().Unix()
	var total int64
	for _, b := range buckets {
		_, err := tx.ExecContext(ctx, `
INSERT INTO event_aggregates (event_type, total_events, first_occurrence, last_occurrence, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(event_type) DO UPDATE SET
    total_events     = event_aggregates.total_events + excluded.total_events,
    first_occurrence = MIN(event_aggregates.first_occurrence, excluded.first_occurrence),
    last_occurrence  = MAX(event_aggregates.last_occurrence, excluded.last_occurrence),
    updated_at       = excluded.updated_at`,
			b.eventType, b.count, b.first, b.last, nowUnix)
		if err != nil {
			return 0, fmt.Errorf("upsert aggregate for %s: %w", b.eventType, err)
		}
		total += b.count
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM events WHERE created_at < ?`, cutoff); err != nil {
		return 0, fmt.Errorf("delete aggregated events: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit event sweep: %w", err)
	}

	e.logger.Info().
		Str("method", "SweepEvents").
		Int64("aggregated", total).
		Int("types", len(buckets)).
		Msg("Events aggregated")
	return total, nil
}

// Aggregate is one folded event-type summary.
type Aggregate struct {
	EventType       string    `json:"event_type"`
	TotalEvents     int64     `json:"total_events"`
	FirstOccurrence time.Time `json:"first_occurrence"`
	LastOccurrence  time.Time `json:"last_occurrence"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Aggregates returns the folded event summaries, most active first.
func (e *Engine) Aggregates(ctx context.Context) ([]Aggregate, error) {
	rows, err := e.db.QueryContext(ctx, `
SELECT event_type, total_events, first_occurrence, last_occurrence, updated_at
FROM event_aggregates
ORDER BY total_events DESC`)
	if err != nil {
		return nil, fmt.Errorf("query aggregates: %w", err)
	}
	defer rows.Close() //nolint:errcheck // no remedy for rows close error

	var aggregates []Aggregate
	for rows.Next() {
		var (
			agg                  Aggregate
			first, last, updated int64
		)
		if err := rows.Scan(&agg.EventType, &agg.TotalEvents, &first, &last, &updated); err != nil {
			return nil, err
		}
		agg.FirstOccurrence = time.Unix(first, 0)
		agg.LastOccurrence = time.Unix(last, 0)
		agg.UpdatedAt = time.Unix(updated, 0)
		aggregates = append(aggregates, agg)
	}
	return aggregates, rows.Err()
}
