// Package events records discrete user actions (app launches, commands,
// interactions) with time-of-day and weekday stamps so downstream miners can
// bucket them without re-deriving calendar fields.
package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/rs/zerolog"

	"github.com/RajputVikashS5/Elixi-AI/memory"
)

// Event is one recorded user action.
type Event struct {
	ID        string                 `json:"event_id"`
	Type      string                 `json:"event_type"`
	Data      map[string]interface{} `json:"event_data,omitempty"`
	TimeOfDay string                 `json:"time_of_day"`
	DayOfWeek string                 `json:"day_of_week"`
	CreatedAt time.Time              `json:"created_at"`
}

// TimeOfDay partitions an hour of day into the assistant's four activity
// buckets: morning 05-11, afternoon 12-16, evening 17-20, night otherwise.
func TimeOfDay(hour int) string {
	switch {
	case hour >= 5 && hour <= 11:
		return "morning"
	case hour >= 12 && hour <= 16:
		return "afternoon"
	case hour >= 17 && hour <= 20:
		return "evening"
	default:
		return "night"
	}
}

// Store persists the event log.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewStore(db *sql.DB, logger zerolog.Logger) (*Store, error) {
	if db == nil {
		return nil, memory.ErrNotConfigured
	}
	return &Store{db: db, logger: logger.With().Str("component", "event_store").Logger()}, nil
}

// Record logs an event stamped with the current time-of-day bucket and weekday.
func (s *Store) Record(ctx context.Context, eventType string, data map[string]interface{}) (Event, error) {
	return s.RecordAt(ctx, eventType, data, time.Now())
}

// RecordAt logs an event at an explicit time. Exposed for backfill and tests.
func (s *Store) RecordAt(ctx context.Context, eventType string, data map[string]interface{}, at time.Time) (Event, error) {
	if eventType == "" {
		return Event{}, errors.New("event type is empty")
	}

	event := Event{
		ID:        memory.NewKey("evt"),
		Type:      eventType,
		Data:      data,
		TimeOfDay: TimeOfDay(at.Hour()),
		DayOfWeek: at.Weekday().String(),
		CreatedAt: at,
	}

	var dataJSON interface{}
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return Event{}, fmt.Errorf("marshal event data: %w", err)
		}
		dataJSON = string(b)
	}

	insert := memory.StatementBuilder().
		Insert("events").
		Columns("event_id", "event_type", "event_data_json", "time_of_day", "day_of_week", "created_at").
		Values(event.ID, event.Type, dataJSON, event.TimeOfDay, event.DayOfWeek, at.Unix())
	queryStr, args, err := insert.ToSql()
	if err != nil {
		return Event{}, fmt.Errorf("build event insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, queryStr, args...); err != nil {
		return Event{}, fmt.Errorf("insert event: %w", err)
	}

	s.logger.Debug().
		Str("method", "RecordAt").
		Str("event_id", event.ID).
		Str("event_type", eventType).
		Str("time_of_day", event.TimeOfDay).
		Msg("Event recorded")
	return event, nil
}

// Window returns events created at or after since, oldest first. Ascending
// order lets the pattern miner walk consecutive pairs directly.
func (s *Store) Window(ctx context.Context, since time.Time) ([]Event, error) {
	query := memory.StatementBuilder().
		Select("event_id", "event_type", "event_data_json", "time_of_day", "day_of_week", "created_at").
		From("events").
		Where(sq.GtOrEq{"created_at": since.Unix()}).
		OrderBy("created_at ASC")
	queryStr, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build window query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, queryStr, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close() //nolint:errcheck // no remedy for rows close error

	var events []Event
	for rows.Next() {
		var (
			event     Event
			dataJSON  sql.NullString
			createdAt int64
		)
		if err := rows.Scan(&event.ID, &event.Type, &dataJSON, &event.TimeOfDay, &event.DayOfWeek, &createdAt); err != nil {
			return nil, err
		}
		event.CreatedAt = time.Unix(createdAt, 0)
		if dataJSON.Valid && dataJSON.String != "" {
			_ = json.Unmarshal([]byte(dataJSON.String), &event.Data)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// Count returns the number of recorded events, for analytics surfaces.
func (s *Store) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return count, nil
}
