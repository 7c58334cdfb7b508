// Package habits mines the event log for behavioral patterns: app launch
// sequences, time-of-day routines and dominant activities. Detected patterns
// are persisted once and only mutate through user feedback.
package habits

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/RajputVikashS5/Elixi-AI/events"
	"github.com/RajputVikashS5/Elixi-AI/memory"
)

// ErrNotFound is returned when a pattern ID matches nothing.
var ErrNotFound = errors.New("pattern not found")

// Miner detects and persists behavioral patterns.
type Miner struct {
	db     *sql.DB
	events *events.Store
	logger zerolog.Logger
}

func NewMiner(db *sql.DB, eventStore *events.Store, logger zerolog.Logger) (*Miner, error) {
	if db == nil {
		return nil, memory.ErrNotConfigured
	}
	if eventStore == nil {
		return nil, errors.New("event store is required")
	}
	return &Miner{
		db:     db,
		events: eventStore,
		logger: logger.With().Str("component", "habit_miner").Logger(),
	}, nil
}

// AnalyzeRecentEvents runs all detectors over the last windowDays of events
// and persists any pattern not already known. A pattern is identified by its
// description; re-detection of a known pattern is a no-op, keeping patterns
// write-once. Returns the newly persisted patterns.
func (m *Miner) AnalyzeRecentEvents(ctx context.Context, windowDays int) ([]Pattern, error) {
	if windowDays <= 0 {
		windowDays = 7
	}
	m.logger.Debug().
		Str("method", "AnalyzeRecentEvents").
		Int("windowDays", windowDays).
		Msg("called")

	window, err := m.events.Window(ctx, time.Now().AddDate(0, 0, -windowDays))
	if err != nil {
		return nil, fmt.Errorf("load event window: %w", err)
	}
	if len(window) == 0 {
		return nil, nil
	}

	candidates := detectSequential(window)
	timeBased := lo.Filter(detectTimeBased(window), func(p Pattern, _ int) bool {
		return p.Confidence > pipelineMinConfidence
	})
	candidates = append(candidates, timeBased...)
	candidates = append(candidates, detectFrequency(window)...)

	known, err := m.knownDescriptions(ctx)
	if err != nil {
		return nil, err
	}

	var persisted []Pattern
	for _, candidate := range candidates {
		if _, exists := known[candidate.Description]; exists {
			continue
		}
		candidate.ID = memory.NewKey("pat")
		candidate.DetectedAt = time.Now()
		if err := m.insert(ctx, candidate); err != nil {
			return persisted, err
		}
		known[candidate.Description] = struct{}{}
		persisted = append(persisted, candidate)
	}

	m.logger.Info().
		Str("method", "AnalyzeRecentEvents").
		Int("events", len(window)).
		Int("candidates", len(candidates)).
		Int("persisted", len(persisted)).
		Msg("Pattern mining completed")
	return persisted, nil
}

func (m *Miner) knownDescriptions(ctx context.Context) (map[string]struct{}, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT description FROM user_patterns`)
	if err != nil {
		return nil, fmt.Errorf("query known patterns: %w", err)
	}
	defer rows.Close() //nolint:errcheck // no remedy for rows close error

	known := make(map[string]struct{})
	for rows.Next() {
		var description string
		if err := rows.Scan(&description); err != nil {
			return nil, err
		}
		known[description] = struct{}{}
	}
	return known, rows.Err()
}

func (m *Miner) insert(ctx context.Context, p Pattern) error {
	var timePeriod interface{}
	if p.TimePeriod != "" {
		timePeriod = p.TimePeriod
	}
	insert := memory.StatementBuilder().
		Insert("user_patterns").
		Columns("pattern_id", "pattern_type", "description", "time_period",
			"occurrences", "confidence_score", "detected_at").
		Values(p.ID, string(p.Type), p.Description, timePeriod,
			p.Occurrences, p.Confidence, p.DetectedAt.Unix())
	queryStr, args, err := insert.ToSql()
	if err != nil {
		return fmt.Errorf("build pattern insert: %w", err)
	}
	if _, err := m.db.ExecContext(ctx, queryStr, args...); err != nil {
		return fmt.Errorf("insert pattern: %w", err)
	}
	return nil
}

// Feedback records the user's verdict on a pattern. This is the only
// mutation a persisted pattern supports.
func (m *Miner) Feedback(ctx context.Context, patternID, feedback string) error {
	if feedback == "" {
		return errors.New("feedback is empty")
	}
	update := memory.StatementBuilder().
		Update("user_patterns").
		Set("user_feedback", feedback).
		Set("feedback_at", time.Now().Unix()).
		Where(sq.Eq{"pattern_id": patternID})
	queryStr, args, err := update.ToSql()
	if err != nil {
		return fmt.Errorf("build feedback update: %w", err)
	}
	res, err := m.db.ExecContext(ctx, queryStr, args...)
	if err != nil {
		return fmt.Errorf("update pattern feedback: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	m.logger.Info().
		Str("method", "Feedback").
		Str("pattern_id", patternID).
		Str("feedback", feedback).
		Msg("Pattern feedback recorded")
	return nil
}

// Habits returns detected patterns at or above minConfidence, strongest first.
func (m *Miner) Habits(ctx context.Context, minConfidence float64) ([]Pattern, error) {
	query := memory.StatementBuilder().
		Select("pattern_id", "pattern_type", "description", "time_period",
			"occurrences", "confidence_score", "detected_at", "user_feedback", "feedback_at").
		From("user_patterns").
		Where(sq.GtOrEq{"confidence_score": minConfidence}).
		OrderBy("confidence_score DESC", "detected_at DESC")
	queryStr, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build habits query: %w", err)
	}

	rows, err := m.db.QueryContext(ctx, queryStr, args...)
	if err != nil {
		return nil, fmt.Errorf("query patterns: %w", err)
	}
	defer rows.Close() //nolint:errcheck // no remedy for rows close error

	var patterns []Pattern
	for rows.Next() {
		var (
			p          Pattern
			timePeriod sql.NullString
			feedback   sql.NullString
			detectedAt int64
			feedbackAt sql.NullInt64
		)
		if err := rows.Scan(&p.ID, &p.Type, &p.Description, &timePeriod,
			&p.Occurrences, &p.Confidence, &detectedAt, &feedback, &feedbackAt); err != nil {
			return nil, err
		}
		p.TimePeriod = timePeriod.String
		p.Feedback = feedback.String
		p.DetectedAt = time.Unix(detectedAt, 0)
		if feedbackAt.Valid {
			t := time.Unix(feedbackAt.Int64, 0)
			p.FeedbackAt = &t
		}
		patterns = append(patterns, p)
	}
	return patterns, rows.Err()
}

// Analytics summarizes the detected pattern set.
func (m *Miner) Analytics(ctx context.Context) (Analytics, error) {
	patterns, err := m.Habits(ctx, 0)
	if err != nil {
		return Analytics{}, err
	}

	analytics := Analytics{
		Total:  len(patterns),
		ByType: make(map[PatternType]int),
	}
	var confidenceSum float64
	for _, p := range patterns {
		analytics.ByType[p.Type]++
		confidenceSum += p.Confidence
		switch p.Feedback {
		case "confirmed", "helpful":
			analytics.Confirmed++
		case "rejected", "not_helpful":
			analytics.Rejected++
		}
	}
	if len(patterns) > 0 {
		analytics.AvgConfidence = confidenceSum / float64(len(patterns))
	}
	return analytics, nil
}
