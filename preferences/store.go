// Package preferences stores user preferences with provenance. Every
// preference carries a source (manual, inferred or auto) and a confidence,
// and every change appends to a history log so learned values can be
// audited and walked back.
package preferences

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

const (
	SourceManual   = "manual"
	SourceInferred = "inferred"
	SourceAuto     = "auto"

	// learnMinConfidence is the floor below which inferred preferences are
	// rejected outright.
	learnMinConfidence = 0.3
	// recommendMinConfidence gates which inferred preferences are surfaced
	// to the user for confirmation.
	recommendMinConfidence = 0.7
)

var (
	// ErrNotFound is returned when a category/key pair has no preference.
	ErrNotFound = errors.New("preference not found")
	// ErrConfidenceTooLow is returned by Learn for weakly-supported inferences.
	ErrConfidenceTooLow = errors.New("confidence too low to learn preference")
)

// Preference is one stored user preference.
type Preference struct {
	Category   string      `json:"category"`
	Key        string      `json:"key"`
	Value      interface{} `json:"value"`
	Source     string      `json:"source"`
	Confidence float64     `json:"confidence"`
	SetAt      time.Time   `json:"set_at"`
	ModifiedAt time.Time   `json:"modified_at"`
	Version    int         `json:"version"`
}

// HistoryEntry is one change in a preference's history log.
type HistoryEntry struct {
	Category   string      `json:"category"`
	Key        string      `json:"key"`
	Value      interface{} `json:"value"`
	Source     string      `json:"source"`
	Confidence float64     `json:"confidence"`
	Action     string      `json:"action"`
	CreatedAt  time.Time   `json:"created_at"`
}

// Statistics summarizes the preference store by provenance.
type Statistics struct {
	Total      int            `json:"total"`
	Manual     int            `json:"manual"`
	Inferred   int            `json:"inferred"`
	Auto       int            `json:"auto"`
	ByCategory map[string]int `json:"by_category"`
}

// Store manages the preference table and its history log.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewStore(db *sql.DB, logger zerolog.Logger) (*Store, error) {
	if db == nil {
		return nil, memory.ErrNotConfigured
	}
	return &Store{db: db, logger: logger.With().Str("component", "preference_store").Logger()}, nil
}

// Set stores a manual preference. Setting an existing key bumps its version
// and modified time; set_at is preserved from the first write. Confidence is
// clamped to [0,1].
func (s *Store) Set(ctx context.Context, category, key string, value interface{}) (Preference, error) {
	return s.put(ctx, category, key, value, SourceManual, 1.0, "set")
}

// SetWithSource stores a preference with explicit provenance, for callers
// that manage provenance themselves, such as system components writing auto
// preferences. Source must be manual, inferred or auto.
func (s *Store) SetWithSource(ctx context.Context, category, key string, value interface{}, source string, confidence float64) (Preference, error) {
	switch source {
	case SourceManual, SourceInferred, SourceAuto:
	default:
		return Preference{}, fmt.Errorf("unknown preference source %q", source)
	}
	return s.put(ctx, category, key, value, source, confidence, "set")
}

// Learn stores an inferred preference. Confidence below 0.3 is rejected with
// ErrConfidenceTooLow. A manual preference is never overwritten by an
// inferred one; the existing preference is returned unchanged.
func (s *Store) Learn(ctx context.Context, category, key string, value interface{}, confidence float64) (Preference, error) {
	if confidence < learnMinConfidence {
		return Preference{}, fmt.Errorf("%w: %.2f", ErrConfidenceTooLow, confidence)
	}

	existing, err := s.Get(ctx, category, key)
	if err == nil && existing.Source == SourceManual {
		s.logger.Debug().
			Str("method", "Learn").
			Str("category", category).
			Str("key", key).
			Msg("Manual preference takes precedence, skipping inferred value")
		return existing, nil
	}
	if err != nil && !errors.Is(err, ErrNotFound) {
		return Preference{}, err
	}
	return s.put(ctx, category, key, value, SourceInferred, confidence, "learned")
}

// Apply promotes an inferred preference to a manual one, confirming the
// recommendation. The value is kept; source becomes manual with full
// confidence.
func (s *Store) Apply(ctx context.Context, category, key string) (Preference, error) {
	existing, err := s.Get(ctx, category, key)
	if err != nil {
		return Preference{}, err
	}
	if existing.Source == SourceManual {
		return existing, nil
	}
	return s.put(ctx, category, key, existing.Value, SourceManual, 1.0, "applied")
}

// Reject removes an inferred or auto preference, recording the rejection in
// history. Manual preferences cannot be rejected, only deleted.
func (s *Store) Reject(ctx context.Context, category, key string) error {
	existing, err := s.Get(ctx, category, key)
	if err != nil {
		return err
	}
	if existing.Source == SourceManual {
		return fmt.Errorf("preference %s/%s is set manually", category, key)
	}
	if err := s.Delete(ctx, category, key); err != nil {
		return err
	}
	s.appendHistory(ctx, category, key, existing.Value, existing.Source, existing.Confidence, "rejected")
	return nil
}

func (s *Store) put(ctx context.Context, category, key string, value interface{}, source string, confidence float64, action string) (Preference, error) {
	if category == "" || key == "" {
		return Preference{}, errors.New("category and key are required")
	}
	if confidence < 0 {
		confidence = 0
	} else if confidence > 1 {
		confidence = 1
	}

	valueJSON, err := json.Marshal(value)
	if err != nil {
		return Preference{}, fmt.Errorf("marshal preference value: %w", err)
	}
	nowUnix := time.Now().Unix()

	upsert := `
INSERT INTO user_preferences (category, key, value_json, source, confidence, set_at, modified_at, version)
VALUES (?, ?, ?, ?, ?, ?, ?, 1)
ON CONFLICT(category, key) DO UPDATE SET
    value_json  = excluded.value_json,
    source      = excluded.source,
    confidence  = excluded.confidence,
    modified_at = excluded.modified_at,
    version     = user_preferences.version + 1`
	if _, err := s.db.ExecContext(ctx, upsert,
		category, key, string(valueJSON), source, confidence, nowUnix, nowUnix); err != nil {
		return Preference{}, fmt.Errorf("upsert preference: %w", err)
	}

	s.appendHistory(ctx, category, key, value, source, confidence, action)

	s.logger.Info().
		Str("method", "put").
		Str("category", category).
		Str("key", key).
		Str("source", source).
		Float64("confidence", confidence).
		Msg("Preference stored")

	return s.Get(ctx, category, key)
}

// appendHistory logs a preference change. History failures are logged but do
// not fail the write that triggered them.
func (s *Store) appendHistory(ctx context.Context, category, key string, value interface{}, source string, confidence float64, action string) {
	valueJSON, err := json.Marshal(value)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to marshal history value")
		return
	}
	insert := memory.StatementBuilder().
		Insert("preference_history").
		Columns("category", "key", "value_json", "source", "confidence", "action", "created_at").
		Values(category, key, string(valueJSON), source, confidence, action, time.Now().Unix())
	queryStr, args, err := insert.ToSql()
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to build history insert")
		return
	}
	if _, err := s.db.ExecContext(ctx, queryStr, args...); err != nil {
		s.logger.Warn().
			Str("category", category).
			Str("key", key).
			Err(err).
			Msg("Failed to append preference history")
	}
}

// Get returns the preference for a category/key pair.
func (s *Store) Get(ctx context.Context, category, key string) (Preference, error) {
	query := memory.StatementBuilder().
		Select("category", "key", "value_json", "source", "confidence", "set_at", "modified_at", "version").
		From("user_preferences").
		Where(sq.Eq{"category": category, "key": key})
	queryStr, args, err := query.ToSql()
	if err != nil {
		return Preference{}, fmt.Errorf("build select: %w", err)
	}

	row := s.db.QueryRowContext(ctx, queryStr, args...)
	pref, err := scanPreference(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return Preference{}, ErrNotFound
	}
	return pref, err
}

// All returns every preference grouped by category.
func (s *Store) All(ctx context.Context) (map[string][]Preference, error) {
	prefs, err := s.list(ctx, memory.StatementBuilder().
		Select("category", "key", "value_json", "source", "confidence", "set_at", "modified_at", "version").
		From("user_preferences").
		OrderBy("category", "key"))
	if err != nil {
		return nil, err
	}
	grouped := make(map[string][]Preference)
	for _, pref := range prefs {
		grouped[pref.Category] = append(grouped[pref.Category], pref)
	}
	return grouped, nil
}

// Category returns every preference in one category.
func (s *Store) Category(ctx context.Context, category string) ([]Preference, error) {
	return s.list(ctx, memory.StatementBuilder().
		Select("category", "key", "value_json", "source", "confidence", "set_at", "modified_at", "version").
		From("user_preferences").
		Where(sq.Eq{"category": category}).
		OrderBy("key"))
}

// Recommendations returns inferred and auto preferences confident enough to
// surface to the user for confirmation, strongest first.
func (s *Store) Recommendations(ctx context.Context) ([]Preference, error) {
	return s.list(ctx, memory.StatementBuilder().
		Select("category", "key", "value_json", "source", "confidence", "set_at", "modified_at", "version").
		From("user_preferences").
		Where(sq.Eq{"source": []string{SourceInferred, SourceAuto}}).
		Where(sq.GtOrEq{"confidence": recommendMinConfidence}).
		OrderBy("confidence DESC", "modified_at DESC"))
}

// Delete removes a preference.
func (s *Store) Delete(ctx context.Context, category, key string) error {
	del := memory.StatementBuilder().
		Delete("user_preferences").
		Where(sq.Eq{"category": category, "key": key})
	queryStr, args, err := del.ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}
	res, err := s.db.ExecContext(ctx, queryStr, args...)
	if err != nil {
		return fmt.Errorf("delete preference: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// History returns the change log for a category/key pair, newest first.
func (s *Store) History(ctx context.Context, category, key string, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	query := memory.StatementBuilder().
		Select("category", "key", "value_json", "source", "confidence", "action", "created_at").
		From("preference_history").
		Where(sq.Eq{"category": category, "key": key}).
		OrderBy("created_at DESC", "id DESC").
		Limit(uint64(limit)) //nolint:gosec // limit is validated positive
	queryStr, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build history query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, queryStr, args...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close() //nolint:errcheck // no remedy for rows close error

	var entries []HistoryEntry
	for rows.Next() {
		var (
			entry     HistoryEntry
			valueJSON string
			createdAt int64
		)
		if err := rows.Scan(&entry.Category, &entry.Key, &valueJSON,
			&entry.Source, &entry.Confidence, &entry.Action, &createdAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = time.Unix(createdAt, 0)
		_ = json.Unmarshal([]byte(valueJSON), &entry.Value)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Statistics summarizes stored preferences by provenance and category.
func (s *Store) Statistics(ctx context.Context) (Statistics, error) {
	stats := Statistics{ByCategory: make(map[string]int)}
	rows, err := s.db.QueryContext(ctx, `
SELECT category, source, COUNT(*)
FROM user_preferences
GROUP BY category, source`)
	if err != nil {
		return Statistics{}, fmt.Errorf("group preferences: %w", err)
	}
	defer rows.Close() //nolint:errcheck // no remedy for rows close error

	for rows.Next() {
		var category, source string
		var count int
		if err := rows.Scan(&category, &source, &count); err != nil {
			return Statistics{}, err
		}
		stats.Total += count
		stats.ByCategory[category] += count
		switch source {
		case SourceManual:
			stats.Manual += count
		case SourceInferred:
			stats.Inferred += count
		case SourceAuto:
			stats.Auto += count
		}
	}
	return stats, rows.Err()
}

func (s *Store) list(ctx context.Context, query sq.SelectBuilder) ([]Preference, error) {
	queryStr, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, queryStr, args...)
	if err != nil {
		return nil, fmt.Errorf("query preferences: %w", err)
	}
	defer rows.Close() //nolint:errcheck // no remedy for rows close error

	var prefs []Preference
	for rows.Next() {
		pref, err := scanPreference(rows.Scan)
		if err != nil {
			return nil, err
		}
		prefs = append(prefs, pref)
	}
	return prefs, rows.Err()
}

func scanPreference(scan func(...interface{}) error) (Preference, error) {
	var (
		pref              Preference
		valueJSON         string
		setAt, modifiedAt int64
	)
	if err := scan(&pref.Category, &pref.Key, &valueJSON, &pref.Source,
		&pref.Confidence, &setAt, &modifiedAt, &pref.Version); err != nil {
		return Preference{}, err
	}
	pref.SetAt = time.Unix(setAt, 0)
	pref.ModifiedAt = time.Unix(modifiedAt, 0)
	_ = json.Unmarshal([]byte(valueJSON), &pref.Value)
	return pref, nil
}
