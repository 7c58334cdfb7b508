// Package suggestions manages proactive suggestions surfaced to the user.
// A suggestion is pending until the user responds or it is dismissed; both
// transitions are terminal. Context-aware retrieval re-scores stored
// confidence against the current situation without mutating it.
package suggestions

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/rs/zerolog"

	"github.com/RajputVikashS5/Elixi-AI/events"
	"github.com/RajputVikashS5/Elixi-AI/memory"
)

const (
	StatusPending   = "pending"
	StatusResponded = "responded"
	StatusDismissed = "dismissed"

	// contextResultLimit is how many suggestions a context query returns.
	contextResultLimit = 3
	// staleAfter is the age past which a pending suggestion's score decays.
	staleAfter = 24 * time.Hour
)

// ErrNotFound is returned when a suggestion ID matches nothing.
var ErrNotFound = errors.New("suggestion not found")

// Suggestion is one proactive recommendation.
type Suggestion struct {
	ID           string                 `json:"suggestion_id"`
	Type         string                 `json:"type"`
	Title        string                 `json:"title"`
	Description  string                 `json:"description"`
	Confidence   float64                `json:"confidence_score"`
	Action       map[string]interface{} `json:"action,omitempty"`
	Status       string                 `json:"status"`
	UserResponse string                 `json:"user_response,omitempty"`
	Helpful      *bool                  `json:"helpful,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
	RespondedAt  *time.Time             `json:"responded_at,omitempty"`
}

// Context describes the user's current situation for re-scoring.
type Context struct {
	ActiveApps []string
	Now        time.Time
}

// Analytics summarizes the suggestion history.
type Analytics struct {
	Total         int            `json:"total"`
	ByStatus      map[string]int `json:"by_status"`
	ByType        map[string]int `json:"by_type"`
	HelpfulRate   float64        `json:"helpful_rate"`
	AvgConfidence float64        `json:"avg_confidence"`
}

// Store manages suggestion persistence and lifecycle.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewStore(db *sql.DB, logger zerolog.Logger) (*Store, error) {
	if db == nil {
		return nil, memory.ErrNotConfigured
	}
	return &Store{db: db, logger: logger.With().Str("component", "suggestion_store").Logger()}, nil
}

// Create stores a new pending suggestion. Confidence is clamped to [0,1].
func (s *Store) Create(ctx context.Context, typ, title, description string, confidence float64, action map[string]interface{}) (Suggestion, error) {
	if typ == "" || title == "" {
		return Suggestion{}, errors.New("type and title are required")
	}
	if confidence < 0 {
		confidence = 0
	} else if confidence > 1 {
		confidence = 1
	}

	var actionJSON interface{}
	if action != nil {
		b, err := json.Marshal(action)
		if err != nil {
			return Suggestion{}, fmt.Errorf("marshal action: %w", err)
		}
		actionJSON = string(b)
	}

	sugg := Suggestion{
		ID:          memory.NewKey("sugg"),
		Type:        typ,
		Title:       title,
		Description: description,
		Confidence:  confidence,
		Action:      action,
		Status:      StatusPending,
		CreatedAt:   time.Now(),
	}

	insert := memory.StatementBuilder().
		Insert("suggestions").
		Columns("suggestion_id", "type", "title", "description",
			"confidence_score", "action_json", "status", "created_at").
		Values(sugg.ID, typ, title, description, confidence, actionJSON, StatusPending, sugg.CreatedAt.Unix())
	queryStr, args, err := insert.ToSql()
	if err != nil {
		return Suggestion{}, fmt.Errorf("build suggestion insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, queryStr, args...); err != nil {
		return Suggestion{}, fmt.Errorf("insert suggestion: %w", err)
	}

	s.logger.Info().
		Str("method", "Create").
		Str("suggestion_id", sugg.ID).
		Str("type", typ).
		Float64("confidence", confidence).
		Msg("Suggestion created")
	return sugg, nil
}

// GetActive returns pending suggestions, strongest and newest first.
func (s *Store) GetActive(ctx context.Context, limit int) ([]Suggestion, error) {
	if limit <= 0 {
		limit = 10
	}
	return s.list(ctx, memory.StatementBuilder().
		Select(suggestionColumns()...).
		From("suggestions").
		Where(sq.Eq{"status": StatusPending}).
		OrderBy("confidence_score DESC", "created_at DESC").
		Limit(uint64(limit))) //nolint:gosec // limit is validated positive
}

// GetForContext re-scores pending suggestions against the current situation
// and returns the top three. Routine suggestions get a morning boost, a
// suggestion mentioning the active app gets a relevance boost, and pending
// suggestions older than a day decay. Stored confidence is never modified;
// the returned scores are clamped to 1.0.
func (s *Store) GetForContext(ctx context.Context, sctx Context) ([]Suggestion, error) {
	pending, err := s.list(ctx, memory.StatementBuilder().
		Select(suggestionColumns()...).
		From("suggestions").
		Where(sq.Eq{"status": StatusPending}))
	if err != nil {
		return nil, err
	}

	now := sctx.Now
	if now.IsZero() {
		now = time.Now()
	}
	morning := events.TimeOfDay(now.Hour()) == "morning"
	activeApps := make([]string, 0, len(sctx.ActiveApps))
	for _, app := range sctx.ActiveApps {
		if app = strings.ToLower(app); app != "" {
			activeApps = append(activeApps, app)
		}
	}

	for i := range pending {
		score := pending[i].Confidence
		description := strings.ToLower(pending[i].Description)
		if morning && strings.Contains(description, "routine") {
			score += 0.10
		}
		for _, app := range activeApps {
			if strings.Contains(description, app) {
				score += 0.15
				break
			}
		}
		if now.Sub(pending[i].CreatedAt) > staleAfter {
			score *= 0.8
		}
		if score > 1 {
			score = 1
		}
		pending[i].Confidence = score
	}

	sort.SliceStable(pending, func(i, j int) bool {
		if pending[i].Confidence != pending[j].Confidence {
			return pending[i].Confidence > pending[j].Confidence
		}
		return pending[i].CreatedAt.After(pending[j].CreatedAt)
	})
	if len(pending) > contextResultLimit {
		pending = pending[:contextResultLimit]
	}
	return pending, nil
}

// Respond records the user's response to a pending suggestion. A nil helpful
// means the user gave no rating and the column stays NULL. Responding to a
// suggestion that is no longer pending is a silent no-op, so duplicate
// delivery of a response is harmless.
func (s *Store) Respond(ctx context.Context, id, response string, helpful *bool) error {
	var rating interface{}
	if helpful != nil {
		rating = boolToInt(*helpful)
	}
	update := memory.StatementBuilder().
		Update("suggestions").
		Set("status", StatusResponded).
		Set("user_response", response).
		Set("helpful", rating).
		Set("responded_at", time.Now().Unix()).
		Where(sq.Eq{"suggestion_id": id, "status": StatusPending})
	queryStr, args, err := update.ToSql()
	if err != nil {
		return fmt.Errorf("build respond update: %w", err)
	}
	res, err := s.db.ExecContext(ctx, queryStr, args...)
	if err != nil {
		return fmt.Errorf("update suggestion: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		s.logger.Debug().
			Str("method", "Respond").
			Str("suggestion_id", id).
			Msg("Suggestion not pending, response ignored")
	}
	return nil
}

// DismissByType dismisses every pending suggestion of a type. Returns the
// number dismissed.
func (s *Store) DismissByType(ctx context.Context, typ string) (int64, error) {
	update := memory.StatementBuilder().
		Update("suggestions").
		Set("status", StatusDismissed).
		Set("responded_at", time.Now().Unix()).
		Where(sq.Eq{"type": typ, "status": StatusPending})
	queryStr, args, err := update.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build dismiss update: %w", err)
	}
	res, err := s.db.ExecContext(ctx, queryStr, args...)
	if err != nil {
		return 0, fmt.Errorf("dismiss suggestions: %w", err)
	}
	dismissed, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if dismissed > 0 {
		s.logger.Info().
			Str("method", "DismissByType").
			Str("type", typ).
			Int64("dismissed", dismissed).
			Msg("Suggestions dismissed")
	}
	return dismissed, nil
}

// Analytics summarizes all suggestions ever made: breakdowns by status and
// type, the share of responded suggestions rated helpful, and the mean
// stored confidence.
func (s *Store) Analytics(ctx context.Context) (Analytics, error) {
	all, err := s.list(ctx, memory.StatementBuilder().
		Select(suggestionColumns()...).
		From("suggestions"))
	if err != nil {
		return Analytics{}, err
	}

	analytics := Analytics{
		Total:    len(all),
		ByStatus: make(map[string]int),
		ByType:   make(map[string]int),
	}
	var confidenceSum float64
	var responded, helpful int
	for _, sugg := range all {
		analytics.ByStatus[sugg.Status]++
		analytics.ByType[sugg.Type]++
		confidenceSum += sugg.Confidence
		if sugg.Status == StatusResponded {
			responded++
			if sugg.Helpful != nil && *sugg.Helpful {
				helpful++
			}
		}
	}
	if len(all) > 0 {
		analytics.AvgConfidence = confidenceSum / float64(len(all))
	}
	if responded > 0 {
		analytics.HelpfulRate = float64(helpful) / float64(responded)
	}
	return analytics, nil
}

func suggestionColumns() []string {
	return []string{
		"suggestion_id", "type", "title", "description", "confidence_score",
		"action_json", "status", "user_response", "helpful", "created_at", "responded_at",
	}
}

func (s *Store) list(ctx context.Context, query sq.SelectBuilder) ([]Suggestion, error) {
	queryStr, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, queryStr, args...)
	if err != nil {
		return nil, fmt.Errorf("query suggestions: %w", err)
	}
	defer rows.Close() //nolint:errcheck // no remedy for rows close error

	var suggs []Suggestion
	for rows.Next() {
		var (
			sugg        Suggestion
			actionJSON  sql.NullString
			response    sql.NullString
			helpful     sql.NullInt64
			createdAt   int64
			respondedAt sql.NullInt64
		)
		if err := rows.Scan(&sugg.ID, &sugg.Type, &sugg.Title, &sugg.Description,
			&sugg.Confidence, &actionJSON, &sugg.Status, &response, &helpful,
			&createdAt, &respondedAt); err != nil {
			return nil, err
		}
		sugg.UserResponse = response.String
		sugg.CreatedAt = time.Unix(createdAt, 0)
		if actionJSON.Valid && actionJSON.String != "" {
			_ = json.Unmarshal([]byte(actionJSON.String), &sugg.Action)
		}
		if helpful.Valid {
			h := helpful.Int64 != 0
			sugg.Helpful = &h
		}
		if respondedAt.Valid {
			t := time.Unix(respondedAt.Int64, 0)
			sugg.RespondedAt = &t
		}
		suggs = append(suggs, sugg)
	}
	return suggs, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
