package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
)

var (
	// ErrNotFound is returned when a lookup by memory ID matches nothing.
	ErrNotFound = errors.New("memory not found")
	// ErrNotConfigured is returned when the store is constructed without a database.
	ErrNotConfigured = errors.New("database not configured")
)

// Store manages memory record persistence and lifecycle.
type Store struct {
	db                  *sql.DB
	logger              zerolog.Logger
	similarityThreshold float64
}

// NewStore creates and returns a Store. The similarity threshold is the
// default cutoff for ranked search and must lie in [0,1].
func NewStore(db *sql.DB, similarityThreshold float64, logger zerolog.Logger) (*Store, error) {
	if db == nil {
		return nil, ErrNotConfigured
	}
	if similarityThreshold < 0 || similarityThreshold > 1 {
		return nil, fmt.Errorf("similarity threshold %v out of range [0,1]", similarityThreshold)
	}
	logger = logger.With().Str("component", "memory_store").Logger()
	logger.Info().Float64("similarityThreshold", similarityThreshold).Msg("Initializing memory store")
	return &Store{db: db, logger: logger, similarityThreshold: similarityThreshold}, nil
}

func now() int64 { return time.Now().Unix() }

// NewKey generates a prefixed, time-ordered record key, e.g. "mem_01J...".
func NewKey(prefix string) string {
	return prefix + "_" + ulid.Make().String()
}

// Save stores a new memory record and returns it. Content must be non-empty;
// an unknown importance falls back to medium.
func (s *Store) Save(
	ctx context.Context,
	typ Type,
	content string,
	recordContext map[string]interface{},
	tags []string,
	importance Importance,
) (Record, error) {
	s.logger.Debug().
		Str("method", "Save").
		Str("type", string(typ)).
		Str("content", truncateString(content, 40)).
		Strs("tags", tags).
		Str("importance", string(importance)).
		Msg("called")

	if strings.TrimSpace(content) == "" {
		s.logger.Warn().Str("method", "Save").Msg("Attempted to save empty content")
		return Record{}, errors.New("content is empty")
	}
	if !ValidType(typ) {
		return Record{}, fmt.Errorf("invalid memory type: %q", typ)
	}
	if !ValidImportance(importance) {
		importance = ImportanceMedium
	}

	contextJSON, err := marshalOptional(recordContext)
	if err != nil {
		return Record{}, fmt.Errorf("marshal context: %w", err)
	}
	tagsJSON, err := marshalOptional(normalizeTags(tags))
	if err != nil {
		return Record{}, fmt.Errorf("marshal tags: %w", err)
	}

	id := NewKey("mem")
	nowUnix := now()

	query := StatementBuilder().
		Insert("memories").
		Columns("memory_id", "type", "content", "context_json", "tags_json",
			"importance", "relevance_score", "archived", "access_count", "created_at").
		Values(id, string(typ), content, contextJSON, tagsJSON,
			string(importance), 1.0, 0, 0, nowUnix)

	queryStr, args, err := query.ToSql()
	if err != nil {
		return Record{}, fmt.Errorf("build insert query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, queryStr, args...); err != nil {
		s.logger.Error().Str("method", "Save").Err(err).Msg("Failed to insert memory")
		return Record{}, fmt.Errorf("insert memory: %w", err)
	}

	s.logger.Info().
		Str("method", "Save").
		Str("memory_id", id).
		Str("type", string(typ)).
		Msg("Memory saved")

	return Record{
		ID:             id,
		Type:           typ,
		Content:        content,
		Context:        recordContext,
		Tags:           normalizeTags(tags),
		Importance:     importance,
		RelevanceScore: 1.0,
		CreatedAt:      time.Unix(nowUnix, 0),
	}, nil
}

// Get loads a memory by ID, bumping its access count and last-accessed time.
// The bookkeeping update may race benignly under concurrent readers.
func (s *Store) Get(ctx context.Context, id string) (Record, error) {
	s.logger.Debug().Str("method", "Get").Str("memory_id", id).Msg("called")

	update := StatementBuilder().
		Update("memories").
		Set("access_count", sq.Expr("access_count + 1")).
		Set("last_accessed", now()).
		Where(sq.Eq{"memory_id": id})
	queryStr, args, err := update.ToSql()
	if err != nil {
		return Record{}, fmt.Errorf("build access update: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, queryStr, args...); err != nil {
		return Record{}, fmt.Errorf("update access count: %w", err)
	}

	return s.load(ctx, id)
}

// load fetches a record by ID without touching access bookkeeping.
func (s *Store) load(ctx context.Context, id string) (Record, error) {
	query := StatementBuilder().
		Select(SelectMemoryColumns()...).
		From("memories").
		Where(sq.Eq{"memory_id": id})
	queryStr, args, err := query.ToSql()
	if err != nil {
		return Record{}, fmt.Errorf("build select query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, queryStr, args...)
	if err != nil {
		return Record{}, fmt.Errorf("select memory: %w", err)
	}
	defer rows.Close() //nolint:errcheck // no remedy for rows close error

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return Record{}, err
		}
		return Record{}, ErrNotFound
	}
	rec, err := loadRecordFromRow(rows)
	if err != nil {
		return Record{}, err
	}
	return *rec, nil
}

// Delete archives a memory rather than physically removing it.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.logger.Debug().Str("method", "Delete").Str("memory_id", id).Msg("called")

	update := StatementBuilder().
		Update("memories").
		Set("archived", 1).
		Set("archived_at", now()).
		Where(sq.Eq{"memory_id": id})
	queryStr, args, err := update.ToSql()
	if err != nil {
		return fmt.Errorf("build archive update: %w", err)
	}
	res, err := s.db.ExecContext(ctx, queryStr, args...)
	if err != nil {
		return fmt.Errorf("archive memory: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	s.logger.Info().Str("method", "Delete").Str("memory_id", id).Msg("Memory archived")
	return nil
}

// Recent returns the newest active memories at or above minImportance.
func (s *Store) Recent(ctx context.Context, limit int, minImportance Importance) ([]*Record, error) {
	if limit <= 0 {
		limit = 50
	}
	query := StatementBuilder().
		Select(SelectMemoryColumns()...).
		From("memories").
		Where(sq.Eq{"archived": 0}).
		Where(sq.Expr(importanceRankExpr+" >= ?", minImportance.Rank())).
		OrderBy("created_at DESC").
		Limit(uint64(limit)) //nolint:gosec // limit is validated positive
	return s.queryRecords(ctx, query)
}

// ByType returns the newest active memories of a given type.
func (s *Store) ByType(ctx context.Context, typ Type, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = 50
	}
	query := StatementBuilder().
		Select(SelectMemoryColumns()...).
		From("memories").
		Where(sq.Eq{"type": string(typ), "archived": 0}).
		OrderBy("created_at DESC").
		Limit(uint64(limit)) //nolint:gosec // limit is validated positive
	return s.queryRecords(ctx, query)
}

// UpdateRelevance sets a memory's relevance score, clamped to [0,1].
func (s *Store) UpdateRelevance(ctx context.Context, id string, score float64) (float64, error) {
	score = clamp01(score)

	update := StatementBuilder().
		Update("memories").
		Set("relevance_score", score).
		Where(sq.Eq{"memory_id": id})
	queryStr, args, err := update.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build relevance update: %w", err)
	}
	res, err := s.db.ExecContext(ctx, queryStr, args...)
	if err != nil {
		return 0, fmt.Errorf("update relevance: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if affected == 0 {
		return 0, ErrNotFound
	}
	return score, nil
}

// SetExpiry sets an expiry date days from now on a memory.
func (s *Store) SetExpiry(ctx context.Context, id string, days int) (time.Time, error) {
	expiry := time.Now().AddDate(0, 0, days)

	update := StatementBuilder().
		Update("memories").
		Set("expiry_date", expiry.Unix()).
		Where(sq.Eq{"memory_id": id})
	queryStr, args, err := update.ToSql()
	if err != nil {
		return time.Time{}, fmt.Errorf("build expiry update: %w", err)
	}
	res, err := s.db.ExecContext(ctx, queryStr, args...)
	if err != nil {
		return time.Time{}, fmt.Errorf("set expiry: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return time.Time{}, err
	}
	if affected == 0 {
		return time.Time{}, ErrNotFound
	}
	s.logger.Info().
		Str("method", "SetExpiry").
		Str("memory_id", id).
		Time("expiry", expiry).
		Msg("Expiry set")
	return expiry, nil
}

// ArchiveExpired archives every active memory whose expiry date has passed,
// regardless of importance. Returns the number of memories archived.
func (s *Store) ArchiveExpired(ctx context.Context) (int64, error) {
	nowUnix := now()
	update := StatementBuilder().
		Update("memories").
		Set("archived", 1).
		Set("archived_at", nowUnix).
		Where(sq.Eq{"archived": 0}).
		Where(sq.NotEq{"expiry_date": nil}).
		Where(sq.Lt{"expiry_date": nowUnix})
	queryStr, args, err := update.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build expiry sweep: %w", err)
	}
	res, err := s.db.ExecContext(ctx, queryStr, args...)
	if err != nil {
		return 0, fmt.Errorf("archive expired: %w", err)
	}
	archived, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if archived > 0 {
		s.logger.Info().Int64("archived", archived).Msg("Archived expired memories")
	}
	return archived, nil
}

// Cleanup archives low-importance memories older than the per-type retention
// window. The base window is scaled by RetentionMultipliers, so a fact is
// kept ten times longer than a conversation turn. Medium and high importance
// records are never auto-archived by age. The sweep runs one type at a time
// so it stays safe to invoke alongside ordinary reads and writes.
func (s *Store) Cleanup(ctx context.Context, daysToKeep int) (int64, map[Type]int64, error) {
	if daysToKeep <= 0 {
		daysToKeep = 90
	}

	var total int64
	byType := make(map[Type]int64)
	nowTime := time.Now()

	for typ, multiplier := range RetentionMultipliers {
		cutoff := nowTime.AddDate(0, 0, -daysToKeep*multiplier).Unix()

		update := StatementBuilder().
			Update("memories").
			Set("archived", 1).
			Set("archived_at", nowTime.Unix()).
			Where(sq.Eq{"type": string(typ), "archived": 0, "importance": string(ImportanceLow)}).
			Where(sq.Lt{"created_at": cutoff})
		queryStr, args, err := update.ToSql()
		if err != nil {
			return total, byType, fmt.Errorf("build cleanup query: %w", err)
		}
		res, err := s.db.ExecContext(ctx, queryStr, args...)
		if err != nil {
			return total, byType, fmt.Errorf("cleanup %s memories: %w", typ, err)
		}
		archived, err := res.RowsAffected()
		if err != nil {
			return total, byType, err
		}
		if archived > 0 {
			byType[typ] = archived
			total += archived
		}
	}

	s.logger.Info().
		Str("method", "Cleanup").
		Int("baseDays", daysToKeep).
		Int64("archived", total).
		Msg("Retention sweep completed")
	return total, byType, nil
}

// Statistics returns counts of stored memories. Archived records are
// excluded from the per-type and per-importance breakdowns.
func (s *Store) Statistics(ctx context.Context) (Statistics, error) {
	stats := Statistics{
		ByType:       make(map[Type]int),
		ByImportance: make(map[Importance]int),
	}

	row := s.db.QueryRowContext(ctx, `
SELECT COUNT(*), COALESCE(SUM(CASE WHEN archived = 0 THEN 1 ELSE 0 END), 0)
FROM memories`)
	if err := row.Scan(&stats.Total, &stats.Active); err != nil {
		return Statistics{}, fmt.Errorf("count memories: %w", err)
	}
	stats.Archived = stats.Total - stats.Active

	rows, err := s.db.QueryContext(ctx, `
SELECT type, importance, COUNT(*)
FROM memories
WHERE archived = 0
GROUP BY type, importance`)
	if err != nil {
		return Statistics{}, fmt.Errorf("group memories: %w", err)
	}
	defer rows.Close() //nolint:errcheck // no remedy for rows close error

	for rows.Next() {
		var typ, importance string
		var count int
		if err := rows.Scan(&typ, &importance, &count); err != nil {
			return Statistics{}, err
		}
		stats.ByType[Type(typ)] += count
		stats.ByImportance[Importance(importance)] += count
	}
	if err := rows.Err(); err != nil {
		return Statistics{}, err
	}
	return stats, nil
}

func (s *Store) queryRecords(ctx context.Context, query sq.SelectBuilder) ([]*Record, error) {
	queryStr, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, queryStr, args...)
	if err != nil {
		return nil, fmt.Errorf("query memories: %w", err)
	}
	defer rows.Close() //nolint:errcheck // no remedy for rows close error

	var records []*Record
	for rows.Next() {
		rec, err := loadRecordFromRow(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func loadRecordFromRow(rows *sql.Rows) (*Record, error) {
	var (
		id           string
		typStr       string
		content      string
		contextJSON  sql.NullString
		tagsJSON     sql.NullString
		importance   string
		relevance    float64
		expiryDate   sql.NullInt64
		archived     int
		archivedAt   sql.NullInt64
		accessCount  int
		createdAt    int64
		lastAccessed sql.NullInt64
	)
	if err := rows.Scan(&id, &typStr, &content, &contextJSON, &tagsJSON,
		&importance, &relevance, &expiryDate, &archived,
		&archivedAt, &accessCount, &createdAt, &lastAccessed); err != nil {
		return nil, err
	}

	rec := &Record{
		ID:             id,
		Type:           Type(typStr),
		Content:        content,
		Importance:     Importance(importance),
		RelevanceScore: relevance,
		Archived:       archived != 0,
		AccessCount:    accessCount,
		CreatedAt:      time.Unix(createdAt, 0),
	}
	if contextJSON.Valid && contextJSON.String != "" {
		_ = json.Unmarshal([]byte(contextJSON.String), &rec.Context)
	}
	if tagsJSON.Valid && tagsJSON.String != "" {
		if err := json.Unmarshal([]byte(tagsJSON.String), &rec.Tags); err != nil {
			rec.Tags = nil
		}
	}
	if expiryDate.Valid {
		t := time.Unix(expiryDate.Int64, 0)
		rec.ExpiryDate = &t
	}
	if archivedAt.Valid {
		t := time.Unix(archivedAt.Int64, 0)
		rec.ArchivedAt = &t
	}
	if lastAccessed.Valid {
		t := time.Unix(lastAccessed.Int64, 0)
		rec.LastAccessed = &t
	}
	return rec, nil
}

func marshalOptional(v interface{}) (interface{}, error) {
	switch val := v.(type) {
	case map[string]interface{}:
		if val == nil {
			return nil, nil
		}
	case []string:
		if val == nil {
			return nil, nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func normalizeTags(tags []string) []string {
	var out []string
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag != "" {
			out = append(out, tag)
		}
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Helper function to safely truncate strings (for log safety).
func truncateString(s string, n int) string {
	rs := []rune(s)
	if len(rs) > n {
		return string(rs[:n]) + "..."
	}
	return s
}
