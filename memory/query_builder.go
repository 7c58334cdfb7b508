package memory

import (
	sq "github.com/Masterminds/squirrel"
)

// StatementBuilder returns a Squirrel StatementBuilder configured for SQLite.
// SQLite uses '?' as placeholders, which is Squirrel's default.
func StatementBuilder() sq.StatementBuilderType {
	return sq.StatementBuilder
}

// SelectMemoryColumns returns the standard column list for memories SELECT queries.
func SelectMemoryColumns() []string {
	return []string{
		"memory_id", "type", "content", "context_json", "tags_json",
		"importance", "relevance_score", "expiry_date", "archived",
		"archived_at", "access_count", "created_at", "last_accessed",
	}
}

// importanceRankExpr orders importance levels high > medium > low in SQL.
// Plain text ordering would sort "medium" above "high".
const importanceRankExpr = "CASE importance WHEN 'high' THEN 2 WHEN 'medium' THEN 1 ELSE 0 END"
