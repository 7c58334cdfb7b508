package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"

	sq "github.com/Masterminds/squirrel"
)

const (
	// contentMatchScore is assigned to direct substring matches on content.
	contentMatchScore = 0.95
	// tagMatchScore is assigned to matches found only in a record's tags.
	tagMatchScore = 0.85

	defaultSearchLimit  = 10
	searchCandidatePool = 200
	relatedDefaultLimit = 20
)

// Search finds active memories matching the query. Direct case-insensitive
// substring matches on content (0.95) and tags (0.85) come first; when none
// exist, it falls back to similarity ranking over recent records. Results are
// ordered by score, then importance, then recency.
func (s *Store) Search(ctx context.Context, query string, typ Type, limit int) ([]SearchResult, error) {
	s.logger.Debug().
		Str("method", "Search").
		Str("query", truncateString(query, 40)).
		Str("type", string(typ)).
		Int("limit", limit).
		Msg("called")

	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	candidates, err := s.searchCandidates(ctx, typ)
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(query)
	var results []SearchResult
	for _, rec := range candidates {
		switch {
		case strings.Contains(strings.ToLower(rec.Content), needle):
			results = append(results, SearchResult{Record: rec, Score: contentMatchScore})
		case tagsContain(rec.Tags, needle):
			results = append(results, SearchResult{Record: rec, Score: tagMatchScore})
		}
	}

	if len(results) == 0 {
		results = RankBySimilarity(query, candidates, s.similarityThreshold)
	} else {
		sort.SliceStable(results, func(i, j int) bool {
			if results[i].Score != results[j].Score {
				return results[i].Score > results[j].Score
			}
			ri, rj := results[i].Record, results[j].Record
			if ri.Importance.Rank() != rj.Importance.Rank() {
				return ri.Importance.Rank() > rj.Importance.Rank()
			}
			return ri.CreatedAt.After(rj.CreatedAt)
		})
	}

	if len(results) > limit {
		results = results[:limit]
	}
	s.logger.Debug().
		Str("method", "Search").
		Int("results", len(results)).
		Msg("Search completed")
	return results, nil
}

// SearchSimilar ranks recent active memories against the query by TF-IDF
// similarity only, skipping the substring pass. A threshold < 0 uses the
// store default.
func (s *Store) SearchSimilar(ctx context.Context, query string, threshold float64, limit int) ([]SearchResult, error) {
	if threshold < 0 {
		threshold = s.similarityThreshold
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	candidates, err := s.searchCandidates(ctx, "")
	if err != nil {
		return nil, err
	}
	results := RankBySimilarity(query, candidates, threshold)
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// SearchRelated returns active memories recorded under a conversation,
// matched via the conversation_id key in their context. With a non-empty
// query the conversation's memories are reordered by similarity to it;
// otherwise they come back newest first.
func (s *Store) SearchRelated(ctx context.Context, conversationID, query string, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = relatedDefaultLimit
	}
	// The context column stores JSON; the quoted fragment match avoids
	// needing the sqlite JSON1 extension.
	fragment := fmt.Sprintf(`%%"conversation_id":%q%%`, conversationID)
	sel := StatementBuilder().
		Select(SelectMemoryColumns()...).
		From("memories").
		Where(sq.Eq{"archived": 0}).
		Where(sq.Like{"context_json": fragment}).
		OrderBy("created_at DESC")
	records, err := s.queryRecords(ctx, sel)
	if err != nil {
		return nil, err
	}

	// A threshold of zero keeps every record; the query only reorders. A
	// degenerate query (stop words only) leaves the recency order in place.
	if strings.TrimSpace(query) != "" {
		if ranked := RankBySimilarity(query, records, 0); len(ranked) > 0 {
			records = records[:0]
			for _, res := range ranked {
				records = append(records, res.Record)
			}
		}
	}

	if len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// searchCandidates loads the newest active records to score, optionally
// restricted to one type. The pool is capped so query-time vectorization
// stays cheap.
func (s *Store) searchCandidates(ctx context.Context, typ Type) ([]*Record, error) {
	query := StatementBuilder().
		Select(SelectMemoryColumns()...).
		From("memories").
		Where(sq.Eq{"archived": 0}).
		OrderBy("created_at DESC").
		Limit(searchCandidatePool)
	if typ != "" {
		query = query.Where(sq.Eq{"type": string(typ)})
	}
	return s.queryRecords(ctx, query)
}

func tagsContain(tags []string, needle string) bool {
	for _, tag := range tags {
		if strings.Contains(strings.ToLower(tag), needle) {
			return true
		}
	}
	return false
}
