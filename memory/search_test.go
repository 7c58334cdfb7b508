package memory

import (
	"context"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

func TestSearch_ContentSubstringScoresHighest(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup
	store := newTestStore(t, db)
	ctx := context.Background()

	if _, err := store.Save(ctx, TypeFact, "User drinks espresso every morning", nil, nil, ImportanceMedium); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := store.Save(ctx, TypeFact, "User dislikes loud music", nil, nil, ImportanceMedium); err != nil {
		t.Fatalf("Save: %v", err)
	}

	results, err := store.Search(ctx, "espresso", "", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Score != contentMatchScore {
		t.Fatalf("expected score %v, got %v", contentMatchScore, results[0].Score)
	}
}

func TestSearch_TagMatchScoresBelowContent(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup
	store := newTestStore(t, db)
	ctx := context.Background()

	if _, err := store.Save(ctx, TypeFact, "Checks email before standup",
		nil, []string{"workflow"}, ImportanceMedium); err != nil {
		t.Fatalf("Save: %v", err)
	}

	results, err := store.Search(ctx, "workflow", "", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Score != tagMatchScore {
		t.Fatalf("expected score %v, got %v", tagMatchScore, results[0].Score)
	}
}

func TestSearch_FallsBackToSimilarityRanking(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup
	store := newTestStore(t, db)
	ctx := context.Background()

	relevant, err := store.Save(ctx, TypeFact,
		"Morning hours are the most productive part of the day", nil, nil, ImportanceMedium)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := store.Save(ctx, TypeFact,
		"Pasta recipes need plenty of fresh basil", nil, nil, ImportanceMedium); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// No record contains this exact phrase, so the substring pass finds
	// nothing and similarity ranking takes over.
	results, err := store.Search(ctx, "productive morning hours", "", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("expected similarity fallback to find the relevant record")
	}
	if results[0].Record.ID != relevant.ID {
		t.Fatalf("expected %s first, got %s", relevant.ID, results[0].Record.ID)
	}
	for _, res := range results {
		if res.Record.Content == "Pasta recipes need plenty of fresh basil" {
			t.Fatal("unrelated record should not pass the similarity threshold")
		}
	}
}

func TestSearch_TypeFilterAndEmptyQuery(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup
	store := newTestStore(t, db)
	ctx := context.Background()

	if _, err := store.Save(ctx, TypeFact, "shared keyword alpha", nil, nil, ImportanceMedium); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := store.Save(ctx, TypeEvent, "shared keyword alpha", nil, nil, ImportanceMedium); err != nil {
		t.Fatalf("Save: %v", err)
	}

	results, err := store.Search(ctx, "alpha", TypeEvent, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].Record.Type != TypeEvent {
		t.Fatalf("type filter not applied: %+v", results)
	}

	empty, err := store.Search(ctx, "   ", "", 10)
	if err != nil {
		t.Fatalf("Search empty: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("expected no results for blank query, got %d", len(empty))
	}
}

func TestSearch_ExcludesArchived(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup
	store := newTestStore(t, db)
	ctx := context.Background()

	saved, err := store.Save(ctx, TypeFact, "archived espresso note", nil, nil, ImportanceMedium)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Delete(ctx, saved.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	results, err := store.Search(ctx, "espresso", "", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("archived record should not be searchable, got %d results", len(results))
	}
}

func TestSearchSimilar_MorningProductivityScenario(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup
	store := newTestStore(t, db)
	ctx := context.Background()

	contents := []string{
		"rain tomorrow",
		"morning workout",
		"climate change",
		"productivity tips",
		"morning coffee",
	}
	for _, content := range contents {
		if _, err := store.Save(ctx, TypeFact, content, nil, nil, ImportanceMedium); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}

	results, err := store.SearchSimilar(ctx, "morning productivity", 0.2, 10)
	if err != nil {
		t.Fatalf("SearchSimilar: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("expected results")
	}

	rank := make(map[string]int)
	for i, res := range results {
		rank[res.Record.Content] = i + 1
	}
	for _, relevant := range []string{"morning workout", "productivity tips"} {
		pos, found := rank[relevant]
		if !found {
			t.Fatalf("%q missing from results %v", relevant, rank)
		}
		if irrelevantPos, present := rank["rain tomorrow"]; present && irrelevantPos <= pos {
			t.Fatalf("%q ranked at or above %q", "rain tomorrow", relevant)
		}
	}
}

func TestSearchRelated(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup
	store := newTestStore(t, db)
	ctx := context.Background()

	if _, err := store.Save(ctx, TypeConversation, "talked about hiking",
		map[string]interface{}{"conversation_id": "conv_1"}, nil, ImportanceMedium); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := store.Save(ctx, TypeConversation, "talked about cooking",
		map[string]interface{}{"conversation_id": "conv_2"}, nil, ImportanceMedium); err != nil {
		t.Fatalf("Save: %v", err)
	}

	related, err := store.SearchRelated(ctx, "conv_1", "", 10)
	if err != nil {
		t.Fatalf("SearchRelated: %v", err)
	}
	if len(related) != 1 || related[0].Content != "talked about hiking" {
		t.Fatalf("unexpected related memories: %+v", related)
	}
}

func TestSearchRelated_QueryReordersBySimilarity(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup
	store := newTestStore(t, db)
	ctx := context.Background()

	convCtx := map[string]interface{}{"conversation_id": "conv_1"}
	older, err := store.Save(ctx, TypeConversation, "planning a weekend hiking trip", convCtx, nil, ImportanceMedium)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := db.Exec(`UPDATE memories SET created_at = ? WHERE memory_id = ?`,
		older.CreatedAt.Add(-time.Hour).Unix(), older.ID); err != nil {
		t.Fatalf("backdate: %v", err)
	}
	newer, err := store.Save(ctx, TypeConversation, "favorite pasta recipe", convCtx, nil, ImportanceMedium)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	// Without a query the newest memory comes first.
	byRecency, err := store.SearchRelated(ctx, "conv_1", "", 10)
	if err != nil {
		t.Fatalf("SearchRelated: %v", err)
	}
	if len(byRecency) != 2 || byRecency[0].ID != newer.ID {
		t.Fatalf("expected recency order, got %+v", byRecency)
	}

	// A query reorders by similarity without dropping anything.
	byQuery, err := store.SearchRelated(ctx, "conv_1", "hiking trip plans", 10)
	if err != nil {
		t.Fatalf("SearchRelated with query: %v", err)
	}
	if len(byQuery) != 2 {
		t.Fatalf("query must reorder, not filter: got %d records", len(byQuery))
	}
	if byQuery[0].ID != older.ID {
		t.Fatalf("expected similarity order, got %+v", byQuery)
	}
}
