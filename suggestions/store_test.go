package suggestions

import (
	"context"
	"database/sql"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/rs/zerolog"

	"github.com/RajputVikashS5/Elixi-AI/habits"
	"github.com/RajputVikashS5/Elixi-AI/memory"
	"github.com/RajputVikashS5/Elixi-AI/migrations"
	"github.com/RajputVikashS5/Elixi-AI/preferences"

	_ "github.com/mattn/go-sqlite3"
)

// setupTestDB creates an in-memory database and runs migrations
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	cwd, err := os.Getwd()
	if err != nil {
		t.Fatalf("failed to get working directory: %v", err)
	}
	migrationsPath := filepath.Join(cwd, "..", "migrations")

	if err := migrations.RunMigrations(db, migrationsPath, zerolog.Nop()); err != nil {
		_ = db.Close() //nolint:errcheck // Cleanup on error
		t.Fatalf("failed to run migrations: %v", err)
	}
	return db
}

func newTestStore(t *testing.T, db *sql.DB) *Store {
	t.Helper()
	store, err := NewStore(db, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return store
}

func TestCreate_ClampsConfidence(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup
	store := newTestStore(t, db)

	sugg, err := store.Create(context.Background(), "scheduling", "Overconfident", "desc", 1.7, nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if sugg.Confidence != 1.0 {
		t.Fatalf("expected clamp to 1.0, got %v", sugg.Confidence)
	}
	if sugg.Status != StatusPending {
		t.Fatalf("expected pending status, got %q", sugg.Status)
	}
}

func TestRespond_TerminalAndIdempotent(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup
	store := newTestStore(t, db)
	ctx := context.Background()

	sugg, err := store.Create(ctx, "scheduling", "Try this", "desc", 0.8, nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	helpful := true
	if err := store.Respond(ctx, sugg.ID, "accepted", &helpful); err != nil {
		t.Fatalf("Respond: %v", err)
	}
	// A second response must be a silent no-op.
	notHelpful := false
	if err := store.Respond(ctx, sugg.ID, "rejected", &notHelpful); err != nil {
		t.Fatalf("Respond (second): %v", err)
	}

	all, err := store.list(ctx, allSuggestionsQuery())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected 1 suggestion, got %d", len(all))
	}
	got := all[0]
	if got.Status != StatusResponded || got.UserResponse != "accepted" {
		t.Fatalf("first response should stick: %+v", got)
	}
	if got.Helpful == nil || !*got.Helpful {
		t.Fatalf("helpful flag lost: %+v", got)
	}
	if got.RespondedAt == nil {
		t.Fatal("responded_at not set")
	}
}

func TestRespond_WithoutRatingLeavesHelpfulUnset(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup
	store := newTestStore(t, db)
	ctx := context.Background()

	sugg, err := store.Create(ctx, "scheduling", "Try this", "desc", 0.8, nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := store.Respond(ctx, sugg.ID, "accepted", nil); err != nil {
		t.Fatalf("Respond: %v", err)
	}

	all, err := store.list(ctx, allSuggestionsQuery())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 1 || all[0].Status != StatusResponded {
		t.Fatalf("unexpected suggestions: %+v", all)
	}
	// No rating is distinct from a not-helpful rating.
	if all[0].Helpful != nil {
		t.Fatalf("expected nil helpful for an unrated response, got %v", *all[0].Helpful)
	}
}

func TestDismissByType(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup
	store := newTestStore(t, db)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := store.Create(ctx, "scheduling", "r", "desc", 0.5, nil); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}
	if _, err := store.Create(ctx, "automation", "a", "desc", 0.5, nil); err != nil {
		t.Fatalf("Create: %v", err)
	}

	dismissed, err := store.DismissByType(ctx, "scheduling")
	if err != nil {
		t.Fatalf("DismissByType: %v", err)
	}
	if dismissed != 3 {
		t.Fatalf("expected 3 dismissed, got %d", dismissed)
	}

	active, err := store.GetActive(ctx, 10)
	if err != nil {
		t.Fatalf("GetActive: %v", err)
	}
	if len(active) != 1 || active[0].Type != "automation" {
		t.Fatalf("unexpected active set: %+v", active)
	}
}

func TestGetForContext_BoostsAndDecays(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup
	store := newTestStore(t, db)
	ctx := context.Background()

	routine, err := store.Create(ctx, "scheduling", "Morning start",
		"Start your morning routine with a short review", 0.5, nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	appMatch, err := store.Create(ctx, "automation", "Mail helper",
		"Automate sorting in Mail", 0.5, nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	stale, err := store.Create(ctx, "optimization", "Old idea", "An unrelated idea", 0.5, nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := db.Exec(`UPDATE suggestions SET created_at = ? WHERE suggestion_id = ?`,
		time.Now().Add(-48*time.Hour).Unix(), stale.ID); err != nil {
		t.Fatalf("backdate: %v", err)
	}

	morning := time.Date(2026, time.August, 24, 8, 0, 0, 0, time.Local)
	results, err := store.GetForContext(ctx, Context{ActiveApps: []string{"Terminal", "Mail"}, Now: morning})
	if err != nil {
		t.Fatalf("GetForContext: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}

	scores := make(map[string]float64)
	for _, res := range results {
		scores[res.ID] = res.Confidence
	}
	if math.Abs(scores[routine.ID]-0.60) > 1e-9 {
		t.Fatalf("expected morning routine boost to 0.60, got %v", scores[routine.ID])
	}
	if math.Abs(scores[appMatch.ID]-0.65) > 1e-9 {
		t.Fatalf("expected active-app boost to 0.65, got %v", scores[appMatch.ID])
	}
	if math.Abs(scores[stale.ID]-0.40) > 1e-9 {
		t.Fatalf("expected stale decay to 0.40, got %v", scores[stale.ID])
	}
	if results[0].ID != appMatch.ID {
		t.Fatalf("expected app match first, got %s", results[0].ID)
	}
}

func TestGetForContext_ClampsAndLimits(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup
	store := newTestStore(t, db)
	ctx := context.Background()

	boosted, err := store.Create(ctx, "scheduling", "Strong routine",
		"Your morning routine in Mail", 0.95, nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	for i := 0; i < 4; i++ {
		if _, err := store.Create(ctx, "optimization", "Filler", "plain idea", 0.5, nil); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	morning := time.Date(2026, time.August, 24, 8, 0, 0, 0, time.Local)
	results, err := store.GetForContext(ctx, Context{ActiveApps: []string{"Mail"}, Now: morning})
	if err != nil {
		t.Fatalf("GetForContext: %v", err)
	}
	if len(results) != contextResultLimit {
		t.Fatalf("expected %d results, got %d", contextResultLimit, len(results))
	}
	if results[0].ID != boosted.ID || results[0].Confidence != 1.0 {
		t.Fatalf("expected boosted suggestion clamped to 1.0 first, got %+v", results[0])
	}

	// The stored confidence must be untouched by context scoring.
	var stored float64
	if err := db.QueryRow(`SELECT confidence_score FROM suggestions WHERE suggestion_id = ?`,
		boosted.ID).Scan(&stored); err != nil {
		t.Fatalf("query stored confidence: %v", err)
	}
	if stored != 0.95 {
		t.Fatalf("stored confidence mutated: %v", stored)
	}
}

func TestGenerateFromPatterns_SkipsWeakAndDuplicates(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup
	store := newTestStore(t, db)
	ctx := context.Background()

	patterns := []habits.Pattern{
		{ID: "pat_1", Type: habits.PatternSequential, Description: "You often open Mail -> Calendar", Confidence: 0.85},
		{ID: "pat_2", Type: habits.PatternTimeBased, Description: "You usually do check_email in the morning", TimePeriod: "morning", Confidence: 0.75},
		{ID: "pat_3", Type: habits.PatternFrequency, Description: "You frequently do take_note", Confidence: 0.65},
		{ID: "pat_4", Type: habits.PatternSequential, Description: "You often open Notes -> Music", Confidence: 0.9, Feedback: "rejected"},
	}

	created, err := store.GenerateFromPatterns(ctx, patterns)
	if err != nil {
		t.Fatalf("GenerateFromPatterns: %v", err)
	}
	if len(created) != 2 {
		t.Fatalf("expected 2 suggestions (weak and rejected skipped), got %+v", created)
	}

	again, err := store.GenerateFromPatterns(ctx, patterns)
	if err != nil {
		t.Fatalf("GenerateFromPatterns (second run): %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("expected no duplicates, got %+v", again)
	}
}

func TestGenerateFromRecommendations(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup
	store := newTestStore(t, db)
	ctx := context.Background()

	prefs, err := preferences.NewStore(db, zerolog.Nop())
	if err != nil {
		t.Fatalf("preferences.NewStore: %v", err)
	}
	if _, err := prefs.Learn(ctx, "learned_behavior", "preferred_app", "Mail", 0.85); err != nil {
		t.Fatalf("Learn: %v", err)
	}

	created, err := store.GenerateFromRecommendations(ctx, prefs)
	if err != nil {
		t.Fatalf("GenerateFromRecommendations: %v", err)
	}
	if len(created) != 1 || created[0].Type != "learning" {
		t.Fatalf("unexpected suggestions: %+v", created)
	}

	analytics, err := store.Analytics(ctx)
	if err != nil {
		t.Fatalf("Analytics: %v", err)
	}
	if analytics.Total != 1 || analytics.ByStatus[StatusPending] != 1 {
		t.Fatalf("unexpected analytics: %+v", analytics)
	}
}

func allSuggestionsQuery() sq.SelectBuilder {
	return memory.StatementBuilder().
		Select(suggestionColumns()...).
		From("suggestions")
}
