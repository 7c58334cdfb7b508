package retention

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/RajputVikashS5/Elixi-AI/events"
	"github.com/RajputVikashS5/Elixi-AI/memory"
	"github.com/RajputVikashS5/Elixi-AI/migrations"

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

func newTestEngine(t *testing.T, db *sql.DB) (*Engine, *memory.Store, *events.Store) {
	t.Helper()
	memories, err := memory.NewStore(db, 0.3, zerolog.Nop())
	if err != nil {
		t.Fatalf("memory.NewStore: %v", err)
	}
	eventStore, err := events.NewStore(db, zerolog.Nop())
	if err != nil {
		t.Fatalf("events.NewStore: %v", err)
	}
	engine, err := NewEngine(db, memories, 90, 60, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return engine, memories, eventStore
}

func TestSweepEvents_AggregatesThenDeletes(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup
	engine, _, eventStore := newTestEngine(t, db)
	ctx := context.Background()

	old := time.Now().AddDate(0, 0, -100)
	for i := 0; i < 3; i++ {
		if _, err := eventStore.RecordAt(ctx, "app_opened", nil, old.Add(time.Duration(i)*time.Hour)); err != nil {
			t.Fatalf("RecordAt: %v", err)
		}
	}
	if _, err := eventStore.RecordAt(ctx, "command_executed", nil, old); err != nil {
		t.Fatalf("RecordAt: %v", err)
	}
	// A fresh event must survive the sweep.
	if _, err := eventStore.Record(ctx, "app_opened", nil); err != nil {
		t.Fatalf("Record: %v", err)
	}

	aggregated, err := engine.SweepEvents(ctx)
	if err != nil {
		t.Fatalf("SweepEvents: %v", err)
	}
	if aggregated != 4 {
		t.Fatalf("expected 4 events aggregated, got %d", aggregated)
	}

	remaining, err := eventStore.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if remaining != 1 {
		t.Fatalf("expected 1 event remaining, got %d", remaining)
	}

	aggregates, err := engine.Aggregates(ctx)
	if err != nil {
		t.Fatalf("Aggregates: %v", err)
	}
	if len(aggregates) != 2 {
		t.Fatalf("expected 2 aggregate rows, got %d", len(aggregates))
	}
	if aggregates[0].EventType != "app_opened" || aggregates[0].TotalEvents != 3 {
		t.Fatalf("unexpected top aggregate: %+v", aggregates[0])
	}
}

func TestSweepEvents_AccumulatesAcrossRuns(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup
	engine, _, eventStore := newTestEngine(t, db)
	ctx := context.Background()

	old := time.Now().AddDate(0, 0, -100)
	if _, err := eventStore.RecordAt(ctx, "app_opened", nil, old); err != nil {
		t.Fatalf("RecordAt: %v", err)
	}
	if _, err := engine.SweepEvents(ctx); err != nil {
		t.Fatalf("SweepEvents: %v", err)
	}

	if _, err := eventStore.RecordAt(ctx, "app_opened", nil, old.Add(time.Hour)); err != nil {
		t.Fatalf("RecordAt: %v", err)
	}
	if _, err := engine.SweepEvents(ctx); err != nil {
		t.Fatalf("SweepEvents (second): %v", err)
	}

	aggregates, err := engine.Aggregates(ctx)
	if err != nil {
		t.Fatalf("Aggregates: %v", err)
	}
	if len(aggregates) != 1 || aggregates[0].TotalEvents != 2 {
		t.Fatalf("expected accumulated total of 2, got %+v", aggregates)
	}
	if !aggregates[0].FirstOccurrence.Equal(time.Unix(old.Unix(), 0)) {
		t.Fatalf("first occurrence not preserved: %v", aggregates[0].FirstOccurrence)
	}
}

func TestSweepEvents_NothingToDo(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup
	engine, _, eventStore := newTestEngine(t, db)
	ctx := context.Background()

	if _, err := eventStore.Record(ctx, "app_opened", nil); err != nil {
		t.Fatalf("Record: %v", err)
	}
	aggregated, err := engine.SweepEvents(ctx)
	if err != nil {
		t.Fatalf("SweepEvents: %v", err)
	}
	if aggregated != 0 {
		t.Fatalf("expected nothing aggregated, got %d", aggregated)
	}
}

func TestRun_ProducesReport(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup
	engine, memories, eventStore := newTestEngine(t, db)
	ctx := context.Background()

	// Expired high-importance memory: expiry sweeps ignore importance.
	expired, err := memories.Save(ctx, memory.TypeFact, "expired secret", nil, nil, memory.ImportanceHigh)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := db.Exec(`UPDATE memories SET expiry_date = ? WHERE memory_id = ?`,
		time.Now().Add(-time.Hour).Unix(), expired.ID); err != nil {
		t.Fatalf("set expiry: %v", err)
	}

	// Old low-importance conversation: age sweep takes it.
	oldChat, err := memories.Save(ctx, memory.TypeConversation, "old chat", nil, nil, memory.ImportanceLow)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := db.Exec(`UPDATE memories SET created_at = ? WHERE memory_id = ?`,
		time.Now().AddDate(0, 0, -100).Unix(), oldChat.ID); err != nil {
		t.Fatalf("backdate: %v", err)
	}

	if _, err := eventStore.RecordAt(ctx, "app_opened", nil, time.Now().AddDate(0, 0, -100)); err != nil {
		t.Fatalf("RecordAt: %v", err)
	}

	report, err := engine.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.ExpiredArchived != 1 {
		t.Fatalf("expected 1 expired, got %d", report.ExpiredArchived)
	}
	if report.MemoriesArchived != 1 {
		t.Fatalf("expected 1 age-archived, got %d", report.MemoriesArchived)
	}
	if report.EventsAggregated != 1 {
		t.Fatalf("expected 1 event aggregated, got %d", report.EventsAggregated)
	}
	if report.ArchivedByType[memory.TypeConversation] != 1 {
		t.Fatalf("unexpected per-type breakdown: %v", report.ArchivedByType)
	}
}
