// Package storage opens and verifies the shared SQLite handle used by every
// store in the learning core.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

const (
	// DefaultBusyTimeout is how long SQLite waits on a locked database before
	// returning SQLITE_BUSY. Background sweeps and interactive reads share the
	// same file, so a generous timeout is preferable to surfacing lock errors.
	DefaultBusyTimeout = 5 * time.Second
	// DefaultPingMaxElapsed bounds the total time spent retrying the initial ping.
	DefaultPingMaxElapsed = 30 * time.Second
)

// Open opens the SQLite database at path, applies the connection pragmas and
// verifies connectivity with an exponential-backoff ping. The returned handle
// is safe for concurrent use.
func Open(ctx context.Context, path string, logger zerolog.Logger) (*sql.DB, error) {
	logger = logger.With().Str("component", "storage").Logger()

	dsn := fmt.Sprintf("file:%s?_busy_timeout=%d&_journal_mode=WAL&_foreign_keys=on",
		path, DefaultBusyTimeout.Milliseconds())
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database %q: %w", path, err)
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 100 * time.Millisecond
	eb.Multiplier = 2.0
	eb.MaxInterval = 5 * time.Second
	eb.MaxElapsedTime = DefaultPingMaxElapsed
	eb.RandomizationFactor = 0.2
	eb.Reset()

	attempt := 0
	operation := func() error {
		attempt++
		if err := db.PingContext(ctx); err != nil {
			logger.Warn().
				Int("attempt", attempt).
				Err(err).
				Msg("Database ping failed, retrying")
			return err
		}
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(eb, ctx)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("database unavailable at %q: %w", path, err)
	}

	logger.Info().Str("path", path).Msg("Database opened")
	return db, nil
}
