/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/cases"
)

const (
	defaultAttempts = 5
	defaultBackoff  = 20 * time.Millisecond
)

// NormalizeGuess maps a guess to its counter key: trimmed and case-folded,
// so "Paper" and "paper " share one tally.
func NormalizeGuess(guess string) string {
	// Casers are stateful, so each call gets its own.
	return cases.Fold().String(strings.TrimSpace(guess))
}

// Counter is the SQLite-backed all-time win tally.
type Counter struct {
	db       *DB
	attempts int
	backoff  time.Duration
}

// Increment adds one win for guess and returns the new total. The upsert is
// a single statement, so concurrent callers never lose an update; lock
// contention is retried a bounded number of times.
func (c *Counter) Increment(ctx context.Context, guess string) (int64, error) {
	key := NormalizeGuess(guess)
	if key == "" {
		return 0, fmt.Errorf("guess is required")
	}

	var err error

	for attempt := 0; attempt < c.attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			case <-time.After(c.backoff * time.Duration(attempt)):
			}
		}

		var count int64

		err = c.db.sqlDB.QueryRowContext(ctx, `
INSERT INTO guess_counts (guess, count) VALUES (?, 1)
ON CONFLICT (guess) DO UPDATE SET count = count + 1
RETURNING count
`, key).Scan(&count)
		if err == nil {
			return count, nil
		}

		if !isContention(err) {
			return 0, fmt.Errorf("increment guess count: %w", err)
		}
	}

	return 0, fmt.Errorf("increment guess count after %d attempts: %w", c.attempts, err)
}

// Normalize returns the key guess is counted under.
func (c *Counter) Normalize(guess string) string {
	return NormalizeGuess(guess)
}

// Count returns the current total for guess, zero if it has never won.
func (c *Counter) Count(ctx context.Context, guess string) (int64, error) {
	var count int64

	err := c.db.sqlDB.QueryRowContext(ctx,
		`SELECT count FROM guess_counts WHERE guess = ?`, NormalizeGuess(guess),
	).Scan(&count)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}

		return 0, fmt.Errorf("read guess count: %w", err)
	}

	return count, nil
}

// MemoryCounter is a process-local GuessCounter, used when no database is
// configured.
type MemoryCounter struct {
	mu     sync.Mutex
	counts map[string]int64
}

func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{counts: make(map[string]int64)}
}

func (m *MemoryCounter) Increment(_ context.Context, guess string) (int64, error) {
	key := NormalizeGuess(guess)
	if key == "" {
		return 0, fmt.Errorf("guess is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.counts[key]++

	return m.counts[key], nil
}

func (m *MemoryCounter) Normalize(guess string) string {
	return NormalizeGuess(guess)
}

func (m *MemoryCounter) Count(_ context.Context, guess string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.counts[NormalizeGuess(guess)], nil
}
