/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Seednode/wordduel/duel"
)

// Verdicts is the SQLite-backed verdict cache. Entries past their expiry
// read as misses and are removed by Prune.
type Verdicts struct {
	db *DB
}

func (v *Verdicts) Get(ctx context.Context, seed, guess string) (duel.Verdict, bool, error) {
	var (
		verdict   string
		expiresAt int64
	)

	err := v.db.sqlDB.QueryRowContext(ctx, `
SELECT verdict, expires_at FROM verdicts WHERE seed = ? AND guess = ?
`, seed, guess).Scan(&verdict, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}

		return "", false, fmt.Errorf("read verdict: %w", err)
	}

	if v.db.now().UnixMilli() >= expiresAt {
		return "", false, nil
	}

	return duel.Verdict(verdict), true, nil
}

func (v *Verdicts) Set(ctx context.Context, seed, guess string, verdict duel.Verdict, ttl time.Duration) error {
	if !verdict.Valid() {
		return fmt.Errorf("invalid verdict %q", verdict)
	}

	_, err := v.db.sqlDB.ExecContext(ctx, `
INSERT INTO verdicts (seed, guess, verdict, expires_at) VALUES (?, ?, ?, ?)
ON CONFLICT (seed, guess) DO UPDATE SET verdict = excluded.verdict, expires_at = excluded.expires_at
`, seed, guess, string(verdict), v.db.now().Add(ttl).UnixMilli())
	if err != nil {
		return fmt.Errorf("store verdict: %w", err)
	}

	return nil
}

// Prune deletes expired entries and returns how many were removed.
func (v *Verdicts) Prune(ctx context.Context) (int, error) {
	res, err := v.db.sqlDB.ExecContext(ctx,
		`DELETE FROM verdicts WHERE expires_at <= ?`, v.db.now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("prune verdicts: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune verdicts: %w", err)
	}

	return int(n), nil
}

type memoryVerdict struct {
	verdict   duel.Verdict
	expiresAt time.Time
}

// MemoryVerdicts is a process-local verdict cache.
type MemoryVerdicts struct {
	mu      sync.RWMutex
	entries map[[2]string]memoryVerdict
	now     func() time.Time
}

func NewMemoryVerdicts() *MemoryVerdicts {
	return &MemoryVerdicts{
		entries: make(map[[2]string]memoryVerdict),
		now:     time.Now,
	}
}

func (m *MemoryVerdicts) Get(_ context.Context, seed, guess string) (duel.Verdict, bool, error) {
	m.mu.RLock()
	e, ok := m.entries[[2]string{seed, guess}]
	m.mu.RUnlock()

	if !ok || !m.now().Before(e.expiresAt) {
		return "", false, nil
	}

	return e.verdict, true, nil
}

func (m *MemoryVerdicts) Set(_ context.Context, seed, guess string, verdict duel.Verdict, ttl time.Duration) error {
	if !verdict.Valid() {
		return fmt.Errorf("invalid verdict %q", verdict)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[[2]string{seed, guess}] = memoryVerdict{verdict: verdict, expiresAt: m.now().Add(ttl)}

	return nil
}

func (m *MemoryVerdicts) Prune(_ context.Context) (int, error) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0

	for k, e := range m.entries {
		if !now.Before(e.expiresAt) {
			delete(m.entries, k)
			removed++
		}
	}

	return removed, nil
}
