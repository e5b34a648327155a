/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Seednode/wordduel/duel"
)

func openTempDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open(filepath.Join(t.TempDir(), "wordduel.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})

	return db
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open("  "); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wordduel.db")

	db, err := Open(path)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	if _, err := db.Counter().Increment(context.Background(), "Paper"); err != nil {
		t.Fatalf("increment: %v", err)
	}
	_ = db.Close()

	db, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()

	count, err := db.Counter().Count(context.Background(), "Paper")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Errorf("count after reopen = %d, want 1", count)
	}
}

func TestCounterIncrementOrInsert(t *testing.T) {
	c := openTempDB(t).Counter()
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		got, err := c.Increment(ctx, "Paper")
		if err != nil {
			t.Fatalf("increment: %v", err)
		}
		if got != want {
			t.Errorf("increment = %d, want %d", got, want)
		}
	}

	got, err := c.Increment(ctx, "  paper ")
	if err != nil {
		t.Fatalf("increment: %v", err)
	}
	if got != 4 {
		t.Errorf("normalized increment = %d, want 4", got)
	}

	if _, err := c.Increment(ctx, " "); err == nil {
		t.Error("expected error for blank guess")
	}
}

func TestCounterConcurrentIncrements(t *testing.T) {
	c := openTempDB(t).Counter()
	ctx := context.Background()

	if _, err := c.Increment(ctx, "Paper"); err != nil {
		t.Fatalf("seed increment: %v", err)
	}

	const n = 40

	var wg sync.WaitGroup
	for range n {
		wg.Go(func() {
			if _, err := c.Increment(ctx, "Paper"); err != nil {
				t.Errorf("increment: %v", err)
			}
		})
	}
	wg.Wait()

	count, err := c.Count(ctx, "Paper")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != n+1 {
		t.Errorf("count = %d, want %d", count, n+1)
	}
}

func TestVerdictsExpire(t *testing.T) {
	db := openTempDB(t)
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	db.now = func() time.Time { return now }

	v := db.Verdicts()
	ctx := context.Background()

	if _, ok, err := v.Get(ctx, "Rock", "Paper"); err != nil || ok {
		t.Fatalf("Get on empty cache = %v, %v", ok, err)
	}

	if err := v.Set(ctx, "Rock", "Paper", duel.Yes, 24*time.Hour); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, ok, err := v.Get(ctx, "Rock", "Paper")
	if err != nil || !ok || got != duel.Yes {
		t.Fatalf("Get = %q, %v, %v; want YES, true, nil", got, ok, err)
	}

	if _, ok, _ := v.Get(ctx, "rock", "paper"); ok {
		t.Error("cache lookup should be case-sensitive")
	}

	now = now.Add(24 * time.Hour)

	if _, ok, _ := v.Get(ctx, "Rock", "Paper"); ok {
		t.Error("entry still served after its TTL")
	}

	removed, err := v.Prune(ctx)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if removed != 1 {
		t.Errorf("pruned %d, want 1", removed)
	}
}

func TestVerdictsRejectUnknownValue(t *testing.T) {
	v := openTempDB(t).Verdicts()

	if err := v.Set(context.Background(), "Rock", "Paper", duel.Verdict("MAYBE"), time.Hour); err == nil {
		t.Fatal("expected error for invalid verdict")
	}
}

func TestMemoryVerdicts(t *testing.T) {
	m := NewMemoryVerdicts()
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	ctx := context.Background()

	if err := m.Set(ctx, "Rock", "Paper", duel.No, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	if got, ok, _ := m.Get(ctx, "Rock", "Paper"); !ok || got != duel.No {
		t.Fatalf("Get = %q, %v; want NO, true", got, ok)
	}

	now = now.Add(time.Minute)
	if _, ok, _ := m.Get(ctx, "Rock", "Paper"); ok {
		t.Error("expired memory entry still served")
	}
	if removed, _ := m.Prune(ctx); removed != 1 {
		t.Errorf("pruned %d, want 1", removed)
	}
}

func TestMemoryCounterConcurrent(t *testing.T) {
	m := NewMemoryCounter()

	const n = 100

	var wg sync.WaitGroup
	for range n {
		wg.Go(func() {
			_, _ = m.Increment(context.Background(), "Paper")
		})
	}
	wg.Wait()

	if got, _ := m.Count(context.Background(), "PAPER"); got != n {
		t.Errorf("count = %d, want %d", got, n)
	}
}

type scriptedOracle struct {
	mu      sync.Mutex
	verdict duel.Verdict
	judged  bool
	before  func()
	calls   int
}

func (o *scriptedOracle) Judge(ctx context.Context, seed, guess, persona string) duel.Verdict {
	v, _ := o.JudgeDetail(ctx, seed, guess, persona)

	return v
}

func (o *scriptedOracle) JudgeDetail(context.Context, string, string, string) (duel.Verdict, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.calls++
	if o.before != nil {
		o.before()
	}

	return o.verdict, o.judged
}

func TestArbiterCountsWinWhenRequestIsCancelled(t *testing.T) {
	db := openTempDB(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	arbiter := &duel.Arbiter{
		Sessions: duel.NewRegistry(time.Minute),
		Oracle:   &scriptedOracle{verdict: duel.Yes, judged: true, before: cancel},
		Cache:    db.Verdicts(),
		Counter:  db.Counter(),
	}

	id, _ := arbiter.Sessions.Create()

	out := arbiter.Evaluate(ctx, duel.Guess{SessionID: id, Seed: "Rock", Guess: "Paper"})
	if out.Status != duel.StatusSuccess || out.GlobalCount != 1 {
		t.Fatalf("outcome = %s with count %d, want success with count 1", out.Status, out.GlobalCount)
	}

	stored, err := db.Counter().Count(context.Background(), "paper")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if stored != 1 {
		t.Errorf("stored count = %d, want 1", stored)
	}
}

func TestArbiterRetriesAfterOracleOutage(t *testing.T) {
	db := openTempDB(t)

	oracle := &scriptedOracle{verdict: duel.No, judged: false}

	arbiter := &duel.Arbiter{
		Sessions: duel.NewRegistry(time.Minute),
		Oracle:   oracle,
		Cache:    db.Verdicts(),
		Counter:  db.Counter(),
	}

	id, _ := arbiter.Sessions.Create()
	guess := duel.Guess{SessionID: id, Seed: "Rock", Guess: "Paper"}

	if out := arbiter.Evaluate(context.Background(), guess); out.Status != duel.StatusFail {
		t.Fatalf("during outage status = %s, want fail", out.Status)
	}

	if _, ok, err := db.Verdicts().Get(context.Background(), "Rock", "Paper"); err != nil || ok {
		t.Fatalf("fallback verdict cached: ok=%v err=%v", ok, err)
	}

	oracle.mu.Lock()
	oracle.verdict, oracle.judged = duel.Yes, true
	oracle.mu.Unlock()

	if out := arbiter.Evaluate(context.Background(), guess); out.Status != duel.StatusSuccess {
		t.Fatalf("after recovery status = %s, want success", out.Status)
	}
	if oracle.calls != 2 {
		t.Errorf("oracle calls = %d, want 2", oracle.calls)
	}
}

func TestCounterNormalize(t *testing.T) {
	db := openTempDB(t)

	if got := db.Counter().Normalize("  PaPer "); got != "paper" {
		t.Errorf("Counter.Normalize = %q, want paper", got)
	}
	if got := NewMemoryCounter().Normalize("Straße"); got != NormalizeGuess("STRASSE") {
		t.Errorf("MemoryCounter.Normalize = %q, want %q", got, NormalizeGuess("STRASSE"))
	}
}
