/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"time"

	"github.com/Seednode/wordduel/duel"
)

const (
	cleanupInterval = time.Minute
	limiterTTL      = time.Hour
)

// startCleanup periodically drops expired detached sessions, expired
// verdicts and idle rate limiters until ctx is done.
func startCleanup(ctx context.Context, cfg *Config, sessions *duel.Registry, verdicts verdictStore, limits *rateLimits) {
	go func() {
		ticker := time.NewTicker(cleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				runCleanup(ctx, cfg, now, sessions, verdicts, limits)
			}
		}
	}()

	logf(cfg, "START: Cleanup every %s", cleanupInterval)
}

func runCleanup(ctx context.Context, cfg *Config, now time.Time, sessions *duel.Registry, verdicts verdictStore, limits *rateLimits) {
	if n := sessions.Sweep(now); n > 0 {
		logf(cfg, "CLEANUP: Removed %d expired sessions", n)
	}

	n, err := verdicts.Prune(ctx)
	switch {
	case err != nil:
		logf(cfg, "CLEANUP: Pruning verdicts failed: %v", err)
	case n > 0:
		logf(cfg, "CLEANUP: Pruned %d expired verdicts", n)
	}

	if n := limits.sweep(now.Add(-limiterTTL)); n > 0 {
		logf(cfg, "CLEANUP: Removed %d idle rate limiters", n)
	}
}
