// Package guard decides whether a discovered link is new enough to act on.
package guard

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Checker is the slice of the store the guard needs.
type Checker interface {
	CandidateExists(ctx context.Context, link string) (bool, error)
	WasNotifiedRecently(ctx context.Context, link string, window time.Duration) (bool, error)
}

// Guard rejects links that were already stored (ever) or already notified
// within the cool-down window. On any store error it fails closed: when
// storage state is uncertain, skipping a candidate is cheaper than spamming
// every recipient twice.
type Guard struct {
	store    Checker
	cooldown time.Duration
}

// New creates a Guard with the given cool-down window.
func New(store Checker, cooldown time.Duration) *Guard {
	if cooldown <= 0 {
		cooldown = 24 * time.Hour
	}
	return &Guard{store: store, cooldown: cooldown}
}

// ShouldProcess returns true only when the link is historically new and
// outside the cool-down window. Pure query, no side effects.
func (g *Guard) ShouldProcess(ctx context.Context, link string) bool {
	exists, err := g.store.CandidateExists(ctx, link)
	if err != nil {
		zap.L().Error("guard: duplicate check failed, failing closed",
			zap.String("link", link), zap.Error(err))
		return false
	}
	if exists {
		return false
	}

	recent, err := g.store.WasNotifiedRecently(ctx, link, g.cooldown)
	if err != nil {
		zap.L().Error("guard: recency check failed, failing closed",
			zap.String("link", link), zap.Error(err))
		return false
	}
	return !recent
}
