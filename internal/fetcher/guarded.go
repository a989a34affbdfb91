package fetcher

import (
	"context"

	"github.com/zkdrop/dropbot/internal/model"
	"github.com/zkdrop/dropbot/internal/resilience"
)

// Guarded wraps a Source with a circuit breaker. When the catalog starts
// refusing us (rate bans, IP blocks) the breaker opens and discovery cycles
// skip the fetch instead of hammering a source that is already unhappy.
type Guarded struct {
	src     Source
	breaker *resilience.Breaker
}

// NewGuarded wraps src with a breaker using the given config.
func NewGuarded(src Source, cfg resilience.BreakerConfig) *Guarded {
	return &Guarded{src: src, breaker: resilience.NewBreaker(cfg)}
}

func (g *Guarded) Fetch(ctx context.Context, limit int) ([]model.RawCandidate, error) {
	return resilience.Call(ctx, g.breaker, func(ctx context.Context) ([]model.RawCandidate, error) {
		return g.src.Fetch(ctx, limit)
	})
}

// State exposes the breaker state for health reporting.
func (g *Guarded) State() resilience.BreakerState {
	return g.breaker.State()
}
