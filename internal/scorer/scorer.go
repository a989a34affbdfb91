// Package scorer computes a trust risk score for discovered candidates.
//
// Polarity: higher = more risk-flagged. Each signal adds a bounded penalty
// and the total is clamped to [0, 100]. A keyword or scam-domain hit is a
// hard veto: the verdict is scam no matter what the numeric signals say.
package scorer

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/zkdrop/dropbot/internal/config"
	"github.com/zkdrop/dropbot/internal/model"
)

const (
	minScore = 0
	maxScore = 100
)

// Cache is the slice of the store used to avoid re-querying signal sources
// for a (link, contract) pair already scored.
type Cache interface {
	GetTrustCache(ctx context.Context, link, contract string) (*model.TrustResult, error)
	PutTrustCache(ctx context.Context, link, contract string, res model.TrustResult) error
}

// Result is the outcome of scoring one candidate.
type Result struct {
	// Score is the clamped risk total; nil only when the hard veto fired
	// before any signal ran.
	Score   *int
	Verdict model.Verdict
	// Degraded is set when at least one signal fell back to its
	// conservative default instead of a real answer.
	Degraded bool
	// Cached is set when the result came from the trust cache.
	Cached bool
}

// Scorer runs the independent trust checks and derives a verdict.
type Scorer struct {
	client *http.Client
	cfg    config.ScorerConfig
	cache  Cache
}

// New creates a Scorer. cache may be nil (scores are then never reused).
func New(cfg config.ScorerConfig, cache Cache) *Scorer {
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Scorer{
		client: &http.Client{Timeout: timeout},
		cfg:    cfg,
		cache:  cache,
	}
}

// Score evaluates one candidate. It never returns an error: a failed signal
// contributes its conservative default and sets Degraded, so a flaky
// provider can't stall the pipeline.
func (s *Scorer) Score(ctx context.Context, title, description, link, contract string) Result {
	// Hard veto first: no quota spent on an obvious scam.
	if hasScamPattern(title + " " + description + " " + link) {
		res := Result{Verdict: model.VerdictScam}
		s.cachePut(ctx, link, contract, res)
		return res
	}

	if cached := s.cacheGet(ctx, link, contract); cached != nil {
		return Result{Score: cached.Score, Verdict: cached.Verdict, Cached: true}
	}

	total := 0
	degraded := false
	for _, out := range []checkOutcome{
		s.checkThreat(ctx, link),
		s.checkDomainAge(ctx, link),
	} {
		total += out.penalty
		degraded = degraded || out.degraded
	}
	if contract != "" {
		out := s.checkContract(ctx, contract)
		total += out.penalty
		degraded = degraded || out.degraded
	}

	if total > maxScore {
		total = maxScore
	}
	if total < minScore {
		total = minScore
	}

	res := Result{Score: &total, Verdict: s.verdictFor(total), Degraded: degraded}
	s.cachePut(ctx, link, contract, res)
	return res
}

func (s *Scorer) verdictFor(score int) model.Verdict {
	switch {
	case score >= s.cfg.ScamThreshold:
		return model.VerdictScam
	case score >= s.cfg.SuspiciousThreshold:
		return model.VerdictSuspicious
	default:
		return model.VerdictClean
	}
}

func (s *Scorer) cacheGet(ctx context.Context, link, contract string) *model.TrustResult {
	if s.cache == nil {
		return nil
	}
	cached, err := s.cache.GetTrustCache(ctx, link, contract)
	if err != nil {
		zap.L().Warn("scorer: trust cache read failed", zap.String("link", link), zap.Error(err))
		return nil
	}
	return cached
}

func (s *Scorer) cachePut(ctx context.Context, link, contract string, res Result) {
	if s.cache == nil {
		return
	}
	err := s.cache.PutTrustCache(ctx, link, contract, model.TrustResult{
		Score:   res.Score,
		Verdict: res.Verdict,
	})
	if err != nil {
		zap.L().Warn("scorer: trust cache write failed", zap.String("link", link), zap.Error(err))
	}
}
