// Package pipeline runs the discovery cycle: fetch, dedup, score, rank,
// persist, dispatch.
package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/zkdrop/dropbot/internal/buzz"
	"github.com/zkdrop/dropbot/internal/compose"
	"github.com/zkdrop/dropbot/internal/dispatch"
	"github.com/zkdrop/dropbot/internal/fetcher"
	"github.com/zkdrop/dropbot/internal/model"
	"github.com/zkdrop/dropbot/internal/rank"
	"github.com/zkdrop/dropbot/internal/scorer"
	"github.com/zkdrop/dropbot/internal/store"
)

// Vetter scores one candidate's scam risk.
type Vetter interface {
	Score(ctx context.Context, title, description, link, contract string) scorer.Result
}

// Rater estimates social buzz. Nil ratings and errors both mean "no signal".
type Rater interface {
	Rate(ctx context.Context, tweetURL string) (*buzz.Rating, error)
}

// Gate decides whether a link is fresh enough to process.
type Gate interface {
	ShouldProcess(ctx context.Context, link string) bool
}

// Broadcaster fans a message out to recipients.
type Broadcaster interface {
	Broadcast(ctx context.Context, text string) (dispatch.Outcome, error)
	SendAdmin(ctx context.Context, text string) error
}

// CycleStats counts what happened during one discovery cycle.
type CycleStats struct {
	Kind       string
	Fetched    int
	Skipped    int
	Flagged    int
	Stored     int
	Dispatched int
	Errors     int
	Elapsed    time.Duration
}

// Pipeline wires the stages of one discovery cycle together.
type Pipeline struct {
	src    fetcher.Source
	gate   Gate
	vetter Vetter
	rater  Rater
	elig   rank.Eligibility
	store  store.Store
	engine Broadcaster
}

// New assembles a Pipeline. rater may be nil when no buzz credentials are
// configured; candidates then rank with the neutral buzz midpoint.
func New(src fetcher.Source, gate Gate, vetter Vetter, rater Rater,
	elig rank.Eligibility, st store.Store, engine Broadcaster) *Pipeline {
	return &Pipeline{
		src:    src,
		gate:   gate,
		vetter: vetter,
		rater:  rater,
		elig:   elig,
		store:  st,
		engine: engine,
	}
}

// RunCycle executes one full discovery pass. Candidate failures are isolated:
// a panic or error on one candidate is logged and counted, never propagated.
// The returned error covers only cycle-level failures (the fetch itself).
func (p *Pipeline) RunCycle(ctx context.Context, kind string, limit int) (CycleStats, error) {
	start := time.Now()
	stats := CycleStats{Kind: kind}

	raws, err := p.src.Fetch(ctx, limit)
	if err != nil {
		stats.Elapsed = time.Since(start)
		return stats, eris.Wrapf(err, "pipeline: fetch %s cycle", kind)
	}
	stats.Fetched = len(raws)

	p.redispatchPending(ctx, limit, &stats)

	for _, raw := range raws {
		if ctx.Err() != nil {
			break
		}
		p.processOne(ctx, raw, &stats)
	}

	stats.Elapsed = time.Since(start)
	zap.L().Info("pipeline: cycle complete",
		zap.String("kind", kind),
		zap.Int("fetched", stats.Fetched),
		zap.Int("skipped", stats.Skipped),
		zap.Int("flagged", stats.Flagged),
		zap.Int("dispatched", stats.Dispatched),
		zap.Int("errors", stats.Errors),
		zap.Duration("elapsed", stats.Elapsed))
	return stats, nil
}

// processOne takes one raw candidate through guard, scoring, ranking,
// persistence and dispatch. Recovers panics so a single poison candidate
// can't take down the cycle.
func (p *Pipeline) processOne(ctx context.Context, raw model.RawCandidate, stats *CycleStats) {
	defer func() {
		if r := recover(); r != nil {
			stats.Errors++
			zap.L().Error("pipeline: candidate panicked",
				zap.String("link", raw.Link), zap.Any("panic", r))
		}
	}()

	if raw.Link == "" {
		stats.Skipped++
		return
	}
	if !p.gate.ShouldProcess(ctx, raw.Link) {
		stats.Skipped++
		return
	}

	res := p.vetter.Score(ctx, raw.Title, raw.Description, raw.Link, raw.Contract)

	rating := p.rateBuzz(ctx, raw.SocialHandle)
	var buzzScore *float64
	if rating != nil {
		buzzScore = rating.Score
	}

	c := &model.Candidate{
		Link:         raw.Link,
		Title:        raw.Title,
		Description:  raw.Description,
		SocialHandle: raw.SocialHandle,
		RewardXP:     raw.RewardXP,
		TrustScore:   res.Score,
		Verdict:      res.Verdict,
		RankScore:    rank.Compute(res.Score, buzzScore, raw.RewardXP),
		DiscoveredAt: time.Now().UTC(),
	}

	if err := p.store.InsertCandidate(ctx, c); err != nil {
		stats.Errors++
		zap.L().Error("pipeline: insert candidate", zap.String("link", c.Link), zap.Error(err))
		return
	}
	stats.Stored++

	if res.Verdict != model.VerdictClean {
		stats.Flagged++
		zap.L().Info("pipeline: candidate flagged, not dispatched",
			zap.String("link", c.Link), zap.String("verdict", string(res.Verdict)))
		return
	}
	if !p.elig.Eligible(c.RankScore, c.RewardXP) {
		zap.L().Debug("pipeline: candidate below rank floor",
			zap.String("link", c.Link), zap.Float64("rank", c.RankScore))
		return
	}

	p.dispatchOne(ctx, c, rating, stats)
}

// dispatchOne broadcasts the alert and records the send. The send log entry
// lands before the notified flag so a crash in between re-sends nothing:
// the recency guard sees the log entry either way.
func (p *Pipeline) dispatchOne(ctx context.Context, c *model.Candidate, rating *buzz.Rating, stats *CycleStats) {
	out, err := p.engine.Broadcast(ctx, compose.Alert(c, rating))
	if err != nil {
		stats.Errors++
		zap.L().Error("pipeline: broadcast", zap.String("link", c.Link), zap.Error(err))
		return
	}
	// Nothing delivered means the send log stays clean and the candidate
	// stays unnotified, so the pending pass retries it next cycle.
	if out.Sent == 0 {
		if out.Failed > 0 {
			stats.Errors++
			zap.L().Warn("pipeline: broadcast reached nobody", zap.String("link", c.Link))
		}
		return
	}

	if err := p.store.LogNotified(ctx, c.Link); err != nil {
		stats.Errors++
		zap.L().Error("pipeline: log notified", zap.String("link", c.Link), zap.Error(err))
	}
	if err := p.store.MarkCandidateNotified(ctx, c.Link); err != nil {
		stats.Errors++
		zap.L().Error("pipeline: mark notified", zap.String("link", c.Link), zap.Error(err))
	}
	stats.Dispatched++
}

// redispatchPending retries clean candidates that were stored but never
// delivered, typically because no recipient was registered at the time.
// Already-notified candidates never show up here, so nothing double-sends.
func (p *Pipeline) redispatchPending(ctx context.Context, limit int, stats *CycleStats) {
	pending, err := p.store.UnnotifiedCandidates(ctx, limit)
	if err != nil {
		stats.Errors++
		zap.L().Error("pipeline: load pending candidates", zap.Error(err))
		return
	}
	for i := range pending {
		if ctx.Err() != nil {
			return
		}
		c := &pending[i]
		if !p.elig.Eligible(c.RankScore, c.RewardXP) {
			continue
		}
		p.dispatchOne(ctx, c, nil, stats)
	}
}

func (p *Pipeline) rateBuzz(ctx context.Context, handle string) *buzz.Rating {
	if p.rater == nil || handle == "" {
		return nil
	}
	rating, err := p.rater.Rate(ctx, handle)
	if err != nil {
		zap.L().Debug("pipeline: buzz unavailable", zap.String("handle", handle), zap.Error(err))
		return nil
	}
	return rating
}

// Digest broadcasts the daily leaderboard of the last 24 hours.
func (p *Pipeline) Digest(ctx context.Context, topN int) error {
	if topN <= 0 {
		topN = 10
	}
	since := time.Now().UTC().Add(-24 * time.Hour)
	top, err := p.store.TopCandidates(ctx, since, topN)
	if err != nil {
		return eris.Wrap(err, "pipeline: digest query")
	}

	if _, err := p.engine.Broadcast(ctx, compose.Digest(top)); err != nil {
		return eris.Wrap(err, "pipeline: digest broadcast")
	}
	return nil
}

// ReportFailure notifies the admin chat that a whole cycle failed, best
// effort.
func (p *Pipeline) ReportFailure(ctx context.Context, kind string, cause error) {
	msg := "⚠️ *Scrape failed* (" + kind + ")\n\n" + cause.Error()
	if err := p.engine.SendAdmin(ctx, msg); err != nil {
		zap.L().Warn("pipeline: failure report failed", zap.Error(err))
	}
}

// Report sends the cycle summary to the admin chat, best effort.
func (p *Pipeline) Report(ctx context.Context, stats CycleStats) {
	summary := compose.CycleSummary{
		Kind:       stats.Kind,
		Fetched:    stats.Fetched,
		Skipped:    stats.Skipped,
		Flagged:    stats.Flagged,
		Dispatched: stats.Dispatched,
		Errors:     stats.Errors,
		Elapsed:    stats.Elapsed,
	}
	if err := p.engine.SendAdmin(ctx, compose.AdminReport(summary)); err != nil {
		zap.L().Warn("pipeline: admin report failed", zap.Error(err))
	}
}
