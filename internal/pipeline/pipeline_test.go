package pipeline

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/zkdrop/dropbot/internal/buzz"
	"github.com/zkdrop/dropbot/internal/dispatch"
	"github.com/zkdrop/dropbot/internal/guard"
	"github.com/zkdrop/dropbot/internal/model"
	"github.com/zkdrop/dropbot/internal/rank"
	"github.com/zkdrop/dropbot/internal/scorer"
	"github.com/zkdrop/dropbot/internal/store"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

// fakeSource serves a fixed batch of raw candidates.
type fakeSource struct {
	batch []model.RawCandidate
	err   error
}

func (f *fakeSource) Fetch(ctx context.Context, limit int) ([]model.RawCandidate, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(f.batch) > limit {
		return f.batch[:limit], nil
	}
	return f.batch, nil
}

// fakeVetter returns canned results per link.
type fakeVetter struct {
	results map[string]scorer.Result
	panicOn string
}

func (f *fakeVetter) Score(ctx context.Context, title, description, link, contract string) scorer.Result {
	if link == f.panicOn {
		panic("poison candidate")
	}
	if res, ok := f.results[link]; ok {
		return res
	}
	score := 0
	return scorer.Result{Score: &score, Verdict: model.VerdictClean}
}

// fakeBroadcaster records every broadcast.
type fakeBroadcaster struct {
	messages []string
	admin    []string
	sent     int
	err      error
}

func (f *fakeBroadcaster) Broadcast(ctx context.Context, text string) (dispatch.Outcome, error) {
	if f.err != nil {
		return dispatch.Outcome{}, f.err
	}
	f.messages = append(f.messages, text)
	return dispatch.Outcome{Sent: f.sent}, nil
}

func (f *fakeBroadcaster) SendAdmin(ctx context.Context, text string) error {
	f.admin = append(f.admin, text)
	return nil
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func newTestPipeline(t *testing.T, src *fakeSource, vetter *fakeVetter, bc *fakeBroadcaster) (*Pipeline, store.Store) {
	t.Helper()
	st := newTestStore(t)
	gate := guard.New(st, 24*time.Hour)
	elig := rank.Eligibility{Floor: 35, ImmediateMinXP: 100, ImmediateMaxXP: 1000}
	return New(src, gate, vetter, nil, elig, st, bc), st
}

func xp(v float64) *float64 { return &v }

func TestRunCycle_DispatchesCleanEligible(t *testing.T) {
	src := &fakeSource{batch: []model.RawCandidate{
		{Title: "zkRollup Quest", Link: "https://zealy.io/c/zk", RewardXP: xp(500)},
	}}
	bc := &fakeBroadcaster{sent: 3}
	p, st := newTestPipeline(t, src, &fakeVetter{}, bc)

	stats, err := p.RunCycle(context.Background(), "live", 25)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Fetched)
	assert.Equal(t, 1, stats.Stored)
	assert.Equal(t, 1, stats.Dispatched)
	require.Len(t, bc.messages, 1)
	assert.Contains(t, bc.messages[0], "zkRollup Quest")

	// The send was recorded both ways.
	recent, err := st.WasNotifiedRecently(context.Background(), "https://zealy.io/c/zk", 24*time.Hour)
	require.NoError(t, err)
	assert.True(t, recent)
}

func TestRunCycle_SecondRunIsIdempotent(t *testing.T) {
	src := &fakeSource{batch: []model.RawCandidate{
		{Title: "zkRollup Quest", Link: "https://zealy.io/c/zk", RewardXP: xp(500)},
	}}
	bc := &fakeBroadcaster{sent: 1}
	p, _ := newTestPipeline(t, src, &fakeVetter{}, bc)

	first, err := p.RunCycle(context.Background(), "live", 25)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Dispatched)

	second, err := p.RunCycle(context.Background(), "live", 25)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Dispatched)
	assert.Equal(t, 1, second.Skipped)
	// Exactly one broadcast total across both runs.
	assert.Len(t, bc.messages, 1)
}

func TestRunCycle_ScamNeverDispatched(t *testing.T) {
	scamScore := 75
	src := &fakeSource{batch: []model.RawCandidate{
		{Title: "Evil Drop", Link: "https://zealy.io/c/evil", RewardXP: xp(500)},
	}}
	vetter := &fakeVetter{results: map[string]scorer.Result{
		"https://zealy.io/c/evil": {Score: &scamScore, Verdict: model.VerdictScam},
	}}
	bc := &fakeBroadcaster{sent: 1}
	p, st := newTestPipeline(t, src, vetter, bc)

	stats, err := p.RunCycle(context.Background(), "live", 25)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Flagged)
	assert.Equal(t, 0, stats.Dispatched)
	assert.Empty(t, bc.messages)

	// Flagged candidates are still persisted for the audit trail.
	exists, err := st.CandidateExists(context.Background(), "https://zealy.io/c/evil")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestRunCycle_BelowFloorNotDispatched(t *testing.T) {
	risky := 90
	src := &fakeSource{batch: []model.RawCandidate{
		// High risk, no buzz signal, no reward: rank lands well under the floor.
		{Title: "Meh Drop", Link: "https://zealy.io/c/meh"},
	}}
	vetter := &fakeVetter{results: map[string]scorer.Result{
		"https://zealy.io/c/meh": {Score: &risky, Verdict: model.VerdictClean},
	}}
	bc := &fakeBroadcaster{sent: 1}
	p, _ := newTestPipeline(t, src, vetter, bc)

	stats, err := p.RunCycle(context.Background(), "live", 25)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Stored)
	assert.Equal(t, 0, stats.Dispatched)
	assert.Empty(t, bc.messages)
}

func TestRunCycle_ImmediateWindowBeatsFloor(t *testing.T) {
	risky := 90
	src := &fakeSource{batch: []model.RawCandidate{
		{Title: "Juicy Drop", Link: "https://zealy.io/c/juicy", RewardXP: xp(500)},
	}}
	vetter := &fakeVetter{results: map[string]scorer.Result{
		"https://zealy.io/c/juicy": {Score: &risky, Verdict: model.VerdictClean},
	}}
	bc := &fakeBroadcaster{sent: 1}
	p, _ := newTestPipeline(t, src, vetter, bc)

	stats, err := p.RunCycle(context.Background(), "live", 25)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Dispatched)
}

func TestRunCycle_PoisonCandidateIsolated(t *testing.T) {
	src := &fakeSource{batch: []model.RawCandidate{
		{Title: "Poison", Link: "https://zealy.io/c/poison", RewardXP: xp(500)},
		{Title: "Fine", Link: "https://zealy.io/c/fine", RewardXP: xp(500)},
	}}
	vetter := &fakeVetter{panicOn: "https://zealy.io/c/poison"}
	bc := &fakeBroadcaster{sent: 1}
	p, _ := newTestPipeline(t, src, vetter, bc)

	stats, err := p.RunCycle(context.Background(), "live", 25)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Errors)
	assert.Equal(t, 1, stats.Dispatched)
	require.Len(t, bc.messages, 1)
	assert.Contains(t, bc.messages[0], "Fine")
}

func TestRunCycle_FetchFailureIsCycleError(t *testing.T) {
	src := &fakeSource{err: eris.New("catalog down")}
	p, _ := newTestPipeline(t, src, &fakeVetter{}, &fakeBroadcaster{})

	_, err := p.RunCycle(context.Background(), "live", 25)
	assert.Error(t, err)
}

func TestRunCycle_EmptyLinkSkipped(t *testing.T) {
	src := &fakeSource{batch: []model.RawCandidate{{Title: "No Link"}}}
	p, _ := newTestPipeline(t, src, &fakeVetter{}, &fakeBroadcaster{sent: 1})

	stats, err := p.RunCycle(context.Background(), "live", 25)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, 0, stats.Stored)
}

func TestRunCycle_NobodyReachableKeepsSendLogClean(t *testing.T) {
	src := &fakeSource{batch: []model.RawCandidate{
		{Title: "zkRollup Quest", Link: "https://zealy.io/c/zk", RewardXP: xp(500)},
	}}
	bc := &fakeBroadcaster{sent: 0}
	p, st := newTestPipeline(t, src, &fakeVetter{}, bc)

	stats, err := p.RunCycle(context.Background(), "live", 25)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Dispatched)

	recent, err := st.WasNotifiedRecently(context.Background(), "https://zealy.io/c/zk", 24*time.Hour)
	require.NoError(t, err)
	assert.False(t, recent)

	// The candidate stays pending rather than silently consumed.
	pending, err := st.UnnotifiedCandidates(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "https://zealy.io/c/zk", pending[0].Link)
}

func TestRunCycle_RetriesPendingOnceRecipientsExist(t *testing.T) {
	src := &fakeSource{batch: []model.RawCandidate{
		{Title: "zkRollup Quest", Link: "https://zealy.io/c/zk", RewardXP: xp(500)},
	}}
	bc := &fakeBroadcaster{sent: 0}
	p, st := newTestPipeline(t, src, &fakeVetter{}, bc)

	// First cycle: nobody is registered yet, so the alert reaches no one.
	first, err := p.RunCycle(context.Background(), "live", 25)
	require.NoError(t, err)
	assert.Equal(t, 0, first.Dispatched)
	require.Len(t, bc.messages, 1)

	// Second cycle: a recipient joined in the meantime. The stored candidate
	// is picked back up and delivered even though the fetch dedups it.
	bc.sent = 1
	second, err := p.RunCycle(context.Background(), "live", 25)
	require.NoError(t, err)
	assert.Equal(t, 1, second.Dispatched)
	assert.Equal(t, 1, second.Skipped)
	require.Len(t, bc.messages, 2)
	assert.Contains(t, bc.messages[1], "zkRollup Quest")

	recent, err := st.WasNotifiedRecently(context.Background(), "https://zealy.io/c/zk", 24*time.Hour)
	require.NoError(t, err)
	assert.True(t, recent)

	// Third cycle: the candidate is marked notified, nothing re-sends.
	third, err := p.RunCycle(context.Background(), "live", 25)
	require.NoError(t, err)
	assert.Equal(t, 0, third.Dispatched)
	assert.Len(t, bc.messages, 2)
}

func TestRunCycle_PendingBelowFloorStaysParked(t *testing.T) {
	risky := 90
	src := &fakeSource{batch: []model.RawCandidate{
		{Title: "Meh Drop", Link: "https://zealy.io/c/meh"},
	}}
	vetter := &fakeVetter{results: map[string]scorer.Result{
		"https://zealy.io/c/meh": {Score: &risky, Verdict: model.VerdictClean},
	}}
	bc := &fakeBroadcaster{sent: 1}
	p, _ := newTestPipeline(t, src, vetter, bc)

	_, err := p.RunCycle(context.Background(), "live", 25)
	require.NoError(t, err)

	// The pending pass must not resurrect candidates that never qualified.
	stats, err := p.RunCycle(context.Background(), "live", 25)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Dispatched)
	assert.Empty(t, bc.messages)
}

func TestDigest(t *testing.T) {
	st := newTestStore(t)
	trust := 10
	require.NoError(t, st.InsertCandidate(context.Background(), &model.Candidate{
		Link: "https://zealy.io/c/zk", Title: "zkRollup Quest",
		TrustScore: &trust, Verdict: model.VerdictClean, RankScore: 80,
	}))

	bc := &fakeBroadcaster{sent: 1}
	gate := guard.New(st, 24*time.Hour)
	p := New(&fakeSource{}, gate, &fakeVetter{}, nil, rank.Eligibility{Floor: 35}, st, bc)

	require.NoError(t, p.Digest(context.Background(), 10))
	require.Len(t, bc.messages, 1)
	assert.Contains(t, bc.messages[0], "zkRollup Quest")
	assert.Contains(t, bc.messages[0], "Daily Digest")
}

func TestReport(t *testing.T) {
	bc := &fakeBroadcaster{}
	p := New(&fakeSource{}, guard.New(newTestStore(t), 0), &fakeVetter{}, nil, rank.Eligibility{}, newTestStore(t), bc)

	p.Report(context.Background(), CycleStats{Kind: "live", Fetched: 5, Dispatched: 2, Elapsed: time.Second})
	require.Len(t, bc.admin, 1)
	assert.Contains(t, bc.admin[0], "Cycle Report")
}

var _ Rater = (*buzz.Rater)(nil)
