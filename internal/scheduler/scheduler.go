// Package scheduler drives the recurring discovery cadences.
package scheduler

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/zkdrop/dropbot/internal/config"
	"github.com/zkdrop/dropbot/internal/pipeline"
)

// Cycler is the pipeline surface the scheduler drives.
type Cycler interface {
	RunCycle(ctx context.Context, kind string, limit int) (pipeline.CycleStats, error)
	Report(ctx context.Context, stats pipeline.CycleStats)
	ReportFailure(ctx context.Context, kind string, cause error)
	Digest(ctx context.Context, topN int) error
}

// Runner owns the cron instance and the single-flight discipline: the live
// and interval sweeps share one mutex, so at most one discovery pass runs
// at a time. A tick that finds a pass in flight is skipped, not queued.
type Runner struct {
	cfg   config.SchedulerConfig
	pipe  Cycler
	cron  *cron.Cron
	hbcli *http.Client

	runMu sync.Mutex

	digestMu   sync.Mutex
	lastDigest string // UTC date of the last digest, guards double fire
}

// New creates a Runner. Jobs are registered but not started.
func New(cfg config.SchedulerConfig, pipe Cycler) (*Runner, error) {
	r := &Runner{
		cfg:   cfg,
		pipe:  pipe,
		cron:  cron.New(cron.WithSeconds(), cron.WithLocation(time.UTC)),
		hbcli: &http.Client{Timeout: 15 * time.Second},
	}

	jobs := []struct {
		spec string
		fn   func()
	}{
		{fmt.Sprintf("@every %ds", max(cfg.LiveIntervalSecs, 1)), r.liveSweep},
		{fmt.Sprintf("@every %dm", max(cfg.IntervalMinutes, 1)), r.intervalSweep},
		{fmt.Sprintf("0 0 %d * * *", cfg.DailyHourUTC), r.dailySweep},
	}
	if cfg.UptimeURL != "" {
		jobs = append(jobs, struct {
			spec string
			fn   func()
		}{fmt.Sprintf("@every %dm", max(cfg.HeartbeatMinutes, 1)), r.heartbeat})
	}

	for _, j := range jobs {
		if _, err := r.cron.AddFunc(j.spec, j.fn); err != nil {
			return nil, eris.Wrapf(err, "scheduler: add job %q", j.spec)
		}
	}
	return r, nil
}

// Start begins ticking. Returns immediately.
func (r *Runner) Start() {
	r.cron.Start()
	zap.L().Info("scheduler: started",
		zap.Int("live_secs", r.cfg.LiveIntervalSecs),
		zap.Int("interval_mins", r.cfg.IntervalMinutes),
		zap.Int("daily_hour_utc", r.cfg.DailyHourUTC))
}

// Stop halts scheduling and waits for in-flight jobs to finish.
func (r *Runner) Stop() {
	<-r.cron.Stop().Done()
	zap.L().Info("scheduler: stopped")
}

// liveSweep is the fast cadence: a small fetch to catch drops right as they
// appear.
func (r *Runner) liveSweep() {
	r.sweep("live", r.cfg.LiveLimit)
}

// intervalSweep is the deep cadence: a larger fetch that picks up anything
// the live sweep's small window missed.
func (r *Runner) intervalSweep() {
	r.sweep("interval", r.cfg.IntervalLimit)
}

func (r *Runner) sweep(kind string, limit int) {
	if !r.runMu.TryLock() {
		zap.L().Debug("scheduler: sweep already running, tick skipped", zap.String("kind", kind))
		return
	}
	defer r.runMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	stats, err := r.pipe.RunCycle(ctx, kind, limit)
	if err != nil {
		zap.L().Error("scheduler: sweep failed", zap.String("kind", kind), zap.Error(err))
		r.pipe.ReportFailure(ctx, kind, err)
		return
	}
	if stats.Dispatched > 0 || stats.Errors > 0 {
		r.pipe.Report(ctx, stats)
	}
}

// dailySweep runs a wide discovery pass and then broadcasts the leaderboard
// digest, at most once per UTC day.
func (r *Runner) dailySweep() {
	today := time.Now().UTC().Format("2006-01-02")
	r.digestMu.Lock()
	if r.lastDigest == today {
		r.digestMu.Unlock()
		return
	}
	r.lastDigest = today
	r.digestMu.Unlock()

	r.sweep("daily", r.cfg.DailyLimit)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	if err := r.pipe.Digest(ctx, 10); err != nil {
		zap.L().Error("scheduler: daily digest failed", zap.Error(err))
	}
}

// heartbeat pings the uptime URL so the hosting platform keeps the process
// alive.
func (r *Runner) heartbeat() {
	resp, err := r.hbcli.Get(r.cfg.UptimeURL)
	if err != nil {
		zap.L().Warn("scheduler: heartbeat failed", zap.Error(err))
		return
	}
	resp.Body.Close()
	zap.L().Debug("scheduler: heartbeat", zap.Int("status", resp.StatusCode))
}
