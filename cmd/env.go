package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/zkdrop/dropbot/internal/buzz"
	"github.com/zkdrop/dropbot/internal/dispatch"
	"github.com/zkdrop/dropbot/internal/fetcher"
	"github.com/zkdrop/dropbot/internal/guard"
	"github.com/zkdrop/dropbot/internal/pipeline"
	"github.com/zkdrop/dropbot/internal/rank"
	"github.com/zkdrop/dropbot/internal/resilience"
	"github.com/zkdrop/dropbot/internal/scorer"
	"github.com/zkdrop/dropbot/internal/store"
	"github.com/zkdrop/dropbot/internal/telegram"
)

// env bundles the wired application components for the commands.
type env struct {
	Store    store.Store
	Client   *telegram.Client
	Engine   *dispatch.Engine
	Source   *fetcher.Guarded
	Gate     *guard.Guard
	Vetter   *scorer.Scorer
	Rater    pipeline.Rater
	Elig     rank.Eligibility
	Pipeline *pipeline.Pipeline
}

func (e *env) Close() {
	if err := e.Store.Close(); err != nil {
		zap.L().Warn("close store", zap.Error(err))
	}
}

// initStore opens the configured database backend. Connection failures are
// fatal at startup; there is no degraded mode without persistence.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		st, err := store.NewPostgres(ctx, cfg.Store.DatabaseURL,
			cfg.Store.Pool.MaxConns, cfg.Store.Pool.MinConns)
		if err != nil {
			return nil, eris.Wrap(err, "init postgres store")
		}
		return st, nil
	case "sqlite", "":
		st, err := store.NewSQLite(cfg.Store.DatabaseURL)
		if err != nil {
			return nil, eris.Wrap(err, "init sqlite store")
		}
		return st, nil
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// initPipeline wires the full discovery pipeline.
func initPipeline(ctx context.Context) (*env, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	client, err := telegram.NewClient(cfg.Telegram.Token)
	if err != nil {
		st.Close()
		return nil, err
	}

	engine := dispatch.New(client, st, cfg.Dispatch, cfg.Telegram.AdminChatID)
	src := fetcher.NewGuarded(fetcher.NewCatalog(cfg.Source), resilience.BreakerConfig{})
	gate := guard.New(st, time.Duration(cfg.Pipeline.CooldownHours)*time.Hour)
	vetter := scorer.New(cfg.Scorer, st)

	var rater pipeline.Rater
	if cfg.Buzz.BearerToken != "" {
		rater = buzz.NewRater(cfg.Buzz)
	}

	elig := rank.Eligibility{
		Floor:          cfg.Rank.Floor,
		ImmediateMinXP: cfg.Rank.ImmediateMinXP,
		ImmediateMaxXP: cfg.Rank.ImmediateMaxXP,
	}

	return &env{
		Store:    st,
		Client:   client,
		Engine:   engine,
		Source:   src,
		Gate:     gate,
		Vetter:   vetter,
		Rater:    rater,
		Elig:     elig,
		Pipeline: pipeline.New(src, gate, vetter, rater, elig, st, engine),
	}, nil
}
