package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/zkdrop/dropbot/internal/scheduler"
	"github.com/zkdrop/dropbot/internal/telegram"
)

var runPort int

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the bot daemon (scheduler, command poller, keep-alive server)",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		sched, err := scheduler.New(cfg.Scheduler, env.Pipeline)
		if err != nil {
			return err
		}

		started := time.Now()

		mux := http.NewServeMux()
		mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{
				"status": "ok",
				"source": env.Source.State().String(),
			})
		})
		mux.HandleFunc("GET /uptime", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{
				"uptime": time.Since(started).Round(time.Second).String(),
			})
		})

		port := runPort
		if port == 0 {
			port = cfg.Server.Port
		}
		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		}

		g, gctx := errgroup.WithContext(ctx)

		g.Go(func() error {
			sched.Start()
			<-gctx.Done()
			sched.Stop()
			return nil
		})

		g.Go(func() error {
			poller := telegram.NewPoller(env.Client, env.Store, cfg.Telegram.AutoRegister)
			return poller.Run(gctx)
		})

		g.Go(func() error {
			zap.L().Info("starting keep-alive server", zap.Int("port", port))
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return eris.Wrap(err, "server listen")
			}
			return nil
		})

		g.Go(func() error {
			<-gctx.Done()
			zap.L().Info("shutting down server")
			shutdownServer(srv)
			return nil
		})

		return g.Wait()
	},
}

// shutdownServer drains the keep-alive server on its own clock. The group
// context is already cancelled by the time shutdown starts, so it cannot
// bound the drain.
func shutdownServer(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		zap.L().Warn("server shutdown", zap.Error(err))
	}
}

func init() {
	runCmd.Flags().IntVar(&runPort, "port", 0, "keep-alive server port (default from config)")
	rootCmd.AddCommand(runCmd)
}
