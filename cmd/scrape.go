package main

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zkdrop/dropbot/internal/dispatch"
	"github.com/zkdrop/dropbot/internal/pipeline"
)

var (
	scrapeLimit  int
	scrapeDryRun bool
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Run a single discovery cycle and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		pipe := env.Pipeline
		if scrapeDryRun {
			pipe = pipelineWithoutDispatch(env)
		}

		stats, err := pipe.RunCycle(ctx, "manual", scrapeLimit)
		if err != nil {
			return err
		}

		zap.L().Info("scrape complete",
			zap.Int("fetched", stats.Fetched),
			zap.Int("stored", stats.Stored),
			zap.Int("dispatched", stats.Dispatched))
		return nil
	},
}

// pipelineWithoutDispatch rebuilds the pipeline with a sink broadcaster so a
// dry run stores and scores but sends nothing.
func pipelineWithoutDispatch(e *env) *pipeline.Pipeline {
	return pipeline.New(e.Source, e.Gate, e.Vetter, e.Rater, e.Elig, e.Store, sinkBroadcaster{})
}

// sinkBroadcaster swallows every send.
type sinkBroadcaster struct{}

func (sinkBroadcaster) Broadcast(ctx context.Context, text string) (dispatch.Outcome, error) {
	return dispatch.Outcome{}, nil
}

func (sinkBroadcaster) SendAdmin(ctx context.Context, text string) error { return nil }

func init() {
	scrapeCmd.Flags().IntVar(&scrapeLimit, "limit", 25, "max candidates to fetch")
	scrapeCmd.Flags().BoolVar(&scrapeDryRun, "dry-run", false, "score and store without broadcasting")
	rootCmd.AddCommand(scrapeCmd)
}
