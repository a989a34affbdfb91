package main

import (
	"github.com/spf13/cobra"
)

var digestTopN int

var digestCmd = &cobra.Command{
	Use:   "digest",
	Short: "Broadcast the daily leaderboard now",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		return env.Pipeline.Digest(ctx, digestTopN)
	},
}

func init() {
	digestCmd.Flags().IntVar(&digestTopN, "top", 10, "number of entries in the leaderboard")
	rootCmd.AddCommand(digestCmd)
}
