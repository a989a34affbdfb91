package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var sendsLimit int

var sendsCmd = &cobra.Command{
	Use:   "sends <link>",
	Short: "Show the delivery audit trail for a candidate link",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		records, err := st.SendHistory(ctx, args[0], sendsLimit)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Println("never sent")
			return nil
		}
		for _, r := range records {
			fmt.Printf("%s  %s\n", r.SentAt.Format("2006-01-02 15:04:05"), r.ID)
		}
		return nil
	},
}

func init() {
	sendsCmd.Flags().IntVar(&sendsLimit, "limit", 20, "maximum entries to show")
	rootCmd.AddCommand(sendsCmd)
}
