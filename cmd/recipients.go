package main

import (
	"fmt"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/zkdrop/dropbot/internal/model"
)

var recipientsCmd = &cobra.Command{
	Use:   "recipients",
	Short: "Manage the broadcast recipient directory",
}

var recipientsCountCmd = &cobra.Command{
	Use:   "count",
	Short: "Show the number of subscribed recipients",
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

		n, err := st.RecipientCount(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("%d recipients\n", n)
		return nil
	},
}

var recipientsAddCmd = &cobra.Command{
	Use:   "add <chat-id> [username]",
	Short: "Register a chat manually",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		chatID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return eris.Wrapf(err, "parse chat id %q", args[0])
		}
		username := ""
		if len(args) > 1 {
			username = args[1]
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		return st.AddRecipient(ctx, chatID, username)
	},
}

var recipientsBanCmd = &cobra.Command{
	Use:   "ban <chat-id>",
	Short: "Exclude a chat from all future broadcasts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		chatID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return eris.Wrapf(err, "parse chat id %q", args[0])
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		return st.BanRecipient(ctx, chatID)
	},
}

var ticketsCmd = &cobra.Command{
	Use:   "tickets",
	Short: "List open support tickets",
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

		tickets, err := st.ListOpenTickets(ctx)
		if err != nil {
			return err
		}
		if len(tickets) == 0 {
			fmt.Println("no open tickets")
			return nil
		}
		for _, t := range tickets {
			printTicket(t)
		}
		return nil
	},
}

func printTicket(t model.SupportTicket) {
	fmt.Printf("%s  chat=%d  [%s]  %s\n  %s\n",
		t.CreatedAt.Format("2006-01-02 15:04"), t.ChatID, t.Category, t.ID, t.Body)
}

func init() {
	recipientsCmd.AddCommand(recipientsCountCmd, recipientsAddCmd, recipientsBanCmd)
	rootCmd.AddCommand(recipientsCmd)
	rootCmd.AddCommand(ticketsCmd)
}
