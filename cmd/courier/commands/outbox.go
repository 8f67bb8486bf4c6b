package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"courier/internal/domain"
)

func outboxCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outbox",
		Short: "Inspect and retry queued messages",
	}
	cmd.AddCommand(outboxListCmd(), outboxRetryCmd())
	return cmd
}

func outboxListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List messages still waiting to be sent",
		RunE: func(cmd *cobra.Command, args []string) error {
			pending, err := wire.Outbox.Pending()
			if err != nil {
				return err
			}
			if len(pending) == 0 {
				fmt.Println("Outbox empty")
				return nil
			}
			for _, m := range pending {
				queued := time.Unix(m.QueuedUTC, 0).UTC().Format("2006-01-02 15:04:05")
				fmt.Printf("%s  %s  %s  %q\n", queued, m.ID, m.ConversationID, m.Content)
			}
			return nil
		},
	}
}

func outboxRetryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "retry <message-id>",
		Short: "Dispatch a queued message again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requirePassphrase(); err != nil {
				return err
			}
			user, err := localUser()
			if err != nil {
				return err
			}

			d := wire.Dispatcher(user)
			defer d.Close()
			if err := d.Dispatch(cmd.Context(), domain.MessageID(args[0])); err != nil {
				return err
			}
			fmt.Println("Sent")
			return nil
		},
	}
}
