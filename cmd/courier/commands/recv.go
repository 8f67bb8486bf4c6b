package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// recv: fetch and decrypt queued messages for this device.
func recvCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "recv",
		Short: "Fetch and decrypt your queued messages",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requirePassphrase(); err != nil {
				return err
			}
			user, device, ok, err := wire.Devices.Registration()
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("no registered device. run register first")
			}

			msgs, err := wire.Messages.Receive(cmd.Context(), user, device, limit)
			if err != nil {
				return err
			}
			for _, m := range msgs {
				fmt.Printf("[%s] %s/%s: %s\n", m.ConversationID, m.From, m.FromDevice, string(m.Plaintext))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "max messages to fetch (0 = all)")
	return cmd
}
