package commands

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"courier/internal/domain"
)

// send <conversation> <message>: queue a message and dispatch it.
func sendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send <conversation> <message>",
		Short: "Encrypt and send a message to a conversation",
		Args:  cobra.ExactArgs(2),
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

			msg := domain.OutgoingMessage{
				ID:             domain.MessageID(uuid.NewString()),
				ConversationID: domain.ConversationID(args[0]),
				SenderUserID:   user,
				SenderDeviceID: device,
				Content:        []byte(args[1]),
				QueuedUTC:      time.Now().Unix(),
			}
			if err := wire.Outbox.Enqueue(msg); err != nil {
				return err
			}

			d := wire.Dispatcher(user)
			defer d.Close()
			if err := d.Dispatch(cmd.Context(), msg.ID); err != nil {
				return err
			}
			fmt.Printf("Sent %s\n", msg.ID)
			return nil
		},
	}
}
