package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"courier/internal/domain"
)

func conversationCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "conversation",
		Short: "Create or join conversations on the relay",
	}
	cmd.AddCommand(conversationCreateCmd(), conversationJoinCmd())
	return cmd
}

func localUser() (domain.UserID, error) {
	user, _, ok, err := wire.Devices.Registration()
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("no registered device. run register first")
	}
	return user, nil
}

func conversationCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create <conversation>",
		Short: "Create a conversation with yourself as first member",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := localUser()
			if err != nil {
				return err
			}
			conv := domain.ConversationID(args[0])
			if err := wire.Relay.CreateConversation(cmd.Context(), conv, user); err != nil {
				return err
			}
			fmt.Printf("Created conversation %s\n", conv)
			return nil
		},
	}
}

func conversationJoinCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "join <conversation>",
		Short: "Join an existing conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := localUser()
			if err != nil {
				return err
			}
			conv := domain.ConversationID(args[0])
			if err := wire.Relay.JoinConversation(cmd.Context(), conv, user); err != nil {
				return err
			}
			fmt.Printf("Joined conversation %s\n", conv)
			return nil
		},
	}
}
