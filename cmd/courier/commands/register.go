package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"courier/internal/domain"
)

const registerOneTimePreKeys = 32

func registerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "register <username> <device>",
		Short: "Publish this device's prekey bundle to the relay",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requirePassphrase(); err != nil {
				return err
			}
			user := domain.UserID(args[0])
			device := domain.DeviceID(args[1])

			// Generate a signed prekey and a batch of one-time prekeys.
			if _, _, err := wire.PreKeys.GenerateAndStorePreKeys(passphrase, registerOneTimePreKeys); err != nil {
				return err
			}

			reg, err := wire.PreKeys.LoadDeviceRegistration(passphrase, user, device)
			if err != nil {
				return err
			}
			if err := wire.Relay.RegisterDevice(cmd.Context(), reg); err != nil {
				return err
			}
			if err := wire.Devices.SaveActiveDevice(user, device); err != nil {
				return err
			}

			fmt.Printf("Registered %s/%s with relay\n", user, device)
			return nil
		},
	}
}
