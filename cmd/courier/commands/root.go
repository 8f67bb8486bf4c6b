package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"courier/internal/app"
)

var (
	home       string
	passphrase string
	relayURL   string
	retries    int

	wire *app.Wire
)

func Execute() error {
	root := &cobra.Command{
		Use:   "courier",
		Short: "Multi-device end-to-end encrypted messaging CLI",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if home == "" {
				dir, err := os.UserHomeDir()
				if err != nil {
					return err
				}
				home = filepath.Join(dir, ".courier")
			}
			if err := os.MkdirAll(home, 0o700); err != nil {
				return err
			}

			var err error
			wire, err = app.NewWire(app.Config{
				Home:                   home,
				RelayURL:               relayURL,
				Passphrase:             passphrase,
				MaxDeviceChangeRetries: retries,
			})
			return err
		},
	}

	root.PersistentFlags().StringVar(&home, "home", "", "config dir (default ~/.courier)")
	root.PersistentFlags().StringVarP(&passphrase, "passphrase", "p", "", "passphrase to protect keys")
	root.PersistentFlags().StringVar(&relayURL, "relay", "http://127.0.0.1:8080", "relay base URL")
	root.PersistentFlags().IntVar(&retries, "max-device-change-retries", 0, "retries after a stale device set (0 = default)")

	root.AddCommand(
		initCmd(),
		fingerprintCmd(),
		registerCmd(),
		conversationCmd(),
		sendCmd(),
		recvCmd(),
		outboxCmd(),
	)
	return root.Execute()
}

func requirePassphrase() error {
	if passphrase == "" {
		return fmt.Errorf("passphrase required (-p)")
	}
	return nil
}
