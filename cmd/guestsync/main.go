package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/stueble/guestsync/internal/cli"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "guestsync",
		Short: "Offline-tolerant sync client for the event guest list",
		Long: `guestsync keeps a local, durable copy of the event guest list in
sync with the event-management server. Writes made while offline are
buffered and replayed in order once the connection returns.`,
	}

	rootCmd.AddCommand(cli.RunCmd())
	rootCmd.AddCommand(cli.LoginCmd())
	rootCmd.AddCommand(cli.GuestsCmd())
	rootCmd.AddCommand(cli.DevCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
