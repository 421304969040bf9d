package cli

import (
	"github.com/spf13/cobra"

	"github.com/stueble/guestsync/internal/config"
	"github.com/stueble/guestsync/internal/devserver"
	"github.com/stueble/guestsync/pkg/logger"
)

// DevCmd returns the local dev server command.
func DevCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dev",
		Short: "Run a local stub server to develop and demo against",
		Long: `Runs an in-memory stand-in for the production backend: the full REST
surface plus the push channel WebSocket. Seeded with one account
(admin / admin unless overridden).`,
		RunE: runDev,
	}
	cmd.Flags().String("addr", "127.0.0.1:8080", "Listen address")
	cmd.Flags().String("seed-user", "admin", "Seed account username")
	cmd.Flags().String("seed-password", "admin", "Seed account password")
	return cmd
}

func runDev(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.Init(logger.Options{Level: cfg.LogLevel, Pretty: cfg.LogPretty})

	addr, _ := cmd.Flags().GetString("addr")
	seedUser, _ := cmd.Flags().GetString("seed-user")
	seedPassword, _ := cmd.Flags().GetString("seed-password")

	srv, err := devserver.New(devserver.Options{
		SeedUser:     seedUser,
		SeedPassword: seedPassword,
		Metrics:      true,
	}, log.With().Str("component", "devserver").Logger())
	if err != nil {
		return err
	}
	return srv.Start(addr)
}
