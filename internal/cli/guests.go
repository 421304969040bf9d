package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/stueble/guestsync/internal/core/domain"
	"github.com/stueble/guestsync/internal/core/service"
	"github.com/stueble/guestsync/pkg/logger"
)

// GuestsCmd returns the guest list command.
func GuestsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "guests",
		Short: "Print the local guest list",
		Long: `Prints the locally stored guest list. The local copy is served even
when the server is unreachable; use --refresh to fetch the
authoritative list first.`,
		RunE: runGuests,
	}
	cmd.Flags().Bool("refresh", false, "Fetch the guest list from the server before printing")
	cmd.Flags().String("id", "", "Print only the guest with the given id")
	return cmd
}

func runGuests(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	if refresh, _ := cmd.Flags().GetBool("refresh"); refresh {
		if err := a.requireSession(); err != nil {
			return err
		}
		svc := service.NewSyncService(a.api, a.buffer, a.store, a.settings, logger.For("sync"))
		if _, err := svc.RefreshGuestList(ctx); err != nil {
			return err
		}
	}

	if id, _ := cmd.Flags().GetString("id"); id != "" {
		guest, err := a.store.GuestByID(id)
		if err != nil {
			return err
		}
		printGuestLine(guest)
		return nil
	}

	guests := a.store.Guests()
	if len(guests) == 0 {
		fmt.Println("guest list is empty")
		return nil
	}
	for _, g := range guests {
		printGuestLine(g)
	}

	depth, err := a.buffer.Depth(ctx)
	if err == nil && depth > 0 {
		color.New(color.FgYellow).Printf("\n%d unsynced change(s) waiting for replay\n", depth)
	}
	return nil
}

func printGuestLine(g domain.Guest) {
	marker := color.New(color.FgHiBlack).Sprint("·")
	if g.Present {
		marker = color.New(color.FgGreen).Sprint("✓")
	}
	if g.Extern {
		fmt.Printf("%s %s, %s  (%s)\n", marker, g.LastName, g.FirstName, color.New(color.FgCyan).Sprint("extern"))
		return
	}
	fmt.Printf("%s %s, %s  (%s %d)\n", marker, g.LastName, g.FirstName, g.Residence, g.RoomNumber)
}
