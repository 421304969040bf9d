package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// LoginCmd returns the login command.
func LoginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login [username]",
		Short: "Authenticate against the server and store the session",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runLogin,
	}
	cmd.Flags().String("password", "", "Password (prompted when omitted)")
	return cmd
}

func runLogin(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	reader := bufio.NewReader(os.Stdin)

	var username string
	if len(args) == 1 {
		username = args[0]
	} else {
		fmt.Print("username: ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return err
		}
		username = strings.TrimSpace(line)
	}

	password, _ := cmd.Flags().GetString("password")
	if password == "" {
		fmt.Print("password: ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return err
		}
		password = strings.TrimRight(line, "\r\n")
	}

	if err := a.api.Login(ctx, username, password); err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	if err := a.saveSession(ctx); err != nil {
		return fmt.Errorf("session not stored: %w", err)
	}

	color.New(color.FgGreen).Printf("logged in as %s\n", username)
	return nil
}
