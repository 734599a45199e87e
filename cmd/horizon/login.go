package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func newLoginCommand() *cobra.Command {
	var tokenFlag string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with an API token",
		Long:  "Store an API token for the backend. Generate one under Settings > API tokens in the web app.",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			token := strings.TrimSpace(tokenFlag)
			if token == "" {
				token, err = promptToken()
				if err != nil {
					return err
				}
			}
			if token == "" {
				return fmt.Errorf("no token provided")
			}

			if err := a.creds.Store(token); err != nil {
				return err
			}

			// Verify the token before declaring success.
			org, err := a.client.CurrentOrg(cmd.Context())
			if err != nil {
				_ = a.creds.Clear()
				return fmt.Errorf("token rejected: %w", err)
			}

			fmt.Printf("%s Signed in to %s\n", green("✓"), bold(org.Name))
			return nil
		},
	}
	cmd.Flags().StringVar(&tokenFlag, "token", "", "API token (prompted when omitted)")
	return cmd
}

func promptToken() (string, error) {
	fmt.Print("API token: ")
	if term.IsTerminal(int(os.Stdin.Fd())) {
		data, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(data)), nil
	}
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func newLogoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored API token",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.creds.Clear(); err != nil {
				return err
			}
			fmt.Printf("%s Signed out\n", green("✓"))
			return nil
		},
	}
}

func newWhoamiCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in organization",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()
			if err := a.requireLogin(); err != nil {
				return err
			}

			org, err := a.client.CurrentOrg(context.Background())
			if err != nil {
				return err
			}
			fmt.Printf("%s (%s plan, %d members)\n", bold(org.Name), org.Plan, org.MemberCount)
			return nil
		},
	}
}
