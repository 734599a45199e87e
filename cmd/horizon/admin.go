package main

import (
	"context"
	"fmt"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
)

func newAdminCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Platform administration (requires an admin token)",
	}
	cmd.AddCommand(newAdminOverviewCommand())
	cmd.AddCommand(newAdminOrgsCommand())
	cmd.AddCommand(newAdminUsersCommand())
	cmd.AddCommand(newAdminInvitationsCommand())
	cmd.AddCommand(newAdminDeactivateCommand())
	return cmd
}

func newAdminOverviewCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "overview",
		Short: "Summarize organizations, users and invitations",
		RunE: withClient(func(ctx context.Context, a *app, args []string) error {
			overview, err := a.client.Overview(ctx)
			if err != nil {
				return err
			}
			active := 0
			for _, u := range overview.Users {
				if u.Active {
					active++
				}
			}
			fmt.Printf("%s\n", bold("Platform overview"))
			fmt.Printf("  organizations: %d\n", len(overview.Organizations))
			fmt.Printf("  users:         %d (%d active)\n", len(overview.Users), active)
			fmt.Printf("  invitations:   %d pending\n", len(overview.Invitations))
			return nil
		}),
	}
}

func newAdminOrgsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "orgs",
		Short: "List all organizations",
		RunE: withClient(func(ctx context.Context, a *app, args []string) error {
			orgs, err := a.client.AdminOrgs(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("%s\n", bold(fmt.Sprintf("%-5s %-28s %-10s %s", "ID", "NAME", "PLAN", "MEMBERS")))
			for _, org := range orgs {
				fmt.Printf("%-5d %-28s %-10s %d\n", org.ID, org.Name, org.Plan, org.MemberCount)
			}
			return nil
		}),
	}
}

func newAdminUsersCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "users",
		Short: "List all users",
		RunE: withClient(func(ctx context.Context, a *app, args []string) error {
			users, err := a.client.AdminUsers(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("%s\n", bold(fmt.Sprintf("%-5s %-28s %-8s %s", "ID", "EMAIL", "ROLE", "STATE")))
			for _, u := range users {
				state := green("active")
				if !u.Active {
					state = gray("inactive")
				}
				fmt.Printf("%-5d %-28s %-8s %s\n", u.ID, u.Email, u.Role, state)
			}
			return nil
		}),
	}
}

func newAdminInvitationsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "invitations",
		Short: "List pending invitations across organizations",
		RunE: withClient(func(ctx context.Context, a *app, args []string) error {
			invitations, err := a.client.AdminInvitations(ctx)
			if err != nil {
				return err
			}
			if len(invitations) == 0 {
				fmt.Println(gray("No pending invitations."))
				return nil
			}
			for _, inv := range invitations {
				fmt.Printf("#%-4d %-28s %-8s expires %s\n", inv.ID, inv.Email, inv.Role, inv.ExpiresAt.Format("2006-01-02"))
			}
			return nil
		}),
	}
}

func newAdminDeactivateCommand() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "deactivate <user-id>",
		Short: "Deactivate a user account",
		Args:  cobra.ExactArgs(1),
		RunE: withClient(func(ctx context.Context, a *app, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if !force {
				prompt := promptui.Prompt{
					Label:     fmt.Sprintf("Deactivate user #%d", id),
					IsConfirm: true,
				}
				if _, err := prompt.Run(); err != nil {
					fmt.Println(gray("Aborted."))
					return nil
				}
			}
			if err := a.client.AdminDeactivateUser(ctx, id); err != nil {
				return err
			}
			fmt.Printf("%s User #%d deactivated\n", green("✓"), id)
			return nil
		}),
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "skip confirmation")
	return cmd
}
