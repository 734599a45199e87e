package main

import (
	"context"
	"fmt"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
)

func newOrgCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "org",
		Short: "Manage your organization",
	}
	cmd.AddCommand(newOrgShowCommand())
	cmd.AddCommand(newOrgMembersCommand())
	cmd.AddCommand(newOrgInvitationsCommand())
	cmd.AddCommand(newOrgInviteCommand())
	cmd.AddCommand(newOrgRevokeCommand())
	cmd.AddCommand(newOrgResendCommand())
	return cmd
}

func newOrgShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show organization details",
		RunE: withClient(func(ctx context.Context, a *app, args []string) error {
			org, err := a.client.CurrentOrg(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("%s\n", bold(org.Name))
			fmt.Printf("  slug:    %s\n", org.Slug)
			fmt.Printf("  plan:    %s\n", org.Plan)
			fmt.Printf("  members: %d\n", org.MemberCount)
			fmt.Printf("  since:   %s\n", org.CreatedAt.Format("2006-01-02"))
			return nil
		}),
	}
}

func newOrgMembersCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "members",
		Short: "List organization members",
		RunE: withClient(func(ctx context.Context, a *app, args []string) error {
			users, err := a.client.Members(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("%s\n", bold(fmt.Sprintf("%-5s %-28s %-20s %-8s %s", "ID", "EMAIL", "NAME", "ROLE", "STATE")))
			for _, u := range users {
				state := green("active")
				if !u.Active {
					state = gray("inactive")
				}
				fmt.Printf("%-5d %-28s %-20s %-8s %s\n", u.ID, u.Email, u.Name, u.Role, state)
			}
			return nil
		}),
	}
}

func newOrgInvitationsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "invitations",
		Short: "List pending invitations",
		RunE: withClient(func(ctx context.Context, a *app, args []string) error {
			invitations, err := a.client.Invitations(ctx)
			if err != nil {
				return err
			}
			if len(invitations) == 0 {
				fmt.Println(gray("No pending invitations."))
				return nil
			}
			fmt.Printf("%s\n", bold(fmt.Sprintf("%-5s %-28s %-8s %-9s %s", "ID", "EMAIL", "ROLE", "STATUS", "EXPIRES")))
			for _, inv := range invitations {
				fmt.Printf("%-5d %-28s %-8s %-9s %s\n", inv.ID, inv.Email, inv.Role, inv.Status, inv.ExpiresAt.Format("2006-01-02"))
			}
			return nil
		}),
	}
}

func newOrgInviteCommand() *cobra.Command {
	var role string
	cmd := &cobra.Command{
		Use:   "invite <email>",
		Short: "Invite someone to the organization",
		Args:  cobra.ExactArgs(1),
		RunE: withClient(func(ctx context.Context, a *app, args []string) error {
			invitation, err := a.client.Invite(ctx, args[0], role)
			if err != nil {
				return err
			}
			fmt.Printf("%s Invited %s as %s (expires %s)\n",
				green("✓"), bold(invitation.Email), invitation.Role, invitation.ExpiresAt.Format("2006-01-02"))
			return nil
		}),
	}
	cmd.Flags().StringVar(&role, "role", "member", "role for the new member (member, admin)")
	return cmd
}

func newOrgRevokeCommand() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "revoke <invitation-id>",
		Short: "Revoke a pending invitation",
		Args:  cobra.ExactArgs(1),
		RunE: withClient(func(ctx context.Context, a *app, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if !force {
				prompt := promptui.Prompt{
					Label:     fmt.Sprintf("Revoke invitation #%d", id),
					IsConfirm: true,
				}
				if _, err := prompt.Run(); err != nil {
					fmt.Println(gray("Aborted."))
					return nil
				}
			}
			if err := a.client.RevokeInvitation(ctx, id); err != nil {
				return err
			}
			fmt.Printf("%s Invitation #%d revoked\n", green("✓"), id)
			return nil
		}),
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "skip confirmation")
	return cmd
}

func newOrgResendCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "resend <invitation-id>",
		Short: "Re-send an invitation email",
		Args:  cobra.ExactArgs(1),
		RunE: withClient(func(ctx context.Context, a *app, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			invitation, err := a.client.ResendInvitation(ctx, id)
			if err != nil {
				return err
			}
			fmt.Printf("%s Re-sent to %s (now expires %s)\n",
				green("✓"), bold(invitation.Email), invitation.ExpiresAt.Format("2006-01-02"))
			return nil
		}),
	}
}
