package api

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/sync/errgroup"
)

// AdminOrgs lists every organization. Requires a platform-admin token.
func (c *Client) AdminOrgs(ctx context.Context) ([]Organization, error) {
	var orgs []Organization
	if err := c.get(ctx, "/api/admin/orgs", &orgs); err != nil {
		return nil, err
	}
	return orgs, nil
}

// AdminUsers lists every user across organizations.
func (c *Client) AdminUsers(ctx context.Context) ([]User, error) {
	var users []User
	if err := c.get(ctx, "/api/admin/users", &users); err != nil {
		return nil, err
	}
	return users, nil
}

// AdminInvitations lists every pending invitation across organizations.
func (c *Client) AdminInvitations(ctx context.Context) ([]Invitation, error) {
	var invitations []Invitation
	if err := c.get(ctx, "/api/admin/invitations", &invitations); err != nil {
		return nil, err
	}
	return invitations, nil
}

// AdminDeactivateUser disables a user account.
func (c *Client) AdminDeactivateUser(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/api/admin/users/%d/deactivate", id), nil, nil)
}

// Overview fetches the admin dashboard lists concurrently.
func (c *Client) Overview(ctx context.Context) (*AdminOverview, error) {
	var overview AdminOverview

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		orgs, err := c.AdminOrgs(ctx)
		if err != nil {
			return fmt.Errorf("orgs: %w", err)
		}
		overview.Organizations = orgs
		return nil
	})
	g.Go(func() error {
		users, err := c.AdminUsers(ctx)
		if err != nil {
			return fmt.Errorf("users: %w", err)
		}
		overview.Users = users
		return nil
	})
	g.Go(func() error {
		invitations, err := c.AdminInvitations(ctx)
		if err != nil {
			return fmt.Errorf("invitations: %w", err)
		}
		overview.Invitations = invitations
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &overview, nil
}
