package api

import (
	"context"
	"fmt"
	"net/http"
)

// CurrentOrg returns the caller's organization profile.
func (c *Client) CurrentOrg(ctx context.Context) (*Organization, error) {
	var org Organization
	if err := c.get(ctx, "/api/org", &org); err != nil {
		return nil, err
	}
	return &org, nil
}

// Members lists the organization's users.
func (c *Client) Members(ctx context.Context) ([]User, error) {
	var users []User
	if err := c.get(ctx, "/api/org/members", &users); err != nil {
		return nil, err
	}
	return users, nil
}

// Invitations lists pending invitations.
func (c *Client) Invitations(ctx context.Context) ([]Invitation, error) {
	var invitations []Invitation
	if err := c.get(ctx, "/api/org/invitations", &invitations); err != nil {
		return nil, err
	}
	return invitations, nil
}

// Invite creates an invitation for email with the given role.
func (c *Client) Invite(ctx context.Context, email, role string) (*Invitation, error) {
	body := map[string]string{"email": email, "role": role}
	var invitation Invitation
	if err := c.do(ctx, http.MethodPost, "/api/org/invitations", body, &invitation); err != nil {
		return nil, err
	}
	return &invitation, nil
}

// RevokeInvitation cancels a pending invitation.
func (c *Client) RevokeInvitation(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/org/invitations/%d", id), nil, nil)
}

// ResendInvitation re-sends the invitation email and extends its expiry.
func (c *Client) ResendInvitation(ctx context.Context, id int64) (*Invitation, error) {
	var invitation Invitation
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/org/invitations/%d/resend", id), nil, &invitation); err != nil {
		return nil, err
	}
	return &invitation, nil
}
