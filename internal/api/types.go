// Package api is the typed client for the Knowledge Horizon REST surface:
// organizations, users, invitations, research streams and chat records.
package api

import "time"

// Organization is a tenant of the product.
type Organization struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	Plan        string    `json:"plan"`
	MemberCount int       `json:"member_count"`
	CreatedAt   time.Time `json:"created_at"`
}

// User is a member of an organization.
type User struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// Invitation is a pending offer to join an organization.
type Invitation struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ResearchStream is a saved literature-monitoring configuration.
type ResearchStream struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Query     string    `json:"query"`
	Sources   []string  `json:"sources"`
	Frequency string    `json:"frequency"`
	Archived  bool      `json:"archived"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StreamDraft is the mutable part of a research stream, used for create and
// update requests and for assistant proposals.
type StreamDraft struct {
	Name      string   `json:"name"`
	Query     string   `json:"query"`
	Sources   []string `json:"sources"`
	Frequency string   `json:"frequency"`
}

// Conversation is a server-side chat record.
type Conversation struct {
	ID           int64     `json:"id"`
	Title        string    `json:"title"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// AdminOverview aggregates the admin dashboards in one response.
type AdminOverview struct {
	Organizations []Organization
	Users         []User
	Invitations   []Invitation
}
