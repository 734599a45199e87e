package api

import (
	"context"
	"fmt"
)

// Conversations lists the caller's chat records, newest first.
func (c *Client) Conversations(ctx context.Context) ([]Conversation, error) {
	var conversations []Conversation
	if err := c.get(ctx, "/api/chats", &conversations); err != nil {
		return nil, err
	}
	return conversations, nil
}

// Conversation fetches a single chat record.
func (c *Client) Conversation(ctx context.Context, id int64) (*Conversation, error) {
	var conversation Conversation
	if err := c.get(ctx, fmt.Sprintf("/api/chats/%d", id), &conversation); err != nil {
		return nil, err
	}
	return &conversation, nil
}
