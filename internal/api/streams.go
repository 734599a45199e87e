package api

import (
	"context"
	"fmt"
	"net/http"
)

// ListStreams returns the organization's research streams. Archived streams
// are included when includeArchived is set.
func (c *Client) ListStreams(ctx context.Context, includeArchived bool) ([]ResearchStream, error) {
	path := "/api/tables"
	if includeArchived {
		path += "?archived=true"
	}
	var streams []ResearchStream
	if err := c.get(ctx, path, &streams); err != nil {
		return nil, err
	}
	for i := range streams {
		stream := streams[i]
		c.streamCache.Add(stream.ID, &stream)
	}
	return streams, nil
}

// GetStream returns one research stream, served from the cache when possible.
func (c *Client) GetStream(ctx context.Context, id int64) (*ResearchStream, error) {
	if cached, ok := c.streamCache.Get(id); ok {
		return cached, nil
	}
	var stream ResearchStream
	if err := c.get(ctx, fmt.Sprintf("/api/tables/%d", id), &stream); err != nil {
		return nil, err
	}
	c.streamCache.Add(stream.ID, &stream)
	return &stream, nil
}

// CreateStream creates a research stream from a draft.
func (c *Client) CreateStream(ctx context.Context, draft StreamDraft) (*ResearchStream, error) {
	var stream ResearchStream
	if err := c.do(ctx, http.MethodPost, "/api/tables", draft, &stream); err != nil {
		return nil, err
	}
	c.streamCache.Add(stream.ID, &stream)
	return &stream, nil
}

// UpdateStream replaces a stream's configuration.
func (c *Client) UpdateStream(ctx context.Context, id int64, draft StreamDraft) (*ResearchStream, error) {
	var stream ResearchStream
	if err := c.do(ctx, http.MethodPut, fmt.Sprintf("/api/tables/%d", id), draft, &stream); err != nil {
		return nil, err
	}
	c.streamCache.Add(stream.ID, &stream)
	return &stream, nil
}

// ArchiveStream soft-deletes a stream; monitoring stops but history stays.
func (c *Client) ArchiveStream(ctx context.Context, id int64) error {
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/tables/%d/archive", id), nil, nil); err != nil {
		return err
	}
	c.streamCache.Remove(id)
	return nil
}

// ScheduleReport sets the report cadence for a stream.
func (c *Client) ScheduleReport(ctx context.Context, id int64, cadence string) error {
	body := map[string]string{"cadence": cadence}
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/api/tables/%d/schedule", id), body, nil)
}
