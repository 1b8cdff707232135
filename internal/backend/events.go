package backend

import (
	"context"
	"net/http"
	"net/url"
)

// ListEvents returns events matching filter.
func (c *Client) ListEvents(ctx context.Context, filter EventFilter) ([]Event, error) {
	q := url.Values{}
	if filter.Status != "" {
		q.Set("status", string(filter.Status))
	}
	if filter.Mine {
		q.Set("mine", "true")
	}
	var events []Event
	if err := c.do(ctx, http.MethodGet, "/events", q, nil, &events); err != nil {
		return nil, err
	}
	return events, nil
}

// CheckIn marks the current user present at an event using the scanned code.
func (c *Client) CheckIn(ctx context.Context, id, code string) (*Event, error) {
	var ev Event
	if err := c.do(ctx, http.MethodPost, "/events/"+seg(id)+"/check-in", nil, map[string]string{"code": code}, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

// ToggleParticipation joins or leaves an event and returns its new state.
func (c *Client) ToggleParticipation(ctx context.Context, id string) (*Event, error) {
	var ev Event
	if err := c.do(ctx, http.MethodPost, "/events/"+seg(id)+"/participation", nil, nil, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}
