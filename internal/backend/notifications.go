package backend

import (
	"context"
	"net/http"
)

// Notifications returns the user's notification inbox.
func (c *Client) Notifications(ctx context.Context) ([]Notification, error) {
	var ns []Notification
	if err := c.do(ctx, http.MethodGet, "/notifications", nil, nil, &ns); err != nil {
		return nil, err
	}
	return ns, nil
}

func (c *Client) MarkNotificationRead(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPatch, "/notifications/"+seg(id)+"/read", nil, nil, nil)
}
