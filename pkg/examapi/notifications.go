package examapi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// GetNotifications retrieves the caller's notification list, newest
// first. Requires an authenticated client.
func (c *Client) GetNotifications(ctx context.Context) ([]Notification, error) {
	resp, err := c.doJSON(ctx, http.MethodGet, "/v1/notifications", nil)
	if err != nil {
		return nil, err
	}

	var list []Notification
	if err := decodeJSON(resp, &list, http.StatusOK); err != nil {
		return nil, err
	}
	return list, nil
}

// MarkNotificationAsRead marks a single notification as read.
func (c *Client) MarkNotificationAsRead(ctx context.Context, id string) error {
	path := fmt.Sprintf("/v1/notifications/%s/read", url.PathEscape(id))
	resp, err := c.doJSON(ctx, http.MethodPost, path, nil)
	if err != nil {
		return err
	}
	return checkStatus(resp, http.StatusNoContent)
}

// MarkAllNotificationsAsRead marks every notification as read.
func (c *Client) MarkAllNotificationsAsRead(ctx context.Context) error {
	resp, err := c.doJSON(ctx, http.MethodPost, "/v1/notifications/read-all", nil)
	if err != nil {
		return err
	}
	return checkStatus(resp, http.StatusNoContent)
}
