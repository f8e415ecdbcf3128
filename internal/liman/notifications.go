package liman

import (
	"context"
	"fmt"
	"net/url"

	"github.com/nhle/liman-notify/internal/model"
)

// UnreadNotifications fetches the user's unread notifications, most recent first.
func (c *Client) UnreadNotifications(ctx context.Context) ([]model.Notification, error) {
	var notifications []model.Notification
	if err := c.Get(ctx, c.apiPrefix+"/notifications/unread", &notifications); err != nil {
		return nil, fmt.Errorf("fetching unread notifications: %w", err)
	}
	for _, n := range notifications {
		for field, raw := range n.Unparsed {
			c.log.WithField("notification_id", n.ID).WithField(field, raw).Warn("unrecognized timestamp")
		}
	}
	return notifications, nil
}

// MarkSeen acknowledges that the user has observed one notification.
func (c *Client) MarkSeen(ctx context.Context, notificationID string) error {
	err := c.Post(ctx, c.apiPrefix+"/notifications/seen", seenRequest{
		NotificationID: notificationID,
	}, nil)
	if err != nil {
		return fmt.Errorf("marking notification %s as seen: %w", notificationID, err)
	}
	return nil
}

// MarkAllRead marks every notification of the user as read server-side.
func (c *Client) MarkAllRead(ctx context.Context) error {
	if err := c.Post(ctx, c.apiPrefix+"/notifications/read", struct{}{}, nil); err != nil {
		return fmt.Errorf("marking all notifications as read: %w", err)
	}
	return nil
}

// AuthorizeChannel signs a private-channel subscription for the given
// websocket connection. It satisfies pusher.Authorizer.
func (c *Client) AuthorizeChannel(ctx context.Context, socketID, channel string) (string, error) {
	form := url.Values{}
	form.Set("socket_id", socketID)
	form.Set("channel_name", channel)

	var resp channelAuthResponse
	if err := c.Post(ctx, c.channelAuthPath, form, &resp); err != nil {
		return "", fmt.Errorf("authorizing channel %s: %w", channel, err)
	}
	if resp.Auth == "" {
		return "", fmt.Errorf("authorizing channel %s: empty signature", channel)
	}
	return resp.Auth, nil
}
