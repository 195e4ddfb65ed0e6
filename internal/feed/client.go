package feed

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"github.com/katatrina/schoolhub-BE/internal/gateway"
	"github.com/katatrina/schoolhub-BE/internal/notification"
)

// APIClient calls the notification endpoints through the gateway.
type APIClient struct {
	gw *gateway.Gateway
}

func NewAPIClient(gw *gateway.Gateway) *APIClient {
	return &APIClient{gw: gw}
}

func (c *APIClient) List(ctx context.Context, params notification.ListParams) (notification.Page, error) {
	query := url.Values{}
	if params.Type != "" {
		query.Set("type", params.Type)
	}
	if params.Page > 0 {
		query.Set("page", strconv.Itoa(params.Page))
	}
	if params.PageSize > 0 {
		query.Set("limit", strconv.Itoa(params.PageSize))
	}

	var page notification.Page
	err := c.gw.Get(ctx, "/notifications", query, &page)
	return page, err
}

func (c *APIClient) MarkRead(ctx context.Context, id string) error {
	return c.gw.Put(ctx, "/notifications/"+url.PathEscape(id)+"/read", nil, nil)
}

func (c *APIClient) MarkAllRead(ctx context.Context) (int64, error) {
	var resp struct {
		Updated int64 `json:"updated"`
	}
	err := c.gw.Put(ctx, "/notifications/read-all", nil, &resp)
	return resp.Updated, err
}

func (c *APIClient) Dismiss(ctx context.Context, id string) error {
	return c.gw.Delete(ctx, "/notifications/"+url.PathEscape(id))
}

func (c *APIClient) UnreadCount(ctx context.Context) (int64, error) {
	var resp struct {
		UnreadCount int64 `json:"unread_count"`
	}
	err := c.gw.Get(ctx, "/notifications/unread-count", nil, &resp)
	return resp.UnreadCount, err
}

// PublishRequest is the body of POST /notifications. A future PublishAt
// schedules the notification instead of sending it now.
type PublishRequest struct {
	Title          string     `json:"title"`
	Body           string     `json:"body"`
	Type           string     `json:"type"`
	TargetAudience string     `json:"target_audience"`
	Priority       string     `json:"priority"`
	PublishAt      *time.Time `json:"publish_at,omitempty"`
}

func (c *APIClient) Publish(ctx context.Context, req PublishRequest) (notification.Notification, error) {
	var n notification.Notification
	err := c.gw.Post(ctx, "/notifications", req, &n)
	return n, err
}
