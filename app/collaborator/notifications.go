package collaborator

import (
	"context"
	"net/http"
	"time"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

type Notification struct {
	UserID   string   `json:"user_id"`
	Kind     string   `json:"kind"`
	Title    string   `json:"title"`
	Message  string   `json:"message"`
	Priority Priority `json:"priority"`
	Link     string   `json:"link,omitempty"`
}

type NotificationClient struct {
	baseClient
}

func NewNotificationClient(baseURL, apiKey string, timeout time.Duration) *NotificationClient {
	return &NotificationClient{baseClient: newBaseClient(baseURL, apiKey, timeout)}
}

func (c *NotificationClient) Notify(ctx context.Context, n Notification) error {
	return c.do(ctx, http.MethodPost, "/notifications", n, nil)
}
