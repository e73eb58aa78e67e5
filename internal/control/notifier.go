package control

import (
	"context"
	"fmt"
	"net/http"
)

// authKeyHeader carries the shared secret expected by the backend.
const authKeyHeader = "X-Auth-Key"

// HTTPNotifier posts notifications to the backend's /notifications endpoint.
type HTTPNotifier struct {
	endpoint endpoint
	authKey  string
}

type notificationRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// NewHTTPNotifier creates a notifier for the given base URL.
func NewHTTPNotifier(baseURL, authKey string, client *http.Client) (*HTTPNotifier, error) {
	e, err := newEndpoint(baseURL, client)
	if err != nil {
		return nil, fmt.Errorf("http notifier: %w", err)
	}
	return &HTTPNotifier{endpoint: e, authKey: authKey}, nil
}

// Notify sends one notification.
func (n *HTTPNotifier) Notify(ctx context.Context, title, content string) error {
	header := http.Header{}
	if n.authKey != "" {
		header.Set(authKeyHeader, n.authKey)
	}
	return n.endpoint.do(ctx, http.MethodPost, "/notifications", header,
		notificationRequest{Title: title, Content: content}, nil)
}
