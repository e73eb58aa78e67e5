package control

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// defaultHTTPTimeout caps a request when the caller's context has no deadline.
const defaultHTTPTimeout = 15 * time.Second

// maxErrorBody is how much of a failed response is kept in the error.
const maxErrorBody = 512

// endpoint is a base URL plus the client used to reach it.
type endpoint struct {
	base   string
	client *http.Client
}

func newEndpoint(baseURL string, client *http.Client) (endpoint, error) {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return endpoint{}, ErrNotConfigured
	}
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return endpoint{base: base, client: client}, nil
}

// do sends a request and decodes a JSON answer into out when out is non-nil.
func (e endpoint) do(ctx context.Context, method, path string, header http.Header, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request for %s: %w", path, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, e.base+path, reader)
	if err != nil {
		return fmt.Errorf("%w: building request %s: %w", ErrExternalCallFailed, path, err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %w", ErrExternalCallFailed, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody)) //nolint:errcheck // best-effort error detail
		return fmt.Errorf("%w: %s %s: status %d: %s",
			ErrExternalCallFailed, method, path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	if out == nil {
		// Drain body to allow connection reuse
		_, _ = io.Copy(io.Discard, resp.Body) //nolint:errcheck // drain only
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decoding %s response: %w", ErrExternalCallFailed, path, err)
	}
	return nil
}
