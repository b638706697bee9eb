package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/cenkalti/backoff/v4"
)

const maxResponseBytes = 1 << 20

// doJSON sends body as JSON and decodes the response into out. 4xx responses
// are wrapped in backoff.Permanent so the retrier gives up on them.
func doJSON(ctx context.Context, client *http.Client, method, endpoint string, header http.Header, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("%w: encode request: %v", ErrGateway, err))
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("%w: build request: %v", ErrGateway, err))
	}
	for key, values := range header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrGateway, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%w: read response: %v", ErrGateway, err)
	}

	if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %s %s returned %d", ErrGateway, method, endpoint, resp.StatusCode)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return backoff.Permanent(fmt.Errorf("%w: %s %s returned %d: %s", ErrGateway, method, endpoint, resp.StatusCode, truncate(raw, 256)))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return backoff.Permanent(fmt.Errorf("%w: decode response: %v", ErrGateway, err))
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n])
}
