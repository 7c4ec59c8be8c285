package webclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const maxBody = 4 << 20

// NewDefault returns an HTTP client with sane timeouts.
func NewDefault(timeout time.Duration) *http.Client {
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// Response is a fully read HTTP response.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// PostJSON marshals payload, posts it and reads at most 4 MiB of the reply.
func PostJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, payload any) (Response, error) {
	if client == nil {
		client = NewDefault(0)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Response{}, fmt.Errorf("webclient: encode: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return Response{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := client.Do(req)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return Response{Status: resp.StatusCode, Header: resp.Header}, err
	}
	return Response{Status: resp.StatusCode, Header: resp.Header, Body: body}, nil
}
