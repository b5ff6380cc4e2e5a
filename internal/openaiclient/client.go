// Package openaiclient is the HTTP client that speaks to the upstream
// OpenAI Responses API, grounded on the teacher's siderclient request
// construction and line-by-line SSE scanning pattern.
package openaiclient

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aeturnal/claude-code-responses-proxy/pkg/types"
)

// Client issues requests against the upstream Responses API.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// New constructs a Client with the given base URL, API key, and timeout.
func New(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		APIKey:     apiKey,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

// UpstreamError carries a non-2xx upstream HTTP response.
type UpstreamError struct {
	StatusCode int
	Body       json.RawMessage
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream responded with status %d", e.StatusCode)
}

// CreateResponse issues a non-streaming POST /responses call.
func (c *Client) CreateResponse(ctx context.Context, correlationID string, body types.ResponsesRequest) (*types.ResponsesEnvelope, error) {
	body.Stream = false
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	resp, err := c.doRequest(ctx, correlationID, payload)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read upstream response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Body: respBody}
	}

	var env types.ResponsesEnvelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return nil, fmt.Errorf("decode upstream response: %w", err)
	}
	return &env, nil
}

// StreamEvent is one parsed upstream SSE frame.
type StreamEvent struct {
	Type string // the SSE "event:" field, when present
	Data []byte // the raw "data:" payload
}

// OpenStream issues a streaming POST /responses call and returns a
// *StreamReader the caller pulls events from one at a time, so the
// Stream Translator can yield to the runtime at each upstream read
// boundary per §5.
func (c *Client) OpenStream(ctx context.Context, correlationID string, body types.ResponsesRequest) (*StreamReader, error) {
	body.Stream = true
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	resp, err := c.doRequest(ctx, correlationID, payload)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Body: respBody}
	}

	return &StreamReader{body: resp.Body, scanner: bufio.NewScanner(resp.Body)}, nil
}

func (c *Client) doRequest(ctx context.Context, correlationID string, payload []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/responses", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	if correlationID != "" {
		req.Header.Set("X-Correlation-ID", correlationID)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream request failed: %w", err)
	}
	return resp, nil
}

// StreamReader incrementally parses a text/event-stream body into
// StreamEvent frames, one blank-line-terminated block at a time.
type StreamReader struct {
	body    io.ReadCloser
	scanner *bufio.Scanner

	pendingType string
	pendingData bytes.Buffer
}

// Next returns the next parsed event, or io.EOF when the stream ends
// normally (upstream closed the connection or sent "[DONE]").
func (r *StreamReader) Next() (*StreamEvent, error) {
	for r.scanner.Scan() {
		line := r.scanner.Text()

		if line == "" {
			if r.pendingData.Len() == 0 && r.pendingType == "" {
				continue
			}
			ev := &StreamEvent{Type: r.pendingType, Data: append([]byte(nil), bytes.TrimSpace(r.pendingData.Bytes())...)}
			r.pendingType = ""
			r.pendingData.Reset()
			if string(ev.Data) == "[DONE]" {
				return nil, io.EOF
			}
			return ev, nil
		}

		switch {
		case strings.HasPrefix(line, "event:"):
			r.pendingType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if r.pendingData.Len() > 0 {
				r.pendingData.WriteByte('\n')
			}
			r.pendingData.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		case strings.HasPrefix(line, ":"):
			// SSE comment line; ignored.
		}
	}

	if err := r.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

// Close releases the underlying upstream connection, canceling any
// in-flight read.
func (r *StreamReader) Close() error {
	return r.body.Close()
}
