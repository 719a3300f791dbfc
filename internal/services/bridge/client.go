package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"calqbridge/internal/logger"
	"calqbridge/internal/services/calq"
	"calqbridge/internal/services/ulid"
)

// HTTPClient is the subset of *http.Client the bridge client uses.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client sends bridge calls to a Server. It implements calq.Bridge.
type Client struct {
	url        string
	httpClient HTTPClient
	ids        *ulid.Source
	logger     *logger.Logger
}

var _ calq.Bridge = (*Client)(nil)

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL string, timeout time.Duration, log *logger.Logger) *Client {
	return NewClientWithHTTPClient(baseURL, &http.Client{Timeout: timeout}, log)
}

// NewClientWithHTTPClient creates a client with a caller-supplied HTTP client.
func NewClientWithHTTPClient(baseURL string, httpClient HTTPClient, log *logger.Logger) *Client {
	if log == nil {
		log = logger.New("calq-bridge-client")
	}
	return &Client{
		url:        strings.TrimRight(baseURL, "/") + PathInvoke,
		httpClient: httpClient,
		ids:        ulid.New(),
		logger:     log,
	}
}

// Invoke sends one call and waits for its response. A native failure comes back as a
// *calq.BridgeError; transport problems are returned as ordinary errors.
func (c *Client) Invoke(ctx context.Context, module string, op calq.Operation, args []any) (json.RawMessage, error) {
	req := Request{
		ID:        c.ids.Next(),
		Module:    module,
		Operation: op,
		Args:      make([]json.RawMessage, len(args)),
	}
	for i, arg := range args {
		data, err := json.Marshal(arg)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s argument %d: %w", op, i, err)
		}
		req.Args[i] = data
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Debug("bridge request failed", map[string]interface{}{
			"url":   c.url,
			"error": err.Error(),
		})
		return nil, fmt.Errorf("could not reach bridge at %s: %w", c.url, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(httpResp.Body, 4096))
		return nil, &calq.BridgeError{
			Module:    module,
			Operation: op,
			Code:      httpResp.StatusCode,
			Message:   strings.TrimSpace(string(msg)),
		}
	}

	var resp Response
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if resp.ID != req.ID {
		return nil, fmt.Errorf("bridge answered %s to request %s", resp.ID, req.ID)
	}
	if resp.Code != CodeOK {
		return nil, &calq.BridgeError{
			Module:    module,
			Operation: op,
			Code:      resp.Code,
			Message:   resp.Error,
		}
	}

	c.logger.Debug("bridge response", map[string]interface{}{
		"id":        resp.ID,
		"operation": op,
	})
	return resp.Data, nil
}
