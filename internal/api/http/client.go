package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/arkilian/timeline/internal/engine"
	"github.com/arkilian/timeline/internal/snl"
)

// DefaultClientTimeout bounds a single execute call.
const DefaultClientTimeout = 30 * time.Second

// Client implements snl.Executor against a server created by NewHandler.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) {
		if c != nil {
			cl.httpClient = c
		}
	}
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultClientTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Execute posts the command and returns the server's result. Server errors
// are returned as *engine.Error so not-found results match snl.ErrNotFound.
func (c *Client) Execute(ctx context.Context, command, credential string) (snl.Response, error) {
	body, err := json.Marshal(ExecuteRequest{Command: command, Credential: credential})
	if err != nil {
		return nil, fmt.Errorf("http client: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/execute", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("http client: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderRequestID, uuid.New().String())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http client: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("http client: read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var er ErrorResponse
		if json.Unmarshal(data, &er) != nil || er.Error == "" {
			er.Error = strings.TrimSpace(string(data))
		}
		code := engine.Code(er.Code)
		if code == "" {
			code = codeForStatus(resp.StatusCode)
		}
		return nil, &engine.Error{Code: code, Message: fmt.Sprintf("status %d: %s", resp.StatusCode, er.Error)}
	}

	var out ExecuteResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("http client: decode response: %w", err)
	}
	return snl.Response(out.Result), nil
}

func codeForStatus(status int) engine.Code {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return engine.CodeUnauthorized
	case http.StatusBadRequest:
		return engine.CodeBadCommand
	case http.StatusNotFound:
		return engine.CodeNotFound
	default:
		return engine.CodeInternal
	}
}
