package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultTimeout bounds one HTTP request.
const DefaultTimeout = 30 * time.Second

// GenericErrorMessage is shown when a failure carries no server text.
const GenericErrorMessage = "Something went wrong. Please try again."

// Request is one HTTP call: JSON body in, JSON or empty body out.
type Request struct {
	Method string
	Path   string
	Body   any
}

// Doer performs requests. Any non-2xx status is returned as *HTTPError.
type Doer interface {
	Do(ctx context.Context, req Request) ([]byte, error)
}

// HTTPError is a non-2xx response.
type HTTPError struct {
	Status  int
	Code    string
	Message string
}

func (e *HTTPError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("request failed with status %d", e.Status)
	}
	return fmt.Sprintf("request failed with status %d: %s", e.Status, e.Message)
}

// UserMessage returns the text to show the user for err: the server's error
// message when there is one, a generic sentence otherwise.
func UserMessage(err error) string {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) && httpErr.Message != "" {
		return httpErr.Message
	}
	return GenericErrorMessage
}

// Client calls the chat REST API with a bearer token.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates an API client. A nil httpClient uses one with
// DefaultTimeout.
func NewClient(baseURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: httpClient,
	}
}

// Do sends req and returns the response body.
func (c *Client) Do(ctx context.Context, req Request) ([]byte, error) {
	var bodyReader io.Reader
	if req.Body != nil {
		b, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, c.baseURL+req.Path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newHTTPError(resp.StatusCode, data)
	}
	return data, nil
}

func newHTTPError(status int, body []byte) *HTTPError {
	httpErr := &HTTPError{Status: status}
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &payload) == nil {
		httpErr.Code, httpErr.Message = payload.Error, payload.Message
		return httpErr
	}
	httpErr.Message = strings.TrimSpace(string(body))
	return httpErr
}

// Get fetches path and decodes the JSON response into T.
func Get[T any](ctx context.Context, d Doer, path string) (T, error) {
	data, err := d.Do(ctx, Request{Method: http.MethodGet, Path: path})
	if err != nil {
		var zero T
		return zero, err
	}
	return Decode[T](data)
}

// Decode decodes a JSON response body.
func Decode[T any](data []byte) (T, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return v, nil
}
