// Package gateway is the single boundary through which the service talks to
// the remote brokerage backend (REST and GraphQL). Transport and parsing
// failures never escape this package raw: every failure is converted to a
// typed *Error carrying the HTTP status, the backend message and a
// classified kind.
package gateway

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

	"finnbourse.org/internal/obs"
)

const maxResponseBytes = 4 << 20

// Credentials carries the backend tokens attached to outbound requests.
// The REST and GraphQL backends accept distinct tokens; either may be empty.
type Credentials struct {
	RESTToken    string
	GraphQLToken string
}

// Client issues requests against the remote backend.
type Client struct {
	backendURL string
	restURL    string
	http       *http.Client
	debug      bool
}

// Option configures Client behavior.
type Option func(*Client)

// WithTimeout overrides the default request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithHTTPClient substitutes the underlying HTTP client (tests).
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// WithDebug enables raw backend payloads in error messages. Never enable
// for end-user facing deployments.
func WithDebug(enabled bool) Option {
	return func(c *Client) { c.debug = enabled }
}

// New constructs a Client for the given backend base URL and REST API URL.
func New(backendURL, restURL string, opts ...Option) (*Client, error) {
	backendURL = strings.TrimRight(strings.TrimSpace(backendURL), "/")
	restURL = strings.TrimRight(strings.TrimSpace(restURL), "/")
	if backendURL == "" {
		return nil, errors.New("gateway: backend URL is required")
	}
	if restURL == "" {
		return nil, errors.New("gateway: REST API URL is required")
	}
	c := &Client{
		backendURL: backendURL,
		restURL:    restURL,
		http:       &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Do performs a REST request against the backend. resource is the path
// relative to the REST API URL (e.g. "/orders/42"). payload, when non-nil,
// is marshalled as the JSON body. The raw JSON response is returned for
// 2xx statuses; anything else becomes a *Error.
func (c *Client) Do(ctx context.Context, method, resource string, payload any, creds Credentials) (json.RawMessage, error) {
	if !strings.HasPrefix(resource, "/") {
		resource = "/" + resource
	}
	raw, err := c.execute(ctx, method, c.restURL+resource, payload, creds.RESTToken, resource)
	if err != nil {
		return nil, err
	}
	return raw, nil
}

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message    string `json:"message"`
		Extensions struct {
			Code string `json:"code"`
		} `json:"extensions"`
	} `json:"errors"`
}

// Query performs a GraphQL request against the backend and returns the
// data payload. GraphQL-level errors are classified the same way as REST
// statuses: UNAUTHENTICATED maps to Unauthorized, everything else to
// Validation.
func (c *Client) Query(ctx context.Context, query string, variables map[string]any, creds Credentials) (json.RawMessage, error) {
	raw, err := c.execute(ctx, http.MethodPost, c.backendURL+"/graphql", graphqlRequest{
		Query:     query,
		Variables: variables,
	}, creds.GraphQLToken, "/graphql")
	if err != nil {
		return nil, err
	}
	var resp graphqlResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		obs.ObserveGatewayRequest("/graphql", string(KindUnknown))
		return nil, &Error{Kind: KindUnknown, Message: "malformed graphql response"}
	}
	if len(resp.Errors) > 0 {
		first := resp.Errors[0]
		kind := KindValidation
		if strings.EqualFold(first.Extensions.Code, "UNAUTHENTICATED") {
			kind = KindUnauthorized
		}
		obs.ObserveGatewayRequest("/graphql", string(kind))
		return nil, &Error{Kind: kind, Message: first.Message}
	}
	return resp.Data, nil
}

func (c *Client) execute(ctx context.Context, method, url string, payload any, token, resource string) (json.RawMessage, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, &Error{Kind: KindUnknown, Message: fmt.Sprintf("encode request: %v", err)}
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, &Error{Kind: KindUnknown, Message: err.Error()}
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		obs.ObserveGatewayRequest(resource, string(KindUnknown))
		return nil, &Error{Kind: KindUnknown, Message: "backend unreachable: " + err.Error()}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		obs.ObserveGatewayRequest(resource, string(KindUnknown))
		return nil, &Error{Status: resp.StatusCode, Kind: KindUnknown, Message: "read backend response: " + err.Error()}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		obs.ObserveGatewayRequest(resource, "ok")
		if len(data) == 0 {
			return json.RawMessage(`{}`), nil
		}
		return json.RawMessage(data), nil
	}

	kind := Classify(resp.StatusCode)
	obs.ObserveGatewayRequest(resource, string(kind))
	return nil, &Error{
		Status:  resp.StatusCode,
		Kind:    kind,
		Message: c.backendMessage(data, resp.StatusCode),
	}
}

// backendMessage extracts a human-readable message from a backend error
// body. Raw payloads leak into messages only in debug mode.
func (c *Client) backendMessage(data []byte, status int) string {
	var shaped struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &shaped); err == nil {
		if shaped.Error != "" {
			return shaped.Error
		}
		if shaped.Message != "" {
			return shaped.Message
		}
	}
	if c.debug && len(data) > 0 {
		return fmt.Sprintf("backend returned %d: %s", status, strings.TrimSpace(string(data)))
	}
	return fmt.Sprintf("backend returned %d", status)
}
