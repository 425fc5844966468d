// Package testutil provides an HTTP test client, an admin-plane client and
// assertion helpers for handler tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

// Client sends requests to a test server and applies default headers.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	headers    map[string]string
	t          *testing.T
}

// NewClient creates a client pointed at a test server.
func NewClient(t *testing.T, server *httptest.Server) *Client {
	return &Client{
		BaseURL:    server.URL,
		HTTPClient: server.Client(),
		headers:    map[string]string{},
		t:          t,
	}
}

// NewClientURL creates a client pointed at a specific URL.
func NewClientURL(t *testing.T, baseURL string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{},
		headers:    map[string]string{},
		t:          t,
	}
}

// WithHeader returns a copy of c that sends header k on every request.
func (c *Client) WithHeader(k, v string) *Client {
	clone := *c
	clone.headers = make(map[string]string, len(c.headers)+1)
	for hk, hv := range c.headers {
		clone.headers[hk] = hv
	}
	clone.headers[k] = v
	return &clone
}

// Response wraps an HTTP response with helper methods.
type Response struct {
	StatusCode int
	Body       []byte
	Headers    http.Header
	t          *testing.T
}

// JSON unmarshals the response body into v.
func (r *Response) JSON(v any) {
	r.t.Helper()
	if err := json.Unmarshal(r.Body, v); err != nil {
		r.t.Fatalf("failed to unmarshal response: %v\nbody: %s", err, string(r.Body))
	}
}

// JSONMap returns the response body as a map.
func (r *Response) JSONMap() map[string]any {
	r.t.Helper()
	var m map[string]any
	r.JSON(&m)
	return m
}

// AssertStatus asserts the response has the expected status code.
func (r *Response) AssertStatus(expected int) *Response {
	r.t.Helper()
	if r.StatusCode != expected {
		r.t.Errorf("expected status %d, got %d\nbody: %s", expected, r.StatusCode, string(r.Body))
	}
	return r
}

// AssertBodyContains asserts the response body contains substr.
func (r *Response) AssertBodyContains(substr string) *Response {
	r.t.Helper()
	if !strings.Contains(string(r.Body), substr) {
		r.t.Errorf("expected body to contain %q, got: %s", substr, string(r.Body))
	}
	return r
}

// Query builds a path with encoded query parameters given as key, value
// pairs.
func Query(path string, kv ...string) string {
	q := url.Values{}
	for i := 0; i+1 < len(kv); i += 2 {
		q.Set(kv[i], kv[i+1])
	}
	if len(q) == 0 {
		return path
	}
	return path + "?" + q.Encode()
}

// Get performs a GET request.
func (c *Client) Get(path string) *Response {
	c.t.Helper()
	return c.do(http.MethodGet, path, nil, nil)
}

// Post performs a POST request with a JSON body.
func (c *Client) Post(path string, body any) *Response {
	c.t.Helper()
	return c.do(http.MethodPost, path, body, nil)
}

// Put performs a PUT request with a JSON body.
func (c *Client) Put(path string, body any) *Response {
	c.t.Helper()
	return c.do(http.MethodPut, path, body, nil)
}

// Patch performs a PATCH request with a JSON body.
func (c *Client) Patch(path string, body any) *Response {
	c.t.Helper()
	return c.do(http.MethodPatch, path, body, nil)
}

// Delete performs a DELETE request.
func (c *Client) Delete(path string) *Response {
	c.t.Helper()
	return c.do(http.MethodDelete, path, nil, nil)
}

// DoWithHeaders performs a request with extra headers.
func (c *Client) DoWithHeaders(method, path string, body any, headers map[string]string) *Response {
	c.t.Helper()
	return c.do(method, path, body, headers)
}

// DoRaw sends a raw body with the given content type.
func (c *Client) DoRaw(method, path, contentType string, body []byte) *Response {
	c.t.Helper()
	req, err := http.NewRequest(method, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		c.t.Fatalf("failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", contentType)
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	return c.doReq(req)
}

func (c *Client) do(method, path string, body any, headers map[string]string) *Response {
	c.t.Helper()

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			c.t.Fatalf("failed to marshal body: %v", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.BaseURL+path, bodyReader)
	if err != nil {
		c.t.Fatalf("failed to create request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return c.doReq(req)
}

func (c *Client) doReq(req *http.Request) *Response {
	c.t.Helper()

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		c.t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		c.t.Fatalf("failed to read response: %v", err)
	}
	return &Response{
		StatusCode: resp.StatusCode,
		Body:       respBody,
		Headers:    resp.Header,
		t:          c.t,
	}
}

// AdminClient wraps the /admin/* control plane.
type AdminClient struct {
	*Client
}

// NewAdminClient creates an admin client from a client.
func NewAdminClient(c *Client) *AdminClient {
	return &AdminClient{c}
}

// Reset calls POST /admin/reset.
func (ac *AdminClient) Reset() *Response {
	ac.t.Helper()
	return ac.Post("/admin/reset", nil)
}

// GetState calls GET /admin/state.
func (ac *AdminClient) GetState() *Response {
	ac.t.Helper()
	return ac.Get("/admin/state")
}

// LoadState calls POST /admin/state.
func (ac *AdminClient) LoadState(state any) *Response {
	ac.t.Helper()
	return ac.Post("/admin/state", state)
}

// InjectFault calls POST /admin/fault/{path}.
func (ac *AdminClient) InjectFault(path string, fault any) *Response {
	ac.t.Helper()
	return ac.Post("/admin/fault/"+strings.TrimPrefix(path, "/"), fault)
}

// RemoveFault calls DELETE /admin/fault/{path}.
func (ac *AdminClient) RemoveFault(path string) *Response {
	ac.t.Helper()
	return ac.Delete("/admin/fault/" + strings.TrimPrefix(path, "/"))
}

// GetRequests calls GET /admin/requests.
func (ac *AdminClient) GetRequests() *Response {
	ac.t.Helper()
	return ac.Get("/admin/requests")
}

// AdvanceTime calls POST /admin/time/advance.
func (ac *AdminClient) AdvanceTime(duration string) *Response {
	ac.t.Helper()
	return ac.Post("/admin/time/advance", map[string]string{"duration": duration})
}

// SucceedPayment calls POST /admin/payments/{id}/succeed on the payment
// simulator.
func (ac *AdminClient) SucceedPayment(id string) *Response {
	ac.t.Helper()
	return ac.Post("/admin/payments/"+url.PathEscape(id)+"/succeed", nil)
}

// CancelPayment calls POST /admin/payments/{id}/cancel on the payment
// simulator.
func (ac *AdminClient) CancelPayment(id string) *Response {
	ac.t.Helper()
	return ac.Post("/admin/payments/"+url.PathEscape(id)+"/cancel", nil)
}

// Health calls GET /admin/health.
func (ac *AdminClient) Health() *Response {
	ac.t.Helper()
	return ac.Get("/admin/health")
}
