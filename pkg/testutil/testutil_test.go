package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

// ---------------------------------------------------------------------------
// Helper: an echo server
// ---------------------------------------------------------------------------

type echo struct {
	Method  string            `json:"method"`
	Path    string            `json:"path"`
	Query   string            `json:"query"`
	Body    string            `json:"body"`
	Headers map[string]string `json:"headers"`
}

func newEchoServer() *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		e := echo{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery, Body: string(body), Headers: map[string]string{}}
		for k := range r.Header {
			e.Headers[k] = r.Header.Get(k)
		}
		w.Header().Set("Content-Type", "application/json")
		status := http.StatusOK
		if r.Method == http.MethodPost {
			status = http.StatusCreated
		}
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(e)
	}))
}

// ---------------------------------------------------------------------------
// Client
// ---------------------------------------------------------------------------

func TestClientVerbs(t *testing.T) {
	srv := newEchoServer()
	defer srv.Close()
	c := NewClient(t, srv)

	var e echo
	c.Get("/items").AssertStatus(http.StatusOK).JSON(&e)
	if e.Method != "GET" || e.Path != "/items" {
		t.Errorf("unexpected echo: %+v", e)
	}

	c.Post("/items", map[string]string{"name": "x"}).AssertStatus(http.StatusCreated).JSON(&e)
	if e.Body != `{"name":"x"}` || e.Headers["Content-Type"] != "application/json" {
		t.Errorf("unexpected post echo: %+v", e)
	}

	for method, resp := range map[string]*Response{
		"PUT":    c.Put("/items/1", map[string]int{"n": 1}),
		"PATCH":  c.Patch("/items/1", map[string]int{"n": 1}),
		"DELETE": c.Delete("/items/1"),
	} {
		resp.JSON(&e)
		if e.Method != method {
			t.Errorf("expected %s, got %s", method, e.Method)
		}
	}
}

func TestClientDefaultHeaders(t *testing.T) {
	srv := newEchoServer()
	defer srv.Close()
	base := NewClient(t, srv)
	authed := base.WithHeader("X-API-Key", "secret")

	var e echo
	authed.Get("/").JSON(&e)
	if e.Headers["X-Api-Key"] != "secret" {
		t.Errorf("expected api key header, got %v", e.Headers)
	}

	base.Get("/").JSON(&e)
	if _, ok := e.Headers["X-Api-Key"]; ok {
		t.Error("expected WithHeader to leave the original client untouched")
	}

	authed.DoWithHeaders("GET", "/", nil, map[string]string{"X-API-Key": "override"}).JSON(&e)
	if e.Headers["X-Api-Key"] != "override" {
		t.Errorf("expected per-request header to win, got %q", e.Headers["X-Api-Key"])
	}
}

func TestClientDoRaw(t *testing.T) {
	srv := newEchoServer()
	defer srv.Close()

	var e echo
	NewClient(t, srv).DoRaw("POST", "/raw", "text/plain", []byte("{broken")).JSON(&e)
	if e.Body != "{broken" || e.Headers["Content-Type"] != "text/plain" {
		t.Errorf("unexpected echo: %+v", e)
	}
}

func TestQuery(t *testing.T) {
	if got := Query("/user/profile"); got != "/user/profile" {
		t.Errorf("expected bare path, got %s", got)
	}
	if got := Query("/user/referral", "user_id", "a b", "referrer_id", "c"); got != "/user/referral?referrer_id=c&user_id=a+b" {
		t.Errorf("unexpected query: %s", got)
	}
}

// ---------------------------------------------------------------------------
// Response assertions
// ---------------------------------------------------------------------------

func TestResponseHelpers(t *testing.T) {
	r := &Response{StatusCode: 200, Body: []byte(`{"status":"ok"}`), t: t}
	r.AssertStatus(200).AssertBodyContains(`"ok"`)
	if m := r.JSONMap(); m["status"] != "ok" {
		t.Errorf("unexpected map: %v", m)
	}

}

// ---------------------------------------------------------------------------
// AdminClient
// ---------------------------------------------------------------------------

func TestAdminClientPaths(t *testing.T) {
	srv := newEchoServer()
	defer srv.Close()
	ac := NewAdminClient(NewClient(t, srv))

	cases := []struct {
		resp   *Response
		method string
		path   string
	}{
		{ac.Reset(), "POST", "/admin/reset"},
		{ac.GetState(), "GET", "/admin/state"},
		{ac.LoadState(map[string]any{}), "POST", "/admin/state"},
		{ac.InjectFault("/v3/payments", map[string]int{"status_code": 500}), "POST", "/admin/fault/v3/payments"},
		{ac.RemoveFault("/v3/payments"), "DELETE", "/admin/fault/v3/payments"},
		{ac.GetRequests(), "GET", "/admin/requests"},
		{ac.AdvanceTime("24h"), "POST", "/admin/time/advance"},
		{ac.SucceedPayment("pay-1"), "POST", "/admin/payments/pay-1/succeed"},
		{ac.CancelPayment("pay-1"), "POST", "/admin/payments/pay-1/cancel"},
		{ac.Health(), "GET", "/admin/health"},
	}
	for _, tc := range cases {
		var e echo
		tc.resp.JSON(&e)
		if e.Method != tc.method || e.Path != tc.path {
			t.Errorf("expected %s %s, got %s %s", tc.method, tc.path, e.Method, e.Path)
		}
	}
}
