package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tombailey/dueue/internal/dueue"
	"github.com/tombailey/dueue/internal/engine/memory"
	"github.com/tombailey/dueue/internal/metrics"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	svc, err := dueue.New(context.Background(), dueue.Options{Engine: memory.New()})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	ts := httptest.NewServer(New(Options{Service: svc}).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func do(t *testing.T, method, url string, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestPublishReceiveAcknowledge(t *testing.T) {
	ts := newTestServer(t)

	resp := do(t, http.MethodPost, ts.URL+"/queue/jobs", `{"message":"hello"}`)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("publish status: %d", resp.StatusCode)
	}

	resp = do(t, http.MethodGet, ts.URL+"/queue/jobs?subscriberId=s1", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("receive status: %d", resp.StatusCode)
	}
	var body struct {
		ID      string `json:"id"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode receive body: %v", err)
	}
	if body.ID == "" || body.Message != "hello" {
		t.Fatalf("receive body: %+v", body)
	}

	resp = do(t, http.MethodDelete, fmt.Sprintf("%s/queue/jobs/%s?subscriberId=s1", ts.URL, body.ID), "")
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("acknowledge status: %d", resp.StatusCode)
	}

	// Acknowledged: nothing left for s1.
	resp = do(t, http.MethodGet, ts.URL+"/queue/jobs?subscriberId=s1", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("receive after ack status: %d", resp.StatusCode)
	}
}

func TestReceiveDeadlineOverride(t *testing.T) {
	ts := newTestServer(t)

	do(t, http.MethodPost, ts.URL+"/queue/jobs", `{"message":"x"}`)

	// Zero deadline elapses immediately, so the message redelivers.
	resp := do(t, http.MethodGet, ts.URL+"/queue/jobs?subscriberId=s1&acknowledgementDeadline=0", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("first receive status: %d", resp.StatusCode)
	}
	resp = do(t, http.MethodGet, ts.URL+"/queue/jobs?subscriberId=s1", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("redelivery status: %d", resp.StatusCode)
	}
}

func TestValidation(t *testing.T) {
	ts := newTestServer(t)

	cases := []struct {
		name   string
		method string
		path   string
		body   string
	}{
		{"publish without message", http.MethodPost, "/queue/jobs", `{}`},
		{"publish with non-string message", http.MethodPost, "/queue/jobs", `{"message":42}`},
		{"publish with invalid json", http.MethodPost, "/queue/jobs", `{`},
		{"receive without subscriber", http.MethodGet, "/queue/jobs", ""},
		{"receive with negative deadline", http.MethodGet, "/queue/jobs?subscriberId=s1&acknowledgementDeadline=-5", ""},
		{"receive with non-numeric deadline", http.MethodGet, "/queue/jobs?subscriberId=s1&acknowledgementDeadline=soon", ""},
		{"acknowledge without subscriber", http.MethodDelete, "/queue/jobs/some-id", ""},
	}
	for _, tc := range cases {
		resp := do(t, tc.method, ts.URL+tc.path, tc.body)
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("%s: status %d, want 400", tc.name, resp.StatusCode)
		}
	}
}

func TestPublishValidationNamesTheField(t *testing.T) {
	ts := newTestServer(t)

	cases := []struct {
		name string
		body string
		want string
	}{
		{"missing message", `{}`, "message is required."},
		{"null message", `{"message":null}`, "message is required."},
		{"non-string message", `{"message":42}`, "message is required."},
		{"non-numeric expiry", `{"message":"x","expiry":"soon"}`, "expiry must be a unix timestamp in seconds."},
		{"null expiry", `{"message":"x","expiry":null}`, "expiry must be a unix timestamp in seconds."},
		{"invalid json", `{`, "request body must be a JSON object."},
	}
	for _, tc := range cases {
		resp := do(t, http.MethodPost, ts.URL+"/queue/jobs", tc.body)
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("%s: status %d, want 400", tc.name, resp.StatusCode)
		}
		var body map[string]string
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatalf("%s: decode body: %v", tc.name, err)
		}
		if body["error"] != tc.want {
			t.Fatalf("%s: error %q, want %q", tc.name, body["error"], tc.want)
		}
	}
}

func TestAcknowledgeUnknownMessageIsNoContent(t *testing.T) {
	ts := newTestServer(t)
	resp := do(t, http.MethodDelete, ts.URL+"/queue/jobs/nope?subscriberId=s1", "")
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("acknowledge unknown status: %d", resp.StatusCode)
	}
}

func TestQueuesAreIsolated(t *testing.T) {
	ts := newTestServer(t)

	do(t, http.MethodPost, ts.URL+"/queue/a", `{"message":"for-a"}`)

	resp := do(t, http.MethodGet, ts.URL+"/queue/b?subscriberId=s1", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("receive from empty queue status: %d", resp.StatusCode)
	}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	resp := do(t, http.MethodGet, ts.URL+"/health", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status: %d", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode health body: %v", err)
	}
	if body["status"] != "pass" {
		t.Fatalf("health body: %+v", body)
	}
}

type failingProbe struct{ dueue.Engine }

func (failingProbe) CheckHealth(context.Context) error { return errors.New("storage down") }

func TestHealthFailure(t *testing.T) {
	eng := memory.New()
	svc, err := dueue.New(context.Background(), dueue.Options{Engine: eng})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	ts := httptest.NewServer(New(Options{Service: svc, Engine: failingProbe{eng}}).Handler())
	t.Cleanup(ts.Close)

	resp := do(t, http.MethodGet, ts.URL+"/health", "")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("health status: %d", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode health body: %v", err)
	}
	if body["status"] != "fail" {
		t.Fatalf("health body: %+v", body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}
	svc, err := dueue.New(context.Background(), dueue.Options{Engine: memory.New(), Metrics: m})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	ts := httptest.NewServer(New(Options{Service: svc, Gatherer: reg}).Handler())
	t.Cleanup(ts.Close)

	do(t, http.MethodPost, ts.URL+"/queue/jobs", `{"message":"x"}`)

	resp := do(t, http.MethodGet, ts.URL+"/metrics", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics status: %d", resp.StatusCode)
	}
}
