package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"chainguard/internal/analysis"
	"chainguard/internal/config"
	"chainguard/internal/dashboard"
	"chainguard/internal/metrics"
	"chainguard/internal/rules"
	"chainguard/internal/traffic"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testEnv struct {
	engine *dashboard.Engine
	server *httptest.Server
	cancel context.CancelFunc
}

func newTestEnv(t *testing.T, records int) *testEnv {
	t.Helper()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	e, err := dashboard.New(dashboard.Config{
		SynthesisInterval: time.Hour,
		BlockInterval:     time.Hour,
		Synthesizer:       traffic.SynthesizerConfig{Seed: 42},
	}, dashboard.WithLogger(quietLogger()), dashboard.WithRecorder(m))
	if err != nil {
		t.Fatalf("dashboard.New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go e.Run(ctx)

	for i := 0; i < records; i++ {
		if err := e.Synthesize(context.Background()); err != nil {
			t.Fatalf("Synthesize() error = %v", err)
		}
	}

	cfg := config.DefaultConfig().Server
	srv := NewServer(e, Options{Server: cfg, Gatherer: reg, Logger: quietLogger(), Version: "test"})
	ts := httptest.NewServer(srv.Handler())

	env := &testEnv{engine: e, server: ts, cancel: cancel}
	t.Cleanup(func() {
		ts.Close()
		srv.Shutdown(context.Background())
		cancel()
		<-e.Done()
	})
	return env
}

func (env *testEnv) do(t *testing.T, method, path string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, env.server.URL+path, nil)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s error = %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, 0)

	resp := env.do(t, http.MethodGet, "/health")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d, want 200", resp.StatusCode)
	}
	var body map[string]interface{}
	decode(t, resp, &body)
	if body["status"] != "healthy" || body["version"] != "test" {
		t.Errorf("body = %v", body)
	}
	if resp.Header.Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers missing")
	}
}

func TestHealth_EngineStopped(t *testing.T) {
	env := newTestEnv(t, 0)
	env.cancel()
	<-env.engine.Done()

	resp := env.do(t, http.MethodGet, "/health")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status %d, want 503", resp.StatusCode)
	}
}

func TestState(t *testing.T) {
	env := newTestEnv(t, 5)

	resp := env.do(t, http.MethodGet, "/api/v1/state")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d, want 200", resp.StatusCode)
	}
	var snap dashboard.Snapshot
	decode(t, resp, &snap)

	if len(snap.Records) != 5 {
		t.Errorf("records = %d, want 5", len(snap.Records))
	}
	if len(snap.Rules) != 3 {
		t.Errorf("rules = %d, want 3", len(snap.Rules))
	}
	if snap.Totals.Synthesized != 5 {
		t.Errorf("synthesized = %d, want 5", snap.Totals.Synthesized)
	}
	if snap.AnalysisAvailable {
		t.Error("analysis reported available without a credential")
	}
}

func TestRecords(t *testing.T) {
	env := newTestEnv(t, 30)

	t.Run("limit", func(t *testing.T) {
		resp := env.do(t, http.MethodGet, "/api/v1/records?limit=4")
		var body struct {
			Records []json.RawMessage `json:"records"`
			Total   int               `json:"total"`
		}
		decode(t, resp, &body)
		if body.Total != 4 || len(body.Records) != 4 {
			t.Errorf("total = %d, records = %d, want 4", body.Total, len(body.Records))
		}
	})

	t.Run("status filter", func(t *testing.T) {
		resp := env.do(t, http.MethodGet, "/api/v1/records?status=allowed")
		var body struct {
			Records []struct {
				Status string `json:"status"`
			} `json:"records"`
		}
		decode(t, resp, &body)
		for _, r := range body.Records {
			if r.Status != "ALLOWED" {
				t.Errorf("filtered record has status %s", r.Status)
			}
		}
	})

	t.Run("invalid query", func(t *testing.T) {
		for _, q := range []string{"?status=DROPPED", "?limit=-1", "?limit=x"} {
			resp := env.do(t, http.MethodGet, "/api/v1/records"+q)
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("%s: status %d, want 400", q, resp.StatusCode)
			}
		}
	})
}

func TestBuckets(t *testing.T) {
	env := newTestEnv(t, 25)

	resp := env.do(t, http.MethodGet, "/api/v1/buckets")
	var body struct {
		Buckets []struct {
			Time    string `json:"time"`
			Allowed int    `json:"allowed"`
			Blocked int    `json:"blocked"`
		} `json:"buckets"`
	}
	decode(t, resp, &body)
	if len(body.Buckets) != 20 {
		t.Errorf("buckets = %d, want 20", len(body.Buckets))
	}
}

func TestToggleRule(t *testing.T) {
	env := newTestEnv(t, 0)

	resp := env.do(t, http.MethodPost, "/api/v1/rules/rule-2/toggle")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d, want 200", resp.StatusCode)
	}
	var rule rules.Rule
	decode(t, resp, &rule)
	if rule.ID != "rule-2" || rule.Active {
		t.Errorf("rule = %+v, want rule-2 inactive", rule)
	}

	resp = env.do(t, http.MethodGet, "/api/v1/rules")
	var list struct {
		Active int `json:"active"`
	}
	decode(t, resp, &list)
	if list.Active != 2 {
		t.Errorf("active = %d, want 2", list.Active)
	}
}

func TestToggleRule_Unknown(t *testing.T) {
	env := newTestEnv(t, 0)

	resp := env.do(t, http.MethodPost, "/api/v1/rules/rule-404/toggle")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status %d, want 404", resp.StatusCode)
	}
	var apiErr APIError
	decode(t, resp, &apiErr)
	if apiErr.Code != CodeRuleNotFound {
		t.Errorf("code = %q, want %q", apiErr.Code, CodeRuleNotFound)
	}
}

func TestSelect(t *testing.T) {
	env := newTestEnv(t, 3)
	snap, _ := env.engine.Snapshot(context.Background())
	target := snap.Records[1]

	resp := env.do(t, http.MethodPost, "/api/v1/records/"+target.ID.String()+"/select")
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status %d, want 204", resp.StatusCode)
	}
	snap, _ = env.engine.Snapshot(context.Background())
	if !snap.IsSelected(target) {
		t.Errorf("selected = %v, want %s", snap.Selected, target.ID)
	}
}

func TestSelect_Errors(t *testing.T) {
	env := newTestEnv(t, 1)

	tests := []struct {
		name   string
		path   string
		status int
		code   string
	}{
		{"malformed id", "/api/v1/records/not-a-uuid/select", http.StatusBadRequest, CodeInvalidID},
		{"unknown record", "/api/v1/records/" + uuid.NewString() + "/select", http.StatusNotFound, CodeRecordNotFound},
		{"unknown analyze", "/api/v1/records/" + uuid.NewString() + "/analyze", http.StatusNotFound, CodeRecordNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.do(t, http.MethodPost, tt.path)
			if resp.StatusCode != tt.status {
				t.Fatalf("status %d, want %d", resp.StatusCode, tt.status)
			}
			var apiErr APIError
			decode(t, resp, &apiErr)
			if apiErr.Code != tt.code {
				t.Errorf("code = %q, want %q", apiErr.Code, tt.code)
			}
		})
	}
}

func TestAnalyze(t *testing.T) {
	env := newTestEnv(t, 2)
	snap, _ := env.engine.Snapshot(context.Background())
	target := snap.Records[0]

	resp := env.do(t, http.MethodPost, "/api/v1/records/"+target.ID.String()+"/analyze")
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status %d, want 202", resp.StatusCode)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		var state dashboard.Snapshot
		decode(t, env.do(t, http.MethodGet, "/api/v1/state"), &state)
		if state.Analysis != nil {
			if *state.Analysis != analysis.UnconfiguredResult() {
				t.Errorf("analysis = %+v, want unconfigured fallback", *state.Analysis)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("analysis never appeared in state")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestToggleWallet(t *testing.T) {
	env := newTestEnv(t, 0)

	var body map[string]interface{}
	decode(t, env.do(t, http.MethodPost, "/api/v1/wallet/toggle"), &body)
	if body["connected"] != true || body["address"] != dashboard.WalletAddress {
		t.Errorf("body = %v", body)
	}
	decode(t, env.do(t, http.MethodPost, "/api/v1/wallet/toggle"), &body)
	if body["connected"] != false {
		t.Errorf("body = %v", body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, 3)

	resp := env.do(t, http.MethodGet, "/metrics")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d, want 200", resp.StatusCode)
	}
	data, _ := io.ReadAll(resp.Body)
	for _, want := range []string{"chainguard_records_synthesized_total", "chainguard_block_height"} {
		if !strings.Contains(string(data), want) {
			t.Errorf("metrics output missing %s", want)
		}
	}
}

func TestMethodNotAllowed(t *testing.T) {
	env := newTestEnv(t, 0)

	resp := env.do(t, http.MethodGet, "/api/v1/wallet/toggle")
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status %d, want 405", resp.StatusCode)
	}
}
