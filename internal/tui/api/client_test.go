package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	chainapi "chainguard/internal/api"
	"chainguard/internal/config"
	"chainguard/internal/dashboard"
	"chainguard/internal/rules"
	"chainguard/internal/traffic"
)

func TestClientPaths(t *testing.T) {
	id := uuid.MustParse("7b0c6c1e-5d7a-4b7e-9a53-1d2f3e4a5b6c")

	tests := []struct {
		name   string
		call   func(c *Client) error
		method string
		path   string
	}{
		{"snapshot", func(c *Client) error { _, err := c.Snapshot(context.Background()); return err }, http.MethodGet, "/api/v1/state"},
		{"select", func(c *Client) error { return c.Select(context.Background(), id) }, http.MethodPost, "/api/v1/records/" + id.String() + "/select"},
		{"analyze", func(c *Client) error { return c.Analyze(context.Background(), id) }, http.MethodPost, "/api/v1/records/" + id.String() + "/analyze"},
		{"toggle rule", func(c *Client) error { _, err := c.ToggleRule(context.Background(), "rule-1"); return err }, http.MethodPost, "/api/v1/rules/rule-1/toggle"},
		{"toggle wallet", func(c *Client) error { _, err := c.ToggleWallet(context.Background()); return err }, http.MethodPost, "/api/v1/wallet/toggle"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var method, path string
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				method, path = r.Method, r.URL.Path
				w.Header().Set("Content-Type", "application/json")
				w.Write([]byte(`{}`))
			}))
			defer ts.Close()

			if err := tt.call(NewClient(ts.URL + "/")); err != nil {
				t.Fatalf("call error: %v", err)
			}
			if method != tt.method || path != tt.path {
				t.Errorf("request = %s %s, want %s %s", method, path, tt.method, tt.path)
			}
		})
	}
}

func TestClientErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"record not found", http.StatusNotFound, `{"code":"RECORD_NOT_FOUND","message":"record not found"}`, dashboard.ErrRecordNotFound},
		{"rule not found", http.StatusNotFound, `{"code":"RULE_NOT_FOUND","message":"rule not found"}`, rules.ErrRuleNotFound},
		{"unavailable", http.StatusServiceUnavailable, `{"code":"UNAVAILABLE","message":"dashboard engine unavailable"}`, dashboard.ErrStopped},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer ts.Close()

			_, err := NewClient(ts.URL).ToggleRule(context.Background(), "rule-9")
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestClientUnstructuredError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer ts.Close()

	_, err := NewClient(ts.URL).Snapshot(context.Background())
	if err == nil {
		t.Fatal("expected error for 502")
	}
}

func TestClientConnectionFailure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	ts.Close()

	if _, err := NewClient(ts.URL).Snapshot(context.Background()); err == nil {
		t.Error("expected connection error")
	}
}

func TestClientAgainstServer(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine, err := dashboard.New(dashboard.Config{
		SynthesisInterval: time.Hour,
		BlockInterval:     time.Hour,
		Synthesizer:       traffic.SynthesizerConfig{Seed: 7},
	}, dashboard.WithLogger(logger))
	if err != nil {
		t.Fatalf("dashboard.New() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go engine.Run(ctx)
	defer func() {
		cancel()
		<-engine.Done()
	}()
	for i := 0; i < 3; i++ {
		engine.Synthesize(context.Background())
	}

	srv := chainapi.NewServer(engine, chainapi.Options{
		Server:   config.DefaultConfig().Server,
		Gatherer: prometheus.NewRegistry(),
		Logger:   logger,
	})
	defer srv.Shutdown(context.Background())
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	client := NewClient(ts.URL)

	snap, err := client.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if len(snap.Records) != 3 {
		t.Fatalf("records = %d, want 3", len(snap.Records))
	}

	target := snap.Records[2]
	if err := client.Select(context.Background(), target.ID); err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	snap, _ = client.Snapshot(context.Background())
	if !snap.IsSelected(target) {
		t.Error("selection not visible through the API")
	}

	rule, err := client.ToggleRule(context.Background(), "rule-3")
	if err != nil || rule.Active {
		t.Errorf("ToggleRule() = %+v, %v; want rule-3 inactive", rule, err)
	}
	if _, err := client.ToggleRule(context.Background(), "rule-77"); !errors.Is(err, rules.ErrRuleNotFound) {
		t.Errorf("unknown rule error = %v", err)
	}
	if err := client.Analyze(context.Background(), uuid.New()); !errors.Is(err, dashboard.ErrRecordNotFound) {
		t.Errorf("unknown record error = %v", err)
	}

	connected, err := client.ToggleWallet(context.Background())
	if err != nil || !connected {
		t.Errorf("ToggleWallet() = %v, %v; want connected", connected, err)
	}
}
