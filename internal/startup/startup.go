// Package startup provides startup diagnostics for the serve command
package startup

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"time"

	"chainguard/internal/config"
)

// DiagnosticResult represents the result of a diagnostic check
type DiagnosticResult struct {
	Name    string
	Status  Status
	Message string
	Details map[string]string
}

// Status represents the status of a diagnostic check
type Status int

const (
	StatusOK Status = iota
	StatusWarning
	StatusError
	StatusSkipped
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusWarning:
		return "WARNING"
	case StatusError:
		return "ERROR"
	case StatusSkipped:
		return "SKIPPED"
	default:
		return "UNKNOWN"
	}
}

const brokerDialTimeout = 2 * time.Second

// Diagnostics runs the startup checks
type Diagnostics struct {
	cfg        *config.Config
	configPath string
	results    []DiagnosticResult
	logger     *slog.Logger

	listen func(network, addr string) (net.Listener, error)
	dial   func(ctx context.Context, network, addr string) (net.Conn, error)
}

// NewDiagnostics creates a diagnostics runner. configPath is the file the
// configuration was resolved from.
func NewDiagnostics(cfg *config.Config, configPath string, logger *slog.Logger) *Diagnostics {
	dialer := &net.Dialer{Timeout: brokerDialTimeout}
	return &Diagnostics{
		cfg:        cfg,
		configPath: configPath,
		logger:     logger,
		listen:     net.Listen,
		dial:       dialer.DialContext,
	}
}

// RunAll runs every check, logs a summary and returns the results. It must
// run before the HTTP server binds its port.
func (d *Diagnostics) RunAll(ctx context.Context) []DiagnosticResult {
	d.logger.Info("running startup diagnostics")

	d.checkSystem()
	d.checkConfiguration()
	d.checkPort()
	d.checkAnalysis()
	d.checkHardening()
	d.checkFeed(ctx)
	d.checkLogFile()

	d.logSummary()
	return d.results
}

func (d *Diagnostics) addResult(result DiagnosticResult) {
	d.results = append(d.results, result)

	attrs := []any{
		"check", result.Name,
		"status", result.Status.String(),
	}
	if result.Message != "" {
		attrs = append(attrs, "message", result.Message)
	}
	for k, v := range result.Details {
		attrs = append(attrs, k, v)
	}

	switch result.Status {
	case StatusOK:
		d.logger.Info("diagnostic check passed", attrs...)
	case StatusWarning:
		d.logger.Warn("diagnostic check warning", attrs...)
	case StatusError:
		d.logger.Error("diagnostic check failed", attrs...)
	case StatusSkipped:
		d.logger.Debug("diagnostic check skipped", attrs...)
	}
}

func (d *Diagnostics) checkSystem() {
	d.addResult(DiagnosticResult{
		Name:    "runtime",
		Status:  StatusOK,
		Message: "Go runtime detected",
		Details: map[string]string{
			"go_version": runtime.Version(),
			"os":         runtime.GOOS,
			"arch":       runtime.GOARCH,
			"cpus":       fmt.Sprintf("%d", runtime.NumCPU()),
		},
	})
}

func (d *Diagnostics) checkConfiguration() {
	if _, err := os.Stat(d.configPath); os.IsNotExist(err) {
		d.addResult(DiagnosticResult{
			Name:    "config_file",
			Status:  StatusWarning,
			Message: "Config file not found, using defaults",
			Details: map[string]string{"path": d.configPath},
		})
	} else {
		d.addResult(DiagnosticResult{
			Name:    "config_file",
			Status:  StatusOK,
			Message: "Config file found",
			Details: map[string]string{"path": d.configPath},
		})
	}

	if err := d.cfg.Validate(); err != nil {
		d.addResult(DiagnosticResult{
			Name:    "config_validation",
			Status:  StatusError,
			Message: fmt.Sprintf("Configuration validation failed: %s", err),
		})
		return
	}
	d.addResult(DiagnosticResult{
		Name:    "config_validation",
		Status:  StatusOK,
		Message: "Configuration is valid",
	})
}

func (d *Diagnostics) checkPort() {
	port := d.cfg.Server.HTTPPort
	details := map[string]string{"port": fmt.Sprintf("%d", port)}

	listener, err := d.listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		d.addResult(DiagnosticResult{
			Name:    "port_http",
			Status:  StatusError,
			Message: fmt.Sprintf("Port %d is not available: %s", port, err),
			Details: details,
		})
		return
	}
	listener.Close()
	d.addResult(DiagnosticResult{
		Name:    "port_http",
		Status:  StatusOK,
		Message: fmt.Sprintf("Port %d is available", port),
		Details: details,
	})
}

func (d *Diagnostics) checkAnalysis() {
	if d.cfg.Analysis.APIKey == "" {
		d.addResult(DiagnosticResult{
			Name:    "analysis_credential",
			Status:  StatusWarning,
			Message: "No API key configured, AI audit returns the fallback result",
			Details: map[string]string{"recommendation": "Set API_KEY or analysis.api_key"},
		})
		return
	}
	d.addResult(DiagnosticResult{
		Name:    "analysis_credential",
		Status:  StatusOK,
		Message: "API key configured",
		Details: map[string]string{
			"model":   d.cfg.Analysis.Model,
			"timeout": d.cfg.Analysis.Timeout.String(),
		},
	})
}

func (d *Diagnostics) checkHardening() {
	rl := d.cfg.Server.RateLimit
	if !rl.Enabled {
		d.addResult(DiagnosticResult{
			Name:    "rate_limiting",
			Status:  StatusWarning,
			Message: "Rate limiting is DISABLED",
		})
	} else {
		d.addResult(DiagnosticResult{
			Name:    "rate_limiting",
			Status:  StatusOK,
			Message: "Rate limiting is enabled",
			Details: map[string]string{
				"requests_per_ip": fmt.Sprintf("%d", rl.RequestsPerIP),
				"window":          rl.WindowSize.String(),
			},
		})
	}

	cors := d.cfg.Server.CORS
	if cors.Enabled && slices.Contains(cors.AllowedOrigins, "*") {
		d.addResult(DiagnosticResult{
			Name:    "cors",
			Status:  StatusWarning,
			Message: "CORS allows any origin",
			Details: map[string]string{"recommendation": "Restrict server.cors.allowed_origins"},
		})
	} else {
		d.addResult(DiagnosticResult{
			Name:    "cors",
			Status:  StatusOK,
			Message: "CORS origins restricted",
		})
	}
}

func (d *Diagnostics) checkFeed(ctx context.Context) {
	if !d.cfg.Feed.Enabled {
		d.addResult(DiagnosticResult{
			Name:    "feed",
			Status:  StatusSkipped,
			Message: "Record feed disabled",
		})
		return
	}

	// Unreachable brokers only warn.
	for _, broker := range d.cfg.Feed.Brokers {
		conn, err := d.dial(ctx, "tcp", broker)
		if err != nil {
			d.addResult(DiagnosticResult{
				Name:    "feed_broker",
				Status:  StatusWarning,
				Message: fmt.Sprintf("Cannot reach broker: %s", err),
				Details: map[string]string{"broker": broker},
			})
			continue
		}
		conn.Close()
		d.addResult(DiagnosticResult{
			Name:    "feed_broker",
			Status:  StatusOK,
			Message: "Broker is reachable",
			Details: map[string]string{"broker": broker, "topic": d.cfg.Feed.Topic},
		})
	}
}

func (d *Diagnostics) checkLogFile() {
	path := d.cfg.Logging.File
	if path == "" {
		d.addResult(DiagnosticResult{
			Name:    "log_file",
			Status:  StatusSkipped,
			Message: "No log file configured",
		})
		return
	}

	dir := filepath.Dir(path)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		d.addResult(DiagnosticResult{
			Name:    "log_file",
			Status:  StatusError,
			Message: "Log file directory does not exist",
			Details: map[string]string{"dir": dir},
		})
		return
	}
	d.addResult(DiagnosticResult{
		Name:    "log_file",
		Status:  StatusOK,
		Message: "Log file directory exists",
		Details: map[string]string{"path": path},
	})
}

func (d *Diagnostics) logSummary() {
	var ok, warnings, errors, skipped int
	for _, r := range d.results {
		switch r.Status {
		case StatusOK:
			ok++
		case StatusWarning:
			warnings++
		case StatusError:
			errors++
		case StatusSkipped:
			skipped++
		}
	}

	d.logger.Info("diagnostics summary",
		"passed", ok,
		"warnings", warnings,
		"errors", errors,
		"skipped", skipped,
	)

	if errors > 0 {
		d.logger.Error("startup diagnostics found critical errors")
	} else if warnings > 0 {
		d.logger.Warn("startup diagnostics found warnings")
	}
}

// HasErrors returns true if any diagnostic check failed
func (d *Diagnostics) HasErrors() bool {
	for _, r := range d.results {
		if r.Status == StatusError {
			return true
		}
	}
	return false
}

// HasWarnings returns true if any diagnostic check has warnings
func (d *Diagnostics) HasWarnings() bool {
	for _, r := range d.results {
		if r.Status == StatusWarning {
			return true
		}
	}
	return false
}

// Errors returns the failed checks.
func (d *Diagnostics) Errors() []DiagnosticResult {
	var out []DiagnosticResult
	for _, r := range d.results {
		if r.Status == StatusError {
			out = append(out, r)
		}
	}
	return out
}
