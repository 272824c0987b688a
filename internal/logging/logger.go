package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Options selects the handler and level.
type Options struct {
	Level  string
	Format string
}

// ParseLevel maps a level name to a slog level. Unknown names map to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New builds a logger writing to w. Sensitive attributes are masked and
// credentials embedded in string values are redacted.
func New(w io.Writer, opts Options) *slog.Logger {
	handlerOpts := &slog.HandlerOptions{
		Level:       ParseLevel(opts.Level),
		ReplaceAttr: redact,
	}

	var handler slog.Handler
	if strings.ToLower(opts.Format) == "text" {
		handler = slog.NewTextHandler(w, handlerOpts)
	} else {
		handler = slog.NewJSONHandler(w, handlerOpts)
	}
	return slog.New(handler)
}

// NewFile builds a logger appending to path. An empty path discards all
// output, which keeps the terminal UI free of log lines.
func NewFile(path string, opts Options) (*slog.Logger, io.Closer, error) {
	if path == "" {
		return New(io.Discard, opts), nopCloser{}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return New(f, opts), f, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func redact(_ []string, a slog.Attr) slog.Attr {
	if IsSensitiveField(a.Key) {
		if a.Value.Kind() == slog.KindString {
			return slog.String(a.Key, MaskAPIKey(a.Value.String()))
		}
		return slog.String(a.Key, MaskedValue)
	}

	switch a.Value.Kind() {
	case slog.KindString:
		if s := a.Value.String(); s != "" {
			if masked := MaskSensitivePatterns(s); masked != s {
				return slog.String(a.Key, masked)
			}
		}
	case slog.KindAny:
		if err, ok := a.Value.Any().(error); ok {
			return slog.String(a.Key, MaskSensitivePatterns(err.Error()))
		}
	}
	return a
}
