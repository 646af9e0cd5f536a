package log

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

// TestSecureHandler_MasksSensitiveKeys tests that sensitive keys are masked.
func TestSecureHandler_MasksSensitiveKeys(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		key      string
		value    string
		wantMask bool
	}{
		{name: "cookie header is masked", key: "cookie", value: "_ga=GA1.2.3", wantMask: true},
		{name: "uppercase key is masked", key: "Set-Cookie", value: "IDE=abc", wantMask: true},
		{name: "cookie value is masked", key: "cookie_value", value: "abc", wantMask: true},
		{name: "keyword inside key is masked", key: "csrf_token", value: "abc", wantMask: true},
		{name: "cookie name is kept", key: "cookie_name", value: "_ga", wantMask: false},
		{name: "site is kept", key: "site", value: "example.cz", wantMask: false},
		{name: "task key is kept", key: "task_key", value: "example.cz/accept", wantMask: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			logger := NewSecureLogger(&buf, true)
			logger.Info("test", tt.key, tt.value)

			out := buf.String()
			if tt.wantMask {
				if strings.Contains(out, tt.value) || !strings.Contains(out, MaskValue) {
					t.Errorf("expected %q to be masked, got %s", tt.key, out)
				}
				return
			}
			if !strings.Contains(out, tt.value) {
				t.Errorf("expected %q to be kept, got %s", tt.key, out)
			}
		})
	}
}

// TestSecureHandler_MasksSensitiveValues tests value pattern masking.
func TestSecureHandler_MasksSensitiveValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		value    string
		wantMask bool
	}{
		{"jwt", "eyJhbGciOiJIUzI1NiJ9.eyJzdWIiOiIxIn0.sig", true},
		{"bearer", "Bearer abc.def", true},
		{"long identifier", strings.Repeat("a1", 25), true},
		{"url", "https://www.example.cz/article?id=1", false},
		{"short word", "accept", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := isSensitiveValue(tt.value); got != tt.wantMask {
				t.Errorf("isSensitiveValue(%q) = %v, expected %v", tt.value, got, tt.wantMask)
			}
		})
	}
}

// TestSecureHandler_GroupsAndAttrs tests masking inside groups and WithAttrs.
func TestSecureHandler_GroupsAndAttrs(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := NewSecureJSONLogger(&buf, false).With("cookie", "sid=1")
	logger.Warn("captured", slog.Group("observation", slog.String("cookie_value", "xyz"), slog.String("name", "lang")))

	out := buf.String()
	if strings.Contains(out, "sid=1") || strings.Contains(out, "xyz") {
		t.Errorf("sensitive values leaked: %s", out)
	}
	if !strings.Contains(out, "lang") {
		t.Errorf("non-sensitive group value missing: %s", out)
	}
}

// TestSecureHandler_LogLevels tests the verbose switch.
func TestSecureHandler_LogLevels(t *testing.T) {
	t.Parallel()

	var quiet, verbose bytes.Buffer
	NewSecureLogger(&quiet, false).Debug("hidden")
	NewSecureLogger(&verbose, true).Debug("shown")

	if quiet.Len() != 0 {
		t.Errorf("debug record written without verbose: %s", quiet.String())
	}

	var info bytes.Buffer
	NewSecureJSONLogger(&info, false).Info("database opened", "path", "/tmp/footprint.db")
	if !strings.Contains(info.String(), "database opened") {
		t.Errorf("info record missing without verbose: %q", info.String())
	}
	if !strings.Contains(verbose.String(), "shown") {
		t.Errorf("debug record missing in verbose mode")
	}
}

// TestNewSecureHandler_NilHandler tests the nil fallback.
func TestNewSecureHandler_NilHandler(t *testing.T) {
	t.Parallel()

	h := NewSecureHandler(nil)
	if h.handler == nil {
		t.Fatal("expected default handler")
	}
}

// TestContextLogger tests storing and retrieving a logger from a context.
func TestContextLogger(t *testing.T) {
	t.Parallel()

	t.Run("default logger without value", func(t *testing.T) {
		t.Parallel()
		if FromContext(context.Background()) == nil {
			t.Error("expected non-nil default logger")
		}
	})

	t.Run("stored logger is returned", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		logger := NewSecureLogger(&buf, true).With("site", "example.cz")
		ctx := WithContext(context.Background(), logger)
		FromContext(ctx).Info("hello")
		if !strings.Contains(buf.String(), "site=example.cz") {
			t.Errorf("expected task attribute in output, got %s", buf.String())
		}
	})
}
