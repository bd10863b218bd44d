package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for input, want := range cases {
		if got := ParseLevel(input); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestNewWithWriter(t *testing.T) {
	t.Run("json output filtered by level", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewWithWriter(&buf, "warn", "json")
		logger.Info("dropped")
		logger.Warn("kept", "resource_id", "room-1")

		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		if len(lines) != 1 {
			t.Fatalf("expected one line, got %d: %q", len(lines), buf.String())
		}
		var entry map[string]any
		if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
			t.Fatalf("expected JSON output: %v", err)
		}
		if entry["msg"] != "kept" || entry["resource_id"] != "room-1" {
			t.Fatalf("unexpected entry: %v", entry)
		}
	})

	t.Run("text output", func(t *testing.T) {
		var buf bytes.Buffer
		NewWithWriter(&buf, "info", "TEXT").Info("hello")
		if !strings.Contains(buf.String(), "msg=hello") {
			t.Fatalf("expected text handler output, got %q", buf.String())
		}
	})
}

func TestContextWithLogger(t *testing.T) {
	if FromContext(context.Background()) != nil {
		t.Fatalf("expected no logger on a bare context")
	}
	logger := slog.Default()
	ctx := ContextWithLogger(context.Background(), logger)
	if FromContext(ctx) != logger {
		t.Fatalf("expected the stored logger")
	}
	if ContextWithLogger(ctx, nil) != ctx {
		t.Fatalf("expected a nil logger to leave the context unchanged")
	}
}
