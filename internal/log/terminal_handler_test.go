package log

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func handle(t *testing.T, h slog.Handler, level slog.Level, msg string, attrs ...slog.Attr) {
	t.Helper()
	r := slog.NewRecord(time.Date(2026, 1, 15, 10, 30, 45, 123000000, time.UTC), level, msg, 0)
	r.AddAttrs(attrs...)
	if err := h.Handle(context.Background(), r); err != nil {
		t.Fatalf("Handle() error: %v", err)
	}
}

func TestTerminalHandler_Format(t *testing.T) {
	var buf bytes.Buffer
	h := newTerminalHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})

	handle(t, h, slog.LevelInfo, "file observed", slog.String("canonical_id", "urn:sha256:abc"))
	output := buf.String()

	for _, want := range []string{"10:30:45.123", "INF", "file observed", "canonical_id=", "urn:sha256:abc"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output, got: %s", want, output)
		}
	}
	if !strings.HasSuffix(output, "\n") {
		t.Errorf("expected a trailing newline, got: %q", output)
	}
}

func TestTerminalHandler_Levels(t *testing.T) {
	tests := []struct {
		level    slog.Level
		expected string
		colour   string
	}{
		{slog.LevelDebug, "DBG", ansiCyan},
		{slog.LevelInfo, "INF", ansiGreen},
		{slog.LevelWarn, "WRN", ansiYellow},
		{slog.LevelError, "ERR", ansiRed},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			var buf bytes.Buffer
			h := newTerminalHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})

			handle(t, h, tt.level, "msg")

			if !strings.Contains(buf.String(), tt.colour+tt.expected+ansiReset) {
				t.Errorf("expected coloured %s in output, got: %q", tt.expected, buf.String())
			}
		})
	}
}

func TestTerminalHandler_Enabled(t *testing.T) {
	h := newTerminalHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelWarn})

	if h.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("INFO should be disabled at WARN level")
	}
	if !h.Enabled(context.Background(), slog.LevelError) {
		t.Error("ERROR should be enabled at WARN level")
	}

	def := newTerminalHandler(&bytes.Buffer{}, nil)
	if def.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("DEBUG should be disabled at the default level")
	}
}

func TestTerminalHandler_FiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newTerminalHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))

	logger.Debug("debug")
	logger.Info("info")
	logger.Warn("warn")
	logger.Error("error")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Errorf("expected 2 log lines, got %d: %s", len(lines), buf.String())
	}
}

func TestTerminalHandler_DecisionColours(t *testing.T) {
	tests := []struct {
		decision string
		colour   string
	}{
		{"create", ansiGreen},
		{"merge", ansiYellow},
		{"review", ansiBlue},
	}

	for _, tt := range tests {
		t.Run(tt.decision, func(t *testing.T) {
			var buf bytes.Buffer
			h := newTerminalHandler(&buf, nil)

			handle(t, h, slog.LevelInfo, "decision applied", slog.String("decision", tt.decision))

			if !strings.Contains(buf.String(), tt.colour+tt.decision+ansiReset) {
				t.Errorf("expected %s coloured, got: %q", tt.decision, buf.String())
			}
		})
	}

	var buf bytes.Buffer
	handle(t, newTerminalHandler(&buf, nil), slog.LevelInfo, "m", slog.String("decision", "unknown"))
	if !strings.Contains(buf.String(), "decision="+ansiReset+"unknown") {
		t.Errorf("unknown decisions should be plain, got: %q", buf.String())
	}
}

func TestTerminalHandler_ErrorsAreRed(t *testing.T) {
	var buf bytes.Buffer
	h := newTerminalHandler(&buf, nil)

	handle(t, h, slog.LevelWarn, "merge failed", slog.String("error", "entity already merged"))

	if !strings.Contains(buf.String(), ansiRed+`"entity already merged"`+ansiReset) {
		t.Errorf("expected quoted red error, got: %q", buf.String())
	}
}

func TestTerminalHandler_WithAttrs(t *testing.T) {
	var buf bytes.Buffer
	h := newTerminalHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})

	h2 := h.WithAttrs([]slog.Attr{slog.String("run_id", "r1")})
	handle(t, h2, slog.LevelInfo, "item processed", slog.Int("processed", 3))

	output := buf.String()
	if !strings.Contains(output, "run_id=") || !strings.Contains(output, "r1") {
		t.Errorf("expected run_id attr, got: %s", output)
	}
	if strings.Index(output, "run_id=") > strings.Index(output, "processed=") {
		t.Errorf("handler attrs should come before record attrs, got: %s", output)
	}

	buf.Reset()
	handle(t, h, slog.LevelInfo, "plain")
	if strings.Contains(buf.String(), "run_id") {
		t.Errorf("WithAttrs must not change the parent handler, got: %s", buf.String())
	}
}

func TestTerminalHandler_WithGroup(t *testing.T) {
	var buf bytes.Buffer
	h := newTerminalHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})

	if h.WithGroup("") != slog.Handler(h) {
		t.Error("WithGroup with empty string should return same handler")
	}

	handle(t, h.WithGroup("merge").WithGroup("request"), slog.LevelInfo, "msg", slog.String("survivor", "urn:uuid:a"))
	if !strings.Contains(buf.String(), "merge.request.survivor=") {
		t.Errorf("expected nested group key, got: %s", buf.String())
	}
}

func TestTerminalHandler_GroupAttr(t *testing.T) {
	var buf bytes.Buffer
	h := newTerminalHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})

	handle(t, h, slog.LevelInfo, "msg", slog.Group("stats",
		slog.Int64("files", 10),
		slog.Int64("entities", 4),
	))

	output := buf.String()
	if !strings.Contains(output, "stats.files=") || !strings.Contains(output, "stats.entities=") {
		t.Errorf("expected grouped stats attrs, got: %s", output)
	}
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		value slog.Value
		want  string
	}{
		{slog.StringValue("plain"), "plain"},
		{slog.StringValue("two words"), `"two words"`},
		{slog.StringValue("a=b"), `"a=b"`},
		{slog.StringValue(""), `""`},
		{slog.IntValue(42), "42"},
	}

	for _, tt := range tests {
		if got := formatValue(tt.value); got != tt.want {
			t.Errorf("formatValue(%v) = %s, want %s", tt.value, got, tt.want)
		}
	}
}
