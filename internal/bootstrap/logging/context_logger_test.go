package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestWithAttrsOverridesByKey(t *testing.T) {
	var buf bytes.Buffer
	ctx := WithLogger(context.Background(), New(&buf, "json", "info"))
	ctx = WithAttrs(ctx, slog.String("component", "a"), slog.String("request_id", "r1"))
	ctx = WithAttrs(ctx, slog.String("component", "b"))

	Info(ctx, "hello", slog.Int64("elapsed_ms", 3))

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line: %v (%s)", err, buf.String())
	}
	if line["component"] != "b" {
		t.Fatalf("component = %v, want b", line["component"])
	}
	if line["request_id"] != "r1" {
		t.Fatalf("request_id = %v, want r1", line["request_id"])
	}
	if line["elapsed_ms"] != float64(3) {
		t.Fatalf("elapsed_ms = %v, want 3", line["elapsed_ms"])
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	ctx := WithLogger(context.Background(), New(&buf, "text", "warn"))

	Info(ctx, "dropped")
	Debug(ctx, "dropped")
	if buf.Len() != 0 {
		t.Fatalf("unexpected output %q", buf.String())
	}

	Warn(ctx, "kept")
	if buf.Len() == 0 {
		t.Fatalf("warn line missing")
	}
}

func TestWithTelemetryWithoutSpan(t *testing.T) {
	ctx := context.Background()
	if got := WithTelemetry(ctx); len(Attrs(got)) != 0 {
		t.Fatalf("attrs = %v, want none", Attrs(got))
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":        slog.LevelInfo,
		"DEBUG":   slog.LevelDebug,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
