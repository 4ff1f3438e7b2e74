package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"durable-lists/internal/config"
)

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, config.LogConfig{Level: slog.LevelInfo, Format: "json"})
	l.Info("flight linked", slog.String("code", "AV101"))

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("output is not json: %v (%s)", err, buf.String())
	}
	if rec["msg"] != "flight linked" || rec["code"] != "AV101" {
		t.Fatalf("record = %v", rec)
	}
}

func TestNewRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, config.LogConfig{Level: slog.LevelWarn, Format: "text"})
	l.Info("hidden")
	l.Warn("shown")
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Fatalf("unexpected output: %q", out)
	}
}
