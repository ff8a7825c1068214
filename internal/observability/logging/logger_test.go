package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNewJSONIncludesServiceAndFiltersLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "worker", "warn", "json")

	logger.Info("ignored")
	logger.Warn("target_failed", "target", "smithlaw.com")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line, got %q", buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if entry["service"] != "worker" || entry["msg"] != "target_failed" || entry["target"] != "smithlaw.com" {
		t.Fatalf("unexpected entry %v", entry)
	}
}

func TestNewTextFormat(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, "cli", "debug", "TEXT").Debug("document_embedded", "chunks", 3)
	if !strings.Contains(buf.String(), "msg=document_embedded") || !strings.Contains(buf.String(), "chunks=3") {
		t.Fatalf("unexpected text output %q", buf.String())
	}
}
