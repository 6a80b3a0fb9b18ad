package telemetry

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func lastLogEntry(t *testing.T, home string) map[string]any {
	t.Helper()
	raw, err := os.ReadFile(filepath.Join(home, "logs", "system.jsonl"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) == "" {
		t.Fatal("expected at least one log line")
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &entry); err != nil {
		t.Fatalf("unmarshal log json: %v", err)
	}
	return entry
}

func TestNewLogger_EmitsStructuredSchema(t *testing.T) {
	home := t.TempDir()
	logger, closer, err := NewLogger(home, "debug", true)
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	defer closer.Close()

	logger.Info("visit tracked", "session_id", "s1", "status", "page_opened")

	entry := lastLogEntry(t, home)
	for _, key := range []string{"timestamp", "level", "msg", "component"} {
		if _, ok := entry[key]; !ok {
			t.Fatalf("missing required key %q in log entry: %#v", key, entry)
		}
	}
	if entry["component"] != "decoy" {
		t.Fatalf("expected component=decoy, got %#v", entry["component"])
	}
	if entry["session_id"] != "s1" {
		t.Fatalf("expected session_id propagation, got %#v", entry["session_id"])
	}
}

func TestNewLogger_RedactsSecretsAndEmails(t *testing.T) {
	home := t.TempDir()
	logger, closer, err := NewLogger(home, "info", true)
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	defer closer.Close()

	logger.Info("step 3 submitted",
		"admin_token", "abc123",
		"detail", "visitor typed mario.rossi@example.it",
	)

	entry := lastLogEntry(t, home)
	if entry["admin_token"] != "[REDACTED]" {
		t.Fatalf("expected token redaction, got %#v", entry["admin_token"])
	}
	detail, _ := entry["detail"].(string)
	if strings.Contains(detail, "mario.rossi") {
		t.Fatalf("email leaked into log: %q", detail)
	}
}

func TestNewLogger_LevelFiltering(t *testing.T) {
	home := t.TempDir()
	logger, closer, err := NewLogger(home, "warn", true)
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	defer closer.Close()

	logger.Info("should be dropped")
	logger.Warn("should be kept")

	raw, err := os.ReadFile(filepath.Join(home, "logs", "system.jsonl"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if strings.Contains(string(raw), "should be dropped") {
		t.Fatal("info line leaked through warn level")
	}
	if !strings.Contains(string(raw), "should be kept") {
		t.Fatal("warn line missing")
	}
}
