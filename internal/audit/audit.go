// Package audit keeps an append-only trail of the destructive and
// privileged operations: schema self-heals, store wipes, admin auth
// failures. Collected form data can be destroyed with one call, so every
// such call leaves a line behind.
package audit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/basket/decoy/internal/shared"
)

// Event names recorded by the rest of the codebase.
const (
	EventSchemaHeal = "schema_heal"
	EventStoreWipe  = "store_wipe"
	EventAuthDenied = "admin_auth_denied"
)

type entry struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Subject   string `json:"subject,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

var (
	mu               sync.Mutex
	file             *os.File
	destructiveCount atomic.Int64
)

// Init opens <home>/logs/audit.jsonl for appending. Idempotent.
func Init(homeDir string) error {
	mu.Lock()
	defer mu.Unlock()
	if file != nil {
		return nil
	}
	logDir := filepath.Join(homeDir, "logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(filepath.Join(logDir, "audit.jsonl"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	file = f
	return nil
}

func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if file == nil {
		return nil
	}
	err := file.Close()
	file = nil
	return err
}

// DestructiveCount returns the number of data-destroying events recorded
// since startup (heals and wipes).
func DestructiveCount() int64 {
	return destructiveCount.Load()
}

// Record appends one audit line. A no-op before Init, so library code can
// call it unconditionally.
func Record(event, subject, detail string) {
	if event == EventSchemaHeal || event == EventStoreWipe {
		destructiveCount.Add(1)
	}

	// Secrets and addresses never land in the trail.
	subject = shared.Redact(subject)
	detail = shared.Redact(detail)

	mu.Lock()
	defer mu.Unlock()
	if file == nil {
		return
	}
	ev := entry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Event:     event,
		Subject:   subject,
		Detail:    detail,
	}
	b, err := json.Marshal(ev)
	if err == nil {
		_, _ = file.Write(append(b, '\n'))
	}
}
