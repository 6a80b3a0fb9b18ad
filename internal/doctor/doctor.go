// Package doctor runs preflight diagnostics for a decoy deployment:
// config, store, filesystem permissions and listen address.
package doctor

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/basket/decoy/internal/config"
	"github.com/basket/decoy/internal/sheet"
	"github.com/basket/decoy/internal/tracking"
)

type CheckResult struct {
	Name    string `json:"name"`
	Status  string `json:"status"` // "PASS", "FAIL", "WARN", "SKIP"
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

type Diagnosis struct {
	Timestamp time.Time     `json:"timestamp"`
	System    SystemInfo    `json:"system"`
	Results   []CheckResult `json:"results"`
}

type SystemInfo struct {
	OS      string `json:"os"`
	Arch    string `json:"arch"`
	Go      string `json:"go_version"`
	Version string `json:"version"`
}

// Healthy reports whether no check failed.
func (d Diagnosis) Healthy() bool {
	for _, r := range d.Results {
		if r.Status == "FAIL" {
			return false
		}
	}
	return true
}

// Run executes all diagnostic checks.
func Run(ctx context.Context, cfg *config.Config, version string) Diagnosis {
	d := Diagnosis{
		Timestamp: time.Now().UTC(),
		System: SystemInfo{
			OS:      runtime.GOOS,
			Arch:    runtime.GOARCH,
			Go:      runtime.Version(),
			Version: version,
		},
	}

	checks := []func(context.Context, *config.Config) CheckResult{
		checkConfig,
		checkStore,
		checkPermissions,
		checkBindAddr,
		checkAdminToken,
	}

	for _, check := range checks {
		d.Results = append(d.Results, check(ctx, cfg))
	}

	return d
}

func checkConfig(_ context.Context, cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Name: "Config", Status: "FAIL", Message: "Configuration not loaded"}
	}
	return CheckResult{
		Name:    "Config",
		Status:  "PASS",
		Message: fmt.Sprintf("Loaded from %s", cfg.HomeDir),
		Detail:  cfg.Fingerprint(),
	}
}

// checkStore opens the configured backend and verifies the canonical
// header is in place, writing it if the store is empty.
func checkStore(ctx context.Context, cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Name: "Store", Status: "SKIP", Message: "Config missing"}
	}
	if cfg.Store.Backend == "memory" {
		return CheckResult{Name: "Store", Status: "WARN", Message: "Memory backend: data is lost on exit"}
	}

	grid, err := sheet.OpenSQLite(cfg.Store.DBPath)
	if err != nil {
		return CheckResult{Name: "Store", Status: "FAIL", Message: fmt.Sprintf("Open failed: %v", err)}
	}
	defer grid.Close()

	tracker := tracking.NewTracker(grid, nil)
	if err := tracker.EnsureSchema(ctx); err != nil {
		return CheckResult{Name: "Store", Status: "FAIL", Message: fmt.Sprintf("Schema check failed: %v", err)}
	}
	records, err := tracker.ReadAll(ctx)
	if err != nil {
		return CheckResult{Name: "Store", Status: "FAIL", Message: fmt.Sprintf("Read failed: %v", err)}
	}
	return CheckResult{
		Name:    "Store",
		Status:  "PASS",
		Message: fmt.Sprintf("Schema valid, %d session records", len(records)),
		Detail:  cfg.Store.DBPath,
	}
}

func checkPermissions(_ context.Context, cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Name: "Permissions", Status: "SKIP", Message: "Config missing"}
	}

	for _, dir := range []string{cfg.HomeDir, cfg.Report.OutputDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return CheckResult{Name: "Permissions", Status: "FAIL", Message: fmt.Sprintf("Cannot create %s: %v", dir, err)}
		}
		testFile := filepath.Join(dir, ".write_test")
		if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
			return CheckResult{Name: "Permissions", Status: "FAIL", Message: fmt.Sprintf("%s unwritable: %v", dir, err)}
		}
		os.Remove(testFile)
	}

	return CheckResult{Name: "Permissions", Status: "PASS", Message: "Home and report directories writable"}
}

// checkBindAddr probes the listen address. A bind failure usually means a
// decoy instance is already running there.
func checkBindAddr(ctx context.Context, cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Name: "Bind Address", Status: "SKIP", Message: "Config missing"}
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", cfg.BindAddr)
	if err != nil {
		return CheckResult{
			Name:    "Bind Address",
			Status:  "WARN",
			Message: fmt.Sprintf("%s not bindable (server already running?)", cfg.BindAddr),
			Detail:  err.Error(),
		}
	}
	ln.Close()
	return CheckResult{Name: "Bind Address", Status: "PASS", Message: fmt.Sprintf("%s available", cfg.BindAddr)}
}

func checkAdminToken(_ context.Context, cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Name: "Admin Token", Status: "SKIP", Message: "Config missing"}
	}
	if cfg.Admin.Token == "" {
		return CheckResult{
			Name:    "Admin Token",
			Status:  "WARN",
			Message: "No admin token configured; /admin endpoints and /metrics are disabled",
			Detail:  "Set admin.token in config.yaml or DECOY_ADMIN_TOKEN",
		}
	}
	return CheckResult{Name: "Admin Token", Status: "PASS", Message: "Admin endpoints enabled"}
}
