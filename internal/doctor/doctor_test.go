package doctor

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/basket/decoy/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	home := t.TempDir()
	cfg, err := config.LoadFrom(home)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	cfg.BindAddr = "127.0.0.1:0"
	cfg.Store.DBPath = filepath.Join(home, "decoy.db")
	return &cfg
}

func resultByName(d Diagnosis, name string) (CheckResult, bool) {
	for _, r := range d.Results {
		if r.Name == name {
			return r, true
		}
	}
	return CheckResult{}, false
}

func TestRun_HealthyDeployment(t *testing.T) {
	cfg := testConfig(t)
	d := Run(context.Background(), cfg, "test")

	if !d.Healthy() {
		t.Fatalf("expected healthy diagnosis, got %+v", d.Results)
	}
	store, ok := resultByName(d, "Store")
	if !ok || store.Status != "PASS" {
		t.Fatalf("store check = %+v", store)
	}
	bind, ok := resultByName(d, "Bind Address")
	if !ok || bind.Status != "PASS" {
		t.Fatalf("bind check = %+v", bind)
	}
}

func TestRun_NilConfig(t *testing.T) {
	d := Run(context.Background(), nil, "test")
	if d.Healthy() {
		t.Fatal("nil config should fail the config check")
	}
}

func TestRun_MemoryBackendWarns(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.Backend = "memory"
	d := Run(context.Background(), cfg, "test")

	store, ok := resultByName(d, "Store")
	if !ok || store.Status != "WARN" {
		t.Fatalf("memory backend check = %+v", store)
	}
}

func TestRun_AdminTokenWarns(t *testing.T) {
	cfg := testConfig(t)
	d := Run(context.Background(), cfg, "test")

	tok, ok := resultByName(d, "Admin Token")
	if !ok || tok.Status != "WARN" {
		t.Fatalf("empty admin token check = %+v", tok)
	}

	cfg.Admin.Token = "sekrit"
	d = Run(context.Background(), cfg, "test")
	tok, _ = resultByName(d, "Admin Token")
	if tok.Status != "PASS" {
		t.Fatalf("configured admin token check = %+v", tok)
	}
}
