package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDisabledByDefault(t *testing.T) {
	dir := t.TempDir()
	if err := Initialize(dir); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	defer CloseAll()

	if IsDebugMode() {
		t.Error("debug mode should be off without a config file")
	}

	// No-op logger must be safe to use.
	l := Get(CategoryStore)
	l.Info("should not panic")
	l.Error("should not panic either")

	if _, err := os.Stat(filepath.Join(dir, ".gumshoe", "logs")); !os.IsNotExist(err) {
		t.Error("logs directory should not be created in production mode")
	}
}

func TestDebugModeWritesCategoryFiles(t *testing.T) {
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, ".gumshoe")
	if err := os.MkdirAll(cfgDir, 0755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	cfg := map[string]interface{}{
		"logging": map[string]interface{}{
			"debug_mode": true,
			"level":      "debug",
		},
	}
	data, _ := json.Marshal(cfg)
	if err := os.WriteFile(filepath.Join(cfgDir, "config.json"), data, 0644); err != nil {
		t.Fatalf("write config failed: %v", err)
	}

	if err := Initialize(dir); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	defer CloseAll()

	Investigation("phase advanced from %s to %s", "intake", "blast_radius")
	CloseAll()

	entries, err := os.ReadDir(filepath.Join(cfgDir, "logs"))
	if err != nil {
		t.Fatalf("logs dir missing: %v", err)
	}
	found := false
	for _, e := range entries {
		if strings.Contains(e.Name(), "investigation") {
			found = true
		}
	}
	if !found {
		t.Error("expected an investigation category log file")
	}
}

func TestTimer(t *testing.T) {
	timer := StartTimer(CategoryStore, "test-op")
	if d := timer.Stop(); d < 0 {
		t.Errorf("negative duration: %v", d)
	}
}
