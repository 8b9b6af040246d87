package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/zhubert/handoff/paths"
)

// setupTestHome points HOME at a temp dir so Load reads from a clean slate.
func setupTestHome(t *testing.T) string {
	t.Helper()
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv("XDG_DATA_HOME", "")
	t.Setenv("XDG_STATE_HOME", "")
	paths.Reset()
	t.Cleanup(paths.Reset)
	return tmpDir
}

func TestLoad_NoConfigFile(t *testing.T) {
	setupTestHome(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if !cfg.ToolEnabled(ToolPrompt) {
		t.Error("prompt should default to enabled")
	}
	if cfg.GetInteractionWaitMS() != 0 {
		t.Errorf("InteractionWaitMS = %d, want 0", cfg.GetInteractionWaitMS())
	}
	if cfg.GetContinuePrompt() != DefaultContinuePrompt {
		t.Errorf("ContinuePrompt = %q, want default", cfg.GetContinuePrompt())
	}
}

func TestLoad_JSON(t *testing.T) {
	home := setupTestHome(t)
	dir := filepath.Join(home, ".handoff")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	content := `{"tools":{"prompt":false},"interaction_wait_ms":60000,"ui_mode":"dev"}`
	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.ToolEnabled(ToolPrompt) {
		t.Error("prompt should be disabled")
	}
	// Tools the file doesn't mention keep their defaults
	if !cfg.ToolEnabled(ToolGetResult) {
		t.Error("get_result should remain enabled")
	}
	if cfg.GetInteractionWaitMS() != 60000 {
		t.Errorf("InteractionWaitMS = %d, want 60000", cfg.GetInteractionWaitMS())
	}
	if cfg.GetUIMode() != "dev" {
		t.Errorf("UIMode = %q, want dev", cfg.GetUIMode())
	}
}

func TestLoad_YAMLFallback(t *testing.T) {
	home := setupTestHome(t)
	dir := filepath.Join(home, ".handoff")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	content := "interaction_wait_ms: 1500\nauto_start_dev_server: true\n"
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.GetInteractionWaitMS() != 1500 {
		t.Errorf("InteractionWaitMS = %d, want 1500", cfg.GetInteractionWaitMS())
	}
	if !cfg.GetAutoStartDevServer() {
		t.Error("AutoStartDevServer should be true")
	}
}

func TestLoad_JSONWinsOverYAML(t *testing.T) {
	home := setupTestHome(t)
	dir := filepath.Join(home, ".handoff")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte(`{"interaction_wait_ms":100}`), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("interaction_wait_ms: 200\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.GetInteractionWaitMS() != 100 {
		t.Errorf("InteractionWaitMS = %d, want 100 (config.json should win)", cfg.GetInteractionWaitMS())
	}
}

func TestLoad_InvalidWait(t *testing.T) {
	home := setupTestHome(t)
	dir := filepath.Join(home, ".handoff")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte(`{"interaction_wait_ms":-5}`), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(); err == nil {
		t.Error("Load should reject negative interaction_wait_ms")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	home := setupTestHome(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfg.SetToolEnabled(ToolPromptSync, false)
	cfg.SetInteractionWaitMS(30000)

	if err := cfg.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// Saved file lands under ~/.handoff/config.json
	if _, err := os.Stat(filepath.Join(home, ".handoff", "config.json")); err != nil {
		t.Fatalf("config.json not written: %v", err)
	}

	reloaded, err := Load()
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.ToolEnabled(ToolPromptSync) {
		t.Error("prompt_sync should be disabled after round trip")
	}
	if reloaded.GetInteractionWaitMS() != 30000 {
		t.Errorf("InteractionWaitMS = %d, want 30000", reloaded.GetInteractionWaitMS())
	}
}
