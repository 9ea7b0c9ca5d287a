package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultsWithoutConfigFile(t *testing.T) {
	tmpDir := t.TempDir()

	cfg, err := LoadConfig(tmpDir)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Database.Path != "mrpc.db" {
		t.Errorf("Expected default database path, got %q", cfg.Database.Path)
	}
	if cfg.Auth.AdminUserID != 1 {
		t.Errorf("Expected admin user 1, got %d", cfg.Auth.AdminUserID)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "console" {
		t.Errorf("Unexpected logging defaults: %+v", cfg.Logging)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config must validate: %v", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()

	content := `{
  "dataDir": "store",
  "database": {"path": "custom.db"},
  "auth": {"adminUserId": 7},
  "logging": {"format": "json", "level": "debug"}
}`
	if err := os.WriteFile(filepath.Join(tmpDir, "mrpc.json"), []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, err := LoadConfig(tmpDir)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Database.Path != "custom.db" {
		t.Errorf("Expected custom.db, got %q", cfg.Database.Path)
	}
	if cfg.Auth.AdminUserID != 7 {
		t.Errorf("Expected admin 7, got %d", cfg.Auth.AdminUserID)
	}

	want := filepath.Join(tmpDir, "store", "custom.db")
	if got := cfg.DatabasePath(tmpDir); got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
}

func TestEnvironmentOverride(t *testing.T) {
	tmpDir := t.TempDir()

	t.Setenv("MRPC_LOGGING_LEVEL", "debug")

	cfg, err := LoadConfig(tmpDir)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Expected env override to win, got %q", cfg.Logging.Level)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	tmpDir := t.TempDir()

	cfg := DefaultConfig()
	cfg.Auth.AdminUserID = 3
	if err := cfg.Save(tmpDir); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := LoadConfig(tmpDir)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if loaded.Auth.AdminUserID != 3 {
		t.Errorf("Expected saved admin id 3, got %d", loaded.Auth.AdminUserID)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Database.Path = ""
	if err := cfg.Validate(); err == nil {
		t.Error("Expected empty database path to fail validation")
	}

	cfg = DefaultConfig()
	cfg.Auth.AdminUserID = 0
	if err := cfg.Validate(); err == nil {
		t.Error("Expected zero admin id to fail validation")
	}

	cfg = DefaultConfig()
	cfg.Logging.Format = "xml"
	if err := cfg.Validate(); err == nil {
		t.Error("Expected unknown logging format to fail validation")
	}
}
