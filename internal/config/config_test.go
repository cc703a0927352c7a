package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// mockEnv creates an environment lookup function from a map.
func mockEnv(env map[string]string) func(string) string {
	return func(key string) string {
		return env[key]
	}
}

func TestDefaultConfig(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()

	if cfg == nil {
		t.Fatal("DefaultConfig() returned nil")
	}

	if cfg.ListMgr.Driver != "sqlite" {
		t.Errorf("DefaultConfig() ListMgr.Driver = %q, want %q", cfg.ListMgr.Driver, "sqlite")
	}
	if cfg.ListMgr.BatchSize != 512 {
		t.Errorf("DefaultConfig() ListMgr.BatchSize = %d, want 512", cfg.ListMgr.BatchSize)
	}

	if cfg.Scan.Workers != 4 {
		t.Errorf("DefaultConfig() Scan.Workers = %d, want 4", cfg.Scan.Workers)
	}
	if cfg.Scan.MinScanInterval != 15*time.Minute {
		t.Errorf("DefaultConfig() Scan.MinScanInterval = %v, want %v", cfg.Scan.MinScanInterval, 15*time.Minute)
	}

	if cfg.Policy.Workers != 4 {
		t.Errorf("DefaultConfig() Policy.Workers = %d, want 4", cfg.Policy.Workers)
	}

	if cfg.Log.Level != "info" {
		t.Errorf("DefaultConfig() Log.Level = %q, want %q", cfg.Log.Level, "info")
	}

	if cfg.FS.Path != "" {
		t.Errorf("DefaultConfig() FS.Path should be empty, got %q", cfg.FS.Path)
	}
	if !cfg.FS.StayInFS {
		t.Error("DefaultConfig() FS.StayInFS should default to true")
	}
}

func TestLoadWithConfigFile(t *testing.T) {
	t.Parallel()
	tmpDir := t.TempDir()
	configDir := filepath.Join(tmpDir, "rbh")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("Failed to create config dir: %v", err)
	}

	configPath := filepath.Join(configDir, "config.yaml")
	configContent := `
fs:
  path: /mnt/lustre
  stay_in_fs: false
listmgr:
  driver: mysql
  dsn: "rbh:rbh@tcp(127.0.0.1:3306)/rbh"
  batch_size: 1000
scan:
  workers: 8
log:
  level: debug
  file: /var/log/rbh.log
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	env := mockEnv(map[string]string{
		"XDG_CONFIG_HOME": tmpDir,
	})

	cfg, err := LoadWithEnv(env)
	if err != nil {
		t.Fatalf("LoadWithEnv() error: %v", err)
	}

	if cfg.FS.Path != "/mnt/lustre" {
		t.Errorf("LoadWithEnv() FS.Path = %q, want %q", cfg.FS.Path, "/mnt/lustre")
	}
	if cfg.FS.StayInFS {
		t.Error("LoadWithEnv() FS.StayInFS should be false per file")
	}
	if cfg.ListMgr.Driver != "mysql" {
		t.Errorf("LoadWithEnv() ListMgr.Driver = %q, want %q", cfg.ListMgr.Driver, "mysql")
	}
	if cfg.ListMgr.BatchSize != 1000 {
		t.Errorf("LoadWithEnv() ListMgr.BatchSize = %d, want 1000", cfg.ListMgr.BatchSize)
	}
	if cfg.Scan.Workers != 8 {
		t.Errorf("LoadWithEnv() Scan.Workers = %d, want 8", cfg.Scan.Workers)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("LoadWithEnv() Log.Level = %q, want %q", cfg.Log.Level, "debug")
	}
	if cfg.Log.File != "/var/log/rbh.log" {
		t.Errorf("LoadWithEnv() Log.File = %q, want %q", cfg.Log.File, "/var/log/rbh.log")
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	t.Parallel()
	tmpDir := t.TempDir()
	configDir := filepath.Join(tmpDir, "rbh")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("Failed to create config dir: %v", err)
	}

	configPath := filepath.Join(configDir, "config.yaml")
	configContent := `
fs:
  path: /mnt/from-file
listmgr:
  dsn: "file.db"
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	env := mockEnv(map[string]string{
		"XDG_CONFIG_HOME": tmpDir,
		"RBH_FS_PATH":     "/mnt/from-env",
		"RBH_DSN":         "env.db",
	})

	cfg, err := LoadWithEnv(env)
	if err != nil {
		t.Fatalf("LoadWithEnv() error: %v", err)
	}

	if cfg.FS.Path != "/mnt/from-env" {
		t.Errorf("LoadWithEnv() FS.Path = %q, want %q (env override)", cfg.FS.Path, "/mnt/from-env")
	}
	if cfg.ListMgr.DSN != "env.db" {
		t.Errorf("LoadWithEnv() ListMgr.DSN = %q, want %q (env override)", cfg.ListMgr.DSN, "env.db")
	}
}

func TestLoadNoConfigFile(t *testing.T) {
	t.Parallel()
	tmpDir := t.TempDir()

	env := mockEnv(map[string]string{
		"XDG_CONFIG_HOME": tmpDir,
	})

	cfg, err := LoadWithEnv(env)
	if err != nil {
		t.Fatalf("LoadWithEnv() error: %v", err)
	}

	if cfg.ListMgr.Driver != "sqlite" {
		t.Errorf("LoadWithEnv() without file should use default ListMgr.Driver, got %q", cfg.ListMgr.Driver)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("LoadWithEnv() without file should use default Log.Level, got %q", cfg.Log.Level)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	t.Parallel()
	tmpDir := t.TempDir()
	configDir := filepath.Join(tmpDir, "rbh")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("Failed to create config dir: %v", err)
	}

	configPath := filepath.Join(configDir, "config.yaml")
	invalidContent := `
fs: [this is invalid yaml
listmgr:
  batch_size: not a number
`
	if err := os.WriteFile(configPath, []byte(invalidContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	env := mockEnv(map[string]string{
		"XDG_CONFIG_HOME": tmpDir,
	})

	_, err := LoadWithEnv(env)
	if err == nil {
		t.Error("LoadWithEnv() with invalid YAML should return error")
	}
}

func TestGetConfigPathXDG(t *testing.T) {
	t.Parallel()
	tmpDir := "/custom/config/path"

	env := mockEnv(map[string]string{
		"XDG_CONFIG_HOME": tmpDir,
	})

	path := getConfigPathWithEnv(env)
	expected := filepath.Join(tmpDir, "rbh", "config.yaml")
	if path != expected {
		t.Errorf("getConfigPathWithEnv() = %q, want %q", path, expected)
	}
}

func TestGetConfigPathFallback(t *testing.T) {
	t.Parallel()
	env := mockEnv(map[string]string{})

	path := getConfigPathWithEnv(env)
	home, _ := os.UserHomeDir()
	expected := filepath.Join(home, ".config", "rbh", "config.yaml")
	if path != expected {
		t.Errorf("getConfigPathWithEnv() = %q, want %q", path, expected)
	}
}

func TestLoadPartialConfig(t *testing.T) {
	t.Parallel()
	tmpDir := t.TempDir()
	configDir := filepath.Join(tmpDir, "rbh")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("Failed to create config dir: %v", err)
	}

	configPath := filepath.Join(configDir, "config.yaml")
	configContent := `
scan:
  min_scan_interval: 5m
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	env := mockEnv(map[string]string{
		"XDG_CONFIG_HOME": tmpDir,
	})

	cfg, err := LoadWithEnv(env)
	if err != nil {
		t.Fatalf("LoadWithEnv() error: %v", err)
	}

	if cfg.Scan.MinScanInterval != 5*time.Minute {
		t.Errorf("LoadWithEnv() Scan.MinScanInterval = %v, want %v", cfg.Scan.MinScanInterval, 5*time.Minute)
	}

	// default preserved for unset fields
	if cfg.ListMgr.BatchSize != 512 {
		t.Errorf("LoadWithEnv() ListMgr.BatchSize = %d, want 512 (default)", cfg.ListMgr.BatchSize)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("LoadWithEnv() Log.Level = %q, want %q (default)", cfg.Log.Level, "info")
	}
}
