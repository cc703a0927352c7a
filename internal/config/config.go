// Package config loads rbh's configuration from a YAML file plus
// environment variable overrides, in the same style across all of rbh's
// subcommands (scan, policy, report, mount).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrPathOutsideFS is returned by ValidateScanRoot when a requested
// partial-scan root falls outside the configured managed filesystem.
var ErrPathOutsideFS = errors.New("config: scan root is outside the configured filesystem path")

// ValidateScanRoot rejects a partial scan root that escapes fs.path,
// checked before any scanner syscall runs.
func (c *Config) ValidateScanRoot(root string) error {
	base := filepath.Clean(c.FS.Path)
	root = filepath.Clean(root)
	if base == "" || root == base {
		return nil
	}
	if !strings.HasPrefix(root, base+string(filepath.Separator)) {
		return ErrPathOutsideFS
	}
	return nil
}

// Config is the top-level rbh configuration.
type Config struct {
	FS       FSConfig       `yaml:"fs"`
	ListMgr  ListMgrConfig  `yaml:"listmgr"`
	Scan     ScanConfig     `yaml:"scan"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Policy   PolicyConfig   `yaml:"policy"`
	Log      LogConfig      `yaml:"log"`
}

// FSConfig describes the managed filesystem.
type FSConfig struct {
	// Path is the root of the filesystem this instance manages. Partial
	// scans must stay under this path.
	Path string `yaml:"path"`
	// StayInFS rejects crossing a device boundary during a scan.
	StayInFS bool `yaml:"stay_in_fs"`
	// UseMDSDirectStat prefers a Lustre MDS-direct stat over a regular
	// lstat when available.
	UseMDSDirectStat bool `yaml:"use_mds_direct_stat"`
	// IDKind selects the EntryId realization used by both the scanner
	// and the database: "devino" (device+inode+ctime, plain POSIX, the
	// default) or "fid" (native Lustre file identifiers).
	IDKind string `yaml:"id_kind"`
}

// ListMgrConfig configures the database backend.
type ListMgrConfig struct {
	// Driver selects the database/sql driver: "sqlite" (default) or "mysql".
	Driver string `yaml:"driver"`
	// DSN is the driver-specific data source name.
	DSN string `yaml:"dsn"`
	// CommitBehavior is one of "auto", "every-op", or "batch".
	CommitBehavior string        `yaml:"commit_behavior"`
	BatchSize      int           `yaml:"batch_size"`
	RetryMin       time.Duration `yaml:"retry_min"`
	RetryMax       time.Duration `yaml:"retry_max"`
}

// ScanConfig configures the scanner.
type ScanConfig struct {
	Workers         int           `yaml:"workers"`
	MinScanInterval time.Duration `yaml:"min_scan_interval"`
	MaxScanInterval time.Duration `yaml:"max_scan_interval"`
	ScanRetryDelay  time.Duration `yaml:"scan_retry_delay"`
	ScanOpTimeout   time.Duration `yaml:"scan_op_timeout"`
	CheckInterval   time.Duration `yaml:"check_interval"`
	ExitOnTimeout   bool          `yaml:"exit_on_timeout"`
	IgnorePatterns  []string      `yaml:"ignore_patterns"`
}

// PipelineConfig configures the entry-processing pipeline.
type PipelineConfig struct {
	StageQueueDepth int  `yaml:"stage_queue_depth"`
	BatchSize       int  `yaml:"batch_size"`
	DryRun          bool `yaml:"dry_run"`
}

// PolicyConfig configures the policy scheduler.
type PolicyConfig struct {
	CheckActionStatusDelay time.Duration `yaml:"check_action_status_delay"`
	PreMaintenanceWindow   time.Duration `yaml:"pre_maintenance_window"`
	MaintMinApplyDelay     time.Duration `yaml:"maint_min_apply_delay"`
	ActionRateLimit        float64       `yaml:"action_rate_limit"`
	Workers                int           `yaml:"workers"`
}

// LogConfig configures the zerolog output.
type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// DefaultConfig returns a Config with production-sane defaults.
func DefaultConfig() *Config {
	return &Config{
		FS: FSConfig{
			StayInFS: true,
			IDKind:   "devino",
		},
		ListMgr: ListMgrConfig{
			Driver:         "sqlite",
			DSN:            "rbh.db",
			CommitBehavior: "batch",
			BatchSize:      512,
			RetryMin:       100 * time.Millisecond,
			RetryMax:       30 * time.Second,
		},
		Scan: ScanConfig{
			Workers:         4,
			MinScanInterval: 15 * time.Minute,
			MaxScanInterval: 6 * time.Hour,
			ScanRetryDelay:  5 * time.Minute,
			ScanOpTimeout:   10 * time.Minute,
			CheckInterval:   30 * time.Second,
		},
		Pipeline: PipelineConfig{
			StageQueueDepth: 1024,
			BatchSize:       256,
		},
		Policy: PolicyConfig{
			CheckActionStatusDelay: 10 * time.Minute,
			PreMaintenanceWindow:   24 * time.Hour,
			MaintMinApplyDelay:     time.Hour,
			ActionRateLimit:        50,
			Workers:                4,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load loads configuration using the real environment.
func Load() (*Config, error) {
	return LoadWithEnv(os.Getenv)
}

// LoadWithEnv loads configuration using the provided environment lookup
// function. This allows tests to provide isolated environment values.
func LoadWithEnv(getenv func(string) string) (*Config, error) {
	cfg := DefaultConfig()

	configPath := getConfigPathWithEnv(getenv)
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if path := getenv("RBH_FS_PATH"); path != "" {
		cfg.FS.Path = path
	}
	if dsn := getenv("RBH_DSN"); dsn != "" {
		cfg.ListMgr.DSN = dsn
	}

	return cfg, nil
}

// LoadPath loads configuration from an explicit file path, applying the
// same environment overrides as Load.
func LoadPath(path string) (*Config, error) {
	cfg := DefaultConfig()
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if p := os.Getenv("RBH_FS_PATH"); p != "" {
		cfg.FS.Path = p
	}
	if dsn := os.Getenv("RBH_DSN"); dsn != "" {
		cfg.ListMgr.DSN = dsn
	}
	return cfg, nil
}

func getConfigPath() string {
	return getConfigPathWithEnv(os.Getenv)
}

func getConfigPathWithEnv(getenv func(string) string) string {
	if xdgConfig := getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "rbh", "config.yaml")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "rbh", "config.yaml")
}
