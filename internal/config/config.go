package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/KasumiKitsune/odyssey-sync/internal/sync"
	"github.com/KasumiKitsune/odyssey-sync/internal/utils"
)

var (
	home, _            = os.UserHomeDir()
	DefaultConfigDir   = filepath.Join(home, ".odyssey-sync")
	DefaultConfigPath  = filepath.Join(DefaultConfigDir, "config.json")
	DefaultHistoryPath = filepath.Join(DefaultConfigDir, "history.db")
	DefaultLogFilePath = filepath.Join(DefaultConfigDir, "logs", "odyssey-sync.log")
)

const (
	DefaultPolicy           = "newer"
	DefaultWorkers          = 4
	DefaultFullSyncInterval = 5 * time.Minute
	DefaultWatchDebounce    = 2 * time.Second
)

// ItemConfig is the persisted shape of one backup item.
type ItemConfig struct {
	SourcePath string `json:"source_path"`
	Enabled    bool   `json:"enabled"`
	Builtin    bool   `json:"builtin,omitempty"`
}

// Config is the persisted record: the app root, the target root, the
// conflict policy and the item set. Run outcomes are deliberately not in
// here; they live in the history store.
type Config struct {
	AppRoot              string                 `json:"app_root"`
	TargetRoot           string                 `json:"target_root"`
	Policy               string                 `json:"policy"`
	ModTimeWindowSecs    int                    `json:"mod_time_window_secs"`
	Workers              int                    `json:"workers"`
	Verify               bool                   `json:"verify"`
	FullSyncIntervalSecs int                    `json:"full_sync_interval_secs"`
	WatchDebounceMs      int                    `json:"watch_debounce_ms"`
	HistoryPath          string                 `json:"history_path,omitempty"`
	Ignore               []string               `json:"ignore,omitempty"`
	Items                map[string]*ItemConfig `json:"items"`
	Path                 string                 `json:"-"`
}

// Default returns a config with every knob at its default and no items.
func Default(path string) *Config {
	return &Config{
		Policy:               DefaultPolicy,
		Workers:              DefaultWorkers,
		FullSyncIntervalSecs: int(DefaultFullSyncInterval.Seconds()),
		WatchDebounceMs:      int(DefaultWatchDebounce.Milliseconds()),
		Items:                make(map[string]*ItemConfig),
		Path:                 path,
	}
}

// Load reads the config at path. A missing file is not an error: first run
// starts from defaults and the file appears on the first save.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(path), nil
		}
		return nil, err
	}

	cfg := Default(path)
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.Path = path
	if cfg.Items == nil {
		cfg.Items = make(map[string]*ItemConfig)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config back atomically.
func (c *Config) Save() error {
	if c.Path == "" {
		return errors.New("config has no path")
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return utils.AtomicWriteFile(c.Path, data, 0o644)
}

func (c *Config) Validate() error {
	if _, err := sync.ParsePolicy(c.Policy); err != nil {
		return err
	}
	if c.ModTimeWindowSecs < 0 {
		return fmt.Errorf("mod_time_window_secs cannot be negative")
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers cannot be negative")
	}
	return nil
}

// SyncPolicy parses the configured policy string.
func (c *Config) SyncPolicy() (sync.Policy, error) {
	return sync.ParsePolicy(c.Policy)
}

func (c *Config) ModTimeWindow() time.Duration {
	return time.Duration(c.ModTimeWindowSecs) * time.Second
}

func (c *Config) FullSyncInterval() time.Duration {
	if c.FullSyncIntervalSecs <= 0 {
		return DefaultFullSyncInterval
	}
	return time.Duration(c.FullSyncIntervalSecs) * time.Second
}

func (c *Config) WatchDebounce() time.Duration {
	if c.WatchDebounceMs <= 0 {
		return DefaultWatchDebounce
	}
	return time.Duration(c.WatchDebounceMs) * time.Millisecond
}
