// Package config loads and saves the YAML-backed session configuration
// for corefish: the data/sysconf/doc/bin path prefixes published into the
// variable store at init (spec §6 "Embedded configuration"), the history
// session's save cadence and LRU cap, and the universal-helper dial
// settings. The Event, Job and Locale sections are loaded and saved, but
// the event dispatcher, job tracker and variable store do not read them:
// the signal side-buffer capacity and the locale-variable set are fixed
// in those packages.
//
// Grounded on the teacher's internal/config package: a nested
// struct-of-structs with yaml tags, a Default() constructor, and a
// Load/Save pair that creates the directory and file if absent
// (internal/config/config.go's DefaultConfig/Load/Save shape).
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the root of corefish's session configuration.
type Config struct {
	Paths     PathsConfig     `yaml:"paths"`
	History   HistoryConfig   `yaml:"history"`
	Event     EventConfig     `yaml:"event"`
	Job       JobConfig       `yaml:"job"`
	Universal UniversalConfig `yaml:"universal"`
	Locale    LocaleConfig    `yaml:"locale"`
}

// PathsConfig holds the compile-time-overridable prefix paths published
// into the variable store at init as __fish_datadir, __fish_sysconfdir,
// __fish_help_dir, __fish_bin_dir (spec §6 "Embedded configuration").
type PathsConfig struct {
	DataDir    string `yaml:"data_dir"`
	SysconfDir string `yaml:"sysconf_dir"`
	DocDir     string `yaml:"doc_dir"`
	BinDir     string `yaml:"bin_dir"`
	// HistoryDir is where "<session-name>_history" files live (spec §6
	// "History file").
	HistoryDir string `yaml:"history_dir"`
}

// HistoryConfig tunes the history engine's save cadence and on-disk cap
// (spec §4.B "add", "save": the elapsed-time/unsaved-count triggers and
// the LRU cap).
type HistoryConfig struct {
	SaveIntervalSeconds int `yaml:"save_interval_seconds"`
	UnsavedCountTrigger int `yaml:"unsaved_count_trigger"`
	LRUCap              int `yaml:"lru_cap"`
}

// EventConfig holds a slot count for the event dispatcher's two-buffer
// signal ring (spec §4.C "Signal-handler contract"). The dispatcher does
// not read it; its ring has a fixed 64 slots per buffer.
type EventConfig struct {
	SignalBufferSlots int `yaml:"signal_buffer_slots"`
}

// JobConfig holds an initial size for the job id pool (spec §4.D "Job id
// pool"). The job tracker does not read it; its pool grows on demand.
type JobConfig struct {
	IDPoolInitialSize int `yaml:"id_pool_initial_size"`
}

// UniversalConfig addresses the universal-variable helper process (spec
// §6 "Universal helper"): a socket directory, which when unset is
// $FISHD_SOCKET_DIR or else "<base-dir>/run" (Paths.SocketDir; USER is
// not consulted), and the dial timeout used for the initial barrier
// handshake.
type UniversalConfig struct {
	SocketDir         string `yaml:"socket_dir"`
	DialTimeoutMillis int    `yaml:"dial_timeout_millis"`
}

// LocaleConfig holds a list of locale-variable names (spec §4.A "Locale
// awareness"). The variable store does not read it; it uses its own
// fixed locale-variable set.
type LocaleConfig struct {
	Names []string `yaml:"names"`
}

// Default returns a Config populated with corefish's built-in defaults.
func Default() *Config {
	paths := DefaultPaths()
	return &Config{
		Paths: PathsConfig{
			DataDir:    paths.DataDir(),
			SysconfDir: paths.SysconfDir(),
			DocDir:     paths.DocDir(),
			BinDir:     paths.BinDir(),
			HistoryDir: paths.HistoryDir(),
		},
		History: HistoryConfig{
			SaveIntervalSeconds: 300,
			UnsavedCountTrigger: 64,
			LRUCap:              262144,
		},
		Event: EventConfig{
			SignalBufferSlots: 64,
		},
		Job: JobConfig{
			IDPoolInitialSize: 1,
		},
		Universal: UniversalConfig{
			SocketDir:         "",
			DialTimeoutMillis: 500,
		},
		Locale: LocaleConfig{
			Names: []string{
				"LANG", "LC_ALL", "LC_COLLATE", "LC_CTYPE",
				"LC_MESSAGES", "LC_MONETARY", "LC_NUMERIC", "LC_TIME",
			},
		},
	}
}

// Load reads the config file at the default path, returning Default()
// untouched if it does not exist (spec §7 "I/O errors ... in-memory
// state preserved").
func Load() (*Config, error) {
	return LoadFromFile(DefaultPaths().ConfigFile())
}

// LoadFromFile reads and parses the YAML config at path.
func LoadFromFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the config to the default path, creating its directory if
// absent.
func (c *Config) Save() error {
	return c.SaveToFile(DefaultPaths().ConfigFile())
}

// SaveToFile writes the config as YAML to path, creating its parent
// directory if absent.
func (c *Config) SaveToFile(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("config: mkdir %s: %w", dir, err)
		}
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}
