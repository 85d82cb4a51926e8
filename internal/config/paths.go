package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// Paths holds corefish's installation and runtime path prefixes (spec §6
// "Embedded configuration": data, sysconf, doc, bin) plus the directory
// that holds per-session history files.
//
// Grounded on the teacher's internal/config.Paths (a BaseDir derived from
// an env override or the user's home directory, with accessor methods
// for each derived file/dir).
type Paths struct {
	// BaseDir is the root directory for corefish's own runtime state
	// (~/.corefish on Unix, %APPDATA%\corefish on Windows).
	BaseDir string
}

// DefaultPaths returns the default path set, honoring the COREFISH_HOME
// override (mirroring the teacher's CLAI_HOME).
func DefaultPaths() *Paths {
	if home := os.Getenv("COREFISH_HOME"); home != "" {
		return &Paths{BaseDir: home}
	}

	home := homeDir()
	if runtime.GOOS == "windows" {
		appData := os.Getenv("APPDATA")
		if appData == "" {
			appData = filepath.Join(home, "AppData", "Roaming")
		}
		return &Paths{BaseDir: filepath.Join(appData, "corefish")}
	}
	return &Paths{BaseDir: filepath.Join(home, ".corefish")}
}

// ConfigFile returns the path to the main configuration file.
func (p *Paths) ConfigFile() string {
	return filepath.Join(p.BaseDir, "config.yaml")
}

// DataDir returns the "data" prefix published as __fish_datadir.
func (p *Paths) DataDir() string {
	return filepath.Join(p.BaseDir, "share")
}

// SysconfDir returns the "sysconf" prefix published as __fish_sysconfdir.
func (p *Paths) SysconfDir() string {
	return filepath.Join(p.BaseDir, "etc")
}

// DocDir returns the "doc" prefix published as __fish_help_dir.
func (p *Paths) DocDir() string {
	return filepath.Join(p.BaseDir, "doc")
}

// BinDir returns the "bin" prefix published as __fish_bin_dir.
func (p *Paths) BinDir() string {
	return filepath.Join(p.BaseDir, "bin")
}

// HistoryDir returns the directory holding "<session-name>_history"
// files (spec §6 "History file").
func (p *Paths) HistoryDir() string {
	return filepath.Join(p.BaseDir, "history")
}

// SocketDir returns the directory in which the universal-helper socket
// is created: $FISHD_SOCKET_DIR when set, else "<BaseDir>/run" (spec §6
// "Universal helper").
func (p *Paths) SocketDir() string {
	if dir := os.Getenv("FISHD_SOCKET_DIR"); dir != "" {
		return dir
	}
	return filepath.Join(p.BaseDir, "run")
}

// EnsureDirectories creates every directory corefish writes to.
func (p *Paths) EnsureDirectories() error {
	dirs := []string{p.BaseDir, p.HistoryDir(), p.SocketDir()}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}

// homeDir returns the user's home directory, falling back to the
// platform's conventional environment variable if os.UserHomeDir fails.
func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		if runtime.GOOS == "windows" {
			return os.Getenv("USERPROFILE")
		}
		return os.Getenv("HOME")
	}
	return home
}
