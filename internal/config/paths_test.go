package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPaths(t *testing.T) {
	paths := DefaultPaths()

	assert.NotEmpty(t, paths.BaseDir)
	assert.True(t, filepath.IsAbs(paths.BaseDir))
	assert.Contains(t, paths.BaseDir, "corefish")
}

func TestDefaultPaths_HomeOverride(t *testing.T) {
	t.Setenv("COREFISH_HOME", "/custom/corefish/home")

	paths := DefaultPaths()
	assert.Equal(t, "/custom/corefish/home", paths.BaseDir)
}

func TestPaths_DerivedDirs(t *testing.T) {
	paths := &Paths{BaseDir: "/test/corefish"}

	assert.Equal(t, "/test/corefish/config.yaml", paths.ConfigFile())
	assert.Equal(t, "/test/corefish/share", paths.DataDir())
	assert.Equal(t, "/test/corefish/etc", paths.SysconfDir())
	assert.Equal(t, "/test/corefish/doc", paths.DocDir())
	assert.Equal(t, "/test/corefish/bin", paths.BinDir())
	assert.Equal(t, "/test/corefish/history", paths.HistoryDir())
	assert.Equal(t, "/test/corefish/run", paths.SocketDir())
}

func TestPaths_EnsureDirectories(t *testing.T) {
	tmp := t.TempDir()
	paths := &Paths{BaseDir: filepath.Join(tmp, "corefish")}

	require.NoError(t, paths.EnsureDirectories())

	for _, dir := range []string{paths.BaseDir, paths.HistoryDir(), paths.SocketDir()} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestHomeDir(t *testing.T) {
	home := homeDir()
	assert.NotEmpty(t, home)
	assert.True(t, filepath.IsAbs(home))
}
