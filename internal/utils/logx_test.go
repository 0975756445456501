package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLogxManager_TeesByLevel(t *testing.T) {
	base := t.TempDir()
	m := NewManager(base, "info")

	lg := m.Logger("MeshMate Node-9000")
	require.Same(t, lg, m.Logger("MeshMate Node-9000"), "loggers are cached per node")

	lg.Debug("hidden detail")
	lg.Info("node listening")
	lg.Warn("dial failed")
	lg.Error("accept failed")
	m.Close()

	dir := filepath.Join(base, "MeshMate_Node-9000")
	read := func(name string) string {
		data, err := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, err)
		return string(data)
	}

	info := read("info.log")
	require.Contains(t, info, "node listening")
	require.Contains(t, info, "dial failed")
	require.NotContains(t, info, "accept failed")
	require.Contains(t, info, "MeshMate Node-9000", "every line carries the node field")

	require.Contains(t, read("error.log"), "accept failed")
	require.Empty(t, read("debug.log"), "debug is below the configured level")
}

func TestLogxManager_BadLevelFallsBackToInfo(t *testing.T) {
	m := NewManager(t.TempDir(), "chatty")
	defer m.Close()
	require.True(t, m.Logger("n").Core().Enabled(0))
	require.False(t, m.Logger("n").Core().Enabled(-1))
}

func TestSanitizeDir(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"node-1", "node-1"},
		{"MeshMate Node", "MeshMate_Node"},
		{"../etc", ".._etc"},
		{"", "node"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, sanitizeDir(tt.in))
	}
}
