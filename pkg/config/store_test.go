package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPath(t *testing.T) {
	t.Setenv(PathEnv, "")
	t.Setenv("HOME", "/home/tester")
	p, err := DefaultPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/home/tester", ".browserkit", "config.json"), p)

	t.Setenv(PathEnv, "/etc/browserkit.json")
	p, err = DefaultPath()
	require.NoError(t, err)
	assert.Equal(t, "/etc/browserkit.json", p)
}

func TestFileStore_MissingFileIsEmpty(t *testing.T) {
	s, err := NewFileStore(filepath.Join(t.TempDir(), "config.json"))
	require.NoError(t, err)

	all, err := s.GetAll()
	require.NoError(t, err)
	assert.Empty(t, all)
	assert.False(t, s.IsModified())
}

func TestFileStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	s, err := NewFileStore(path)
	require.NoError(t, err)

	require.NoError(t, s.SetSection("launcher", map[string]any{"debug_mode": true, "close_timeout": "2s"}))
	assert.True(t, s.IsModified())
	require.NoError(t, s.Save())
	assert.False(t, s.IsModified())

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))

	reopened, err := NewFileStore(path)
	require.NoError(t, err)
	section, err := reopened.GetSection("launcher")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"debug_mode": true, "close_timeout": "2s"}, section)
}

func TestFileStore_CopiesData(t *testing.T) {
	s, err := NewFileStore(filepath.Join(t.TempDir(), "config.json"))
	require.NoError(t, err)

	data := map[string]any{"k": "v"}
	require.NoError(t, s.SetSection("a", data))
	data["k"] = "changed"

	got, err := s.GetSection("a")
	require.NoError(t, err)
	got["k"] = "also changed"

	again, err := s.GetSection("a")
	require.NoError(t, err)
	assert.Equal(t, "v", again["k"])
}

func TestFileStore_SetAllReplaces(t *testing.T) {
	s, err := NewFileStore(filepath.Join(t.TempDir(), "config.json"))
	require.NoError(t, err)
	require.NoError(t, s.SetSection("old", map[string]any{"k": 1}))

	require.NoError(t, s.SetAll(map[string]map[string]any{"new": {"k": 2}}))
	all, err := s.GetAll()
	require.NoError(t, err)
	assert.Equal(t, map[string]map[string]any{"new": {"k": 2}}, all)
}

func TestFileStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	_, err := NewFileStore(path)
	assert.ErrorContains(t, err, "failed to decode config file")
}
