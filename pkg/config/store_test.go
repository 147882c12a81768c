package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFileStore_MissingFileIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	store, err := NewFileStore(path)
	require.NoError(t, err)
	assert.Equal(t, path, store.Path())
	assert.False(t, store.IsModified())

	all, err := store.GetAll()
	require.NoError(t, err)
	assert.Empty(t, all)

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "opening a store must not create the file")
}

func TestDefaultPath(t *testing.T) {
	t.Setenv(ConfigPathEnv, "")
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	got, err := DefaultPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".snapsolve", "config.json"), got)

	custom := filepath.Join(t.TempDir(), "snapsolve.yaml")
	t.Setenv(ConfigPathEnv, custom)
	got, err = DefaultPath()
	require.NoError(t, err)
	assert.Equal(t, custom, got)

	store, err := NewFileStore("")
	require.NoError(t, err)
	assert.Equal(t, custom, store.Path())
}

func TestFileStore_RoundTrip(t *testing.T) {
	for _, name := range []string{"config.json", "config.yaml", "config.yml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", name)

			store, err := NewFileStore(path)
			require.NoError(t, err)
			require.NoError(t, store.SetSection("browser", map[string]interface{}{
				"headless":       false,
				"viewport_width": 1440,
				"deny_patterns":  []string{"*://*.bank.example/*"},
			}))
			require.NoError(t, store.SetSection("capture", map[string]interface{}{
				"region": map[string]interface{}{"max_size_kb": 250, "quality": 0.7},
			}))
			assert.True(t, store.IsModified())
			require.NoError(t, store.Save())
			assert.False(t, store.IsModified())

			reopened, err := NewFileStore(path)
			require.NoError(t, err)

			browser, err := reopened.GetSection("browser")
			require.NoError(t, err)
			assert.Equal(t, false, browser["headless"])
			width, ok := intValue(browser["viewport_width"])
			require.True(t, ok)
			assert.Equal(t, 1440, width)
			patterns, ok := stringSlice(browser["deny_patterns"])
			require.True(t, ok)
			assert.Equal(t, []string{"*://*.bank.example/*"}, patterns)

			capture, err := reopened.GetSection("capture")
			require.NoError(t, err)
			region, ok := capture["region"].(map[string]interface{})
			require.True(t, ok, "nested sections decode as string-keyed maps")
			quality, ok := floatValue(region["quality"])
			require.True(t, ok)
			assert.InDelta(t, 0.7, quality, 1e-9)
		})
	}
}

func TestFileStore_SaveIsPrivateAndClean(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	store, err := NewFileStore(path)
	require.NoError(t, err)
	require.NoError(t, store.SetSection("solver", map[string]interface{}{"api_key": "sk-test"}))
	require.NoError(t, store.Save())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "temporary files must not be left behind")

	if runtime.GOOS != "windows" {
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	}
}

func TestFileStore_LoadErrors(t *testing.T) {
	tests := []struct {
		name        string
		file        string
		content     string
		expectError string
	}{
		{"malformed json", "config.json", "{not json", "failed to decode"},
		{"malformed yaml", "config.yaml", "sections: [unterminated", "failed to decode"},
		{"newer version", "config.json", `{"version": 99, "sections": {}}`, "newer than supported"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tt.file)
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o600))

			_, err := NewFileStore(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectError)
		})
	}
}

func TestFileStore_EmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("\n"), 0o600))

	store, err := NewFileStore(path)
	require.NoError(t, err)
	all, err := store.GetAll()
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestFileStore_Load_DiscardsUnsavedChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	store, err := NewFileStore(path)
	require.NoError(t, err)

	require.NoError(t, store.SetSection("solver", map[string]interface{}{"model": "saved"}))
	require.NoError(t, store.Save())
	require.NoError(t, store.SetSection("solver", map[string]interface{}{"model": "unsaved"}))

	require.NoError(t, store.Load())
	section, err := store.GetSection("solver")
	require.NoError(t, err)
	assert.Equal(t, "saved", section["model"])
	assert.False(t, store.IsModified())
}

func TestFileStore_CopiesAreIsolated(t *testing.T) {
	store, err := NewFileStore(filepath.Join(t.TempDir(), "config.json"))
	require.NoError(t, err)

	input := map[string]interface{}{"model": "gpt-4o"}
	require.NoError(t, store.SetSection("solver", input))
	input["model"] = "changed by caller"

	got, err := store.GetSection("solver")
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", got["model"])
	got["model"] = "changed by reader"

	all, err := store.GetAll()
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", all["solver"]["model"])

	missing, err := store.GetSection("absent")
	require.NoError(t, err)
	assert.NotNil(t, missing)
	assert.Empty(t, missing)

	assert.Error(t, store.SetSection("", map[string]interface{}{}))
}

func TestFileStore_SetAll(t *testing.T) {
	store, err := NewFileStore(filepath.Join(t.TempDir(), "config.json"))
	require.NoError(t, err)
	require.NoError(t, store.SetSection("stale", map[string]interface{}{"x": 1}))

	require.NoError(t, store.SetAll(map[string]map[string]interface{}{
		"capture": {"full_screen": map[string]interface{}{"max_size_kb": 400}},
	}))

	all, err := store.GetAll()
	require.NoError(t, err)
	assert.Len(t, all, 1)
	assert.Contains(t, all, "capture")
	assert.True(t, store.IsModified())
}
