package cli

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := loadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "stockroom.db", cfg.DBPath)
	assert.Equal(t, "http://localhost:8080", cfg.APIURL)
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.BackoffBase)
	assert.Equal(t, 2*time.Second, cfg.DebounceWindow)
}

func TestLoadConfig_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(`
db_path: /var/lib/stockroom/data.db
api_url: https://warehouse.example.com
sync:
  max_attempts: 5
  backoff_base: 1s
`), 0o644))

	cfg, err := loadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/stockroom/data.db", cfg.DBPath)
	assert.Equal(t, "https://warehouse.example.com", cfg.APIURL)
	assert.Equal(t, 5, cfg.MaxAttempts)
	assert.Equal(t, time.Second, cfg.BackoffBase)
}

func TestLoadConfig_RejectsBadValues(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(`
sync:
  backoff_base: soon
`), 0o644))

	_, err := loadConfig(dir)
	assert.Error(t, err)

	dir2 := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir2, "config.yaml"), []byte(`
sync:
  max_attempts: 0
`), 0o644))

	_, err = loadConfig(dir2)
	assert.Error(t, err)
}

func TestLoadPayload_YAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "item.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: Drill\nquantity: 3\n"), 0o644))

	payload, err := loadPayload(path)
	require.NoError(t, err)
	assert.Equal(t, "Drill", payload["name"])
	assert.Equal(t, 3, payload["quantity"])
}

func TestLoadPayload_MissingFile(t *testing.T) {
	_, err := loadPayload(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
