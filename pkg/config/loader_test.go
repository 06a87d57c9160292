package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromFileYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "verify.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
provider:
  name: user-service
  baseUrl: http://localhost:8080
  requestTimeout: 10s
sources:
  dirs:
    - ./pacts
  broker:
    url: https://broker.example.com
    enablePending: true
stateChange:
  url: http://localhost:8080/_states
  teardown: true
  retries: 3
publish:
  enabled: true
  providerVersion: 1.2.3
`), 0o644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "user-service", cfg.Provider.Name)
	assert.Equal(t, 10*time.Second, cfg.Provider.RequestTimeout.Std())
	assert.Equal(t, []string{"./pacts"}, cfg.Sources.Dirs)
	assert.True(t, cfg.Sources.Broker.EnablePending)
	assert.Equal(t, 3, cfg.States.Retries)
	assert.True(t, cfg.Publish.Enabled)
}

func TestLoadFromFileJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "verify.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"provider": {"name": "p", "baseUrl": "http://localhost:9"},
		"filters": {"description": "^get", "consumers": ["web"]}
	}`), 0o644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "p", cfg.Provider.Name)
	assert.Equal(t, "^get", cfg.Filters.Description)
	assert.Equal(t, []string{"web"}, cfg.Filters.Consumers)
}

func TestLoadFromFileErrors(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, ErrFileNotFound)

	empty := filepath.Join(t.TempDir(), "empty.json")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	_, err = LoadFromFile(empty)
	assert.ErrorIs(t, err, ErrEmptyFile)

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{nope"), 0o644))
	_, err = LoadFromFile(bad)
	assert.ErrorIs(t, err, ErrInvalidJSON)
}

func TestSaveRoundTrip(t *testing.T) {
	cfg := &VerifierConfig{}
	cfg.Provider.Name = "svc"
	cfg.Sources.Files = []string{"a.json"}

	path := filepath.Join(t.TempDir(), "out.yaml")
	require.NoError(t, SaveToFile(path, cfg))

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Provider.Name, loaded.Provider.Name)
	assert.Equal(t, cfg.Sources.Files, loaded.Sources.Files)
}
