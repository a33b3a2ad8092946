package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("TURNMESH_CONFIG", "")
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, c.Drain.PollInterval)
	assert.Equal(t, 10*time.Minute, c.Lock.TTL)
	assert.Equal(t, 200000, c.Budget.MaxTokens)
	assert.Equal(t, 11*time.Second, c.Ingest.Window)
	assert.Equal(t, "memory", c.Store.Driver)
	assert.Equal(t, "mock", c.LLM.Provider)
	assert.Equal(t, "info", c.Log.Level)
}

func TestLoad_FileAndEnv(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "turnmesh.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
drain:
  poll_interval: 2s
budget:
  max_tokens: 1000
store:
  driver: sqlite
  path: /tmp/tm.db
llm:
  provider: anthropic
  api_key_env: TM_TEST_KEY
`), 0o600))
	t.Setenv("TURNMESH_LOG_LEVEL", "debug")
	t.Setenv("TURNMESH_BUDGET_MAX_TOKENS", "5000")
	t.Setenv("TM_TEST_KEY", "secret")

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, c.Drain.PollInterval)
	assert.Equal(t, 5000, c.Budget.MaxTokens, "env overrides file")
	assert.Equal(t, "sqlite", c.Store.Driver)
	assert.Equal(t, "anthropic", c.LLM.Provider)
	assert.Equal(t, "secret", c.LLM.APIKey())
	assert.Equal(t, "debug", c.Log.Level)
}

func TestLoad_ConfigFromEnvPath(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "c.toml")
	require.NoError(t, os.WriteFile(path, []byte("[ingest]\nwindow = \"3s\"\n"), 0o600))
	t.Setenv("TURNMESH_CONFIG", path)

	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, c.Ingest.Window)
}

func TestLoad_Errors(t *testing.T) {
	isolate(t)

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	t.Setenv("TURNMESH_STORE_DRIVER", "postgres")
	_, err = Load("")
	assert.ErrorContains(t, err, "store.driver")
}

func TestValidate(t *testing.T) {
	base := Config{
		Drain:  DrainConfig{PollInterval: time.Second},
		Lock:   LockConfig{TTL: time.Minute},
		Budget: BudgetConfig{MaxTokens: 10},
		Ingest: IngestConfig{Window: time.Second},
		Store:  StoreConfig{Driver: "memory"},
		LLM:    LLMConfig{Provider: "mock"},
	}
	require.NoError(t, base.Validate())

	bad := base
	bad.LLM.Provider = "gemini"
	assert.Error(t, bad.Validate())

	bad = base
	bad.Store = StoreConfig{Driver: "sqlite"}
	assert.Error(t, bad.Validate())

	bad = base
	bad.Budget.MaxTokens = 0
	assert.Error(t, bad.Validate())

	assert.Empty(t, LLMConfig{}.APIKey())
}
