package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	assert.Equal(t, DefaultBaseURL, cfg.DirectLine.BaseURL)
	assert.Equal(t, 30, cfg.DirectLine.TimeoutSeconds)
	assert.Equal(t, 1000, cfg.Fetch.MaxPages)
	assert.Equal(t, 3, cfg.Fetch.MaxRetries)
	assert.Equal(t, 500, cfg.Fetch.BaseBackoffMs)
	assert.Equal(t, 30000, cfg.Fetch.MaxBackoffMs)
	assert.Equal(t, 4, cfg.Fetch.Concurrency)
	assert.Equal(t, 15, cfg.Stream.IdleTimeoutSeconds)
	assert.True(t, cfg.Stream.SkipOwnActivities())
	assert.True(t, cfg.Store.Enabled)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "pretty", cfg.Logging.ConsoleStyle)
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"DIRECT_LINE_SECRET", "DL_BASE_URL", "DLSCRIBE_BASE_URL", "DLSCRIBE_TOKEN",
		"DLSCRIBE_USER_ID", "DLSCRIBE_MAX_PAGES", "DLSCRIBE_STORE_PATH", "DLSCRIBE_LOG_LEVEL",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("/nonexistent/path/config.yaml")
	require.NoError(t, err)
	// Should return defaults
	assert.Equal(t, DefaultBaseURL, cfg.DirectLine.BaseURL)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadMissingFileStillAppliesEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("DIRECT_LINE_SECRET", "s3cret")

	cfg, err := Load("/nonexistent/path/config.yaml")
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.DirectLine.Secret)
}

func TestLoadValidYAML(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	yaml := `
directLine:
  baseUrl: https://europe.directline.botframework.com
  secret: abc123
  userId: dl_tester
  timeoutSeconds: 10
fetch:
  maxPages: 50
  maxRetries: 5
  baseBackoffMs: 100
  maxBackoffMs: 2000
  pagesPerSecond: 2.5
  concurrency: 8
stream:
  idleTimeoutSeconds: 60
  skipOwn: false
store:
  enabled: true
  path: /tmp/archive.db
output:
  dir: /tmp/exports
logging:
  level: debug
  consoleStyle: json
hooks:
  fetchFinished:
    - command: "cat > /dev/null"
      timeout: 5000
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://europe.directline.botframework.com", cfg.DirectLine.BaseURL)
	assert.Equal(t, "abc123", cfg.DirectLine.Secret)
	assert.Equal(t, "dl_tester", cfg.DirectLine.UserID)
	assert.Equal(t, 10, cfg.DirectLine.TimeoutSeconds)
	assert.Equal(t, 50, cfg.Fetch.MaxPages)
	assert.Equal(t, 5, cfg.Fetch.MaxRetries)
	assert.Equal(t, 100, cfg.Fetch.BaseBackoffMs)
	assert.Equal(t, 2000, cfg.Fetch.MaxBackoffMs)
	assert.InDelta(t, 2.5, cfg.Fetch.PagesPerSecond, 0.0001)
	assert.Equal(t, 8, cfg.Fetch.Concurrency)
	assert.Equal(t, 60, cfg.Stream.IdleTimeoutSeconds)
	assert.False(t, cfg.Stream.SkipOwnActivities())
	assert.Equal(t, "/tmp/archive.db", cfg.Store.Path)
	assert.Equal(t, "/tmp/exports", cfg.Output.Dir)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.ConsoleStyle)

	require.Len(t, cfg.Hooks.FetchFinished, 1)
	assert.Equal(t, "cat > /dev/null", cfg.Hooks.FetchFinished[0].Command)
	assert.Equal(t, 5000, cfg.Hooks.FetchFinished[0].Timeout)
}

func TestLoadPartialYAMLFillsDefaults(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	require.NoError(t, os.WriteFile(path, []byte("fetch:\n  maxPages: 7\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Fetch.MaxPages)
	assert.Equal(t, DefaultBaseURL, cfg.DirectLine.BaseURL)
	assert.Equal(t, 30000, cfg.Fetch.MaxBackoffMs)
	assert.Equal(t, 4, cfg.Fetch.Concurrency)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	require.NoError(t, os.WriteFile(path, []byte("{{invalid yaml"), 0o600))

	_, err := Load(path)
	require.Error(t, err)

	var cfgErr *ConfigError
	assert.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, err.Error(), "failed to parse config")
}

func TestEnvVarExpansion(t *testing.T) {
	clearEnv(t)
	t.Setenv("TEST_DL_SECRET", "expanded-secret")
	t.Setenv("TEST_DL_TOKEN", "expanded-token")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	yaml := `
directLine:
  secret: ${TEST_DL_SECRET}
  token: ${TEST_DL_TOKEN}
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "expanded-secret", cfg.DirectLine.Secret)
	assert.Equal(t, "expanded-token", cfg.DirectLine.Token)
}

func TestEnvVarExpansionUnset(t *testing.T) {
	result := expandEnvVars("prefix-${DLSCRIBE_DEFINITELY_UNSET_VAR_12345}-suffix")
	assert.Equal(t, "prefix-${DLSCRIBE_DEFINITELY_UNSET_VAR_12345}-suffix", result)
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("DIRECT_LINE_SECRET", "env-secret")
	t.Setenv("DL_BASE_URL", "https://dl.example.com")
	t.Setenv("DLSCRIBE_TOKEN", "env-token")
	t.Setenv("DLSCRIBE_USER_ID", "dl_env")
	t.Setenv("DLSCRIBE_MAX_PAGES", "12")
	t.Setenv("DLSCRIBE_STORE_PATH", "/tmp/env.db")
	t.Setenv("DLSCRIBE_LOG_LEVEL", "DEBUG")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
directLine:
  secret: file-secret
logging:
  level: warn
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "env-secret", cfg.DirectLine.Secret)
	assert.Equal(t, "https://dl.example.com", cfg.DirectLine.BaseURL)
	assert.Equal(t, "env-token", cfg.DirectLine.Token)
	assert.Equal(t, "dl_env", cfg.DirectLine.UserID)
	assert.Equal(t, 12, cfg.Fetch.MaxPages)
	assert.Equal(t, "/tmp/env.db", cfg.Store.Path)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestEnvOverrideBaseURLPrecedence(t *testing.T) {
	clearEnv(t)
	t.Setenv("DL_BASE_URL", "https://legacy.example.com")
	t.Setenv("DLSCRIBE_BASE_URL", "https://preferred.example.com")

	cfg, err := Load("/nonexistent/config.yaml")
	require.NoError(t, err)
	assert.Equal(t, "https://preferred.example.com", cfg.DirectLine.BaseURL)
}

func TestEnvOverrideIgnoresBadMaxPages(t *testing.T) {
	clearEnv(t)
	t.Setenv("DLSCRIBE_MAX_PAGES", "lots")

	cfg, err := Load("/nonexistent/config.yaml")
	require.NoError(t, err)
	assert.Equal(t, 1000, cfg.Fetch.MaxPages)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("DLSCRIBE_DOTENV_PROBE=from-file\n"), 0o600))

	t.Setenv("DLSCRIBE_DOTENV_PROBE", "")
	require.NoError(t, os.Unsetenv("DLSCRIBE_DOTENV_PROBE"))

	require.NoError(t, LoadDotEnv(envFile))
	assert.Equal(t, "from-file", os.Getenv("DLSCRIBE_DOTENV_PROBE"))
}

func TestLoadDotEnvExistingWins(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("DLSCRIBE_DOTENV_KEEP=from-file\n"), 0o600))

	t.Setenv("DLSCRIBE_DOTENV_KEEP", "from-shell")

	require.NoError(t, LoadDotEnv(envFile))
	assert.Equal(t, "from-shell", os.Getenv("DLSCRIBE_DOTENV_KEEP"))
}

func TestLoadDotEnvMissingFile(t *testing.T) {
	assert.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "nope.env")))
}

func TestRequireCredentials(t *testing.T) {
	cfg := Defaults()
	err := RequireCredentials(&cfg)
	require.Error(t, err)
	var cfgErr *ConfigError
	assert.ErrorAs(t, err, &cfgErr)

	cfg.DirectLine.Secret = "s"
	assert.NoError(t, RequireCredentials(&cfg))

	cfg.DirectLine.Secret = ""
	cfg.DirectLine.Token = "t"
	assert.NoError(t, RequireCredentials(&cfg))
}

func TestLoadRawAndSaveRaw(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	raw := map[string]any{
		"fetch": map[string]any{
			"maxPages": 25,
		},
		"logging": map[string]any{
			"level": "debug",
		},
	}

	require.NoError(t, SaveRaw(path, raw))

	loaded, err := LoadRaw(path)
	require.NoError(t, err)

	fetch, ok := loaded["fetch"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 25, fetch["maxPages"])

	logging, ok := loaded["logging"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "debug", logging["level"])
}

func TestLoadRawMissingFile(t *testing.T) {
	raw, err := LoadRaw("/nonexistent/config.yaml")
	require.NoError(t, err)
	assert.Empty(t, raw)
}

func TestLoadRawEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	raw, err := LoadRaw(path)
	require.NoError(t, err)
	assert.NotNil(t, raw)
	assert.Empty(t, raw)
}

func TestConfigErrorMessage(t *testing.T) {
	err := &ConfigError{Message: "something broke"}
	assert.Equal(t, "config: something broke", err.Error())
}
