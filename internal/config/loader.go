package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR_NAME} patterns in strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvVars replaces ${VAR} patterns with environment variable values.
// Unset variables are left unchanged.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return match
	})
}

// expandSensitiveFields processes environment variable references in
// credential fields so secrets and tokens can be stored as ${ENV_VAR}.
func expandSensitiveFields(cfg *Config) {
	cfg.DirectLine.Secret = expandEnvVars(cfg.DirectLine.Secret)
	cfg.DirectLine.Token = expandEnvVars(cfg.DirectLine.Token)
}

// LoadDotEnv loads KEY=VALUE pairs from the given files (".env" when none are
// given) into the process environment. Variables already set win. Missing
// files are not an error.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	var present []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			present = append(present, f)
		}
	}
	if len(present) == 0 {
		return nil
	}
	return godotenv.Load(present...)
}

// Load reads the config file, applies environment overrides, and returns
// a merged Config. Missing files produce defaults only.
func Load(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			applyEnvOverrides(&cfg)
			return cfg, nil
		}
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}

	applyDefaults(&cfg)
	expandSensitiveFields(&cfg)
	applyEnvOverrides(&cfg)
	return cfg, nil
}

// LoadRaw reads the config file into a generic map for path-based access.
func LoadRaw(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]any{}, nil
		}
		return nil, err
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}

// SaveRaw writes a generic map back to a YAML config file.
func SaveRaw(path string, raw map[string]any) error {
	data, err := yaml.Marshal(raw)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// applyDefaults fills zero-value fields with sensible defaults.
func applyDefaults(cfg *Config) {
	def := Defaults()
	if cfg.DirectLine.BaseURL == "" {
		cfg.DirectLine.BaseURL = def.DirectLine.BaseURL
	}
	if cfg.DirectLine.TimeoutSeconds == 0 {
		cfg.DirectLine.TimeoutSeconds = def.DirectLine.TimeoutSeconds
	}
	if cfg.Fetch.MaxPages == 0 {
		cfg.Fetch.MaxPages = def.Fetch.MaxPages
	}
	if cfg.Fetch.BaseBackoffMs == 0 {
		cfg.Fetch.BaseBackoffMs = def.Fetch.BaseBackoffMs
	}
	if cfg.Fetch.MaxBackoffMs == 0 {
		cfg.Fetch.MaxBackoffMs = def.Fetch.MaxBackoffMs
	}
	if cfg.Fetch.Concurrency == 0 {
		cfg.Fetch.Concurrency = def.Fetch.Concurrency
	}
	if cfg.Stream.IdleTimeoutSeconds == 0 {
		cfg.Stream.IdleTimeoutSeconds = def.Stream.IdleTimeoutSeconds
	}
	if cfg.Stream.PingSeconds == 0 {
		cfg.Stream.PingSeconds = def.Stream.PingSeconds
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = def.Logging.Level
	}
	if cfg.Logging.ConsoleStyle == "" {
		cfg.Logging.ConsoleStyle = def.Logging.ConsoleStyle
	}
}

// applyEnvOverrides reads DLSCRIBE_* environment variables (and the
// DIRECT_LINE_SECRET / DL_BASE_URL names used by existing .env files) and
// overrides config values.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DIRECT_LINE_SECRET"); v != "" {
		cfg.DirectLine.Secret = v
	}
	if v := os.Getenv("DL_BASE_URL"); v != "" {
		cfg.DirectLine.BaseURL = v
	}
	if v := os.Getenv("DLSCRIBE_BASE_URL"); v != "" {
		cfg.DirectLine.BaseURL = v
	}
	if v := os.Getenv("DLSCRIBE_TOKEN"); v != "" {
		cfg.DirectLine.Token = v
	}
	if v := os.Getenv("DLSCRIBE_USER_ID"); v != "" {
		cfg.DirectLine.UserID = v
	}
	if v := os.Getenv("DLSCRIBE_MAX_PAGES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Fetch.MaxPages = n
		}
	}
	if v := os.Getenv("DLSCRIBE_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("DLSCRIBE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
}
