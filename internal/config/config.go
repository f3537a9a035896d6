package config

import "fmt"

// ConfigError represents a configuration error.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s", e.Message)
}

// DefaultBaseURL is the global Direct Line endpoint.
const DefaultBaseURL = "https://directline.botframework.com"

// Defaults returns a Config with sensible defaults applied.
func Defaults() Config {
	return Config{
		DirectLine: DirectLineConfig{
			BaseURL:        DefaultBaseURL,
			TimeoutSeconds: 30,
		},
		Fetch: FetchConfig{
			MaxPages:      1000,
			MaxRetries:    3,
			BaseBackoffMs: 500,
			MaxBackoffMs:  30000,
			Concurrency:   4,
		},
		Stream: StreamConfig{
			IdleTimeoutSeconds: 15,
			PingSeconds:        30,
		},
		Store: StoreConfig{
			Enabled: true,
		},
		Logging: LoggingConfig{
			Level:        "info",
			ConsoleStyle: "pretty",
		},
	}
}

// SkipOwnActivities reports whether the listener hides the user's own activities.
func (s StreamConfig) SkipOwnActivities() bool {
	return s.SkipOwn == nil || *s.SkipOwn
}

// RequireCredentials returns an error when neither a token nor a secret is set.
func RequireCredentials(cfg *Config) error {
	if cfg.DirectLine.Token == "" && cfg.DirectLine.Secret == "" {
		return &ConfigError{Message: "no Direct Line credentials: set directLine.secret, directLine.token or DIRECT_LINE_SECRET"}
	}
	return nil
}
