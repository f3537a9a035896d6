package config

import (
	"fmt"
	"net/url"
	"slices"
)

// ValidationIssue describes a problem with a config value.
type ValidationIssue struct {
	Path    string
	Message string
}

func (v ValidationIssue) String() string {
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

// Validate checks a Config for issues. Returns nil if valid.
func Validate(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue

	// Direct Line validation
	if cfg.DirectLine.BaseURL != "" {
		u, err := url.Parse(cfg.DirectLine.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			issues = append(issues, ValidationIssue{
				Path:    "directLine.baseUrl",
				Message: fmt.Sprintf("must be an absolute http(s) URL, got %q", cfg.DirectLine.BaseURL),
			})
		}
	}
	if cfg.DirectLine.TimeoutSeconds < 0 {
		issues = append(issues, ValidationIssue{
			Path:    "directLine.timeoutSeconds",
			Message: fmt.Sprintf("must not be negative, got %d", cfg.DirectLine.TimeoutSeconds),
		})
	}

	// Fetch validation
	if cfg.Fetch.MaxPages < 1 {
		issues = append(issues, ValidationIssue{
			Path:    "fetch.maxPages",
			Message: fmt.Sprintf("must be at least 1, got %d", cfg.Fetch.MaxPages),
		})
	}
	if cfg.Fetch.MaxRetries < 0 {
		issues = append(issues, ValidationIssue{
			Path:    "fetch.maxRetries",
			Message: fmt.Sprintf("must not be negative, got %d", cfg.Fetch.MaxRetries),
		})
	}
	if cfg.Fetch.BaseBackoffMs < 0 || cfg.Fetch.MaxBackoffMs < 0 {
		issues = append(issues, ValidationIssue{
			Path:    "fetch.baseBackoffMs",
			Message: "backoff durations must not be negative",
		})
	} else if cfg.Fetch.MaxBackoffMs < cfg.Fetch.BaseBackoffMs {
		issues = append(issues, ValidationIssue{
			Path:    "fetch.maxBackoffMs",
			Message: fmt.Sprintf("must be >= baseBackoffMs (%d), got %d", cfg.Fetch.BaseBackoffMs, cfg.Fetch.MaxBackoffMs),
		})
	}
	if cfg.Fetch.PagesPerSecond < 0 {
		issues = append(issues, ValidationIssue{
			Path:    "fetch.pagesPerSecond",
			Message: fmt.Sprintf("must not be negative, got %g", cfg.Fetch.PagesPerSecond),
		})
	}
	if cfg.Fetch.Concurrency < 1 || cfg.Fetch.Concurrency > 64 {
		issues = append(issues, ValidationIssue{
			Path:    "fetch.concurrency",
			Message: fmt.Sprintf("must be 1-64, got %d", cfg.Fetch.Concurrency),
		})
	}

	// Stream validation
	if cfg.Stream.IdleTimeoutSeconds < 0 {
		issues = append(issues, ValidationIssue{
			Path:    "stream.idleTimeoutSeconds",
			Message: fmt.Sprintf("must not be negative, got %d", cfg.Stream.IdleTimeoutSeconds),
		})
	}
	if cfg.Stream.PingSeconds < 0 {
		issues = append(issues, ValidationIssue{
			Path:    "stream.pingSeconds",
			Message: fmt.Sprintf("must not be negative, got %d", cfg.Stream.PingSeconds),
		})
	}

	// Logging validation
	validLogLevels := []string{"silent", "fatal", "error", "warn", "info", "debug", "trace"}
	if cfg.Logging.Level != "" && !slices.Contains(validLogLevels, cfg.Logging.Level) {
		issues = append(issues, ValidationIssue{
			Path:    "logging.level",
			Message: fmt.Sprintf("must be one of %v, got %q", validLogLevels, cfg.Logging.Level),
		})
	}

	validConsoleStyles := []string{"pretty", "compact", "json"}
	if cfg.Logging.ConsoleStyle != "" && !slices.Contains(validConsoleStyles, cfg.Logging.ConsoleStyle) {
		issues = append(issues, ValidationIssue{
			Path:    "logging.consoleStyle",
			Message: fmt.Sprintf("must be one of %v, got %q", validConsoleStyles, cfg.Logging.ConsoleStyle),
		})
	}

	// Hooks validation
	hookLists := map[string][]HookEntry{
		"hooks.fetchStarted":     cfg.Hooks.FetchStarted,
		"hooks.pageFetched":      cfg.Hooks.PageFetched,
		"hooks.fetchFinished":    cfg.Hooks.FetchFinished,
		"hooks.fetchFailed":      cfg.Hooks.FetchFailed,
		"hooks.transcriptBuilt":  cfg.Hooks.TranscriptBuilt,
		"hooks.activityStreamed": cfg.Hooks.ActivityStream,
	}
	for _, path := range []string{"hooks.fetchStarted", "hooks.pageFetched", "hooks.fetchFinished", "hooks.fetchFailed", "hooks.transcriptBuilt", "hooks.activityStreamed"} {
		for i, h := range hookLists[path] {
			if h.Command == "" {
				issues = append(issues, ValidationIssue{
					Path:    fmt.Sprintf("%s[%d].command", path, i),
					Message: "command is required",
				})
			}
			if h.Timeout < 0 {
				issues = append(issues, ValidationIssue{
					Path:    fmt.Sprintf("%s[%d].timeout", path, i),
					Message: fmt.Sprintf("must not be negative, got %d", h.Timeout),
				})
			}
		}
	}

	return issues
}
