package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func issuePaths(issues []ValidationIssue) []string {
	out := make([]string, 0, len(issues))
	for _, is := range issues {
		out = append(out, is.Path)
	}
	return out
}

func TestValidate_ValidDefaults(t *testing.T) {
	cfg := Defaults()
	issues := Validate(&cfg)
	assert.Empty(t, issues)
}

func TestValidate_BaseURL(t *testing.T) {
	tests := []struct {
		url   string
		valid bool
	}{
		{"https://directline.botframework.com", true},
		{"http://localhost:3978", true},
		{"", true},
		{"ftp://directline.botframework.com", false},
		{"directline.botframework.com", false},
		{"https://", false},
		{"://bad", false},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			cfg := Defaults()
			cfg.DirectLine.BaseURL = tt.url
			issues := Validate(&cfg)
			if tt.valid {
				assert.Empty(t, issues)
			} else {
				assert.Contains(t, issuePaths(issues), "directLine.baseUrl")
			}
		})
	}
}

func TestValidate_NegativeTimeout(t *testing.T) {
	cfg := Defaults()
	cfg.DirectLine.TimeoutSeconds = -1
	assert.Contains(t, issuePaths(Validate(&cfg)), "directLine.timeoutSeconds")
}

func TestValidate_MaxPages(t *testing.T) {
	cfg := Defaults()
	cfg.Fetch.MaxPages = 0
	issues := Validate(&cfg)
	assert.Len(t, issues, 1)
	assert.Equal(t, "fetch.maxPages", issues[0].Path)

	cfg.Fetch.MaxPages = 1
	assert.Empty(t, Validate(&cfg))
}

func TestValidate_MaxRetries(t *testing.T) {
	cfg := Defaults()
	cfg.Fetch.MaxRetries = 0
	assert.Empty(t, Validate(&cfg))

	cfg.Fetch.MaxRetries = -2
	assert.Contains(t, issuePaths(Validate(&cfg)), "fetch.maxRetries")
}

func TestValidate_Backoff(t *testing.T) {
	cfg := Defaults()
	cfg.Fetch.BaseBackoffMs = -1
	assert.Contains(t, issuePaths(Validate(&cfg)), "fetch.baseBackoffMs")

	cfg = Defaults()
	cfg.Fetch.BaseBackoffMs = 1000
	cfg.Fetch.MaxBackoffMs = 500
	assert.Contains(t, issuePaths(Validate(&cfg)), "fetch.maxBackoffMs")

	cfg.Fetch.MaxBackoffMs = 1000
	assert.Empty(t, Validate(&cfg))
}

func TestValidate_PagesPerSecond(t *testing.T) {
	cfg := Defaults()
	cfg.Fetch.PagesPerSecond = 0.5
	assert.Empty(t, Validate(&cfg))

	cfg.Fetch.PagesPerSecond = -1
	assert.Contains(t, issuePaths(Validate(&cfg)), "fetch.pagesPerSecond")
}

func TestValidate_Concurrency(t *testing.T) {
	for _, n := range []int{1, 16, 64} {
		cfg := Defaults()
		cfg.Fetch.Concurrency = n
		assert.Empty(t, Validate(&cfg), "concurrency %d", n)
	}
	for _, n := range []int{0, -1, 65} {
		cfg := Defaults()
		cfg.Fetch.Concurrency = n
		assert.Contains(t, issuePaths(Validate(&cfg)), "fetch.concurrency", "concurrency %d", n)
	}
}

func TestValidate_Stream(t *testing.T) {
	cfg := Defaults()
	cfg.Stream.IdleTimeoutSeconds = -5
	cfg.Stream.PingSeconds = -1
	paths := issuePaths(Validate(&cfg))
	assert.Contains(t, paths, "stream.idleTimeoutSeconds")
	assert.Contains(t, paths, "stream.pingSeconds")
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	cfg := Defaults()
	cfg.Logging.Level = "verbose"
	issues := Validate(&cfg)
	assert.Len(t, issues, 1)
	assert.Equal(t, "logging.level", issues[0].Path)
}

func TestValidate_ValidLogLevels(t *testing.T) {
	for _, level := range []string{"silent", "fatal", "error", "warn", "info", "debug", "trace", ""} {
		cfg := Defaults()
		cfg.Logging.Level = level
		assert.Empty(t, Validate(&cfg), "level %q should be valid", level)
	}
}

func TestValidate_ConsoleStyle(t *testing.T) {
	for _, style := range []string{"pretty", "compact", "json", ""} {
		cfg := Defaults()
		cfg.Logging.ConsoleStyle = style
		assert.Empty(t, Validate(&cfg), "style %q should be valid", style)
	}

	cfg := Defaults()
	cfg.Logging.ConsoleStyle = "fancy"
	assert.Contains(t, issuePaths(Validate(&cfg)), "logging.consoleStyle")
}

func TestValidate_Hooks(t *testing.T) {
	cfg := Defaults()
	cfg.Hooks.FetchStarted = []HookEntry{{Command: "true"}}
	cfg.Hooks.PageFetched = []HookEntry{{Command: "true"}, {Command: ""}}
	cfg.Hooks.TranscriptBuilt = []HookEntry{{Command: "jq .", Timeout: -1}}

	issues := Validate(&cfg)
	assert.Equal(t, []string{
		"hooks.pageFetched[1].command",
		"hooks.transcriptBuilt[0].timeout",
	}, issuePaths(issues))
}

func TestValidate_MultipleIssues(t *testing.T) {
	cfg := Defaults()
	cfg.DirectLine.BaseURL = "nope"
	cfg.Fetch.MaxPages = 0
	cfg.Logging.Level = "bad"

	issues := Validate(&cfg)
	assert.Len(t, issues, 3)
}

func TestValidationIssueString(t *testing.T) {
	issue := ValidationIssue{Path: "fetch.maxPages", Message: "must be at least 1, got 0"}
	assert.Equal(t, "fetch.maxPages: must be at least 1, got 0", issue.String())
}
