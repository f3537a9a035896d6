package config

// Config is the root configuration for dlscribe.
type Config struct {
	DirectLine DirectLineConfig `yaml:"directLine,omitempty"`
	Fetch      FetchConfig      `yaml:"fetch,omitempty"`
	Stream     StreamConfig     `yaml:"stream,omitempty"`
	Store      StoreConfig      `yaml:"store,omitempty"`
	Output     OutputConfig     `yaml:"output,omitempty"`
	Logging    LoggingConfig    `yaml:"logging,omitempty"`
	Hooks      HooksConfig      `yaml:"hooks,omitempty"`
}

// DirectLineConfig points the client at a Direct Line service.
type DirectLineConfig struct {
	BaseURL        string `yaml:"baseUrl,omitempty"`
	Secret         string `yaml:"secret,omitempty"` // channel secret, may be ${ENV_VAR}
	Token          string `yaml:"token,omitempty"`  // pre-issued conversation token; wins over secret
	UserID         string `yaml:"userId,omitempty"` // identity used for sent activities
	TimeoutSeconds int    `yaml:"timeoutSeconds,omitempty"`
}

// FetchConfig bounds the watermark replay loop.
type FetchConfig struct {
	MaxPages       int     `yaml:"maxPages,omitempty"`
	MaxRetries     int     `yaml:"maxRetries,omitempty"` // per page, transient errors only
	BaseBackoffMs  int     `yaml:"baseBackoffMs,omitempty"`
	MaxBackoffMs   int     `yaml:"maxBackoffMs,omitempty"`
	PagesPerSecond float64 `yaml:"pagesPerSecond,omitempty"` // 0 = unpaced
	Concurrency    int     `yaml:"concurrency,omitempty"`    // conversations fetched in parallel
}

// StreamConfig controls the WebSocket listener.
type StreamConfig struct {
	IdleTimeoutSeconds int   `yaml:"idleTimeoutSeconds,omitempty"`
	PingSeconds        int   `yaml:"pingSeconds,omitempty"`
	SkipOwn            *bool `yaml:"skipOwn,omitempty"` // hide activities sent by directLine.userId; defaults to true
}

// StoreConfig controls the SQLite activity archive.
type StoreConfig struct {
	Enabled bool   `yaml:"enabled,omitempty"`
	Path    string `yaml:"path,omitempty"` // defaults to <data>/dlscribe.db
}

// OutputConfig controls where exported files are written.
type OutputConfig struct {
	Dir string `yaml:"dir,omitempty"` // defaults to <data>
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level        string `yaml:"level,omitempty"` // "silent" | "fatal" | "error" | "warn" | "info" | "debug" | "trace"
	File         string `yaml:"file,omitempty"`
	ConsoleStyle string `yaml:"consoleStyle,omitempty"` // "pretty" | "compact" | "json"
}

// HooksConfig defines shell commands run on fetch lifecycle events.
type HooksConfig struct {
	FetchStarted    []HookEntry `yaml:"fetchStarted,omitempty"`
	PageFetched     []HookEntry `yaml:"pageFetched,omitempty"`
	FetchFinished   []HookEntry `yaml:"fetchFinished,omitempty"`
	FetchFailed     []HookEntry `yaml:"fetchFailed,omitempty"`
	TranscriptBuilt []HookEntry `yaml:"transcriptBuilt,omitempty"`
	ActivityStream  []HookEntry `yaml:"activityStreamed,omitempty"`
}

// HookEntry defines a single hook action.
type HookEntry struct {
	Command string `yaml:"command"`
	Timeout int    `yaml:"timeout,omitempty"` // milliseconds
}
