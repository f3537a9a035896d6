package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/soyeahso/dlscribe/internal/config"
	"github.com/soyeahso/dlscribe/internal/directline"
	"github.com/soyeahso/dlscribe/internal/hooks"
	"github.com/soyeahso/dlscribe/internal/replay"
	"github.com/soyeahso/dlscribe/internal/store"
	"github.com/soyeahso/dlscribe/internal/stream"
	"github.com/soyeahso/dlscribe/internal/version"
	"golang.org/x/oauth2"
)

// credential returns the bearer value the client authenticates with. A
// configured token wins over the secret.
func credential() string {
	if cfg.DirectLine.Token != "" {
		return cfg.DirectLine.Token
	}
	return cfg.DirectLine.Secret
}

// newClient builds a Direct Line client from the loaded config.
func newClient() (*directline.Client, error) {
	if err := config.RequireCredentials(&cfg); err != nil {
		return nil, err
	}
	return newClientWith(directline.SecretTokenSource(credential())), nil
}

func newClientWith(tokens oauth2.TokenSource) *directline.Client {
	return directline.NewClient(directline.ClientConfig{
		BaseURL:   cfg.DirectLine.BaseURL,
		Timeout:   time.Duration(cfg.DirectLine.TimeoutSeconds) * time.Second,
		UserAgent: version.UserAgent(),
	}, tokens, log)
}

// conversationClient switches c to the token issued with conv, refreshing it
// before it expires.
func conversationClient(c *directline.Client, conv *directline.Conversation) *directline.Client {
	if conv.Token == "" {
		return c
	}
	initial := directline.ConversationToken(conv, time.Now())
	return c.WithTokenSource(directline.NewRefreshingTokenSource(c.HTTPClient(), c.BaseURL(), initial))
}

// fetchOptions maps the fetch config section onto replay options.
func fetchOptions() replay.Options {
	return replay.Options{
		MaxPages:       cfg.Fetch.MaxPages,
		MaxRetries:     cfg.Fetch.MaxRetries,
		BaseBackoff:    time.Duration(cfg.Fetch.BaseBackoffMs) * time.Millisecond,
		MaxBackoff:     time.Duration(cfg.Fetch.MaxBackoffMs) * time.Millisecond,
		PagesPerSecond: cfg.Fetch.PagesPerSecond,
	}
}

// streamOptions maps the stream config section onto listener options.
func streamOptions() stream.Options {
	opts := stream.Options{
		IdleTimeout:  time.Duration(cfg.Stream.IdleTimeoutSeconds) * time.Second,
		PingInterval: time.Duration(cfg.Stream.PingSeconds) * time.Second,
	}
	if cfg.Stream.SkipOwnActivities() {
		opts.SkipFromID = userID()
	}
	return opts
}

var generatedUserID string

// userID returns the configured user id, or a per-process generated one.
func userID() string {
	if cfg.DirectLine.UserID != "" {
		return cfg.DirectLine.UserID
	}
	if generatedUserID == "" {
		generatedUserID = "dl_" + uuid.New().String()
	}
	return generatedUserID
}

// newHooks creates a hook manager with the configured command hooks.
func newHooks() *hooks.Manager {
	m := hooks.NewManager(log)
	if n := m.RegisterConfig(cfg.Hooks); n > 0 {
		log.Debug().Int("hooks", n).Msg("command hooks registered")
	}
	return m
}

// openArchive opens the activity archive, or returns nil when the store is
// disabled.
func openArchive() (*store.Archive, func(), error) {
	if !cfg.Store.Enabled {
		return nil, func() {}, nil
	}
	db, err := store.Open(paths.Database, log)
	if err != nil {
		return nil, nil, fmt.Errorf("opening archive: %w", err)
	}
	return store.NewArchive(db), func() { db.Close() }, nil
}

// splitIDs accepts ids as separate args or comma-separated lists.
func splitIDs(args []string) []string {
	var ids []string
	seen := map[string]bool{}
	for _, a := range args {
		for _, id := range strings.Split(a, ",") {
			id = strings.TrimSpace(id)
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids
}
