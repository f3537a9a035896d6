package hooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/soyeahso/dlscribe/internal/config"
)

// DefaultCommandTimeout bounds a command hook with no configured timeout.
const DefaultCommandTimeout = 10 * time.Second

// CommandHandler returns a Handler that runs entry.Command with sh -c. The
// JSON-encoded payload is written to the command's stdin and the event name
// is exported as DLSCRIBE_EVENT.
func CommandHandler(entry config.HookEntry) Handler {
	timeout := DefaultCommandTimeout
	if entry.Timeout > 0 {
		timeout = time.Duration(entry.Timeout) * time.Millisecond
	}

	return func(ctx context.Context, p Payload) error {
		input, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("encoding payload: %w", err)
		}

		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		cmd := exec.CommandContext(ctx, "sh", "-c", entry.Command)
		cmd.Stdin = bytes.NewReader(input)
		cmd.Env = append(os.Environ(), "DLSCRIBE_EVENT="+p.Event)
		var stderr bytes.Buffer
		cmd.Stderr = &stderr
		cmd.WaitDelay = time.Second

		if err := cmd.Run(); err != nil {
			if ctx.Err() == context.DeadlineExceeded {
				return fmt.Errorf("hook %q timed out after %s", entry.Command, timeout)
			}
			if msg := strings.TrimSpace(stderr.String()); msg != "" {
				return fmt.Errorf("hook %q: %w: %s", entry.Command, err, msg)
			}
			return fmt.Errorf("hook %q: %w", entry.Command, err)
		}
		return nil
	}
}

// RegisterConfig registers a command handler for every hook entry in cfg and
// returns how many were registered.
func (m *Manager) RegisterConfig(cfg config.HooksConfig) int {
	lists := []struct {
		event   string
		entries []config.HookEntry
	}{
		{EventFetchStarted, cfg.FetchStarted},
		{EventPageFetched, cfg.PageFetched},
		{EventFetchFinished, cfg.FetchFinished},
		{EventFetchFailed, cfg.FetchFailed},
		{EventTranscriptBuilt, cfg.TranscriptBuilt},
		{EventActivityStream, cfg.ActivityStream},
	}

	n := 0
	for _, l := range lists {
		for i, entry := range l.entries {
			if entry.Command == "" {
				continue
			}
			m.On(l.event, fmt.Sprintf("config:%s[%d]", l.event, i), CommandHandler(entry))
			n++
		}
	}
	return n
}
