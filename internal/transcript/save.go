package transcript

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Save writes t as indented JSON to <dir>/<conversationId>.json and returns
// the path.
func Save(dir string, t Transcript) (string, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("creating transcript directory: %w", err)
	}

	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding transcript: %w", err)
	}

	path := filepath.Join(dir, FileName(t.ConversationID)+".json")
	if err := os.WriteFile(path, append(data, '\n'), 0o600); err != nil {
		return "", fmt.Errorf("writing transcript: %w", err)
	}
	return path, nil
}

// Load reads a transcript written by Save.
func Load(path string) (Transcript, error) {
	var t Transcript
	data, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := json.Unmarshal(data, &t); err != nil {
		return t, fmt.Errorf("parsing transcript %s: %w", path, err)
	}
	return t, nil
}

// FileName makes a conversation id safe to use as a file name.
func FileName(conversationID string) string {
	if conversationID == "" {
		return "conversation"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		if r < 0x20 {
			return '_'
		}
		return r
	}, conversationID)
}

// Format renders t as plain text, one message per line.
func Format(t Transcript) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n", t.ConversationID)
	if t.Empty() {
		b.WriteString("(no messages)\n")
		return b.String()
	}
	for _, m := range t.Messages {
		fmt.Fprintf(&b, "[%s] %s: %s\n", m.Timestamp.UTC().Format(time.RFC3339), m.FromID, m.Text)
	}
	return b.String()
}
