// Package transcript projects raw activities into a chronological list of
// human-visible messages.
package transcript

import (
	"fmt"
	"sort"
	"time"

	"github.com/soyeahso/dlscribe/internal/directline"
	"github.com/soyeahso/dlscribe/internal/logging"
)

// Message is one line of a transcript.
type Message struct {
	Timestamp  time.Time `json:"timestamp"`
	FromID     string    `json:"fromId"`
	Text       string    `json:"text"`
	ActivityID string    `json:"activityId,omitempty"`
}

// Transcript is the ordered message view of a conversation.
type Transcript struct {
	ConversationID string    `json:"conversationId"`
	Messages       []Message `json:"messages"`
}

// Empty reports whether the conversation had no message activities. This is
// a "no content" outcome, not a failure.
func (t Transcript) Empty() bool {
	return len(t.Messages) == 0
}

// MalformedActivityError describes a message activity the projector skipped.
type MalformedActivityError struct {
	Index      int // position in the input slice
	ActivityID string
	Reason     string
}

func (e *MalformedActivityError) Error() string {
	id := e.ActivityID
	if id == "" {
		id = "<no id>"
	}
	return fmt.Sprintf("transcript: activity %d (%s) skipped: %s", e.Index, id, e.Reason)
}

// Project builds a transcript from activities. Only message activities are
// kept; those without a parsable timestamp or a sender are skipped and
// reported in the returned slice. Messages are stably sorted by timestamp.
// Project does not modify activities and the same input always yields the
// same transcript.
func Project(conversationID string, activities []directline.Activity) (Transcript, []error) {
	t := Transcript{ConversationID: conversationID, Messages: []Message{}}
	var skipped []error

	for i := range activities {
		act := &activities[i]
		if act.Type != directline.ActivityTypeMessage {
			continue
		}

		if !act.Timestamp.Valid() {
			skipped = append(skipped, &MalformedActivityError{Index: i, ActivityID: act.ID, Reason: "missing or unparsable timestamp"})
			continue
		}
		from := sender(act.From)
		if from == "" {
			skipped = append(skipped, &MalformedActivityError{Index: i, ActivityID: act.ID, Reason: "missing sender"})
			continue
		}

		t.Messages = append(t.Messages, Message{
			Timestamp:  act.Timestamp.Time,
			FromID:     from,
			Text:       act.Text,
			ActivityID: act.ID,
		})
	}

	sort.SliceStable(t.Messages, func(i, j int) bool {
		return t.Messages[i].Timestamp.Before(t.Messages[j].Timestamp)
	})
	return t, skipped
}

// Build is Project with a warning logged for every skipped activity.
func Build(conversationID string, activities []directline.Activity, log *logging.Logger) Transcript {
	l := log.Sub("transcript").With("conversation", conversationID)
	t, skipped := Project(conversationID, activities)
	for _, err := range skipped {
		l.Warn().Err(err).Msg("skipping malformed activity")
	}
	if t.Empty() {
		l.Info().Int("activities", len(activities)).Msg("no message activities")
	}
	return t
}

// sender prefers the display name and falls back to the account id.
func sender(acct *directline.ChannelAccount) string {
	if acct == nil {
		return ""
	}
	if acct.Name != "" {
		return acct.Name
	}
	return acct.ID
}
