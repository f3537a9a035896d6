package stream

import (
	"context"
	"errors"
	"fmt"

	"github.com/soyeahso/dlscribe/internal/directline"
)

// Reconnector obtains a fresh stream URL for a conversation.
// *directline.Client implements it.
type Reconnector interface {
	ReconnectConversation(ctx context.Context, conversationID, watermark string) (*directline.Conversation, error)
}

// Follow listens on conv.StreamURL and, whenever the stream goes idle or
// the server closes it, reconnects from the last watermark. It stops after
// maxReconnects reconnections (0 means never reconnect), on
// endOfConversation, on a handler error or when ctx is done.
func (l *Listener) Follow(ctx context.Context, rc Reconnector, conv *directline.Conversation, token string, maxReconnects int, h Handler) (Outcome, error) {
	if conv == nil || conv.StreamURL == "" {
		return Outcome{}, errors.New("stream: conversation has no stream URL")
	}

	var total Outcome
	streamURL := conv.StreamURL
	for attempt := 0; ; attempt++ {
		out, err := l.Listen(ctx, streamURL, token, h)
		total.Delivered += out.Delivered
		total.Skipped += out.Skipped
		if out.Watermark != "" {
			total.Watermark = out.Watermark
		}
		if out.EndOfConversation {
			total.EndOfConversation = true
			return total, nil
		}
		if err != nil && !errors.Is(err, ErrIdle) {
			return total, err
		}
		if attempt >= maxReconnects {
			return total, err
		}

		l.log.Info().
			Str("conversation", conv.ConversationID).
			Str("watermark", total.Watermark).
			Int("attempt", attempt+1).
			Msg("reconnecting stream")

		next, rerr := rc.ReconnectConversation(ctx, conv.ConversationID, total.Watermark)
		if rerr != nil {
			return total, fmt.Errorf("stream: reconnect: %w", rerr)
		}
		if next.StreamURL == "" {
			return total, errors.New("stream: reconnect returned no stream URL")
		}
		streamURL = next.StreamURL
		if next.Token != "" {
			token = next.Token
		}
	}
}
