package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/soyeahso/dlscribe/internal/directline"
	"github.com/soyeahso/dlscribe/internal/hooks"
	"github.com/soyeahso/dlscribe/internal/stream"
	"github.com/spf13/cobra"
)

func newListenCmd() *cobra.Command {
	var (
		conversationID string
		watermark      string
		reconnects     int
	)

	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Print activities from a conversation's WebSocket stream",
		Long: "Starts a new conversation, or reconnects to --conversation from --watermark,\n" +
			"and prints activities as they arrive. The stream is reopened after an idle\n" +
			"timeout up to --reconnects times.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}

			ctx, stop := signalContext()
			defer stop()

			conv, client, err := openConversation(ctx, client, conversationID, watermark)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "conversation %s\n", conv.ConversationID)

			h := newHooks()
			defer h.Wait()

			out, err := follow(ctx, cmd.OutOrStdout(), h, client, conv, reconnects)
			log.Info().
				Str("conversation", conv.ConversationID).
				Int("delivered", out.Delivered).
				Str("watermark", out.Watermark).
				Bool("endOfConversation", out.EndOfConversation).
				Msg("stream closed")
			return err
		},
	}

	cmd.Flags().StringVar(&conversationID, "conversation", "", "existing conversation id (default: start a new one)")
	cmd.Flags().StringVar(&watermark, "watermark", "", "replay activities after this watermark when reconnecting")
	cmd.Flags().IntVar(&reconnects, "reconnects", 5, "reconnect this many times after an idle timeout")
	return cmd
}

// openConversation starts a conversation when id is empty, or reconnects to
// it from watermark, and returns a client bound to the conversation token.
func openConversation(ctx context.Context, c *directline.Client, id, watermark string) (*directline.Conversation, *directline.Client, error) {
	var conv *directline.Conversation
	var err error
	if id == "" {
		conv, err = c.StartConversation(ctx)
	} else {
		conv, err = c.ReconnectConversation(ctx, id, watermark)
	}
	if err != nil {
		return nil, nil, err
	}
	if conv.ConversationID == "" {
		conv.ConversationID = id
	}
	return conv, conversationClient(c, conv), nil
}

// follow prints streamed activities to w and reports each one as
// activity_streamed. Idle timeouts and interrupts end it without error.
func follow(ctx context.Context, w io.Writer, h *hooks.Manager, c *directline.Client, conv *directline.Conversation, reconnects int) (stream.Outcome, error) {
	token := conv.Token
	if token == "" {
		token = credential()
	}

	l := stream.NewListener(streamOptions(), log)
	out, err := l.Follow(ctx, c, conv, token, reconnects, func(act directline.Activity) error {
		printActivity(w, act)
		h.EmitAsync(ctx, hooks.EventActivityStream, map[string]any{
			"conversationId": conv.ConversationID,
			"activityId":     act.ID,
			"type":           act.Type,
			"fromId":         fromID(act),
			"text":           act.Text,
		})
		return nil
	})
	if errors.Is(err, stream.ErrIdle) || errors.Is(err, context.Canceled) {
		err = nil
	}
	return out, err
}

// printActivity writes one line per activity.
func printActivity(w io.Writer, act directline.Activity) {
	ts := "--:--:--"
	if act.Timestamp.Valid() {
		ts = act.Timestamp.Time.Local().Format(time.TimeOnly)
	}
	from := fromID(act)
	if act.From != nil && act.From.Name != "" {
		from = act.From.Name
	}
	fmt.Fprintf(w, "[%s] %s: %s\n", ts, from, act.Describe())
}

func fromID(act directline.Activity) string {
	if act.From == nil {
		return ""
	}
	return act.From.ID
}
