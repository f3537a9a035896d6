package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/soyeahso/dlscribe/internal/directline"
	"github.com/soyeahso/dlscribe/internal/stream"
	"github.com/spf13/cobra"
)

func newSendCmd() *cobra.Command {
	var (
		conversationID string
		name           string
		locale         string
		listen         bool
	)

	cmd := &cobra.Command{
		Use:   "send <text>...",
		Short: "Send a message activity to the bot",
		Long: "Posts a message as directLine.userId, starting a new conversation unless\n" +
			"--conversation is given. With --listen the replies are printed until the\n" +
			"stream goes idle.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			client, err := newClient()
			if err != nil {
				return err
			}

			ctx, stop := signalContext()
			defer stop()

			conv := &directline.Conversation{ConversationID: conversationID}
			if conversationID == "" || listen {
				// A stream URL is only handed out by start and reconnect.
				conv, client, err = openConversation(ctx, client, conversationID, "")
				if err != nil {
					return err
				}
			}

			h := newHooks()
			defer h.Wait()

			var (
				replies = make(chan error, 1)
				outcome stream.Outcome
			)
			if listen {
				go func() {
					var err error
					outcome, err = follow(ctx, cmd.OutOrStdout(), h, client, conv, 0)
					replies <- err
				}()
			}

			act, err := newMessage(text, name, locale)
			if err != nil {
				return err
			}
			rr, err := client.PostActivity(ctx, conv.ConversationID, act)
			if err != nil {
				stop()
				if listen {
					<-replies
				}
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "sent %s to conversation %s\n", rr.ID, conv.ConversationID)

			if !listen {
				return nil
			}
			err = <-replies
			log.Debug().Int("delivered", outcome.Delivered).Str("watermark", outcome.Watermark).Msg("replies received")
			return err
		},
	}

	cmd.Flags().StringVar(&conversationID, "conversation", "", "existing conversation id (default: start a new one)")
	cmd.Flags().StringVar(&name, "name", "", "display name for the sender")
	cmd.Flags().StringVar(&locale, "locale", "", "locale of the message, e.g. en-US")
	cmd.Flags().BoolVar(&listen, "listen", false, "print replies until the stream goes idle")
	return cmd
}

// newMessage builds an outbound message activity. channelData carries a
// client-generated id so the echo of the activity can be matched.
func newMessage(text, name, locale string) (directline.Activity, error) {
	channelData, err := json.Marshal(map[string]string{"clientActivityID": uuid.New().String()})
	if err != nil {
		return directline.Activity{}, err
	}
	return directline.Activity{
		Type:        "message",
		Timestamp:   directline.NewTimestamp(time.Now().UTC()),
		From:        &directline.ChannelAccount{ID: userID(), Name: name, Role: "user"},
		Locale:      locale,
		Text:        text,
		ChannelData: channelData,
	}, nil
}
