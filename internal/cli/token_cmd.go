package cli

import (
	"fmt"

	"github.com/soyeahso/dlscribe/internal/directline"
	"github.com/spf13/cobra"
)

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Generate or refresh Direct Line tokens",
	}

	cmd.AddCommand(newTokenGenerateCmd())
	cmd.AddCommand(newTokenRefreshCmd())

	return cmd
}

func newTokenGenerateCmd() *cobra.Command {
	var user string

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Exchange the channel secret for a conversation token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.DirectLine.Secret == "" {
				return fmt.Errorf("token generate needs directLine.secret or DIRECT_LINE_SECRET")
			}
			client := newClientWith(directline.SecretTokenSource(cfg.DirectLine.Secret))

			ctx, stop := signalContext()
			defer stop()

			conv, err := client.GenerateToken(ctx, user)
			if err != nil {
				return err
			}
			log.Info().Str("conversation", conv.ConversationID).Int("expiresIn", conv.ExpiresIn).Msg("token generated")
			return writeJSON(cmd.OutOrStdout(), conv)
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "bind the token to this user id")
	return cmd
}

func newTokenRefreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Extend the lifetime of the configured token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.DirectLine.Token == "" {
				return fmt.Errorf("token refresh needs directLine.token or DLSCRIBE_TOKEN")
			}
			client := newClientWith(directline.SecretTokenSource(cfg.DirectLine.Token))

			ctx, stop := signalContext()
			defer stop()

			conv, err := client.RefreshToken(ctx)
			if err != nil {
				return err
			}
			log.Info().Str("conversation", conv.ConversationID).Int("expiresIn", conv.ExpiresIn).Msg("token refreshed")
			return writeJSON(cmd.OutOrStdout(), conv)
		},
	}
}
