package cli

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/soyeahso/agentdesk/internal/config"
	"github.com/soyeahso/agentdesk/internal/dify"
	"github.com/spf13/cobra"
)

func newChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to an agent's chatbot app",
	}

	cmd.AddCommand(newChatSendCmd())
	return cmd
}

func newChatSendCmd() *cobra.Command {
	var (
		appKey         string
		conversationID string
		user           string
		stream         bool
	)

	cmd := &cobra.Command{
		Use:   "send [message]",
		Short: "Send a message to a chatbot app and print the answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			message := strings.Join(args, " ")

			cfg, err := config.Load(paths.Config)
			if err != nil {
				return err
			}
			client := dify.New(cfg.Dify, log)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			req := dify.ChatRequest{
				Query:          message,
				ConversationID: conversationID,
				User:           user,
				ResponseMode:   dify.ModeBlocking,
			}
			var onChunk func(string)
			if stream {
				req.ResponseMode = dify.ModeStreaming
				onChunk = func(chunk string) { fmt.Print(chunk) }
			}

			resp, err := client.Chat(ctx, appKey, req, onChunk)
			if err != nil {
				return err
			}
			if stream {
				fmt.Println()
			} else {
				fmt.Println(resp.Answer)
			}
			if resp.ConversationID != "" {
				log.Debug().Str("conversation", resp.ConversationID).Msg("chat complete")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&appKey, "app-key", "", "chatbot app API key")
	cmd.Flags().StringVar(&conversationID, "conversation", "", "continue an existing conversation")
	cmd.Flags().StringVar(&user, "user", "", "end-user identifier sent with the message")
	cmd.Flags().BoolVar(&stream, "stream", false, "print the answer as it streams")
	_ = cmd.MarkFlagRequired("app-key")

	return cmd
}
