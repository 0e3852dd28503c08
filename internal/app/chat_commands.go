package app

import (
	"bufio"
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ggonzalez94/solchat/internal/agent"
	"github.com/ggonzalez94/solchat/internal/api"
	clierr "github.com/ggonzalez94/solchat/internal/errors"
	"github.com/ggonzalez94/solchat/internal/model"
)

const defaultUserID = "local"

type askResult struct {
	UserID string `json:"user_id"`
	Reply  string `json:"reply"`
}

type historyResult struct {
	UserID string       `json:"user_id"`
	Turns  []model.Turn `json:"turns"`
}

func (s *runtimeState) newAskCommand() *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "ask <message>",
		Short: "Send one message to the agent and print its answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			chat, err := s.svc.chatAgent(cmd.Context())
			if err != nil {
				return err
			}
			reply, err := chat.Exchange(cmd.Context(), userID, strings.Join(args, " "))
			if err != nil {
				return err
			}
			if s.settings.OutputMode == "plain" {
				return s.emitSuccess(trimRootPath(cmd.CommandPath()), reply, nil)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), askResult{UserID: userID, Reply: reply}, nil)
		},
	}
	cmd.Flags().StringVar(&userID, "user", defaultUserID, "Conversation owner id")
	return cmd
}

func (s *runtimeState) newChatCommand() *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive chat session (/reset clears the conversation, /exit quits)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			chat, err := s.svc.chatAgent(cmd.Context())
			if err != nil {
				return err
			}
			return s.repl(cmd.Context(), chat, userID)
		},
	}
	cmd.Flags().StringVar(&userID, "user", defaultUserID, "Conversation owner id")
	return cmd
}

func (s *runtimeState) repl(ctx context.Context, chat *agent.Agent, userID string) error {
	w := s.runner.stdout
	scanner := bufio.NewScanner(s.runner.stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		_, _ = fmt.Fprint(w, "> ")
		if !scanner.Scan() {
			_, _ = fmt.Fprintln(w)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/exit", "/quit":
			return nil
		case "/reset":
			if err := chat.Reset(ctx, userID); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(w, "conversation cleared")
			continue
		}
		reply, err := chat.Exchange(ctx, userID, line)
		if err != nil {
			if clierr.Is(err, clierr.CodeCancelled) && ctx.Err() != nil {
				return err
			}
			s.logger.Warn("chat exchange failed", zap.String("user_id", userID), zap.Error(err))
			_, _ = fmt.Fprintln(w, agent.FailureMessage)
			continue
		}
		_, _ = fmt.Fprintln(w, reply)
	}
}

func (s *runtimeState) newHistoryCommand() *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print the stored conversation of a user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := s.svc.conversationStore()
			if err != nil {
				return err
			}
			turns, err := store.Read(cmd.Context(), userID)
			if err != nil {
				return err
			}
			if turns == nil {
				turns = []model.Turn{}
			}
			if s.settings.ResultsOnly {
				return s.emitSuccess(trimRootPath(cmd.CommandPath()), turns, nil)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), historyResult{UserID: userID, Turns: turns}, nil)
		},
	}
	cmd.Flags().StringVar(&userID, "user", defaultUserID, "Conversation owner id")
	return cmd
}

func (s *runtimeState) newResetCommand() *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete the stored conversation of a user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := s.svc.conversationStore()
			if err != nil {
				return err
			}
			if err := store.Reset(cmd.Context(), userID); err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), map[string]string{"user_id": userID, "status": "reset"}, nil)
		},
	}
	cmd.Flags().StringVar(&userID, "user", defaultUserID, "Conversation owner id")
	return cmd
}

func (s *runtimeState) newServeCommand() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the chat agent over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = s.settings.ServerAddr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			chat, err := s.svc.chatAgent(ctx)
			if err != nil {
				return err
			}
			router := api.NewRouter(chat, s.logger, s.settings.Env == "production")
			return api.Serve(ctx, addr, router, s.logger)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config, :8080)")
	return cmd
}
