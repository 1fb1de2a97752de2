package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/leofalp/chatkeeper/core/turn"
)

const chatHelp = "commands: /history, /reset, /quit"

func newChatCmd(flags *rootFlags) *cobra.Command {
	var (
		sessionID string
		provider  string
	)
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the configured backend from the terminal",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			if provider != "" {
				cfg.Chat.Provider = provider
			}
			if sessionID == "" {
				sessionID = "cli:" + uuid.NewString()
			}
			logger, err := newLogger(cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			a, err := buildApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			if _, err := a.store.Get(ctx, sessionID); err != nil {
				if _, err := a.store.Initialize(ctx, sessionID, cfg.Chat.SystemInstruction); err != nil {
					return err
				}
			}
			return a.repl(cmd, sessionID, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "session id (default: a new random id)")
	cmd.Flags().StringVar(&provider, "provider", "", "generation provider: gemini or scripted (overrides chat.provider)")
	return cmd
}

func (a *app) repl(cmd *cobra.Command, sessionID string, in io.Reader, out io.Writer) error {
	ctx := cmd.Context()
	fmt.Fprintf(out, "session %s (%s)\n", sessionID, chatHelp)

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())

		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/reset":
			if err := a.store.Clear(ctx, sessionID); err != nil {
				return err
			}
			fmt.Fprintln(out, "history cleared")
			continue
		case "/history":
			history, err := a.store.History(ctx, sessionID)
			if err != nil {
				return err
			}
			for _, m := range history {
				fmt.Fprintf(out, "[%s] %s\n", m.Role, m.Content)
			}
			continue
		}

		reply, err := a.turns.SendMessage(ctx, sessionID, line)
		if err != nil {
			return err
		}
		if reply.Status == turn.StatusError {
			fmt.Fprintf(out, "! %s (%v)\n", reply.Message, reply.Err)
			continue
		}
		fmt.Fprintln(out, reply.Message)
	}
}
