package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/leofalp/chatkeeper/internal/server"
	"github.com/leofalp/chatkeeper/providers/messaging/line"
)

func newServeCmd(flags *rootFlags) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the chat and webhook HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			logger, err := newLogger(cfg, os.Stderr)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			a, err := buildApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			opts := server.Options{
				Orchestrator:       a.turns,
				DefaultInstruction: cfg.Chat.SystemInstruction,
				DefaultSession:     cfg.Chat.DefaultSession,
				ChannelSecret:      cfg.Line.ChannelSecret,
				Metrics:            a.metrics,
				Health:             a.storage,
				Logger:             logger,
			}
			if cfg.Line.ChannelToken != "" {
				var lineOpts []line.Option
				if cfg.Line.BaseURL != "" {
					lineOpts = append(lineOpts, line.WithBaseURL(cfg.Line.BaseURL))
				}
				relay, err := line.New(cfg.Line.ChannelToken, lineOpts...)
				if err != nil {
					return err
				}
				opts.Relay = relay
			} else {
				logger.Warn("line channel token not set, webhook disabled")
			}

			srv, err := server.New(opts)
			if err != nil {
				return err
			}
			return srv.Run(ctx, cfg.Server.Addr, cfg.Server.ReadTimeout, cfg.Server.ShutdownTimeout)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}
