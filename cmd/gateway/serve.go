package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aeturnal/claude-code-responses-proxy/internal/config"
	appLog "github.com/aeturnal/claude-code-responses-proxy/internal/log"
	"github.com/aeturnal/claude-code-responses-proxy/internal/server"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the gateway HTTP server",
		Long:  `Start the Anthropic Messages to OpenAI Responses translation gateway.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Parse(os.Args[2:])
			if err != nil {
				return fmt.Errorf("config error: %w", err)
			}

			logger := appLog.New(cfg.LogLevel, cfg.LogFormat)

			return runServer(cfg, logger)
		},
	}

	return cmd
}

func runServer(cfg config.Config, logger *slog.Logger) error {
	srv, err := server.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("build server: %w", err)
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		s := <-sigCh
		logger.Info("received signal, exiting", "signal", s.String())
		os.Exit(0)
	}()

	logger.Info("starting gateway server", "host", cfg.Host, "port", cfg.Port)
	if err := srv.Run(cfg.Host, cfg.Port); err != nil {
		logger.Error("server exited with error", "error", err)
		return err
	}

	return nil
}
