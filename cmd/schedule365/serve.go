package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/njt/schedule365/internal/intent"
	"github.com/njt/schedule365/internal/logging"
	"github.com/njt/schedule365/internal/mcptools"
	"github.com/njt/schedule365/internal/scheduler"
)

var serveMCPCmd = &cobra.Command{
	Use:   "serve-mcp",
	Short: "Serve the scheduling tools to an MCP client over stdio",
	Long: `Exposes parse_meeting_request, resolve_attendees and schedule_meeting as MCP
tools on stdin/stdout. Sign-in happens on the first tool call that needs
Microsoft Graph; logs and sign-in prompts go to stderr.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		config, err := loadConfig()
		if err != nil {
			return err
		}

		var parser intent.Parser
		if p, err := newParser(config); err != nil {
			logger.Warn("parse_meeting_request is disabled", logging.Err(err))
		} else {
			parser = p
		}

		a, err := newAssistant(cmd, config, parser)
		if err != nil {
			return err
		}

		if addr, _ := cmd.Flags().GetString("metrics-addr"); addr != "" {
			stop := serveMetrics(addr)
			defer stop()
		}

		tools := mcptools.New(mcptools.Config{
			Parser: parser,
			Graph: func(context.Context) (scheduler.Graph, error) {
				// sign-in outlives a single tool call
				client, err := a.Authenticate(ctx)
				if err != nil {
					return nil, err
				}
				return client, nil
			},
			TimeZone: config.TimeZone,
			Metrics:  appMetrics,
			Logger:   logger,
		})

		return mcptools.ServeStdio(mcptools.NewServer(version, tools))
	},
}

// serveMetrics exposes /metrics on addr and returns a shutdown func.
func serveMetrics(addr string) func() {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", appMetrics.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", logging.Err(err))
		}
	}()
	logger.Info("serving metrics", "addr", addr)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Warn(fmt.Sprintf("metrics server shutdown: %v", err))
		}
	}
}

func init() {
	serveMCPCmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g., localhost:9090)")
	addAuthFlags(serveMCPCmd)
}
