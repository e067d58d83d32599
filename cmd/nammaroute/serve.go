package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nammaroute/companion/internal/app"
	"github.com/nammaroute/companion/internal/config"
	"github.com/nammaroute/companion/internal/observe"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the local companion API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), ctx, watch)
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", true, "reload language, voice and log level when the config file changes")
	return cmd
}

func runServe(parent context.Context, cc *commandContext, watch bool) error {
	cfg := cc.config
	sigCtx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tel, err := observe.InitProvider(sigCtx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}

	opts := []app.Option{app.WithTelemetry(tel), app.WithLogLevel(cc.logLevel)}
	if watch && cc.configPath != "" {
		opts = append(opts, app.WithConfigWatch(cc.configPath, 0))
	}
	application, err := newApp(sigCtx, cfg, opts...)
	if err != nil {
		_ = tel.Shutdown(context.Background())
		return err
	}

	slog.Info("nammaroute starting",
		"version", version,
		"listen_addr", cfg.Server.ListenAddr,
		"s2s", cfg.Providers.S2S.Name,
		"llm", cfg.Providers.LLM.Name,
		"language", cfg.Assistant.Language,
	)

	runErr := application.Run(sigCtx)
	if runErr != nil && errors.Is(runErr, context.Canceled) {
		runErr = nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	slog.Info("goodbye")
	return runErr
}

// newApp builds providers from the registry and wires the application.
func newApp(ctx context.Context, cfg *config.Config, opts ...app.Option) (*app.App, error) {
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	metrics := observe.DefaultMetrics()
	providers, err := app.BuildProviders(cfg, reg, metrics)
	if err != nil {
		return nil, err
	}
	opts = append([]app.Option{app.WithMetrics(metrics), app.WithLogger(slog.Default())}, opts...)
	return app.New(ctx, cfg, providers, opts...)
}
