package main

import (
	"log/slog"
	"os"
	"sync"

	"github.com/spf13/cobra"

	"github.com/nammaroute/companion/internal/app"
	"github.com/nammaroute/companion/internal/config"
	"github.com/nammaroute/companion/internal/transit"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

type commandContext struct {
	configPath string
	envFiles   []string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	logLevel *slog.LevelVar
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{logLevel: new(slog.LevelVar)}

	rootCmd := &cobra.Command{
		Use:           "nammaroute",
		Short:         "NammaRoute transit companion",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			ctx.setupLogger(cmd, cfg)
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&ctx.configPath, "config", "c", "", "YAML configuration file (defaults plus environment when empty)")
	rootCmd.PersistentFlags().StringSliceVar(&ctx.envFiles, "env-file", nil, "dotenv files to load before the environment is read (default .env)")

	rootCmd.AddCommand(newServeCommand(ctx))
	rootCmd.AddCommand(newTalkCommand(ctx))
	rootCmd.AddCommand(newBusesCommand(ctx))
	rootCmd.AddCommand(newLandmarksCommand(ctx))
	rootCmd.AddCommand(newRoomsCommand(ctx))
	rootCmd.AddCommand(newGuideCommand(ctx))

	return rootCmd
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		if err := config.LoadDotEnv(c.envFiles...); err != nil {
			c.configErr = err
			return
		}
		c.config, c.configErr = config.Load(c.configPath)
	})
	return c.config, c.configErr
}

// setupLogger installs a text handler on stderr whose level follows the
// config, including later reloads.
func (c *commandContext) setupLogger(cmd *cobra.Command, cfg *config.Config) {
	c.logLevel.Set(app.SlogLevel(cfg.Server.LogLevel))
	out := cmd.ErrOrStderr()
	if out == nil {
		out = os.Stderr
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: c.logLevel})))
}

func (c *commandContext) catalog() (*transit.Catalog, error) {
	if path := c.config.Transit.DataFile; path != "" {
		return transit.LoadFile(path)
	}
	return transit.Default(), nil
}
