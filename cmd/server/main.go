package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/wapcast-server/internal/app"
	"github.com/vovakirdan/wapcast-server/internal/config"
	"github.com/vovakirdan/wapcast-server/internal/log"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		addr       string
		logLevel   string
	)

	root := &cobra.Command{
		Use:           "wapcast-server",
		Short:         "Real-time presence and broadcast server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			bootLogger := log.New("info")
			cfg, resolvedPath, err := config.Load(bootLogger, configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			cfg.UpdateFrom(config.Config{Addr: addr, LogLevel: logLevel})

			logger := log.New(cfg.LogLevel)
			logger.Info().Str("config", resolvedPath).Str("version", version).Msg("configuration loaded")

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			go func() {
				err := config.Watch(ctx, resolvedPath, logger, func(next config.Config) {
					// only the log level is applied without a restart
					if logLevel == "" {
						log.SetLevel(next.LogLevel)
						logger.Info().Str("log_level", next.LogLevel).Msg("log level updated")
					}
				})
				if err != nil {
					logger.Warn().Err(err).Msg("config watch disabled")
				}
			}()

			application, err := app.New(&cfg, logger)
			if err != nil {
				return fmt.Errorf("init app: %w", err)
			}

			logger.Info().Str("addr", cfg.Addr).Msg("starting wapcast server")
			if err := application.Run(ctx); err != nil {
				return fmt.Errorf("server exited with error: %w", err)
			}
			logger.Info().Msg("server stopped")
			return nil
		},
	}

	root.Flags().StringVar(&configPath, "config", "", "path to config file (default ./config.yaml or $WAPCAST_CONFIG_DEFAULT_PATH/config.yaml)")
	root.Flags().StringVar(&addr, "addr", "", "HTTP listen address, overrides config")
	root.Flags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error), overrides config")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the server version",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Println(version)
		},
	})

	return root
}
