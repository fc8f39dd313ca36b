package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/getmockd/switchboard/pkg/config"
	"github.com/getmockd/switchboard/pkg/logging"
	"github.com/getmockd/switchboard/pkg/pool"
)

// startTimeout bounds the fx start hooks.
const startTimeout = 15 * time.Second

var (
	serveListen      string
	serveAdminListen string
	serveNoAdmin     bool
	serveLogLevel    string
	serveLogFormat   string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the switchboard server",
	Long: `Start the multi-protocol listener and, unless disabled, the admin API.

The process runs until SIGINT or SIGTERM, then stops accepting connections
and waits up to server.shutdownTimeout for open connections.`,
	Example: `  # Serve with defaults on :8080
  switchboard serve

  # Serve a config file on another port
  switchboard serve -c switchboard.yaml --listen :9000`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadServeConfig(cmd)
		if err != nil {
			return err
		}
		log := newLogger(cfg.Log)

		p, err := pool.InitDefault(cfg.Pool, pool.WithLogger(log))
		if err != nil && !errors.Is(err, pool.ErrAlreadyInitialized) {
			return err
		}

		fxApp := fx.New(Module(cfg, log, p))
		if err := fxApp.Err(); err != nil {
			return err
		}

		startCtx, cancel := context.WithTimeout(cmd.Context(), startTimeout)
		defer cancel()
		if err := fxApp.Start(startCtx); err != nil {
			return fmt.Errorf("start: %w", err)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		<-ctx.Done()
		log.Info("shutting down")

		stopCtx, cancelStop := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout+5*time.Second)
		defer cancelStop()
		return fxApp.Stop(stopCtx)
	},
}

// loadServeConfig loads the config file and env overrides, then applies
// the flags that were set explicitly.
func loadServeConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("listen") {
		cfg.Server.Listen = serveListen
	}
	if flags.Changed("admin-listen") {
		cfg.Admin.Listen = serveAdminListen
	}
	if serveNoAdmin {
		cfg.Admin.Enabled = false
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = serveLogLevel
	}
	if flags.Changed("log-format") {
		cfg.Log.Format = serveLogFormat
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(lc config.LogConfig) *slog.Logger {
	return logging.New(logging.Config{
		Level:  logging.ParseLevel(lc.Level),
		Format: logging.ParseFormat(lc.Format),
		Output: os.Stderr,
		File:   lc.File,
	})
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "Listen address (overrides server.listen)")
	serveCmd.Flags().StringVar(&serveAdminListen, "admin-listen", "", "Admin API listen address (overrides admin.listen)")
	serveCmd.Flags().BoolVar(&serveNoAdmin, "no-admin", false, "Disable the admin API")
	serveCmd.Flags().StringVar(&serveLogLevel, "log-level", "", "Log level: debug, info, warn, error")
	serveCmd.Flags().StringVar(&serveLogFormat, "log-format", "", "Log format: text, json")
}
