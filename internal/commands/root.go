package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/parvesh-spec/messageforwarder/internal/config"
	"github.com/parvesh-spec/messageforwarder/internal/database"
	"github.com/parvesh-spec/messageforwarder/internal/forwarder"
	"github.com/parvesh-spec/messageforwarder/internal/logging"
	"github.com/parvesh-spec/messageforwarder/internal/repository"
	"github.com/parvesh-spec/messageforwarder/internal/supervisor"
	"github.com/parvesh-spec/messageforwarder/internal/telegram"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "forwarder",
	Short: "Forwarder relays messages between Telegram channels",
	Long: `Forwarder copies or forwards every new message of a source Telegram channel to a
destination channel using a linked user account, applying per-user text replacements.
Accounts, channels and replacements are managed from the web dashboard.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default ~/.config/forwarder/config.yaml)")
}

func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		return err
	}
	return nil
}

// app holds what most commands need: config, logger and database.
type app struct {
	cfg *config.Config
	log *zap.Logger
	db  *gorm.DB
}

func newApp(needTelegram bool) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("error loading config: %w", err)
	}
	if needTelegram {
		if err := cfg.ValidateTelegram(); err != nil {
			return nil, err
		}
	}

	log, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return nil, fmt.Errorf("error creating logger: %w", err)
	}

	db, err := database.Open(cfg.Database, log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("error initializing database: %w", err)
	}

	return &app{cfg: cfg, log: log, db: db}, nil
}

func (a *app) Close() {
	if err := database.Close(a.db); err != nil {
		a.log.Warn("Failed to close database", zap.Error(err))
	}
	_ = a.log.Sync()
}

func (a *app) telegramOptions() telegram.Options {
	return telegram.OptionsFromConfig(a.cfg.Telegram, a.log)
}

func (a *app) newWorker(route repository.ActiveRoute) *forwarder.Worker {
	return forwarder.NewWorker(
		forwarder.Config{
			Telegram:   a.telegramOptions(),
			MediaDir:   a.cfg.Telegram.MediaDir,
			RetryDelay: a.cfg.Worker.RetryDelay,
		},
		forwarder.Stores{
			Sessions:     repository.NewAccountRepository(a.db),
			Logs:         repository.NewLogRepository(a.db),
			Replacements: repository.NewReplacementRepository(a.db),
		},
		route,
		a.log,
	)
}

func (a *app) newSupervisor() *supervisor.Supervisor {
	return supervisor.New(
		repository.NewRouteRepository(a.db),
		repository.NewLogRepository(a.db),
		func(route repository.ActiveRoute) supervisor.Runner { return a.newWorker(route) },
		supervisor.Options{
			ReconcileInterval: a.cfg.Worker.ReconcileInterval,
			LogRetention:      a.cfg.Worker.LogRetention,
		},
		a.log,
	)
}

// signalContext is canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case <-sigChan:
			fmt.Println("\nReceived shutdown signal. Gracefully shutting down...")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()

	return ctx, cancel
}
