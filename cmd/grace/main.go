package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"grace-bot/internal/bot"
	"grace-bot/internal/config"
	"grace-bot/internal/storage"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

var ErrMissingApplicationID = errors.New("application_id is required to build the invite link")

func main() {
	if err := newApp().Run(context.Background(), os.Args); err != nil {
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:  "grace",
		Usage: "Discord moderation and activity bot",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the YAML config file (defaults to CONFIG_PATH or config.yaml)",
			},
		},
		Action: runAction,
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Connect to Discord and serve commands",
				Action: runAction,
			},
			{
				Name:  "migrate",
				Usage: "Apply database migrations and exit",
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, logger, err := setup(c)
					if err != nil {
						return err
					}
					defer func() { _ = logger.Sync() }()

					store, err := openStore(cfg)
					if err != nil {
						return err
					}
					defer store.Close()
					logger.Info("migrations applied", zap.String("dialect", store.Dialect().String()))
					return nil
				},
			},
			{
				Name:  "invite",
				Usage: "Print the OAuth2 link that adds the bot to a server",
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := config.Load(c.String("config"))
					if err != nil {
						return err
					}
					if cfg.ApplicationID == "" {
						return ErrMissingApplicationID
					}
					_, err = fmt.Fprintln(os.Stdout, bot.InviteURL(cfg.ApplicationID))
					return err
				},
			},
		},
	}
}

func setup(c *cli.Command) (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := config.BuildLogger(cfg.LogLevel)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("build logger: %w", err)
	}
	return cfg, logger, nil
}

func openStore(cfg config.Config) (*storage.Store, error) {
	store, err := storage.New(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("storage init: %w", err)
	}
	if err := store.Migrate(); err != nil {
		store.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}
	return store, nil
}

func runAction(ctx context.Context, c *cli.Command) error {
	cfg, logger, err := setup(c)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", zap.Error(err))
		return err
	}

	store, err := openStore(cfg)
	if err != nil {
		logger.Error("storage unavailable", zap.Error(err))
		return err
	}
	defer store.Close()

	botSvc, err := bot.New(cfg, logger, store)
	if err != nil {
		return fmt.Errorf("bot init: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Bind before connecting so a taken port fails startup.
	var (
		health   *healthServer
		listener net.Listener
	)
	if cfg.Health.Enabled {
		health = newHealthServer(cfg.Health, botSvc, logger)
		listener, err = health.Listen()
		if err != nil {
			logger.Error("health server unavailable", zap.Error(err))
			return err
		}
	}

	if err := botSvc.Start(ctx); err != nil {
		logger.Error("bot start failed", zap.Error(err))
		if listener != nil {
			_ = listener.Close()
		}
		return err
	}
	logger.Info("bot started", zap.String("database", store.Dialect().String()))

	if health != nil {
		botSvc.Go(func(ctx context.Context) error {
			return health.Serve(ctx, listener)
		})
	}

	<-ctx.Done()
	logger.Info("shutdown requested")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := botSvc.Close(shutdownCtx); err != nil {
		logger.Error("shutdown incomplete", zap.Error(err))
	}
	return nil
}
