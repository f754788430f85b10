// Command telegram-indexer runs the conversation indexing pipeline: live
// sync, historical backfill, durable persistence and the websocket fan-out
// endpoint.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/0xpapercut/telegram-indexer/internal/broadcast"
	"github.com/0xpapercut/telegram-indexer/internal/config"
	"github.com/0xpapercut/telegram-indexer/internal/indexer"
	"github.com/0xpapercut/telegram-indexer/internal/store"
	"github.com/0xpapercut/telegram-indexer/internal/transport"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:           "telegram-indexer",
		Short:         "Index a messaging account's conversations and stream live activity",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return run(cfg)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to JSON config file")
	return cmd
}

func run(cfg config.Config) error {
	logger, cleanup, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Storage and transport failures at startup are fatal; nothing should run
	// partially initialized.
	st := store.New(store.Options{
		DSN:           cfg.DatabaseDSN,
		FlushInterval: cfg.FlushInterval.Std(),
		QueueSize:     cfg.MutationQueue,
		Logger:        logger,
	})
	if err := st.Start(ctx); err != nil {
		logger.Error().Err(err).Msg("store startup failed")
		return err
	}

	tr, err := transport.Open(cfg.TransportDSN)
	if err != nil {
		logger.Error().Err(err).Msg("transport setup failed")
		st.Stop()
		return err
	}
	if err := tr.Connect(ctx); err != nil {
		logger.Error().Err(err).Msg("transport connect failed")
		st.Stop()
		return err
	}

	hub := broadcast.NewHub(broadcast.HubOptions{Logger: logger})
	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: broadcast.NewServer(hub, logger),
	}
	go func() {
		logger.Info().Str("addr", cfg.ListenAddr).Msg("subscriber endpoint listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("subscriber endpoint failed")
		}
	}()

	ix := indexer.New(indexer.Options{
		Store:            st,
		Transport:        tr,
		Broadcaster:      hub,
		SyncInterval:     cfg.SyncInterval.Std(),
		ScheduleInterval: cfg.ScheduleInterval.Std(),
		CheckpointEvery:  cfg.CheckpointEvery,
		StreamWait:       cfg.StreamWait.Std(),
		WorkQueueSize:    cfg.WorkQueue,
		Logger:           logger,
	})
	runErr := ix.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)

	// Stopped last: the final flush must cover everything the loops enqueued.
	st.Stop()
	return runErr
}

func newLogger(cfg config.Config) (zerolog.Logger, func(), error) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	console := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	writer := zerolog.MultiLevelWriter(console)
	cleanup := func() {}
	if cfg.LogFile != "" {
		file, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return zerolog.Logger{}, nil, err
		}
		writer = zerolog.MultiLevelWriter(console, file)
		cleanup = func() { _ = file.Close() }
	}
	logger := zerolog.New(writer).Level(level).With().Timestamp().Logger()
	return logger, cleanup, nil
}
