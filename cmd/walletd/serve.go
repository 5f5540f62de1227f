package main

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alfredjeanlab/walletd/internal/alarm"
	"github.com/alfredjeanlab/walletd/internal/approval"
	"github.com/alfredjeanlab/walletd/internal/appstate"
	"github.com/alfredjeanlab/walletd/internal/bridgestatus"
	"github.com/alfredjeanlab/walletd/internal/config"
	"github.com/alfredjeanlab/walletd/internal/hooks"
	"github.com/alfredjeanlab/walletd/internal/lockstate"
	"github.com/alfredjeanlab/walletd/internal/messenger"
	"github.com/alfredjeanlab/walletd/internal/server"
	"github.com/alfredjeanlab/walletd/internal/snapshot"
	"github.com/alfredjeanlab/walletd/internal/store"
	"github.com/alfredjeanlab/walletd/internal/store/memory"
	"github.com/alfredjeanlab/walletd/internal/store/postgres"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Run the walletd daemon",
	GroupID: "system",
	Args:    cobra.NoArgs,
	// The daemon does not talk to another daemon.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
		ctx := context.Background()

		// Storage.
		var st store.Store
		if cfg.DatabaseURL != "" {
			pg, err := postgres.New(cfg.DatabaseURL)
			if err != nil {
				return err
			}
			st = pg
			logger.Info("postgres store enabled")
		} else {
			st = memory.New()
			logger.Info("in-memory store enabled (WALLETD_DATABASE_URL not set)")
		}

		m := messenger.New()

		// NATS relay.
		var publisher messenger.Publisher = &messenger.NoopPublisher{}
		var relayCancel context.CancelFunc
		relayDone := make(chan struct{})
		if cfg.NATSURL != "" {
			pub, err := messenger.NewNATSPublisher(cfg.NATSURL, cfg.InstanceID)
			if err != nil {
				st.Close()
				return err
			}
			publisher = pub

			var sub messenger.Subscriber
			if s, err := messenger.NewNATSSubscriber(cfg.NATSURL); err != nil {
				logger.Error("failed to create NATS subscriber; relay is outbound only", "err", err)
			} else {
				sub = s
			}

			relay := messenger.NewRelay(m, publisher, sub, cfg.InstanceID, logger)
			var relayCtx context.Context
			relayCtx, relayCancel = context.WithCancel(ctx)
			go func() {
				defer close(relayDone)
				if err := relay.Start(relayCtx); err != nil {
					logger.Error("relay error", "err", err)
				}
				if sub != nil {
					sub.Close()
				}
			}()
			logger.Info("events relay enabled", "nats_url", cfg.NATSURL, "origin", cfg.InstanceID)
		} else {
			close(relayDone)
			logger.Info("events relay disabled (WALLETD_NATS_URL not set)")
		}

		// Lock signal. Keyring events from other instances flip it too.
		lock := lockstate.New(cfg.StartUnlocked)
		stopFollow := lock.Follow(m)
		lockHook := hooks.NewLockHook(cfg.LockHook, cfg.LockHookTimeout, logger)
		locker := lockstate.NewAnnouncer(lock, m, lockHook)

		approvals := approval.New(m, logger)
		if err := approvals.Register(); err != nil {
			st.Close()
			return err
		}

		alarms := alarm.NewManager(st, logger)

		app, err := appstate.New(ctx, appstate.Config{
			Messenger:      m,
			Store:          st,
			Lock:           lock,
			Approver:       approvals,
			Alarms:         alarms,
			Suspendable:    cfg.Suspendable,
			DefaultTimeout: cfg.DefaultTimeout,
			OnInactiveTimeout: func() {
				locker.Lock(hooks.ReasonInactivity)
			},
			Logger: logger,
		})
		if err != nil {
			st.Close()
			return err
		}
		// Start after appstate has registered its alarm listener.
		if err := alarms.Start(ctx); err != nil {
			st.Close()
			return err
		}
		if err := app.Start(ctx); err != nil {
			alarms.Stop()
			st.Close()
			return err
		}

		bridge := bridgestatus.New(m, bridgestatus.NewHTTPFetcher(cfg.BridgeAPIURL, cfg.BridgeClientID), logger)
		if err := bridge.Register(); err != nil {
			alarms.Stop()
			st.Close()
			return err
		}

		// Servers.
		walletServer := server.NewWalletServer(server.Deps{
			App:       app,
			Locker:    locker,
			Approvals: approvals,
			Bridge:    bridge,
			Messenger: m,
			Store:     st,
			Logger:    logger,
		})
		grpcServer := server.NewGRPCServer(walletServer, cfg.AuthToken)

		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			walletServer.Close()
			alarms.Stop()
			st.Close()
			return err
		}
		go func() {
			logger.Info("gRPC server listening", "addr", cfg.GRPCAddr)
			if err := grpcServer.Serve(lis); err != nil {
				logger.Error("gRPC server error", "err", err)
			}
		}()

		httpServer := &http.Server{
			Addr:    cfg.HTTPAddr,
			Handler: walletServer.NewHTTPHandler(cfg.AuthToken),
		}
		go func() {
			logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("HTTP server error", "err", err)
			}
		}()

		// Snapshot scheduler, if any destination is configured.
		var scheduler *snapshot.Scheduler
		if cfg.SnapshotInterval > 0 {
			var dests []snapshot.Destination
			if cfg.SnapshotS3Bucket != "" {
				s3Dest, err := snapshot.NewS3Destination(ctx,
					cfg.SnapshotS3Bucket,
					cfg.SnapshotS3Key,
					cfg.SnapshotS3Region,
					cfg.SnapshotS3Endpoint,
					cfg.SnapshotS3History,
				)
				if err != nil {
					logger.Error("failed to create S3 snapshot destination", "err", err)
				} else {
					dests = append(dests, s3Dest)
					logger.Info("snapshot destination enabled", "destination", s3Dest.String(), "history", cfg.SnapshotS3History)
				}
			}
			if cfg.SnapshotFile != "" {
				fileDest := snapshot.NewFileDestination(cfg.SnapshotFile)
				dests = append(dests, fileDest)
				logger.Info("snapshot destination enabled", "destination", fileDest.String())
			}
			if len(dests) > 0 {
				scheduler = snapshot.NewScheduler(st, dests, cfg.SnapshotInterval, logger)
				scheduler.Start()
				logger.Info("snapshot scheduler started", "interval", cfg.SnapshotInterval)
			}
		}

		logger.Info("walletd started",
			"grpc_addr", cfg.GRPCAddr,
			"http_addr", cfg.HTTPAddr,
			"unlocked", lock.IsUnlocked(),
			"suspendable", cfg.Suspendable,
		)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)

		// Graceful shutdown.
		if scheduler != nil {
			scheduler.Stop()
			logger.Info("snapshot scheduler stopped")
		}

		grpcServer.GracefulStop()
		logger.Info("gRPC server stopped")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "err", err)
		}
		logger.Info("HTTP server stopped")

		bridge.Close()
		if err := app.Close(shutdownCtx); err != nil {
			logger.Error("error closing app state", "err", err)
		}
		alarms.Stop()
		stopFollow()
		lockHook.Wait()
		walletServer.Close()

		if relayCancel != nil {
			relayCancel()
		}
		<-relayDone
		if err := publisher.Close(); err != nil {
			logger.Error("error closing publisher", "err", err)
		}
		if err := st.Close(); err != nil {
			logger.Error("error closing store", "err", err)
		}

		logger.Info("shutdown complete")
		return nil
	},
}
