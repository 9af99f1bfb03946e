package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prudhvinik1/edgerelay/internal/attachments"
	"github.com/prudhvinik1/edgerelay/internal/config"
	"github.com/prudhvinik1/edgerelay/internal/database"
	"github.com/prudhvinik1/edgerelay/internal/handlers"
	"github.com/prudhvinik1/edgerelay/internal/realtime"
	"github.com/prudhvinik1/edgerelay/internal/repositories"
	"github.com/prudhvinik1/edgerelay/internal/services"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and WebSocket server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize database connections
	postgresPool, err := database.NewPostgresPool(ctx, cfg.DatabaseURL, log)
	if err != nil {
		return fmt.Errorf("failed to create postgres pool: %w", err)
	}
	defer postgresPool.Close()

	redisClient, err := database.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		return fmt.Errorf("failed to create redis client: %w", err)
	}
	defer redisClient.Close()

	var messageRepo repositories.MessageRepository
	switch cfg.MessageStore {
	case config.StoreBadger:
		db, err := database.OpenBadger(cfg.BadgerPath, log)
		if err != nil {
			return fmt.Errorf("failed to open badger: %w", err)
		}
		defer db.Close()
		messageRepo = repositories.NewBadgerMessageRepository(db, log)
	default:
		messageRepo = repositories.NewPostgresMessageRepository(postgresPool)
	}

	accountRepo := repositories.NewPostgresAccountRepository(postgresPool)
	sessionRepo := repositories.NewRedisSessionRepository(redisClient)
	presenceRepo := repositories.NewRedisPresenceRepository(redisClient)

	authService := services.NewAuthService(accountRepo, sessionRepo, presenceRepo, cfg.JWTSecret, cfg.JWTExpiry)
	coord := realtime.NewCoordinator(messageRepo, log,
		realtime.WithPresenceMirror(presenceRepo),
		realtime.WithPersistTimeout(cfg.PersistTimeout),
	)

	files, err := attachments.NewDiskStore(cfg.UploadDir, cfg.PublicBaseURL, cfg.MaxUploadBytes, log)
	if err != nil {
		return err
	}
	photos, err := attachments.NewDiskStore(cfg.PhotoDir, cfg.PublicBaseURL, cfg.MaxUploadBytes, log,
		attachments.WithAllowedTypes(attachments.ImageTypes...),
		attachments.WithPublicPath("uploads/profile_photos"),
	)
	if err != nil {
		return err
	}

	router := handlers.NewRouter(
		handlers.NewAuthHandler(authService, photos, cfg.MaxUploadBytes, log),
		handlers.NewMessageHandler(messageRepo, coord, files, cfg.MaxUploadBytes, log),
		handlers.NewWSHandler(coord, authService, cfg.SendBufferSize, cfg.MaxFrameBytes, log),
		authService,
		log,
	)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.ServerPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("Starting server", "port", cfg.ServerPort, "message_store", cfg.MessageStore)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// graceful shutdown
	g.Go(func() error {
		<-ctx.Done()
		log.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		// Hijacked WebSocket connections are not tracked by Shutdown
		coord.Shutdown()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}

	log.Info("Server stopped gracefully")
	return nil
}
