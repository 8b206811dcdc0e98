package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"anyotherday/internal/app"
	"anyotherday/internal/config"
	"anyotherday/internal/ratelimit"
	"anyotherday/internal/server"
	"anyotherday/internal/util"
	"anyotherday/pkg/ai"
	"anyotherday/pkg/notify"
	"anyotherday/pkg/pipeline"
	"anyotherday/pkg/storage"
	"anyotherday/pkg/store"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	util.InitLogger(cfg.LogLevel)

	dataStore, err := store.NewGormStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to init postgres store: %v", err)
	}

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
	}

	sessionTTL := time.Duration(cfg.SessionTTLHours) * time.Hour
	var sessions store.SessionStore
	switch cfg.SessionMode {
	case "jwt":
		sessions, err = store.NewJWTSessionStore(cfg.JWTSecret, sessionTTL)
		if err != nil {
			log.Fatalf("failed to init jwt sessions: %v", err)
		}
	default:
		sessions = store.NewRedisSessionStore(cfg.RedisAddr, cfg.RedisPassword, sessionTTL)
	}

	objects, err := storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
	if err != nil {
		log.Fatalf("failed to init object storage: %v", err)
	}

	aiClient := ai.NewClient(ai.Config{
		BaseURL:        cfg.AIServerURL,
		Enabled:        cfg.AIEnabled,
		ConnectTimeout: time.Duration(cfg.AIConnectTimeoutSeconds) * time.Second,
		ReadTimeout:    time.Duration(cfg.AIReadTimeoutSeconds) * time.Second,
	})

	var notifier pipeline.Notifier
	if cfg.AMQPURL != "" {
		amqpNotifier, err := notify.NewAMQPNotifier(cfg.AMQPURL)
		if err != nil {
			log.Fatalf("failed to connect message broker: %v", err)
		}
		defer amqpNotifier.Close()
		notifier = amqpNotifier
	}

	processor := pipeline.NewProcessor(dataStore, dataStore, dataStore,
		ai.NewHistoryProvider(dataStore), aiClient, notifier, pipeline.Config{
			HistoryLimit: cfg.PipelineHistoryLimit,
			CoreWorkers:  cfg.PipelineCoreWorkers,
			MaxWorkers:   cfg.PipelineMaxWorkers,
			QueueDepth:   cfg.PipelineQueueDepth,
		})

	appCore, err := app.New(app.Config{
		Store:     dataStore,
		Sessions:  sessions,
		Objects:   objects,
		Processor: processor,
		AI:        aiClient,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	var uploadLimiter *ratelimit.FixedWindowLimiter
	if redisClient != nil {
		uploadLimiter, err = ratelimit.NewFixedWindowLimiter(redisClient, "anyotherday:uploads",
			cfg.UploadRateLimit, time.Duration(cfg.UploadRateWindowSeconds)*time.Second)
		if err != nil {
			log.Fatalf("failed to init rate limiter: %v", err)
		}
	}

	httpServer := server.New(server.Config{
		App:               appCore,
		UploadLimiter:     uploadLimiter,
		TrustForwardedFor: cfg.TrustForwardedFor,
	})

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		// Report reads may wait on a synchronous replay; keep writes generous.
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("server listening", "addr", addr, "ai_enabled", cfg.AIEnabled)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("http shutdown", "err", err)
		}
		// In-flight diagnoses get to finish before the process exits.
		drainWait := time.Duration(cfg.PipelineShutdownWaitSeconds) * time.Second
		if err := processor.Close(drainWait); err != nil {
			slog.Warn("pipeline drain incomplete", "err", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		slog.Error("server error", "err", err)
	}
}
