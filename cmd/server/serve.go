package main

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/sifan077/LinkShield/internal/app/model"
	apprepository "github.com/sifan077/LinkShield/internal/app/repository"
	appserver "github.com/sifan077/LinkShield/internal/app/server"
	"github.com/sifan077/LinkShield/internal/app/service"
	"github.com/sifan077/LinkShield/internal/app/shield/payload"
	"github.com/sifan077/LinkShield/internal/app/shield/session"
	inthttp "github.com/sifan077/LinkShield/internal/http/handler"
	"github.com/sifan077/LinkShield/internal/http/middleware"
	"github.com/sifan077/LinkShield/internal/http/view"
	infraNATS "github.com/sifan077/LinkShield/internal/infra/nats"
	infraPostgres "github.com/sifan077/LinkShield/internal/infra/postgres"
	infraPrometheus "github.com/sifan077/LinkShield/internal/infra/prometheus"
	infraRedis "github.com/sifan077/LinkShield/internal/infra/redis"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

// serveCmd starts the HTTP server
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the protected link server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func runServe(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	isDev := cfg.App.Development()

	log.Info("Configuration loaded successfully",
		zap.String("env", cfg.App.Env),
		zap.String("addr", cfg.App.Addr),
		zap.String("postgres_host", cfg.Postgres.Host),
		zap.Int("postgres_port", cfg.Postgres.Port),
		zap.String("postgres_db", cfg.Postgres.Database),
		zap.String("redis_host", cfg.Redis.Host),
		zap.Int("redis_port", cfg.Redis.Port),
		zap.String("nats_host", cfg.NATS.Host),
		zap.Int("nats_port", cfg.NATS.Port),
		zap.String("ultra_navigation", cfg.Shield.UltraNavigation),
	)

	secret, err := shieldSecret(isDev)
	if err != nil {
		return err
	}
	codec, err := payload.NewCodec(secret)
	if err != nil {
		return fmt.Errorf("init payload codec: %w", err)
	}
	picker, err := session.PickerFor(cfg.Shield.UltraNavigation)
	if err != nil {
		return err
	}

	gormDB, err := infraPostgres.NewGorm(cfg.Postgres)
	if err != nil {
		return err
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		return fmt.Errorf("access underlying SQL DB: %w", err)
	}
	defer sqlDB.Close()

	if isDev {
		if err := infraPostgres.AutoMigrate(ctx, gormDB, &model.Link{}, &model.ActionEvent{}); err != nil {
			return err
		}
	}

	pool, err := infraPostgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return err
	}
	defer pool.Close()
	log.Info("Connected to Postgres successfully")

	redisClient, err := infraRedis.NewClient(ctx, cfg.Redis)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	defer redisClient.Close()
	log.Info("Connected to Redis successfully")

	// Analytics are best effort: without NATS, actions are only logged.
	natsConn, js, err := infraNATS.Connect(cfg.NATS, log)
	if err != nil {
		log.Warn("NATS unavailable, action records will only be logged", zap.Error(err))
	} else {
		defer natsConn.Drain()
		log.Info("Connected to NATS successfully", zap.Bool("jetstream_ready", js != nil))
	}

	shieldMetrics := infraPrometheus.NewShieldMetrics(nil)
	httpMetrics := middleware.NewHTTPMetrics(nil)

	if !isDev {
		promServer := infraPrometheus.NewServer(cfg.Prometheus, nil)
		go func() {
			log.Info("Starting Prometheus metrics server", zap.Int("port", cfg.Prometheus.Port))
			if err := promServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("Prometheus metrics server stopped unexpectedly", zap.Error(err))
			}
		}()
		defer func() {
			if err := promServer.Close(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Warn("Failed to close Prometheus server", zap.Error(err))
			}
		}()
	} else {
		log.Info("Skipping Prometheus metrics server in development mode")
	}

	linkRepo := apprepository.NewCachedLinkRepository(
		apprepository.NewLinkRepository(gormDB), redisClient, cfg.Shield.LinkCacheTTL, log)
	counterRepo := apprepository.NewCounterRepository(pool)
	eventRepo := apprepository.NewActionEventRepository(gormDB)

	var publisher service.EventPublisher
	if js != nil {
		consumer := service.NewActionConsumer(js, log, eventRepo, counterRepo)
		if err := consumer.Start(ctx); err != nil {
			return err
		}
		defer consumer.Stop()
		publisher = service.NewActionPublisher(js)
	}
	recorder := service.NewActionRecorder(publisher, log, shieldMetrics, cfg.Shield.RecordTimeout)
	defer recorder.Wait()

	registry := session.NewRegistry(nil)
	defer registry.Close()

	sweeper := service.NewSessionSweeper(log, registry, shieldMetrics, cfg.Shield.SessionTTL, cfg.Shield.SweepInterval)
	sweeper.Start()
	defer sweeper.Stop()

	server := appserver.New(appserver.Dependencies{
		Logger:      log,
		Redis:       redisClient,
		HTTPMetrics: httpMetrics,
		LinkService: service.NewLinkService(linkRepo),
		CORSOrigins: []string{"*"},
		Shield: inthttp.ShieldDeps{
			Logger:       log,
			Links:        linkRepo,
			Counters:     counterRepo,
			Codec:        codec,
			Registry:     registry,
			Latch:        infraRedis.NewLatch(redisClient, cfg.Shield.LatchTTL),
			Recorder:     recorder,
			Metrics:      shieldMetrics,
			UltraPicker:  picker,
			Secret:       secret,
			TokenTTL:     cfg.Shield.SessionTTL,
			TickInterval: cfg.Shield.TickInterval,
			Options: session.Options{
				Grace:             cfg.Shield.Grace,
				AutoConfirmDelay:  cfg.Shield.AutoConfirmDelay,
				ObservationWindow: cfg.Shield.ObservationWindow,
				MinTrust:          cfg.Shield.MinTrust,
			},
			Cloak: view.CloakContent{
				SiteName: cfg.Shield.Cloak.SiteName,
				Title:    cfg.Shield.Cloak.Title,
				Body:     cfg.Shield.Cloak.Body,
			},
		},
	})

	errCh := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", zap.String("addr", cfg.App.Addr))
		errCh <- server.Listen(cfg.App.Addr)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("fiber server exited: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// shieldSecret returns the configured secret. Development falls back to a
// random one, which invalidates outstanding sessions on restart.
func shieldSecret(isDev bool) ([]byte, error) {
	if cfg.App.Secret != "" {
		return []byte(cfg.App.Secret), nil
	}
	if !isDev {
		return nil, errors.New("app.secret (SHIELD_SECRET) is required outside development")
	}

	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, err
	}
	log.Warn("No shield secret configured, using a random one")
	return secret, nil
}
