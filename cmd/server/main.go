// Command server runs the Bloomence notification service: the authenticated
// /api/notifications endpoints, the /ws realtime feed, and the dormant-user
// reminder sweep.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"bloomence/internal/events"
	"bloomence/internal/identity"
	"bloomence/internal/notify/handler"
	"bloomence/internal/notify/mail"
	"bloomence/internal/notify/service"
	resultstore "bloomence/internal/notify/store/result"
	userstore "bloomence/internal/notify/store/user"
	"bloomence/internal/platform/config"
	"bloomence/internal/platform/httpserver"
	"bloomence/internal/platform/logger"
	"bloomence/internal/platform/metrics"
	"bloomence/internal/platform/mongo"
	"bloomence/internal/platform/redis"
	"bloomence/internal/platform/tracing"
	"bloomence/internal/realtime"
	"bloomence/internal/sweep"
)

func main() {
	if err := run(); err != nil {
		os.Exit(1)
	}
}

// run wires dependencies and supervises the server and sweep loops. Business
// logic lives in the internal packages; this stays wiring only.
func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logger.New("info").Error("load config failed", "error", err)
		return err
	}
	log := logger.New(cfg.LogLevel)
	m := metrics.New()

	shutdownTracing, err := tracing.Setup(cfg.Tracing.Enabled)
	if err != nil {
		log.Error("tracing setup failed", "error", err)
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(flushCtx)
	}()
	if cfg.Tracing.Enabled {
		log.Info("tracing enabled")
	}

	mongoClient, err := mongo.New(ctx, cfg.Mongo)
	if err != nil {
		log.Error("mongo connect failed", "error", err)
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = mongoClient.Close(shutdownCtx)
	}()

	users := userstore.NewMongo(mongoClient.Database())
	if err := users.EnsureIndexes(ctx); err != nil {
		log.Error("ensure mongo indexes failed", "error", err)
		return err
	}
	results := resultstore.NewMongo(mongoClient.Database())

	mailer, err := mail.NewSMTP(cfg.SMTP, m)
	if err != nil {
		log.Error("build mailer failed", "error", err)
		return err
	}
	builder := mail.Builder{AppURL: cfg.AppURL}

	verifier := identity.NewJWTVerifier(
		identity.NewCertSource(cfg.Identity.CertsURL),
		cfg.Identity.Issuer,
		cfg.Identity.Audience,
	)

	hub := realtime.NewHub(log)

	group, ctx := errgroup.WithContext(ctx)

	// With Redis configured, emits route through the pub/sub bridge so
	// sessions on peer instances receive them too.
	var emitter service.Emitter = hub
	redisClient, err := redis.New(cfg.Redis)
	if err != nil {
		log.Error("redis connect failed", "error", err)
		return err
	}
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
		bridge := realtime.NewBridge(hub, redisClient.Client, log)
		emitter = bridge
		group.Go(func() error {
			if err := bridge.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
		log.Info("realtime bridge enabled")
	}

	opts := []service.Option{
		service.WithLogger(log),
		service.WithHub(emitter),
		service.WithMetrics(m),
		service.WithScoreWindow(cfg.Notify.ScoreEmailWindow),
	}
	if len(cfg.Kafka.Brokers) > 0 {
		stream, err := events.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, log)
		if err != nil {
			log.Error("kafka connect failed", "error", err)
			return err
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = stream.Close(flushCtx)
		}()
		opts = append(opts, service.WithStream(stream))
		log.Info("event stream enabled", "topic", cfg.Kafka.Topic)
	}

	svc := service.New(users, results, mailer, builder, opts...)

	router := chi.NewRouter()
	handler.New(svc, verifier, log, cfg.AllowedOrigins).Register(router)
	router.Get("/health", handler.Health(mongoClient))
	router.Handle("/metrics", promhttp.Handler())
	router.Get("/ws", realtime.WSHandler(hub, verifier, log, cfg.AllowedOrigins))

	srv := httpserver.New(cfg.Addr, router)

	group.Go(func() error {
		log.Info("starting bloomence notification service", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	sweeper := sweep.New(users, mailer, builder, sweep.Config{
		Interval:     cfg.Sweep.Interval,
		DormantAfter: cfg.Sweep.DormantAfter,
		BatchLimit:   cfg.Sweep.BatchLimit,
	}, log, sweep.WithMetrics(m))
	group.Go(func() error {
		if err := sweeper.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	if err := group.Wait(); err != nil {
		log.Error("service exited with error", "error", err)
		return err
	}
	log.Info("shutdown complete")
	return nil
}
