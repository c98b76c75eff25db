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

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"onboarding/internal/journey/decisions"
	"onboarding/internal/journey/directory"
	"onboarding/internal/journey/events"
	journeyhandler "onboarding/internal/journey/handler"
	journeymetrics "onboarding/internal/journey/metrics"
	"onboarding/internal/journey/realtime"
	"onboarding/internal/journey/service"
	"onboarding/internal/journey/store"
	"onboarding/internal/journey/upload"
	jwttoken "onboarding/internal/jwt_token"
	"onboarding/internal/platform/config"
	"onboarding/internal/platform/httpserver"
	"onboarding/internal/platform/kafka"
	"onboarding/internal/platform/logger"
	"onboarding/internal/platform/metrics"
	"onboarding/internal/platform/postgres"
	"onboarding/internal/platform/redis"
	"onboarding/internal/platform/tracing"
	"onboarding/pkg/platform/audit"
	auditpublisher "onboarding/pkg/platform/audit/publisher"
	auditkafka "onboarding/pkg/platform/audit/store/kafka"
	auditmemory "onboarding/pkg/platform/audit/store/memory"
	auditpostgres "onboarding/pkg/platform/audit/store/postgres"
	"onboarding/pkg/platform/httputil"
)

const auditBuffer = 256

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal/journey.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	httpMetrics := metrics.New(reg)
	journeyMetrics := journeymetrics.New(reg)

	shutdownTracing, err := tracing.Setup(ctx, cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Warn("flush traces", "error", err)
		}
	}()
	if cfg.Tracing.Enabled() {
		log.Info("exporting traces", "endpoint", cfg.Tracing.Endpoint)
	}

	db, err := postgres.Open(ctx, cfg.Postgres)
	if err != nil {
		return err
	}
	var (
		journeys   service.Store
		auditStore audit.Store
		checks     = map[string]func(context.Context) error{}
	)
	if db != nil {
		defer db.Close()
		checks["postgres"] = db.PingContext
		pgJourneys := store.NewPostgres(db)
		if err := pgJourneys.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate journeys: %w", err)
		}
		pgAudit := auditpostgres.New(db)
		if err := pgAudit.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate audit: %w", err)
		}
		journeys, auditStore = pgJourneys, pgAudit
		log.Info("using postgres journey store")
	} else {
		journeys, auditStore = store.NewInMemory(), auditmemory.NewInMemoryStore()
		log.Warn("DATABASE_URL not set, journeys are kept in memory")
	}

	g, gctx := errgroup.WithContext(ctx)

	localHub := realtime.NewHub(realtime.WithMetrics(journeyMetrics))
	var hub interface {
		service.EventPublisher
		journeyhandler.Feed
	} = localHub
	redisClient, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		checks["redis"] = redisClient.Health
		redisHub := realtime.NewRedisHub(redisClient.Client, cfg.Redis.Channel, localHub, log)
		g.Go(func() error { return redisHub.Run(gctx) })
		hub = redisHub
		log.Info("journey fan-out via redis", "channel", cfg.Redis.Channel)
	}

	opts := []service.Option{
		service.WithLogger(log),
		service.WithMetrics(journeyMetrics),
		service.WithEventPublisher(hub),
		service.WithResubmission(cfg.Journey.AllowResubmission),
		service.WithMaxAttempts(cfg.Journey.MaxWriteAttempts),
	}

	var producer *kafka.Producer
	if cfg.Kafka.Enabled() {
		producer, err = kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.ClientID)
		if err != nil {
			return err
		}
		defer producer.Close()
		auditStore = auditkafka.New(auditStore, producer, cfg.Kafka.AuditTopic)
		opts = append(opts, service.WithEventPublisher(events.NewKafkaPublisher(producer, cfg.Kafka.EventsTopic)))
	}

	auditor := auditpublisher.NewPublisher(auditStore,
		auditpublisher.WithAsyncBuffer(auditBuffer),
		auditpublisher.WithLogger(log),
	)
	defer auditor.Close()
	opts = append(opts, service.WithAuditPublisher(auditor))

	signer, err := upload.NewSigner(cfg.Upload.SigningKey, cfg.Upload.BaseURL, cfg.Upload.TTL)
	if err != nil {
		return err
	}
	opts = append(opts, service.WithUploads(signer))

	if cfg.Journey.DirectorySyncURL != "" {
		opts = append(opts, service.WithDirectorySyncer(directory.New(cfg.Journey.DirectorySyncURL)))
	}

	svc := service.New(journeys, opts...)

	if cfg.Kafka.Enabled() {
		consumer, err := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.ClientID, cfg.Kafka.ConsumerGroup,
			[]string{cfg.Kafka.DecisionsTopic}, decisions.NewHandler(svc, log), log)
		if err != nil {
			return err
		}
		g.Go(func() error { return consumer.Run(gctx) })
		log.Info("consuming admin decisions", "topic", cfg.Kafka.DecisionsTopic)
	} else {
		log.Warn("KAFKA_BROKERS not set, admin decisions are not consumed")
	}

	jwtService := jwttoken.NewJWTService(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.JWTAudience)
	h := journeyhandler.New(svc, hub, jwttoken.NewJWTServiceAdapter(jwtService), log,
		journeyhandler.WithHeartbeat(cfg.Journey.StreamHeartbeat))

	router := chi.NewRouter()
	router.Use(chimw.RequestID)
	router.Use(chimw.RealIP)
	router.Use(chimw.Recoverer)
	router.Use(httpMetrics.LatencyMiddleware)
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	router.Get("/readyz", readiness(checks, log))
	router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	h.Register(router)

	srv := httpserver.New(cfg.Addr, router)
	srv.RegisterOnShutdown(h.Close)
	g.Go(func() error {
		log.Info("starting onboarding server", "addr", cfg.Addr, "env", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// readiness reports 503 while any backing dependency is unreachable.
func readiness(checks map[string]func(context.Context) error, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := make(map[string]string, len(checks))
		code := http.StatusOK
		for name, check := range checks {
			if err := check(r.Context()); err != nil {
				log.WarnContext(r.Context(), "readiness check failed", "dependency", name, "error", err)
				status[name] = "unavailable"
				code = http.StatusServiceUnavailable
				continue
			}
			status[name] = "ok"
		}
		httputil.WriteJSON(w, code, status)
	}
}
