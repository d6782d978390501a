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

	"onboard/internal/health"
	"onboard/internal/identity"
	"onboard/internal/identity/keycloak"
	"onboard/internal/notification"
	"onboard/internal/platform/config"
	"onboard/internal/platform/httpserver"
	"onboard/internal/platform/logger"
	"onboard/internal/platform/metrics"
	"onboard/internal/platform/middleware"
	platformredis "onboard/internal/platform/redis"
	"onboard/internal/ratelimit"
	"onboard/internal/registration/handler"
	"onboard/internal/registration/service"
	"onboard/internal/registration/store/otp"
	"onboard/internal/registration/store/sequence"
)

// main wires dependencies and owns the server lifecycle. Business logic lives
// in the internal service packages.
func main() {
	log := logger.New()

	cfg, err := config.Load()
	if err != nil {
		log.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	m := metrics.New()
	checker := health.NewChecker(5*time.Second, log)

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}

	var (
		sequences   sequence.Store
		otps        otp.Store
		windowStore ratelimit.WindowStore
	)
	if redisClient != nil {
		sequences = sequence.NewRedisStore(redisClient.Client)
		otps = otp.NewRedisStore(redisClient.Client, otp.WithRedisTTL(cfg.OTPTTL))
		windowStore = ratelimit.NewRedisWindowStore(redisClient.Client)
		checker.Register("redis", redisClient.Health)
		defer redisClient.Close()
	} else {
		log.Warn("redis not configured, using in-memory stores; state will not survive restarts or scale past one instance")
		sequences = sequence.NewInMemoryStore()
		otps = otp.NewInMemoryStore(otp.WithTTL(cfg.OTPTTL))
		windowStore = ratelimit.NewInMemoryWindowStore()
	}

	var gateway identity.Gateway
	if cfg.Keycloak.BaseURL != "" {
		kc := keycloak.New(cfg.Keycloak, log, keycloak.WithMetrics(m))
		checker.Register("identity_provider", kc.Health)
		gateway = kc
	} else {
		log.Warn("identity provider not configured, using in-memory gateway")
		gateway = identity.NewInMemoryGateway()
	}

	var sender notification.Sender
	if cfg.Mail.APIKey != "" {
		sender = notification.NewMailer(cfg.Mail, log)
	} else {
		log.Warn("mail API not configured, verification codes will be logged")
		sender = notification.NewLogSender(log)
	}

	limiter := ratelimit.New(windowStore, ratelimit.DefaultOperations(), log, ratelimit.WithMetrics(m))

	svc := service.New(sequences, otps, gateway, sender, limiter, m, log,
		service.WithSequenceTTL(cfg.SequenceTTL),
		service.WithOTPTTL(cfg.OTPTTL),
	)
	regHandler := handler.New(svc, m, log)

	router := chi.NewRouter()
	router.Use(middleware.Recovery(log))
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger(log))
	router.Use(middleware.Timeout(30 * time.Second))

	router.Get("/healthz", checker.Handler())
	router.Handle("/metrics", promhttp.Handler())

	router.Route("/register", func(r chi.Router) {
		r.Use(middleware.RequireAPIKey(cfg.APIKey, log))
		r.Use(middleware.ContentTypeJSON)
		regHandler.Routes(r)
	})

	srv := httpserver.New(cfg.Addr, router)

	go func() {
		log.Info("starting registration gateway", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
}
