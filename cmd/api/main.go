package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/Camilo-RBS/Habitumapp-sub000/internal/api"
	"github.com/Camilo-RBS/Habitumapp-sub000/internal/auth"
	"github.com/Camilo-RBS/Habitumapp-sub000/internal/config"
	"github.com/Camilo-RBS/Habitumapp-sub000/internal/outbox"
	persistence "github.com/Camilo-RBS/Habitumapp-sub000/internal/persistence/postgres"
	httptransport "github.com/Camilo-RBS/Habitumapp-sub000/internal/transport/http"
)

func main() {
	cfg := config.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()

	validator, err := outbox.NewSchemaValidator()
	if err != nil {
		log.Fatalf("failed to compile event schemas: %v", err)
	}
	producer := outbox.NewKafkaProducer(cfg.KafkaBrokers)
	defer producer.Close()

	dispatcher := outbox.NewDispatcher(pool, producer, validator, cfg.OutboxPollInterval, cfg.OutboxBatchSize, outbox.WithRetryBase(cfg.DLQBaseDelay))
	go dispatcher.Start(ctx)

	workspaces := api.NewWorkspaces(persistence.Collections{Store: persistence.NewStore(pool)}, api.WorkspacesConfig{
		RefreshInterval: cfg.WorkspaceRefresh,
	})
	handler := api.NewHandler(workspaces, api.HandlerConfig{
		Location:       cfg.Location(),
		DailyGoal:      cfg.DailyGoal,
		AllowedOrigins: []string{cfg.AllowedOrigin},
	})

	limiter := api.NewRateLimiter(api.RateLimitConfig{Rate: rate.Limit(cfg.RateLimitRPS), Burst: cfg.RateLimitBurst})
	defer limiter.Stop()

	verifier := auth.NewVerifier(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer})
	authMiddleware := auth.NewMiddleware(verifier, auth.WithErrorWriter(api.WriteAuthError))
	router := api.NewRouter(api.RouterDeps{
		Handler:       handler,
		Authenticate:  authMiddleware.Wrap,
		RateLimiter:   limiter,
		Metrics:       promhttp.Handler(),
		AllowedOrigin: cfg.AllowedOrigin,
		Logger:        log.New(log.Writer(), "[http] ", log.LstdFlags),
	})

	// WriteTimeout stays zero so state streams are not cut off.
	server := httptransport.NewServer(httptransport.ServerConfig{
		Address:     cfg.HTTPAddress,
		ReadTimeout: 5 * time.Second,
		IdleTimeout: 60 * time.Second,
	}, router)

	logger := log.New(log.Writer(), "[api] ", log.LstdFlags)
	if err := httptransport.Serve(ctx, server, 15*time.Second, logger); err != nil {
		logger.Printf("server error: %v", err)
		cancel()
	}

	dispatcher.Wait()
}
