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

	"github.com/Camilo-RBS/Habitumapp-sub000/internal/config"
	"github.com/Camilo-RBS/Habitumapp-sub000/internal/outbox"
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

	manager := outbox.NewDLQManager(pool, cfg.DLQMaxRetries)

	metricsSrv := httptransport.NewServer(httptransport.ServerConfig{Address: cfg.MetricsAddress, ReadTimeout: 5 * time.Second}, promhttp.Handler())
	metricsDone := make(chan struct{})
	go func() {
		defer close(metricsDone)
		logger := log.New(log.Writer(), "[dlq-metrics] ", log.LstdFlags)
		if err := httptransport.Serve(ctx, metricsSrv, 10*time.Second, logger); err != nil {
			logger.Printf("metrics server error: %v", err)
		}
	}()

	ticker := time.NewTicker(cfg.DLQPollInterval)
	defer ticker.Stop()

	log.Printf("DLQ manager started (interval=%s, maxRetries=%d)", cfg.DLQPollInterval, cfg.DLQMaxRetries)

	for {
		select {
		case <-ctx.Done():
			log.Println("dlq manager received shutdown signal")
			<-metricsDone
			return
		case <-ticker.C:
			result, err := manager.RunOnce(ctx, cfg.DLQBatchSize)
			if err != nil {
				log.Printf("dlq manager error: %v", err)
			} else if result.Requeued+result.Quarantined > 0 {
				log.Printf("dlq manager requeued %d, quarantined %d", result.Requeued, result.Quarantined)
			}
		}
	}
}
