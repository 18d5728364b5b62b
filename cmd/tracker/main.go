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
	"github.com/segmentio/kafka-go"

	"github.com/Camilo-RBS/Habitumapp-sub000/internal/config"
	persistence "github.com/Camilo-RBS/Habitumapp-sub000/internal/persistence/postgres"
	"github.com/Camilo-RBS/Habitumapp-sub000/internal/runner"
	"github.com/Camilo-RBS/Habitumapp-sub000/internal/sensor"
	"github.com/Camilo-RBS/Habitumapp-sub000/internal/steps"
	"github.com/Camilo-RBS/Habitumapp-sub000/internal/syncrepo"
	httptransport "github.com/Camilo-RBS/Habitumapp-sub000/internal/transport/http"
)

func main() {
	cfg := config.Load()
	if cfg.TrackedUserID == "" {
		log.Fatal("TRACKED_USER_ID is required")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()
	store := persistence.NewStore(pool)

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:         cfg.KafkaBrokers,
		GroupID:         cfg.ConsumerGroupID,
		Topic:           cfg.MotionTopic,
		MinBytes:        1,
		MaxBytes:        10e6,
		MaxWait:         250 * time.Millisecond,
		CommitInterval:  time.Second,
		ReadLagInterval: -1,
	})
	sampler := sensor.NewKafkaSampler(reader, sensor.WithSensorFilter(cfg.SensorFilter))

	user := cfg.TrackedUserID
	reminders := syncrepo.NewReminderRepository(store.Reminders(user))
	if err := reminders.Load(ctx, user); err != nil {
		log.Printf("initial reminder load failed: %v", err)
	}

	tracker := runner.New(user,
		sampler,
		sensor.NewDetector(),
		steps.NewAggregator(steps.WithLocation(cfg.Location())),
		syncrepo.NewDailyStepsRepository(store.DailySteps(user)),
		runner.WithFlushInterval(cfg.FlushInterval),
		runner.WithReminderSweep(reminders),
	)
	if err := tracker.Start(ctx); err != nil {
		log.Fatalf("failed to start step tracking: %v", err)
	}
	log.Printf("step tracking started (user=%s, topic=%s, group=%s)", user, cfg.MotionTopic, cfg.ConsumerGroupID)

	metricsSrv := httptransport.NewServer(httptransport.ServerConfig{Address: cfg.MetricsAddress, ReadTimeout: 5 * time.Second}, promhttp.Handler())
	logger := log.New(log.Writer(), "[tracker] ", log.LstdFlags)
	if err := httptransport.Serve(ctx, metricsSrv, 10*time.Second, logger); err != nil {
		logger.Printf("metrics server error: %v", err)
	}

	<-ctx.Done()
	tracker.Wait()
	agg := tracker.Aggregator()
	logger.Printf("step tracking stopped (today=%d, progress=%.0f%%)", agg.TodaySteps(), agg.GoalProgress(cfg.DailyGoal)*100)
}
