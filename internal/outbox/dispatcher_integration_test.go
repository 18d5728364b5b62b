//go:build integration

package outbox

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	kafkaContainer "github.com/testcontainers/testcontainers-go/modules/kafka"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/Camilo-RBS/Habitumapp-sub000/internal/events"
)

func TestDispatcherPublishesMessages(t *testing.T) {
	ctx := context.Background()
	pool, cleanup := setupPostgres(t, ctx)
	defer cleanup()

	userID := uuid.NewString()
	seedStepsEvent(t, ctx, pool, userID, 1200)

	producer := &stubProducer{}
	dispatcher := newTestDispatcher(t, pool, producer)

	beforeDelivered := testutil.ToFloat64(deliveredCounter)
	beforeHistogram := histogramSampleCount(t)

	require.NoError(t, dispatcher.processBatch(ctx))

	require.Len(t, producer.writes, 1)
	require.Equal(t, "daily_steps_events", producer.writes[0].topic)
	require.Len(t, producer.writes[0].messages, 1)
	require.Equal(t, []byte(userID), producer.writes[0].messages[0].Key)

	afterDelivered := testutil.ToFloat64(deliveredCounter)
	require.InDelta(t, beforeDelivered+1, afterDelivered, 0.0001)
	require.Greater(t, histogramSampleCount(t), beforeHistogram)

	var published int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox WHERE published_at IS NOT NULL`).Scan(&published))
	require.Equal(t, 1, published)
}

func TestDispatcherRoutesMessagesToDLQOnFailure(t *testing.T) {
	ctx := context.Background()
	pool, cleanup := setupPostgres(t, ctx)
	defer cleanup()

	userID := uuid.NewString()
	seedStepsEvent(t, ctx, pool, userID, 300)

	producer := &stubProducer{err: errors.New("kafka write failed")}
	dispatcher := newTestDispatcher(t, pool, producer)

	beforeFailed := testutil.ToFloat64(failedCounter)
	beforeDLQ := testutil.ToFloat64(dlqCounter.WithLabelValues("daily_steps_events", string(FailureDelivery)))

	require.NoError(t, dispatcher.processBatch(ctx))

	require.InDelta(t, beforeFailed+1, testutil.ToFloat64(failedCounter), 0.0001)
	require.InDelta(t, beforeDLQ+1, testutil.ToFloat64(dlqCounter.WithLabelValues("daily_steps_events", string(FailureDelivery))), 0.0001)

	var dlqCount int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox_dlq WHERE user_id = $1`, userID).Scan(&dlqCount))
	require.Equal(t, 1, dlqCount)

	var published int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox WHERE published_at IS NOT NULL`).Scan(&published))
	require.Equal(t, 1, published)
}

func TestDispatcherMovesSchemaViolationsToDLQ(t *testing.T) {
	ctx := context.Background()
	pool, cleanup := setupPostgres(t, ctx)
	defer cleanup()

	userID := uuid.NewString()
	var eventID int64
	require.NoError(t, pool.QueryRow(ctx,
		`INSERT INTO outbox (user_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload)
         VALUES ($1,'daily_steps',$2,$3,'daily_steps_events','daily_steps_events-value',$1,$4)
         RETURNING event_id`,
		userID, uuid.NewString(), events.TypeDailyStepsUpdated, []byte(`{"record_id":"x","user_id":"u","date":"bad","step_count":-1,"occurred_at":"2025-03-10T09:00:00Z"}`),
	).Scan(&eventID))

	producer := &stubProducer{}
	dispatcher := newTestDispatcher(t, pool, producer)
	require.NoError(t, dispatcher.processBatch(ctx))

	require.Empty(t, producer.writes, "invalid payloads must not reach kafka")

	var (
		reason      string
		failure     string
		quarantined *time.Time
	)
	require.NoError(t, pool.QueryRow(ctx, `SELECT reason, failure, quarantined_at FROM outbox_dlq WHERE event_id = $1`, eventID).Scan(&reason, &failure, &quarantined))
	require.Contains(t, reason, ErrSchemaViolation.Error())
	require.Equal(t, string(FailureSchema), failure)
	require.NotNil(t, quarantined, "schema violations are never replayed")

	var publishedAt *time.Time
	require.NoError(t, pool.QueryRow(ctx, `SELECT published_at FROM outbox WHERE event_id = $1`, eventID).Scan(&publishedAt))
	require.NotNil(t, publishedAt)
}

func TestDLQManagerQuarantinesExhaustedEntries(t *testing.T) {
	ctx := context.Background()
	pool, cleanup := setupPostgres(t, ctx)
	defer cleanup()

	userID := uuid.NewString()
	seedStepsEvent(t, ctx, pool, userID, 10)
	failing := newTestDispatcher(t, pool, &stubProducer{err: errors.New("down")})
	require.NoError(t, failing.processBatch(ctx))

	_, err := pool.Exec(ctx, `UPDATE outbox_dlq SET retry_count = 3`)
	require.NoError(t, err)

	manager := NewDLQManager(pool, 3)
	result, err := manager.RunOnce(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, DLQResult{Quarantined: 1}, result)

	var quarantined int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox_dlq WHERE quarantined_at IS NOT NULL`).Scan(&quarantined))
	require.Equal(t, 1, quarantined)
}

func TestDLQReplayDeliversToKafka(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 4*time.Minute)
	defer cancel()

	pool, cleanup := setupPostgres(t, ctx)
	defer cleanup()

	userID := uuid.NewString()
	seedStepsEvent(t, ctx, pool, userID, 4321)

	// 1. Initial dispatch fails and moves the message to DLQ.
	failing := newTestDispatcher(t, pool, &stubProducer{err: errors.New("upstream kafka unavailable")})
	require.NoError(t, failing.processBatch(ctx))

	// 2. Requeue the DLQ entry.
	manager := NewDLQManager(pool, 5)
	result, err := manager.RunOnce(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, DLQResult{Requeued: 1}, result)

	var dlqCount int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox_dlq`).Scan(&dlqCount))
	require.Zero(t, dlqCount, "expected DLQ cleared after requeue")

	// 3. Dispatch the requeued event to a real broker and read it back.
	kContainer, err := kafkaContainer.RunContainer(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = kContainer.Terminate(context.Background()) })

	brokers, err := kContainer.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)

	conn, err := kafka.Dial("tcp", brokers[0])
	require.NoError(t, err)
	require.NoError(t, conn.CreateTopics(kafka.TopicConfig{Topic: "daily_steps_events", NumPartitions: 1, ReplicationFactor: 1}))
	require.NoError(t, conn.Close())

	producer := NewKafkaProducer(brokers)
	defer producer.Close()
	require.NoError(t, newTestDispatcher(t, pool, producer).processBatch(ctx))

	reader := kafka.NewReader(kafka.ReaderConfig{Brokers: brokers, Topic: "daily_steps_events", MinBytes: 1, MaxBytes: 10e6})
	defer reader.Close()

	msg, err := reader.ReadMessage(ctx)
	require.NoError(t, err)
	require.Equal(t, []byte(userID), msg.Key)
	require.Contains(t, string(msg.Value), `"step_count": 4321`)
}

func TestRedeliveryFailureBacksOff(t *testing.T) {
	ctx := context.Background()
	pool, cleanup := setupPostgres(t, ctx)
	defer cleanup()

	userID := uuid.NewString()
	seedStepsEvent(t, ctx, pool, userID, 77)
	failing := newTestDispatcher(t, pool, &stubProducer{err: errors.New("broker down")})
	manager := NewDLQManager(pool, 5)

	require.NoError(t, failing.processBatch(ctx))
	result, err := manager.RunOnce(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, 1, result.Requeued)

	var attempts int
	require.NoError(t, pool.QueryRow(ctx, `SELECT attempts FROM outbox WHERE published_at IS NULL`).Scan(&attempts))
	require.Equal(t, 1, attempts)

	// The replayed event fails again and now waits out the backoff.
	require.NoError(t, failing.processBatch(ctx))
	var (
		retryCount int
		waiting    bool
	)
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT retry_count, next_retry_at > NOW() FROM outbox_dlq WHERE user_id = $1`, userID,
	).Scan(&retryCount, &waiting))
	require.Equal(t, 1, retryCount)
	require.True(t, waiting)

	result, err = manager.RunOnce(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, DLQResult{}, result)
}

func newTestDispatcher(t *testing.T, pool *pgxpool.Pool, producer messageWriter) *Dispatcher {
	t.Helper()
	validator, err := NewSchemaValidator()
	require.NoError(t, err)
	return NewDispatcher(pool, producer, validator, 10*time.Millisecond, 5, WithRetryBase(time.Minute))
}

type stubProducer struct {
	mu     sync.Mutex
	err    error
	writes []writtenBatch
}

type writtenBatch struct {
	topic    string
	messages []kafka.Message
}

func (s *stubProducer) WriteMessages(ctx context.Context, topic string, msgs ...kafka.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return s.err
	}

	copied := make([]kafka.Message, len(msgs))
	copy(copied, msgs)

	s.writes = append(s.writes, writtenBatch{
		topic:    topic,
		messages: copied,
	})
	return nil
}

func setupPostgres(t *testing.T, ctx context.Context) (*pgxpool.Pool, func()) {
	t.Helper()

	pg, err := postgrescontainer.RunContainer(ctx,
		postgrescontainer.WithDatabase("habits"),
		postgrescontainer.WithUsername("tracker"),
		postgrescontainer.WithPassword("tracker"),
	)
	require.NoError(t, err)

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, waitForDatabase(ctx, connStr))

	runMigrations(t, ctx, connStr)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)

	cleanup := func() {
		pool.Close()
		_ = pg.Terminate(ctx)
	}
	return pool, cleanup
}

func histogramSampleCount(t *testing.T) uint64 {
	t.Helper()

	metric := &dto.Metric{}
	require.NoError(t, batchDuration.Write(metric))
	hist := metric.GetHistogram()
	require.NotNil(t, hist)
	return hist.GetSampleCount()
}

func seedStepsEvent(t *testing.T, ctx context.Context, pool *pgxpool.Pool, userID string, count int) {
	t.Helper()

	tx, err := pool.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback(ctx)

	recordID := uuid.NewString()
	require.NoError(t, Enqueue(ctx, tx, Event{
		UserID:        userID,
		AggregateType: "daily_steps",
		AggregateID:   recordID,
		EventType:     events.TypeDailyStepsUpdated,
		Payload: events.DailyStepsUpdated{
			RecordID:   recordID,
			UserID:     userID,
			Date:       "2025-03-10",
			StepCount:  count,
			OccurredAt: time.Now().UTC(),
		},
	}))
	require.NoError(t, tx.Commit(ctx))
}

func runMigrations(t *testing.T, ctx context.Context, connStr string) {
	t.Helper()

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	defer pool.Close()

	migrationsDir := resolvePath(t, "../../db/postgres/migrations")
	files, err := filepath.Glob(filepath.Join(migrationsDir, "*.up.sql"))
	require.NoError(t, err)
	require.NotEmpty(t, files, "expected at least one migration .up.sql file")

	sort.Strings(files)

	for _, file := range files {
		contents, readErr := os.ReadFile(file)
		require.NoErrorf(t, readErr, "read migration %s", file)

		_, execErr := pool.Exec(ctx, string(contents))
		require.NoErrorf(t, execErr, "execute migration %s", file)
	}
}

func resolvePath(t *testing.T, rel string) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	require.True(t, ok)
	return filepath.Join(filepath.Dir(file), rel)
}

func waitForDatabase(ctx context.Context, connStr string) error {
	deadline := time.Now().Add(30 * time.Second)
	for {
		pool, err := pgxpool.New(ctx, connStr)
		if err == nil {
			err = pool.Ping(ctx)
			pool.Close()
			if err == nil {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return err
		}
		time.Sleep(time.Second)
	}
}
