package outbox

import (
	"context"
	"log"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const defaultMaxRetries = 5

// DLQOption configures a DLQManager.
type DLQOption func(*DLQManager)

// WithDLQLogger overrides the manager logger.
func WithDLQLogger(logger *log.Logger) DLQOption {
	return func(m *DLQManager) {
		m.logger = logger
	}
}

// DLQManager replays dead letters into the outbox and quarantines the ones that cannot
// succeed.
type DLQManager struct {
	pool       *pgxpool.Pool
	maxRetries int
	logger     *log.Logger
}

// NewDLQManager constructs a DLQManager. Entries replayed maxRetries times are quarantined.
func NewDLQManager(pool *pgxpool.Pool, maxRetries int, opts ...DLQOption) *DLQManager {
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	m := &DLQManager{
		pool:       pool,
		maxRetries: maxRetries,
		logger:     log.New(log.Writer(), "[dlq] ", log.LstdFlags|log.Lshortfile),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// DLQResult counts what one RunOnce pass did.
type DLQResult struct {
	Requeued    int
	Quarantined int
}

// RunOnce locks up to batchSize entries that are due, requeues or quarantines each of
// them and commits the whole pass at once. Concurrent managers skip each other's rows.
func (m *DLQManager) RunOnce(ctx context.Context, batchSize int) (DLQResult, error) {
	const query = `SELECT dlq_id, user_id, event_type, topic, payload, aggregate_type, aggregate_id, schema_subject, partition_key, retry_count
        FROM outbox_dlq
        WHERE quarantined_at IS NULL AND (next_retry_at IS NULL OR next_retry_at <= NOW())
        ORDER BY created_at
        LIMIT $1
        FOR UPDATE SKIP LOCKED`

	var (
		result      DLQResult
		requeued    []dlqEntry
		quarantined []dlqEntry
	)
	err := pgx.BeginFunc(ctx, m.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, query, batchSize)
		if err != nil {
			return err
		}
		entries, err := pgx.CollectRows(rows, scanDLQEntry)
		if err != nil || len(entries) == 0 {
			return err
		}

		batch := &pgx.Batch{}
		for _, entry := range entries {
			if reason, quarantine := m.verdict(entry); quarantine {
				batch.Queue(`UPDATE outbox_dlq SET quarantined_at = NOW(), quarantine_reason = $1 WHERE dlq_id = $2`, reason, entry.ID)
				quarantined = append(quarantined, entry)
				continue
			}
			batch.Queue(`INSERT INTO outbox (user_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, attempts)
                VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
				entry.UserID, entry.AggregateType, entry.AggregateID, entry.EventType,
				entry.Topic, entry.SchemaSubject, entry.PartitionKey, entry.Payload, entry.RetryCount+1)
			batch.Queue(`DELETE FROM outbox_dlq WHERE dlq_id = $1`, entry.ID)
			requeued = append(requeued, entry)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return DLQResult{}, err
	}

	for _, entry := range requeued {
		recordDLQRequeued(entry)
	}
	for _, entry := range quarantined {
		m.logger.Printf("quarantined dlq entry %d (%s) after %d replays", entry.ID, entry.EventType, entry.RetryCount)
		recordDLQQuarantined(entry)
	}
	result.Requeued = len(requeued)
	result.Quarantined = len(quarantined)
	refreshBacklog(ctx, m.pool)
	return result, nil
}

// verdict reports whether entry must be quarantined instead of replayed, and why.
func (m *DLQManager) verdict(entry dlqEntry) (string, bool) {
	if entry.RetryCount >= m.maxRetries {
		return "retry limit reached", true
	}
	if _, ok := Lookup(entry.EventType); !ok {
		return ErrUnknownEventType.Error() + ": " + entry.EventType, true
	}
	return "", false
}

type dlqEntry struct {
	ID            int64
	UserID        string
	EventType     string
	Topic         string
	Payload       []byte
	AggregateType string
	AggregateID   string
	SchemaSubject string
	PartitionKey  string
	RetryCount    int
}

func scanDLQEntry(row pgx.CollectableRow) (dlqEntry, error) {
	var e dlqEntry
	err := row.Scan(&e.ID, &e.UserID, &e.EventType, &e.Topic, &e.Payload, &e.AggregateType,
		&e.AggregateID, &e.SchemaSubject, &e.PartitionKey, &e.RetryCount)
	return e, err
}
