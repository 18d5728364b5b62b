package outbox

import (
	"time"

	"github.com/jackc/pgx/v5"
)

// FailureKind records why an event ended up in the DLQ.
type FailureKind string

const (
	// FailureSchema marks payloads the validator refused. They are quarantined on arrival.
	FailureSchema FailureKind = "schema"
	// FailureDelivery marks broker errors; the entry is replayed after a backoff.
	FailureDelivery FailureKind = "delivery"
)

const maxBackoff = time.Hour

type deadLetter struct {
	msg    Message
	kind   FailureKind
	reason string
}

// queueDeadLetters adds one DLQ insert per letter to batch. A delivery failure becomes
// eligible for replay once the backoff for the attempts already spent has elapsed.
func queueDeadLetters(batch *pgx.Batch, letters []deadLetter, base time.Duration) {
	const stmt = `INSERT INTO outbox_dlq (user_id, event_id, event_type, topic, payload, reason, failure,
            aggregate_type, aggregate_id, schema_subject, partition_key, retry_count,
            next_retry_at, quarantined_at, quarantine_reason)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,
            NOW() + ($13::float8 * INTERVAL '1 second'),
            CASE WHEN $7 = 'schema' THEN NOW() END,
            CASE WHEN $7 = 'schema' THEN $6 END)`

	for _, l := range letters {
		delay := backoffDelay(base, l.msg.Attempts)
		batch.Queue(stmt,
			l.msg.UserID, l.msg.EventID, l.msg.EventType, l.msg.Topic, l.msg.Payload,
			l.reason, string(l.kind),
			l.msg.AggregateType, l.msg.AggregateID, l.msg.SchemaSubject, l.msg.PartitionKey,
			l.msg.Attempts, delay.Seconds(),
		)
	}
}

// backoffDelay is zero before the first replay and doubles base for each replay already
// spent, capped at one hour.
func backoffDelay(base time.Duration, attempts int) time.Duration {
	if attempts <= 0 {
		return 0
	}
	if attempts > 31 {
		return maxBackoff
	}
	delay := time.Duration(1<<uint(attempts-1)) * base
	if delay > maxBackoff || delay <= 0 {
		return maxBackoff
	}
	return delay
}
