// Package outbox persists and delivers change events to Kafka.
package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/segmentio/kafka-go"
)

const defaultRetryBase = time.Minute

type messageWriter interface {
	WriteMessages(context.Context, string, ...kafka.Message) error
}

type payloadValidator interface {
	Validate(eventType string, payload []byte) error
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger overrides the dispatcher logger.
func WithLogger(logger *log.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithRetryBase sets the first replay delay for events whose delivery failed more than once.
func WithRetryBase(base time.Duration) Option {
	return func(d *Dispatcher) {
		if base > 0 {
			d.retryBase = base
		}
	}
}

// Message is an outbox row claimed for delivery.
type Message struct {
	EventID       int64
	UserID        string
	AggregateType string
	AggregateID   string
	EventType     string
	Topic         string
	SchemaSubject string
	PartitionKey  string
	Payload       json.RawMessage
	Attempts      int
}

// Dispatcher drains the outbox table, validates payloads and delivers events to Kafka.
// Each claimed batch is settled in one transaction: dead letters are written and every
// claimed row is marked published together.
type Dispatcher struct {
	pool         *pgxpool.Pool
	producer     messageWriter
	validator    payloadValidator
	pollInterval time.Duration
	batchSize    int
	retryBase    time.Duration
	logger       *log.Logger
	done         chan struct{}
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(pool *pgxpool.Pool, producer messageWriter, validator payloadValidator, pollInterval time.Duration, batchSize int, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		pool:         pool,
		producer:     producer,
		validator:    validator,
		pollInterval: pollInterval,
		batchSize:    batchSize,
		retryBase:    defaultRetryBase,
		logger:       log.New(log.Writer(), "[outbox] ", log.LstdFlags|log.Lshortfile),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start polls until ctx is cancelled. Run it in its own goroutine.
func (d *Dispatcher) Start(ctx context.Context) {
	ticker := time.NewTicker(d.pollInterval)
	defer func() {
		ticker.Stop()
		close(d.done)
	}()

	for {
		if err := d.processBatch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Printf("dispatch failed: %v", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Wait blocks until Start has returned.
func (d *Dispatcher) Wait() {
	<-d.done
}

func (d *Dispatcher) processBatch(ctx context.Context) error {
	start := time.Now()

	messages, err := d.claim(ctx)
	if err != nil || len(messages) == 0 {
		return err
	}
	defer func() { batchDuration.Observe(time.Since(start).Seconds()) }()

	batches, rejected := partition(messages, d.validator, time.Now().UTC())
	letters := make([]deadLetter, 0, len(rejected))
	for _, rej := range rejected {
		d.logger.Printf("event %d (%s) refused by schema: %v", rej.message.EventID, rej.message.EventType, rej.err)
		invalidCounter.WithLabelValues(rej.message.EventType).Inc()
		letters = append(letters, deadLetter{msg: rej.message, kind: FailureSchema, reason: rej.err.Error()})
	}

	delivered := 0
	for topic, batch := range batches {
		if err := d.producer.WriteMessages(ctx, topic, batch.records...); err != nil {
			d.logger.Printf("delivery to %s failed for %d events: %v", topic, len(batch.messages), err)
			failedCounter.Add(float64(len(batch.messages)))
			for _, msg := range batch.messages {
				letters = append(letters, deadLetter{msg: msg, kind: FailureDelivery, reason: fmt.Sprintf("%v (topic=%s)", err, topic)})
			}
			continue
		}
		delivered += len(batch.messages)
	}

	if err := d.settle(ctx, messages, letters); err != nil {
		return err
	}
	deliveredCounter.Add(float64(delivered))
	for _, l := range letters {
		dlqCounter.WithLabelValues(l.msg.Topic, string(l.kind)).Inc()
	}
	return nil
}

// claim locks the oldest unpublished rows, stamps claimed_at and returns them.
func (d *Dispatcher) claim(ctx context.Context) ([]Message, error) {
	const query = `SELECT event_id, user_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, attempts
        FROM outbox
        WHERE published_at IS NULL
        ORDER BY event_id
        LIMIT $1
        FOR UPDATE SKIP LOCKED`

	var messages []Message
	err := pgx.BeginFunc(ctx, d.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, query, d.batchSize)
		if err != nil {
			return err
		}
		messages, err = pgx.CollectRows(rows, scanMessage)
		if err != nil || len(messages) == 0 {
			return err
		}
		_, err = tx.Exec(ctx, `UPDATE outbox SET claimed_at = NOW() WHERE event_id = ANY($1)`, eventIDs(messages))
		return err
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}

func scanMessage(row pgx.CollectableRow) (Message, error) {
	var msg Message
	err := row.Scan(&msg.EventID, &msg.UserID, &msg.AggregateType, &msg.AggregateID, &msg.EventType,
		&msg.Topic, &msg.SchemaSubject, &msg.PartitionKey, &msg.Payload, &msg.Attempts)
	return msg, err
}

// settle records the dead letters and closes every claimed row in one transaction.
func (d *Dispatcher) settle(ctx context.Context, messages []Message, letters []deadLetter) error {
	return pgx.BeginFunc(ctx, d.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		queueDeadLetters(batch, letters, d.retryBase)
		batch.Queue(`UPDATE outbox SET published_at = NOW() WHERE event_id = ANY($1)`, eventIDs(messages))
		return tx.SendBatch(ctx, batch).Close()
	})
}

type topicBatch struct {
	messages []Message
	records  []kafka.Message
}

type rejection struct {
	message Message
	err     error
}

// partition groups valid messages by topic and collects those failing validation.
func partition(messages []Message, validator payloadValidator, now time.Time) (map[string]*topicBatch, []rejection) {
	batches := make(map[string]*topicBatch)
	var rejected []rejection

	for _, msg := range messages {
		if err := validator.Validate(msg.EventType, msg.Payload); err != nil {
			rejected = append(rejected, rejection{message: msg, err: err})
			continue
		}

		batch, ok := batches[msg.Topic]
		if !ok {
			batch = &topicBatch{}
			batches[msg.Topic] = batch
		}
		batch.messages = append(batch.messages, msg)
		batch.records = append(batch.records, kafka.Message{
			Key:   []byte(msg.PartitionKey),
			Value: msg.Payload,
			Time:  now,
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(msg.EventType)},
				{Key: "aggregate_type", Value: []byte(msg.AggregateType)},
				{Key: "aggregate_id", Value: []byte(msg.AggregateID)},
				{Key: "user_id", Value: []byte(msg.UserID)},
			},
		})
	}
	return batches, rejected
}

func eventIDs(messages []Message) []int64 {
	ids := make([]int64, len(messages))
	for i, msg := range messages {
		ids[i] = msg.EventID
	}
	return ids
}
