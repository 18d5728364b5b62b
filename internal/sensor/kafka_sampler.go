package sensor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/segmentio/kafka-go"
)

// Reader exposes the minimal kafka.Reader interface needed by the sampler.
type Reader interface {
	FetchMessage(context.Context) (kafka.Message, error)
	CommitMessages(context.Context, ...kafka.Message) error
	Close() error
}

// samplePayload is the JSON record the device bridge publishes per reading.
type samplePayload struct {
	Sensor         string  `json:"sensor"`
	X              float64 `json:"x"`
	Y              float64 `json:"y"`
	Z              float64 `json:"z"`
	TimestampNanos int64   `json:"timestamp_nanos"`
}

// Option configures optional behaviour for the KafkaSampler.
type Option func(*KafkaSampler)

// WithLogger overrides the logger used to report errors.
func WithLogger(logger *log.Logger) Option {
	return func(s *KafkaSampler) {
		s.logger = logger
	}
}

// WithSensorFilter overrides the accepted sensor kind. Records for any other kind are dropped.
func WithSensorFilter(kind string) Option {
	return func(s *KafkaSampler) {
		s.sensor = kind
	}
}

// KafkaSampler reads motion samples published by the device bridge and hands accelerometer
// readings to the delivery callback, one at a time, on its own goroutine.
type KafkaSampler struct {
	reader Reader
	logger *log.Logger
	sensor string

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewKafkaSampler constructs a sampler over reader.
func NewKafkaSampler(reader Reader, opts ...Option) *KafkaSampler {
	s := &KafkaSampler{
		reader: reader,
		logger: log.New(log.Writer(), "[sampler] ", log.LstdFlags|log.Lshortfile),
		sensor: SensorAccelerometer,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the read loop. It returns immediately; samples are delivered until Stop is
// called or ctx is cancelled.
func (s *KafkaSampler) Start(ctx context.Context, deliver func(MotionSample)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return errors.New("sampler already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		if err := s.run(runCtx, deliver); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Printf("sampler stopped with error: %v", err)
		}
	}()
	return nil
}

// Stop cancels the read loop, waits for it to exit and closes the reader.
func (s *KafkaSampler) Stop() error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return s.reader.Close()
}

func (s *KafkaSampler) run(ctx context.Context, deliver func(MotionSample)) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		msg, err := s.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			s.logger.Printf("fetch error: %v", err)
			continue
		}

		sample, kind, decodeErr := decodeSample(msg)
		switch {
		case decodeErr != nil:
			s.logger.Printf("decode error (topic=%s, partition=%d, offset=%d): %v", msg.Topic, msg.Partition, msg.Offset, decodeErr)
			recordDecodeError(msg.Topic)
		case kind == s.sensor:
			recordDecoded(kind)
			deliver(sample)
		default:
			recordDecoded(kind)
		}

		// Samples are ephemeral; undecodable or filtered records are committed too so they are not replayed.
		if commitErr := s.reader.CommitMessages(ctx, msg); commitErr != nil && !errors.Is(commitErr, context.Canceled) {
			s.logger.Printf("commit error: %v", commitErr)
		}
	}
}

func decodeSample(msg kafka.Message) (MotionSample, string, error) {
	var payload samplePayload
	if err := json.Unmarshal(msg.Value, &payload); err != nil {
		return MotionSample{}, "", err
	}
	if payload.Sensor == "" {
		return MotionSample{}, "", fmt.Errorf("missing sensor kind")
	}
	if payload.TimestampNanos <= 0 {
		return MotionSample{}, "", fmt.Errorf("invalid timestamp_nanos: %d", payload.TimestampNanos)
	}
	return MotionSample{
		X:              payload.X,
		Y:              payload.Y,
		Z:              payload.Z,
		TimestampNanos: payload.TimestampNanos,
	}, payload.Sensor, nil
}
