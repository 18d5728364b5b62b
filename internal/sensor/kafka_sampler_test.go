package sensor

import (
	"context"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

func TestKafkaSamplerDeliversAccelerometerSamples(t *testing.T) {
	reader := &stubReader{messages: []kafka.Message{
		{Topic: "motion_samples", Offset: 1, Value: []byte(`{"sensor":"accelerometer","x":0.1,"y":0.2,"z":9.7,"timestamp_nanos":1000}`)},
		{Topic: "motion_samples", Offset: 2, Value: []byte(`{"sensor":"gyroscope","x":1,"y":1,"z":1,"timestamp_nanos":2000}`)},
		{Topic: "motion_samples", Offset: 3, Value: []byte(`not-json`)},
		{Topic: "motion_samples", Offset: 4, Value: []byte(`{"sensor":"accelerometer","x":0,"y":0,"z":12,"timestamp_nanos":3000}`)},
	}}

	sampler := NewKafkaSampler(reader, WithLogger(log.New(testWriter{t}, "", 0)))

	var mu sync.Mutex
	var got []MotionSample
	require.NoError(t, sampler.Start(context.Background(), func(s MotionSample) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, s)
	}))

	require.Eventually(t, func() bool {
		return reader.commits() == 4
	}, time.Second, 5*time.Millisecond)
	require.NoError(t, sampler.Stop())

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []MotionSample{
		{X: 0.1, Y: 0.2, Z: 9.7, TimestampNanos: 1000},
		{X: 0, Y: 0, Z: 12, TimestampNanos: 3000},
	}, got)
	require.True(t, reader.closed)
}

func TestKafkaSamplerRejectsDoubleStart(t *testing.T) {
	sampler := NewKafkaSampler(&stubReader{}, WithLogger(log.New(testWriter{t}, "", 0)))
	require.NoError(t, sampler.Start(context.Background(), func(MotionSample) {}))
	require.Error(t, sampler.Start(context.Background(), func(MotionSample) {}))
	require.NoError(t, sampler.Stop())
	require.NoError(t, sampler.Stop())
}

func TestDecodeSampleValidatesTimestamp(t *testing.T) {
	_, _, err := decodeSample(kafka.Message{Value: []byte(`{"sensor":"accelerometer","z":9.8}`)})
	require.Error(t, err)

	_, _, err = decodeSample(kafka.Message{Value: []byte(`{"z":9.8,"timestamp_nanos":5}`)})
	require.Error(t, err)
}

func TestChannelSamplerStopsOnClose(t *testing.T) {
	ch := make(chan MotionSample, 2)
	sampler := NewChannelSampler(ch)
	var count int
	require.NoError(t, sampler.Start(context.Background(), func(MotionSample) { count++ }))
	ch <- MotionSample{Z: 1, TimestampNanos: 1}
	ch <- MotionSample{Z: 2, TimestampNanos: 2}
	close(ch)

	select {
	case <-sampler.Done():
	case <-time.After(time.Second):
		t.Fatal("sampler did not stop after channel close")
	}
	require.Equal(t, 2, count)
	require.NoError(t, sampler.Stop())
}

// stubReader serves its messages once and then blocks until the context is cancelled.
type stubReader struct {
	mu          sync.Mutex
	messages    []kafka.Message
	index       int
	commitCalls int
	closed      bool
}

func (r *stubReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if r.index < len(r.messages) {
		msg := r.messages[r.index]
		r.index++
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *stubReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commitCalls += len(msgs)
	return nil
}

func (r *stubReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *stubReader) commits() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.commitCalls
}

type testWriter struct {
	t *testing.T
}

func (tw testWriter) Write(p []byte) (int, error) {
	tw.t.Log(string(p))
	return len(p), nil
}
