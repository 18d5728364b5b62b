package sensor

import (
	"context"
	"errors"
	"sync"
)

// ChannelSampler delivers samples pushed onto a channel. It backs local development and tests.
type ChannelSampler struct {
	samples <-chan MotionSample

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewChannelSampler constructs a sampler reading from samples.
func NewChannelSampler(samples <-chan MotionSample) *ChannelSampler {
	return &ChannelSampler{samples: samples}
}

// Start delivers samples on a dedicated goroutine until Stop, ctx cancellation or channel close.
func (c *ChannelSampler) Start(ctx context.Context, deliver func(MotionSample)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return errors.New("sampler already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})

	go func() {
		defer close(c.done)
		for {
			select {
			case <-runCtx.Done():
				return
			case sample, ok := <-c.samples:
				if !ok {
					return
				}
				deliver(sample)
			}
		}
	}()
	return nil
}

// Stop halts delivery and waits for the goroutine to exit.
func (c *ChannelSampler) Stop() error {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel = nil
	c.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

// Done is closed once the delivery goroutine exits. It is nil before Start.
func (c *ChannelSampler) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}
