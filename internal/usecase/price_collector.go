package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"PriceFeatures/internal/domain/models"
	drepo "PriceFeatures/internal/domain/repository"
	mid "PriceFeatures/internal/middleware"
	applogger "PriceFeatures/pkg/logger"
)

// CollectorState is the lifecycle state of a PriceCollector.
type CollectorState int

const (
	StateStopped CollectorState = iota
	StateRunning
	StateStoppingGraceful
)

func (s CollectorState) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateStoppingGraceful:
		return "stopping"
	default:
		return "stopped"
	}
}

var ErrCollectorRunning = errors.New("collector already running")

// PriceCollector reads live trades from the market stream and feeds them
// through the pipeline into the minute sampler.
type PriceCollector struct {
	stream  drepo.MarketStream
	sampler *MinuteSampler
	pipe    *mid.RealtimePipeline
	metrics drepo.Metrics
	log     *applogger.Logger

	mu     sync.Mutex
	state  CollectorState
	cancel context.CancelFunc
	done   chan struct{}
}

func NewPriceCollector(stream drepo.MarketStream, sampler *MinuteSampler, pipe *mid.RealtimePipeline, metrics drepo.Metrics, l *applogger.Logger) *PriceCollector {
	if l == nil {
		l = applogger.Nop()
	}
	return &PriceCollector{stream: stream, sampler: sampler, pipe: pipe, metrics: metrics, log: l}
}

func (c *PriceCollector) State() CollectorState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsConnected returns true if the market stream is connected.
func (c *PriceCollector) IsConnected() bool {
	return c.stream.IsConnected()
}

// Health reports an error unless the collector is running and connected.
func (c *PriceCollector) Health(context.Context) error {
	if st := c.State(); st != StateRunning {
		return fmt.Errorf("collector %s", st)
	}
	if !c.IsConnected() {
		return fmt.Errorf("market stream disconnected")
	}
	return nil
}

// Start connects, subscribes and starts consuming in the background.
func (c *PriceCollector) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateStopped {
		return ErrCollectorRunning
	}

	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	if err := c.stream.Subscribe(ctx); err != nil {
		_ = c.stream.Close()
		return err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	if c.pipe != nil {
		c.pipe.Start(runCtx)
	}
	c.cancel = cancel
	c.done = make(chan struct{})
	c.state = StateRunning

	go c.run(runCtx, c.done)
	c.log.Info("price collector started")
	return nil
}

func (c *PriceCollector) run(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	for ctx.Err() == nil {
		trCh, errCh := c.stream.Read(ctx)
		err := c.consume(ctx, trCh, errCh)
		if ctx.Err() != nil {
			return
		}
		c.metrics.RecordError("stream")
		c.log.Warn("market stream failed, reconnecting", applogger.Error(err))
		for ctx.Err() == nil {
			if rerr := c.stream.Reconnect(ctx); rerr == nil {
				break
			} else if ctx.Err() == nil {
				c.log.Error("reconnect failed", applogger.Error(rerr))
			}
		}
	}
}

func (c *PriceCollector) consume(ctx context.Context, trCh <-chan *models.Trade, errCh <-chan error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err, ok := <-errCh:
			if ok && err != nil {
				return err
			}
			errCh = nil
		case t, ok := <-trCh:
			if !ok {
				return fmt.Errorf("trade stream closed")
			}
			c.process(ctx, t)
		}
	}
}

func (c *PriceCollector) process(ctx context.Context, t *models.Trade) {
	var err error
	if c.pipe != nil {
		err = c.pipe.Process(ctx, t)
	} else {
		err = c.sampler.Process(ctx, t)
	}
	if err != nil {
		c.log.Warn("trade not processed", applogger.Error(err))
		return
	}
	c.metrics.RecordLastPrice(t.Symbol, t.Price)
}

// Shutdown stops consuming, flushes the open minute and closes the stream.
// It moves through StoppingGraceful and ends in Stopped.
func (c *PriceCollector) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateRunning {
		c.mu.Unlock()
		return nil
	}
	c.state = StateStoppingGraceful
	cancel, done := c.cancel, c.done
	c.mu.Unlock()

	cancel()
	closeErr := c.stream.Close()
	select {
	case <-done:
	case <-ctx.Done():
		c.log.Warn("collector shutdown timed out")
	}
	if c.pipe != nil {
		c.pipe.Stop()
	}

	flushCtx, flushCancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer flushCancel()
	flushErr := c.sampler.Flush(flushCtx)
	if flushErr != nil {
		c.log.Error("flush open minute failed", applogger.Error(flushErr))
	}

	c.mu.Lock()
	c.state = StateStopped
	c.mu.Unlock()
	c.log.Info("price collector stopped")
	return errors.Join(closeErr, flushErr)
}
