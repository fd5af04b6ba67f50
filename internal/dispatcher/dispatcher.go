package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/warhost/simcore/internal/dispatcher"

// Trigger names used by the scheduler.
const (
	WorldTick  = "world-tick"
	PlayerTick = "player-tick"
)

var (
	// ErrCoalesced is returned when a coalesced trigger is already running.
	ErrCoalesced = errors.New("already running")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("dispatcher closed")
)

// Trigger is one firing of a scheduled job.
type Trigger struct {
	Name     string
	PlayerID uint
	FiredAt  time.Time
}

// HandlerFunc runs a trigger.
type HandlerFunc func(ctx context.Context, t Trigger) error

// Logger interface for pluggable logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Option configures handler registration.
type Option func(*config)

type config struct {
	bufferSize int
	logged     bool
	coalesced  bool
}

// Buffered makes the handler async with a queue of the given size. Dispatch
// waits for room when the queue is full and gives up when its ctx is done.
// Queued triggers run to completion even if the dispatching ctx is cancelled.
func Buffered(size int) Option {
	return func(c *config) {
		c.bufferSize = size
	}
}

// Logged adds debug logging to the handler.
func Logged() Option {
	return func(c *config) {
		c.logged = true
	}
}

// Coalesced drops a trigger while a previous run of the same handler is
// still in flight.
func Coalesced() Option {
	return func(c *config) {
		c.coalesced = true
	}
}

type queued struct {
	ctx     context.Context
	trigger Trigger
}

// Dispatcher routes triggers to registered handlers.
type Dispatcher struct {
	handlers map[string]HandlerFunc
	logger   Logger

	// OTEL metrics
	queueSize metric.Int64ObservableGauge
	processed metric.Int64Counter
	dropped   metric.Int64Counter
	failed    metric.Int64Counter
	duration  metric.Float64Histogram

	// Track buffers for gauge callback
	mu      sync.RWMutex
	buffers map[string]chan queued
	closed  bool
	workers sync.WaitGroup
}

// New creates a new Dispatcher with the given logger.
// Uses the global OTel meter for metrics (no-op if not configured).
func New(logger Logger) (*Dispatcher, error) {
	d := &Dispatcher{
		handlers: make(map[string]HandlerFunc),
		buffers:  make(map[string]chan queued),
		logger:   logger,
	}

	// Get meter from global OTel provider (returns no-op if not configured)
	m := otel.Meter(instrumentationName)

	var err error

	d.queueSize, err = m.Int64ObservableGauge(
		"dispatcher.queue.size",
		metric.WithDescription("Current number of triggers in queue"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating queue size gauge: %w", err)
	}

	_, err = m.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			d.mu.RLock()
			defer d.mu.RUnlock()
			for name, buf := range d.buffers {
				o.ObserveInt64(d.queueSize, int64(len(buf)),
					metric.WithAttributes(attribute.String("trigger", name)))
			}
			return nil
		},
		d.queueSize,
	)
	if err != nil {
		return nil, fmt.Errorf("registering queue callback: %w", err)
	}

	d.processed, err = m.Int64Counter(
		"dispatcher.triggers.processed",
		metric.WithDescription("Total triggers processed"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating processed counter: %w", err)
	}

	d.dropped, err = m.Int64Counter(
		"dispatcher.triggers.dropped",
		metric.WithDescription("Total triggers dropped because a run was in flight"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating dropped counter: %w", err)
	}

	d.failed, err = m.Int64Counter(
		"dispatcher.triggers.failed",
		metric.WithDescription("Total triggers whose handler returned an error"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating failed counter: %w", err)
	}

	d.duration, err = m.Float64Histogram(
		"dispatcher.triggers.duration",
		metric.WithDescription("Handler run time"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating duration histogram: %w", err)
	}

	return d, nil
}

// Register adds a handler for the given trigger name with optional configuration.
func (d *Dispatcher) Register(name string, h HandlerFunc, opts ...Option) {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}

	handler := d.withMetrics(name, h)

	if cfg.logged {
		handler = d.withLogging(name, handler)
	}

	if cfg.coalesced {
		handler = d.withCoalescing(name, handler)
	}

	if cfg.bufferSize > 0 {
		handler = d.withBuffer(name, cfg.bufferSize, handler)
	}

	d.handlers[name] = handler
}

// Dispatch routes a trigger to its registered handler.
func (d *Dispatcher) Dispatch(ctx context.Context, t Trigger) error {
	h, ok := d.handlers[t.Name]
	if !ok {
		return fmt.Errorf("unknown trigger: %s", t.Name)
	}
	if t.FiredAt.IsZero() {
		t.FiredAt = time.Now()
	}
	return h(ctx, t)
}

// Close stops accepting buffered triggers and runs every queued one before
// returning. Later calls are no-ops.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, buf := range d.buffers {
		close(buf)
	}
	d.mu.Unlock()

	d.workers.Wait()
}

func (d *Dispatcher) withMetrics(name string, h HandlerFunc) HandlerFunc {
	attrs := metric.WithAttributes(attribute.String("trigger", name))
	return func(ctx context.Context, t Trigger) error {
		start := time.Now()
		err := h(ctx, t)
		d.duration.Record(ctx, time.Since(start).Seconds(), attrs)
		d.processed.Add(ctx, 1, attrs)
		if err != nil {
			d.failed.Add(ctx, 1, attrs)
		}
		return err
	}
}

func (d *Dispatcher) withCoalescing(name string, h HandlerFunc) HandlerFunc {
	var running atomic.Bool
	attrs := metric.WithAttributes(attribute.String("trigger", name), attribute.String("reason", "coalesced"))
	return func(ctx context.Context, t Trigger) error {
		if !running.CompareAndSwap(false, true) {
			d.dropped.Add(ctx, 1, attrs)
			return fmt.Errorf("%w: %s", ErrCoalesced, name)
		}
		defer running.Store(false)
		return h(ctx, t)
	}
}

func (d *Dispatcher) withBuffer(name string, size int, h HandlerFunc) HandlerFunc {
	buffer := make(chan queued, size)

	d.mu.Lock()
	d.buffers[name] = buffer
	d.mu.Unlock()

	d.workers.Add(1)
	go func() {
		defer d.workers.Done()
		for q := range buffer {
			if err := h(q.ctx, q.trigger); err != nil {
				d.logger.Error("buffered trigger failed", "trigger", name, "error", err)
			}
		}
	}()

	return func(ctx context.Context, t Trigger) error {
		d.mu.RLock()
		defer d.mu.RUnlock()
		if d.closed {
			return ErrClosed
		}

		select {
		case buffer <- queued{ctx: context.WithoutCancel(ctx), trigger: t}:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (d *Dispatcher) withLogging(name string, h HandlerFunc) HandlerFunc {
	return func(ctx context.Context, t Trigger) error {
		start := time.Now()
		d.logger.Debug("handling trigger", "trigger", name, "player_id", t.PlayerID)

		err := h(ctx, t)

		if err != nil {
			d.logger.Error("trigger failed", "trigger", name, "duration", time.Since(start), "error", err)
		} else {
			d.logger.Debug("trigger complete", "trigger", name, "duration", time.Since(start))
		}

		return err
	}
}
