package messaging

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/habitloop/habitloop-core/internal/domain/shared"
	"github.com/habitloop/habitloop-core/pkg/circuitbreaker"
	"github.com/habitloop/habitloop-core/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// OUTBOUND DISPATCHER
// Delivers selected domain events to external sinks (webhooks, push
// notification gateways). At-least-once with bounded retry; a sink that
// keeps failing is isolated behind a circuit breaker while the rest of
// the system continues. Undeliverable events land in the dead letter
// queue for inspection.
// ══════════════════════════════════════════════════════════════════════════════

// Sink delivers an event to an external destination.
type Sink interface {
	// Name identifies the sink in logs and breaker state.
	Name() string

	// Accepts reports whether this sink wants the event type.
	Accepts(eventType shared.EventType) bool

	// Deliver pushes the event out. Returning an error triggers a retry.
	Deliver(ctx context.Context, event shared.Event) error
}

// DispatcherConfig contains configuration for the Dispatcher.
type DispatcherConfig struct {
	// QueueSize bounds the in-flight event queue. Publishing to a full
	// queue drops the event with an error log; the reconcile job is the
	// backstop for anything critical.
	QueueSize int

	// Workers is the number of delivery goroutines.
	Workers int

	// Retry configures per-delivery retry behavior.
	Retry retry.Config

	// DeadLetterSize bounds the dead letter buffer.
	DeadLetterSize int

	// BreakerFailureThreshold opens a sink's breaker after this many
	// consecutive delivery failures.
	BreakerFailureThreshold int

	Logger *slog.Logger
}

// DefaultDispatcherConfig returns sensible defaults.
func DefaultDispatcherConfig() DispatcherConfig {
	cfg := retry.DefaultConfig()
	cfg.MaxDelay = 5 * time.Second
	return DispatcherConfig{
		QueueSize:               1024,
		Workers:                 4,
		Retry:                   cfg,
		DeadLetterSize:          512,
		BreakerFailureThreshold: 5,
	}
}

// DeadLetter is one undeliverable event with its final error.
type DeadLetter struct {
	Event    shared.Event
	Sink     string
	Err      error
	FailedAt time.Time
}

// Dispatcher fans events out to sinks.
type Dispatcher struct {
	cfg      DispatcherConfig
	sinks    []Sink
	breakers map[string]*circuitbreaker.CircuitBreaker
	queue    chan shared.Event
	logger   *slog.Logger

	mu         sync.Mutex
	deadLetter []DeadLetter

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed bool
}

// NewDispatcher creates a dispatcher for the given sinks.
func NewDispatcher(cfg DispatcherConfig, sinks ...Sink) *Dispatcher {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		cfg:      cfg,
		sinks:    sinks,
		breakers: make(map[string]*circuitbreaker.CircuitBreaker, len(sinks)),
		queue:    make(chan shared.Event, cfg.QueueSize),
		logger:   cfg.Logger,
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, s := range sinks {
		d.breakers[s.Name()] = circuitbreaker.New(circuitbreaker.Config{
			Name:             s.Name(),
			FailureThreshold: cfg.BreakerFailureThreshold,
		})
	}
	for i := 0; i < cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

// HandleEvent enqueues an event; wired into the bus via SubscribeAll.
func (d *Dispatcher) HandleEvent(event shared.Event) error {
	select {
	case d.queue <- event:
		return nil
	case <-d.ctx.Done():
		return ErrEventBusClosed
	default:
		d.logger.Error("dispatcher queue full, dropping event",
			"event_type", event.EventType(),
			"aggregate_id", event.AggregateID())
		return errors.New("dispatcher queue full")
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for {
		select {
		case <-d.ctx.Done():
			return
		case event, ok := <-d.queue:
			if !ok {
				return
			}
			d.dispatch(event)
		}
	}
}

func (d *Dispatcher) dispatch(event shared.Event) {
	for _, sink := range d.sinks {
		if !sink.Accepts(event.EventType()) {
			continue
		}
		if err := d.deliver(sink, event); err != nil {
			d.pushDeadLetter(DeadLetter{
				Event:    event,
				Sink:     sink.Name(),
				Err:      err,
				FailedAt: time.Now().UTC(),
			})
			d.logger.Error("event delivery failed",
				"sink", sink.Name(),
				"event_type", event.EventType(),
				"error", err)
		}
	}
}

func (d *Dispatcher) deliver(sink Sink, event shared.Event) error {
	breaker := d.breakers[sink.Name()]
	return retry.Do(d.ctx, d.cfg.Retry, func(ctx context.Context) error {
		err := breaker.Execute(ctx, func(ctx context.Context) error {
			return sink.Deliver(ctx, event)
		})
		if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
			// No point hammering an open breaker.
			return retry.Permanent(err)
		}
		return err
	})
}

func (d *Dispatcher) pushDeadLetter(dl DeadLetter) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.deadLetter) >= d.cfg.DeadLetterSize && len(d.deadLetter) > 0 {
		d.deadLetter = d.deadLetter[1:]
	}
	d.deadLetter = append(d.deadLetter, dl)
}

// DeadLetters returns a copy of the dead letter buffer.
func (d *Dispatcher) DeadLetters() []DeadLetter {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]DeadLetter, len(d.deadLetter))
	copy(out, d.deadLetter)
	return out
}

// Close drains workers and shuts the dispatcher down.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	d.cancel()
	d.wg.Wait()
	return nil
}
