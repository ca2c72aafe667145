package broadcast

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sparc-rpg/rollcast/internal/dice"
)

// RollStore is the external persistence collaborator. Writes are
// best-effort: a failure is logged and swallowed, never surfaced to the
// caller whose roll already succeeded.
type RollStore interface {
	StoreRoll(ctx context.Context, res dice.RollResult) error
}

// storeTimeout bounds one best-effort history write.
const storeTimeout = 2 * time.Second

// Dispatcher is the fire-and-forget handoff between roll resolution and its
// side effects: ledger append, ETag recompute, and history persistence. It
// is a bounded channel consumed by one background worker, so backpressure is
// visible (a full queue drops and logs) instead of unbounded goroutine spam.
//
// Dispatcher implements the server Service contract: Start blocks until
// Stop is called and the queue has drained.
type Dispatcher struct {
	b      *Broadcaster
	store  RollStore // nil disables persistence
	logger *zap.Logger

	ch      chan dice.RollResult
	mu      sync.RWMutex
	closed  bool
	drained chan struct{}
}

// NewDispatcher creates a Dispatcher with the given queue capacity.
//
// Precondition: b and logger non-nil; capacity >= 1. store may be nil.
func NewDispatcher(b *Broadcaster, store RollStore, capacity int, logger *zap.Logger) *Dispatcher {
	if capacity < 1 {
		panic("broadcast: dispatcher capacity must be >= 1")
	}
	return &Dispatcher{
		b:       b,
		store:   store,
		logger:  logger,
		ch:      make(chan dice.RollResult, capacity),
		drained: make(chan struct{}),
	}
}

// Enqueue hands a resolved roll to the background worker without blocking.
// When the queue is full or the dispatcher is stopped the roll is dropped
// and logged; the roll itself has already succeeded and is not invalidated
// by delivery trouble.
func (d *Dispatcher) Enqueue(res dice.RollResult) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.logger.Warn("dispatch after shutdown, roll not delivered",
			zap.String("roll_id", res.ID),
			zap.String("session_id", res.SessionID),
		)
		return
	}
	select {
	case d.ch <- res:
	default:
		d.logger.Warn("dispatch queue full, roll not delivered",
			zap.String("roll_id", res.ID),
			zap.String("session_id", res.SessionID),
			zap.Int("capacity", cap(d.ch)),
		)
	}
}

// Start consumes the queue until Stop is called, then drains and returns.
func (d *Dispatcher) Start() error {
	defer close(d.drained)
	for res := range d.ch {
		d.deliver(res)
	}
	return nil
}

// Stop closes the queue and waits for the worker to drain it.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.ch)
	d.mu.Unlock()

	<-d.drained
}

// QueueDepth returns the number of undelivered rolls. Observability only.
func (d *Dispatcher) QueueDepth() int {
	return len(d.ch)
}

func (d *Dispatcher) deliver(res dice.RollResult) {
	d.b.Notify(res)

	if d.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := d.store.StoreRoll(ctx, res); err != nil {
		d.logger.Warn("roll history write failed",
			zap.String("roll_id", res.ID),
			zap.String("session_id", res.SessionID),
			zap.Error(err),
		)
	}
}
