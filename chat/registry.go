package chat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"pkt.systems/inlined/schema"
)

// AsyncResultRegistry tracks pending results for non-streaming
// request/response exchanges. At most one pending slot exists per request
// id; completing, cancelling, or timing out always removes it, and a
// timeout additionally cancels the underlying operation through the hook
// supplied at registration.
type AsyncResultRegistry struct {
	defaultTimeout time.Duration

	mu      sync.Mutex
	pending map[schema.RequestID]*pendingSlot
}

type pendingSlot struct {
	result    chan any
	cancelled chan struct{}
	cancel    context.CancelFunc
	once      sync.Once
}

func (s *pendingSlot) abort() {
	s.once.Do(func() {
		close(s.cancelled)
		if s.cancel != nil {
			s.cancel()
		}
	})
}

// NewAsyncResultRegistry constructs a registry. A non-positive
// defaultTimeout falls back to schema.DefaultRequestTimeout.
func NewAsyncResultRegistry(defaultTimeout time.Duration) *AsyncResultRegistry {
	if defaultTimeout <= 0 {
		defaultTimeout = schema.DefaultRequestTimeout
	}
	return &AsyncResultRegistry{
		defaultTimeout: defaultTimeout,
		pending:        make(map[schema.RequestID]*pendingSlot),
	}
}

// Register creates a pending slot for the request id. Registering an id
// that already has a slot cancels and replaces the old slot, so only the
// latest Await can observe a result.
func (r *AsyncResultRegistry) Register(id schema.RequestID) {
	r.RegisterCancel(id, nil)
}

// RegisterCancel registers a slot with a cancellation hook invoked when the
// slot times out or is removed while still pending.
func (r *AsyncResultRegistry) RegisterCancel(id schema.RequestID, cancel context.CancelFunc) {
	slot := &pendingSlot{
		result:    make(chan any, 1),
		cancelled: make(chan struct{}),
		cancel:    cancel,
	}
	r.mu.Lock()
	prev := r.pending[id]
	r.pending[id] = slot
	r.mu.Unlock()
	if prev != nil {
		prev.abort()
	}
}

// Complete resolves the pending slot if one exists. Completing an unknown
// or already-resolved id is a no-op.
func (r *AsyncResultRegistry) Complete(id schema.RequestID, value any) {
	r.mu.Lock()
	slot := r.pending[id]
	r.mu.Unlock()
	if slot == nil {
		return
	}
	select {
	case slot.result <- value:
	default:
	}
}

// Await blocks until the request id resolves, is cancelled, or the timeout
// elapses. A non-positive timeout uses the registry default. On timeout the
// underlying operation is cancelled, the slot is removed, and the error
// wraps schema.ErrTimeout; an unknown id wraps schema.ErrNotFound. A
// successful Await consumes the slot.
func (r *AsyncResultRegistry) Await(id schema.RequestID, timeout time.Duration) (any, error) {
	r.mu.Lock()
	slot := r.pending[id]
	r.mu.Unlock()
	if slot == nil {
		return nil, fmt.Errorf("request %q: %w", id, schema.ErrNotFound)
	}
	if timeout <= 0 {
		timeout = r.defaultTimeout
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case value := <-slot.result:
		r.drop(id, slot)
		return value, nil
	case <-slot.cancelled:
		r.drop(id, slot)
		return nil, fmt.Errorf("request %q: %w", id, context.Canceled)
	case <-timer.C:
		slot.abort()
		r.drop(id, slot)
		return nil, fmt.Errorf("request %q: %w", id, schema.ErrTimeout)
	}
}

// Remove cancels the slot if still pending and always removes it.
func (r *AsyncResultRegistry) Remove(id schema.RequestID) {
	r.mu.Lock()
	slot := r.pending[id]
	delete(r.pending, id)
	r.mu.Unlock()
	if slot != nil {
		slot.abort()
	}
}

// drop removes the slot only if it is still the one registered for the id,
// so a concurrent re-register is not clobbered.
func (r *AsyncResultRegistry) drop(id schema.RequestID, slot *pendingSlot) {
	r.mu.Lock()
	if r.pending[id] == slot {
		delete(r.pending, id)
	}
	r.mu.Unlock()
}
