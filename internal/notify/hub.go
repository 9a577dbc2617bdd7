// Package notify is a small synchronous publish/subscribe hub used to announce
// session and favorites changes to whoever holds a reference to the store.
package notify

import (
	"runtime/debug"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type subscription[T any] struct {
	id string
	fn func(T)
}

// Hub delivers values of type T to its subscribers in registration order.
// The zero value is ready to use.
type Hub[T any] struct {
	mu     sync.RWMutex
	subs   []subscription[T]
	Logger *zap.Logger
}

// Subscribe registers fn and returns a function that removes it. Calling the
// returned function more than once is harmless.
func (h *Hub[T]) Subscribe(fn func(T)) (cancel func()) {
	id := uuid.NewString()

	h.mu.Lock()
	h.subs = append(h.subs, subscription[T]{id: id, fn: fn})
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { h.unsubscribe(id) })
	}
}

func (h *Hub[T]) unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, s := range h.subs {
		if s.id == id {
			h.subs = append(h.subs[:i:i], h.subs[i+1:]...)
			return
		}
	}
}

// Publish calls every subscriber with v. A panicking subscriber is logged
// and does not stop delivery to the rest.
func (h *Hub[T]) Publish(v T) {
	h.mu.RLock()
	subs := make([]subscription[T], len(h.subs))
	copy(subs, h.subs)
	h.mu.RUnlock()

	for _, s := range subs {
		h.safeCall(s, v)
	}
}

// Len returns the number of active subscriptions.
func (h *Hub[T]) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub[T]) safeCall(s subscription[T], v T) {
	defer func() {
		if r := recover(); r != nil {
			logger := h.Logger
			if logger == nil {
				logger = zap.NewNop()
			}
			logger.Error("subscriber panicked",
				zap.String("subscription", s.id),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
		}
	}()
	s.fn(v)
}
