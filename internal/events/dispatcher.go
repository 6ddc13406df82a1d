package events

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// ErrClosed is returned by Publish after Close.
var ErrClosed = errors.New("events: dispatcher closed")

// EventHandler handles a published event.
type EventHandler func(context.Context, Event) error

// Dispatcher interface allows event publication/subscription.
type Dispatcher interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(eventType EventType, handler EventHandler)
	// Start begins delivery and returns once consumers are running.
	Start(ctx context.Context) error
	// Close stops delivery and waits for in-flight handlers.
	Close() error
}

// handlerSet is the subscription table shared by the transports.
type handlerSet struct {
	mu        sync.RWMutex
	listeners map[EventType][]EventHandler
}

// Subscribe registers a handler for the given event type.
func (h *handlerSet) Subscribe(eventType EventType, handler EventHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.listeners == nil {
		h.listeners = make(map[EventType][]EventHandler)
	}
	h.listeners[eventType] = append(h.listeners[eventType], handler)
}

func (h *handlerSet) handlersFor(eventType EventType) []EventHandler {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]EventHandler{}, h.listeners[eventType]...)
}

// inMemoryDispatcher hands each event to its handlers on a goroutine,
// bounded by a semaphore.
type inMemoryDispatcher struct {
	handlerSet
	logger *zap.Logger

	closeMu sync.RWMutex
	closed  bool

	sem      chan struct{}
	inflight sync.WaitGroup
}

// NewInMemoryDispatcher creates a dispatcher running at most concurrency
// handlers at once.
func NewInMemoryDispatcher(logger *zap.Logger, concurrency int) Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	return &inMemoryDispatcher{
		logger: logger,
		sem:    make(chan struct{}, concurrency),
	}
}

// Publish schedules handlers for the event and returns without waiting.
// Handlers run detached from ctx's cancellation.
func (d *inMemoryDispatcher) Publish(ctx context.Context, event Event) error {
	d.closeMu.RLock()
	if d.closed {
		d.closeMu.RUnlock()
		return ErrClosed
	}
	handlers := d.handlersFor(event.Name)
	d.inflight.Add(1)
	d.closeMu.RUnlock()

	go func() {
		defer d.inflight.Done()
		d.sem <- struct{}{}
		defer func() { <-d.sem }()
		deliver(context.WithoutCancel(ctx), d.logger, event, handlers)
	}()
	return nil
}

func (d *inMemoryDispatcher) Start(context.Context) error { return nil }

func (d *inMemoryDispatcher) Close() error {
	d.closeMu.Lock()
	d.closed = true
	d.closeMu.Unlock()
	d.inflight.Wait()
	return nil
}

// deliver runs every handler, logging failures instead of stopping.
func deliver(ctx context.Context, logger *zap.Logger, event Event, handlers []EventHandler) {
	if len(handlers) == 0 {
		logger.Debug("no handlers for event", zap.String("event", string(event.Name)), zap.String("event_id", event.ID))
		return
	}
	for _, handler := range handlers {
		if err := handler(ctx, event); err != nil {
			logger.Error("event handler failed",
				zap.String("event", string(event.Name)),
				zap.String("event_id", event.ID),
				zap.Error(err))
		}
	}
}
