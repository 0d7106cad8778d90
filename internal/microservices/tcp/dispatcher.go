package tcp

import (
	"log/slog"
	"sync"
)

// HandlerFunc handles one decoded message. It runs on the session's receive
// goroutine, so it must not block; work that touches simulation objects is
// handed to the simulation work queue instead.
type HandlerFunc func(msg Message)

// Dispatcher routes messages to handlers by message type, scoped to one session.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	logger   *slog.Logger
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		handlers: make(map[string]HandlerFunc),
		logger:   logger,
	}
}

// Register binds a handler to a type, replacing any previous one.
func (d *Dispatcher) Register(msgType string, h HandlerFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[msgType] = h
}

// Reset drops every registration so a torn-down handler set never sees late messages.
func (d *Dispatcher) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers = make(map[string]HandlerFunc)
}

// Registered reports whether a handler exists for the type.
func (d *Dispatcher) Registered(msgType string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.handlers[msgType]
	return ok
}

// Len returns the number of registered types.
func (d *Dispatcher) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.handlers)
}

// Dispatch calls the handler for msg.Type. Unknown types are dropped, and a
// panicking handler is logged instead of taking the session down.
func (d *Dispatcher) Dispatch(msg Message) bool {
	d.mu.RLock()
	h, ok := d.handlers[msg.Type]
	d.mu.RUnlock()
	if !ok {
		d.logger.Debug("message_type_unhandled", "message_type", msg.Type)
		return false
	}

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("message_handler_panic",
				"message_type", msg.Type,
				"panic", r,
			)
		}
	}()
	h(msg)
	return true
}
