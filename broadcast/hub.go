package broadcast

import (
	"fmt"
	"sync"
	"time"
)

// Sink receives human-readable dispatch activity lines. The engine depends
// only on this interface so its core logic stays testable without a live
// websocket transport.
type Sink interface {
	Emit(format string, args ...interface{})
}

// NopSink discards everything.
type NopSink struct{}

func (NopSink) Emit(string, ...interface{}) {}

// Hub fans emitted lines out to subscribers over buffered channels. Slow
// consumers are dropped rather than allowed to block the dispatcher.
type Hub struct {
	mu      sync.Mutex
	nextID  int
	clients map[int]chan string
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[int]chan string),
	}
}

// Emit formats the line, stamps it and delivers it to every subscriber.
func (h *Hub) Emit(format string, args ...interface{}) {
	line := fmt.Sprintf("[%s] %s", time.Now().Format("15:04:05"), fmt.Sprintf(format, args...))

	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.clients {
		select {
		case ch <- line:
		default:
			close(ch)
			delete(h.clients, id)
		}
	}
}

// Subscribe registers a new consumer and returns its channel plus an
// unsubscribe function.
func (h *Hub) Subscribe() (<-chan string, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	id := h.nextID
	ch := make(chan string, 64)
	h.clients[id] = ch

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if c, ok := h.clients[id]; ok {
			close(c)
			delete(h.clients, id)
		}
	}
	return ch, cancel
}
