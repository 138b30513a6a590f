// Package notice fans user-facing notices out to the page toast and to
// remote listeners.
package notice

import (
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/chamdiem/dom"
)

// Notice is one message shown to the user.
type Notice struct {
	Level   dom.Level `json:"level"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Hub delivers every notice to all attached notifiers and subscribers. A
// slow subscriber loses notices; it never blocks the others.
type Hub struct {
	mu        sync.RWMutex
	notifiers []dom.Notifier
	subs      map[int]chan Notice
	next      int
	logger    *slog.Logger
	now       func() time.Time
}

var _ dom.Notifier = (*Hub)(nil)

// NewHub creates a Hub delivering to notifiers.
func NewHub(logger *slog.Logger, notifiers ...dom.Notifier) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		notifiers: notifiers,
		subs:      make(map[int]chan Notice),
		logger:    logger,
		now:       time.Now,
	}
}

// Attach adds a notifier, e.g. the toast of a newly opened page.
func (h *Hub) Attach(n dom.Notifier) {
	h.mu.Lock()
	h.notifiers = append(h.notifiers, n)
	h.mu.Unlock()
}

// Subscribe returns a channel of future notices and its cancel function.
func (h *Hub) Subscribe(buffer int) (<-chan Notice, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Notice, buffer)
	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Notify implements dom.Notifier.
func (h *Hub) Notify(level dom.Level, message string) {
	n := Notice{Level: level, Message: message, At: h.now()}
	h.logger.Info("notice: "+message, "level", level)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, nt := range h.notifiers {
		nt.Notify(level, message)
	}
	for id, ch := range h.subs {
		select {
		case ch <- n:
		default:
			h.logger.Debug("notice: subscriber lagging, dropped", "subscriber", id)
		}
	}
}
