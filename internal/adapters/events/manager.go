package events

import (
	"log/slog"
	"sync"

	"github.com/eleven-am/tenure/internal/domain"
	"github.com/eleven-am/tenure/internal/ports"
	"github.com/google/uuid"
)

const channelBuffer = 16

// Manager fans leadership transitions out to callback handlers and channel
// subscribers. Publish is invoked from the engine's serialized transition
// path, so handlers observe events in transition order without duplicates.
type Manager struct {
	logger *slog.Logger

	mu       sync.RWMutex
	closed   bool
	handlers []handlerEntry
	channels map[string]chan domain.LeadershipChangedEvent
}

type handlerEntry struct {
	id      string
	handler ports.LeadershipHandler
}

func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		logger:   logger.With("component", "event-manager"),
		channels: make(map[string]chan domain.LeadershipChangedEvent),
	}
}

// Publish delivers the event to every callback handler synchronously and to
// every channel subscriber non-blockingly. A full channel drops the event for
// that subscriber; blocking here would give the election loop unbounded
// latency.
func (m *Manager) Publish(event domain.LeadershipChangedEvent) {
	m.mu.RLock()

	if m.closed {
		m.mu.RUnlock()
		return
	}

	// Channel sends stay under the read lock: cleanup and Close close
	// channels under the write lock, and a non-blocking send never calls
	// back into the manager.
	for id, ch := range m.channels {
		select {
		case ch <- event:
		default:
			m.logger.Warn("dropping leadership event for stalled subscriber",
				"subscription_id", id,
				"election", event.ElectionName,
				"is_leader", event.IsLeader)
		}
	}

	handlers := make([]handlerEntry, len(m.handlers))
	copy(handlers, m.handlers)
	m.mu.RUnlock()

	// Handlers run outside the lock so they may subscribe or unsubscribe
	// without deadlocking the election loop.
	for _, entry := range handlers {
		entry.handler(event)
	}
}

// OnLeadershipChanged registers a callback and returns its unsubscribe
// function. Unsubscribing is idempotent.
func (m *Manager) OnLeadershipChanged(handler ports.LeadershipHandler) func() {
	id := uuid.NewString()

	m.mu.Lock()
	m.handlers = append(m.handlers, handlerEntry{id: id, handler: handler})
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, entry := range m.handlers {
			if entry.id == id {
				m.handlers = append(m.handlers[:i], m.handlers[i+1:]...)
				return
			}
		}
	}
}

// SubscribeToChannel returns a buffered channel of transitions and its
// cleanup function. The channel is closed by cleanup or by Close.
func (m *Manager) SubscribeToChannel() (<-chan domain.LeadershipChangedEvent, func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, nil, domain.ErrElectionClosed
	}

	id := uuid.NewString()
	ch := make(chan domain.LeadershipChangedEvent, channelBuffer)
	m.channels[id] = ch

	cleanup := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if existing, ok := m.channels[id]; ok {
			delete(m.channels, id)
			close(existing)
		}
	}

	return ch, cleanup, nil
}

// Close drops all subscriptions and closes subscriber channels. Idempotent.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	m.closed = true
	m.handlers = nil

	for id, ch := range m.channels {
		delete(m.channels, id)
		close(ch)
	}
}
