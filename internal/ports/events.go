package ports

import "github.com/eleven-am/tenure/internal/domain"

// LeadershipHandler receives one leadership transition. Handlers run
// synchronously on the engine's transition path, in registration order.
type LeadershipHandler func(event domain.LeadershipChangedEvent)

// EventPublisher distributes leadership transitions to subscribers. Publish
// is called from a single serialized path per election, so implementations
// may rely on events arriving in transition order.
type EventPublisher interface {
	Publish(event domain.LeadershipChangedEvent)

	// OnLeadershipChanged registers a callback and returns its unsubscribe
	// function. Callbacks are the ordered, lossless delivery path.
	OnLeadershipChanged(handler LeadershipHandler) (unsubscribe func())

	// SubscribeToChannel returns a buffered event channel and its cleanup
	// function. A stalled subscriber causes drops rather than blocking the
	// election loop.
	SubscribeToChannel() (<-chan domain.LeadershipChangedEvent, func(), error)

	Close()
}
