package core

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/eleven-am/tenure/internal/adapters/events"
	"github.com/eleven-am/tenure/internal/domain"
	"github.com/eleven-am/tenure/internal/ports"
	"github.com/google/uuid"
)

// Election is the public facade: one engine bound to one lease store and one
// (election name, participant) pair, plus the subscription surface for
// leadership-change notifications.
type Election struct {
	engine    *Engine
	publisher *events.Manager
}

// NewElection validates the options and constructs the election. With
// AutoStart the background loop begins immediately; otherwise it waits for an
// explicit Start. Manual operations are available in both modes.
func NewElection(electionName string, store ports.LeaseStore, opts domain.Options) (*Election, error) {
	if electionName == "" {
		return nil, fmt.Errorf("%w: election name must not be empty", domain.ErrInvalidConfig)
	}
	if store == nil {
		return nil, fmt.Errorf("%w: lease store must not be nil", domain.ErrInvalidConfig)
	}
	if opts.ParticipantID == "" {
		opts.ParticipantID = uuid.NewString()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	publisher := events.NewManager(opts.Logger)
	engine := NewEngine(electionName, store, publisher, opts, opts.Logger)

	election := &Election{engine: engine, publisher: publisher}

	if opts.AutoStart {
		if err := engine.Start(context.Background()); err != nil {
			publisher.Close()
			return nil, err
		}
	}
	return election, nil
}

// Start launches the background election loop. It returns ErrAlreadyStarted
// when the loop is running and ErrElectionClosed after Close.
func (e *Election) Start(ctx context.Context) error {
	return e.engine.Start(ctx)
}

// Stop halts the loop and best-effort releases a held lease. Stopping twice
// is a no-op; a stopped election can be started again.
func (e *Election) Stop(ctx context.Context) error {
	return e.engine.Stop(ctx)
}

// TryAcquireLeadership makes one immediate acquire attempt. False with a nil
// error means another participant holds a valid lease.
func (e *Election) TryAcquireLeadership(ctx context.Context) (bool, error) {
	return e.engine.TryAcquireLeadership(ctx)
}

// ReleaseLeadership gives up a held lease. No-op when not leading.
func (e *Election) ReleaseLeadership(ctx context.Context) error {
	return e.engine.ReleaseLeadership(ctx)
}

// IsLeader reports whether this participant currently believes it leads.
func (e *Election) IsLeader() bool {
	return e.engine.IsLeader()
}

// CurrentLeader returns the last observed lease record. This accessor, not
// the event payload, is the reliable snapshot; it may still be nil before the
// first observation or right after a failure-induced step-down.
func (e *Election) CurrentLeader() *domain.LeaseRecord {
	return e.engine.CurrentLeader()
}

// OnLeadershipChanged registers a handler invoked synchronously, in
// registration order, for every transition of this participant. Handlers must
// not call back into the election. Returns the unsubscribe function.
func (e *Election) OnLeadershipChanged(handler ports.LeadershipHandler) func() {
	return e.publisher.OnLeadershipChanged(handler)
}

// SubscribeToChannel returns a buffered channel of transitions and its
// cleanup function. Slow consumers drop events rather than stalling the loop.
func (e *Election) SubscribeToChannel() (<-chan domain.LeadershipChangedEvent, func(), error) {
	return e.publisher.SubscribeToChannel()
}

// Close stops the election permanently, joins the loop, releases a held
// lease best-effort, and tears down subscriptions. Idempotent. Manual
// operations after Close fail with ErrElectionClosed.
func (e *Election) Close() error {
	err := e.engine.Close()
	e.publisher.Close()
	return err
}
