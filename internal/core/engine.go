package core

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/eleven-am/tenure/internal/domain"
	"github.com/eleven-am/tenure/internal/ports"
)

// Engine drives one participant's side of an election: acquire while
// following, renew while leading, step down on any renewal failure. All
// transitions for one engine are serialized by opMu, so manual operations and
// loop ticks never mutate state concurrently and events fire in transition
// order.
type Engine struct {
	electionName string
	opts         domain.Options
	store        ports.LeaseStore
	publisher    ports.EventPublisher
	logger       *slog.Logger

	// opMu serializes every state transition: loop ticks, manual acquire
	// and release, and the stop-time relinquish.
	opMu sync.Mutex

	stateMu  sync.RWMutex
	isLeader bool
	current  *domain.LeaseRecord

	lifecycleMu sync.Mutex
	running     bool
	closed      bool
	loopCancel  context.CancelFunc
	loopDone    chan struct{}
}

func NewEngine(electionName string, store ports.LeaseStore, publisher ports.EventPublisher, opts domain.Options, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		electionName: electionName,
		opts:         opts,
		store:        store,
		publisher:    publisher,
		logger: logger.With(
			"component", "election-engine",
			"election", electionName,
			"participant", opts.ParticipantID,
		),
	}
}

// Start launches the background loop. The loop runs until Stop, Close, or
// cancellation of ctx. Starting an already-running engine returns
// ErrAlreadyStarted; a stopped engine may be started again until Close.
func (e *Engine) Start(ctx context.Context) error {
	e.lifecycleMu.Lock()
	defer e.lifecycleMu.Unlock()

	if e.closed {
		return domain.ErrElectionClosed
	}
	if e.running {
		return domain.ErrAlreadyStarted
	}

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	e.loopCancel = cancel
	e.loopDone = done
	e.running = true

	go e.run(loopCtx, done)
	return nil
}

// Stop halts the loop, joins it, and best-effort releases a held lease.
// Stopping an engine that is not running is a no-op.
func (e *Engine) Stop(ctx context.Context) error {
	e.lifecycleMu.Lock()
	defer e.lifecycleMu.Unlock()

	if e.closed {
		return domain.ErrElectionClosed
	}
	e.stopLocked(ctx)
	return nil
}

// Close stops the engine permanently. Idempotent; the loop has fully
// terminated when Close returns.
func (e *Engine) Close() error {
	e.lifecycleMu.Lock()
	defer e.lifecycleMu.Unlock()

	if e.closed {
		return nil
	}
	e.stopLocked(context.Background())
	e.closed = true
	return nil
}

func (e *Engine) stopLocked(ctx context.Context) {
	if e.running {
		e.loopCancel()
		<-e.loopDone
		e.running = false
	}
	e.relinquish(ctx)
}

// TryAcquireLeadership performs one acquire attempt outside the loop's
// schedule. Contention is reported as false with a nil error.
func (e *Engine) TryAcquireLeadership(ctx context.Context) (bool, error) {
	if err := e.ensureOpen(); err != nil {
		return false, err
	}

	e.opMu.Lock()
	defer e.opMu.Unlock()
	return e.acquireOnce(ctx)
}

// ReleaseLeadership gives up a held lease and steps down. A no-op when not
// leading. A failed release still steps down locally; the stored lease then
// expires naturally.
func (e *Engine) ReleaseLeadership(ctx context.Context) error {
	if err := e.ensureOpen(); err != nil {
		return err
	}

	e.opMu.Lock()
	defer e.opMu.Unlock()

	if !e.IsLeader() {
		return nil
	}

	opCtx, cancel := context.WithTimeout(ctx, e.opts.OperationTimeout)
	defer cancel()

	if _, err := e.store.Release(opCtx, e.electionName, e.opts.ParticipantID); err != nil {
		wrapped := e.classify("release", err)
		e.logger.Warn("lease release failed, stepping down anyway", "error", err)
		e.stepDown(wrapped)
		return wrapped
	}

	e.stepDown(nil)
	return nil
}

// IsLeader reports the engine's cached view of its own leadership.
func (e *Engine) IsLeader() bool {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	return e.isLeader
}

// CurrentLeader returns the last observed lease record, which may be nil when
// nothing has been observed yet or the most recent store call failed.
func (e *Engine) CurrentLeader() *domain.LeaseRecord {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	return e.current.Clone()
}

func (e *Engine) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	// Loop exit, whether from Stop, Close, or cancellation of the Start
	// context, releases a held lease and emits the lost event exactly once.
	defer e.relinquish(context.Background())
	e.logger.Debug("election loop started")

	for {
		wait := e.tick(ctx)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			e.logger.Debug("election loop stopped")
			return
		case <-timer.C:
		}
	}
}

// tick performs one act-then-sleep iteration and returns the sleep interval:
// RenewalInterval while leading, RetryInterval while following or after any
// failure.
func (e *Engine) tick(ctx context.Context) time.Duration {
	e.opMu.Lock()
	defer e.opMu.Unlock()

	if ctx.Err() != nil {
		return e.opts.RetryInterval
	}

	if e.IsLeader() {
		if e.renewOnce(ctx) {
			return e.opts.RenewalInterval
		}
		return e.opts.RetryInterval
	}

	if acquired, _ := e.acquireOnce(ctx); acquired {
		return e.opts.RenewalInterval
	}
	return e.opts.RetryInterval
}

// acquireOnce runs a single bounded TryAcquire and applies the resulting
// transition. Callers must hold opMu.
func (e *Engine) acquireOnce(ctx context.Context) (bool, error) {
	opCtx, cancel := context.WithTimeout(ctx, e.opts.OperationTimeout)
	defer cancel()

	record, acquired, err := e.store.TryAcquire(opCtx, e.electionName, e.opts.ParticipantID, e.opts.LeaseDuration, e.opts.Metadata)
	if err != nil {
		wrapped := e.classify("try_acquire", err)
		if ctx.Err() != nil {
			// The surrounding call was cancelled: the engine is stopping or
			// the caller gave up. The shutdown path owns any transition.
			return false, wrapped
		}
		e.logger.Warn("lease acquire failed", "error", err)
		if e.IsLeader() {
			e.stepDown(wrapped)
		}
		return false, wrapped
	}

	if acquired {
		e.becomeLeader(record)
		return true, nil
	}

	e.observe(record)
	if e.IsLeader() {
		// We believed we led but the store disagrees; defer to the store.
		e.stepDown(nil)
	}
	return false, nil
}

// renewOnce runs a single bounded TryRenew. Any failure, whether the lease
// was overtaken, the call timed out, or the backend errored, steps the engine
// down: an inconclusive renewal must never be read as continued leadership.
// Callers must hold opMu.
func (e *Engine) renewOnce(ctx context.Context) bool {
	opCtx, cancel := context.WithTimeout(ctx, e.opts.OperationTimeout)
	defer cancel()

	record, err := e.store.TryRenew(opCtx, e.electionName, e.opts.ParticipantID, e.opts.LeaseDuration, e.opts.Metadata)
	if err == nil {
		e.refreshLease(record)
		return true
	}

	if domain.IsContention(err) {
		e.logger.Info("leadership lost to another participant")
		e.stepDown(nil)
		return false
	}

	if ctx.Err() != nil {
		// Loop shutdown cancelled the call mid-flight; the deferred
		// relinquish in run owns the step-down and release.
		return false
	}

	wrapped := e.classify("try_renew", err)
	e.logger.Warn("lease renewal failed, stepping down", "error", err)
	e.stepDown(wrapped)
	return false
}

func (e *Engine) becomeLeader(record *domain.LeaseRecord) {
	e.stateMu.Lock()
	was := e.isLeader
	previous := e.current
	e.isLeader = true
	e.current = record
	e.stateMu.Unlock()

	if was {
		return
	}

	e.logger.Info("leadership gained", "expires_at", record.ExpiresAt)
	e.publish(domain.LeadershipChangedEvent{
		IsLeader:         true,
		LeadershipGained: true,
		CurrentLeader:    record.Clone(),
		PreviousLeader:   previous.Clone(),
	})
}

func (e *Engine) refreshLease(record *domain.LeaseRecord) {
	e.stateMu.Lock()
	e.current = record
	e.stateMu.Unlock()
}

// observe caches another participant's record without emitting an event.
func (e *Engine) observe(record *domain.LeaseRecord) {
	if record == nil {
		return
	}
	e.stateMu.Lock()
	if !e.isLeader {
		e.current = record
	}
	e.stateMu.Unlock()
}

// stepDown clears leadership and emits exactly one lost event if the engine
// was leading. The new holder is deliberately not queried here; the event
// payload is best effort and blocking a transition on a store read would make
// event delivery unbounded.
func (e *Engine) stepDown(cause error) {
	e.stateMu.Lock()
	was := e.isLeader
	previous := e.current
	e.isLeader = false
	e.current = nil
	e.stateMu.Unlock()

	if !was {
		return
	}

	e.publish(domain.LeadershipChangedEvent{
		IsLeader:       false,
		LeadershipLost: true,
		PreviousLeader: previous.Clone(),
		Cause:          cause,
	})
}

// relinquish best-effort releases a held lease during stop. Failure is logged
// and not escalated; the lease expires naturally.
func (e *Engine) relinquish(ctx context.Context) {
	e.opMu.Lock()
	defer e.opMu.Unlock()

	if !e.IsLeader() {
		return
	}

	if e.opts.ReleaseOnStop {
		if ctx == nil {
			ctx = context.Background()
		}
		opCtx, cancel := context.WithTimeout(ctx, e.opts.OperationTimeout)
		defer cancel()

		if _, err := e.store.Release(opCtx, e.electionName, e.opts.ParticipantID); err != nil {
			e.logger.Warn("best-effort lease release failed, lease will expire naturally", "error", err)
		}
	}

	e.stepDown(nil)
}

func (e *Engine) publish(event domain.LeadershipChangedEvent) {
	event.ElectionName = e.electionName
	event.ParticipantID = e.opts.ParticipantID
	event.ObservedAt = time.Now().UTC()
	e.publisher.Publish(event)
}

func (e *Engine) ensureOpen() error {
	e.lifecycleMu.Lock()
	defer e.lifecycleMu.Unlock()
	if e.closed {
		return domain.ErrElectionClosed
	}
	return nil
}

func (e *Engine) classify(op string, err error) error {
	if domain.IsStoreError(err) {
		return err
	}
	return domain.NewStoreError("store", op, e.electionName, err)
}
