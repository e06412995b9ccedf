// Package tenure provides lease-based leader election for Go applications.
//
// One process among N cooperating participants is elected the exclusive
// leader for a named election by holding a time-bounded lease in a shared
// backend. Backends are pluggable behind the LeaseStore interface: an
// in-process registry, Redis, a relational database via gorm, and an embedded
// badger database ship with the package, each enforcing the same contract
// with its store's native atomic primitive.
//
// Basic usage:
//
//	store := tenure.NewMemoryStore(nil)
//	opts := tenure.DefaultOptions()
//	opts.Metadata = map[string]string{"hostname": "worker-1"}
//
//	election, err := tenure.New("billing-reconciler", store, opts)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer election.Close()
//
//	election.OnLeadershipChanged(func(event tenure.LeadershipChangedEvent) {
//	    if event.LeadershipGained {
//	        // start leader-only work
//	    }
//	    if event.LeadershipLost {
//	        // stop leader-only work immediately
//	    }
//	})
//
// The engine steps down on any renewal failure, including timeouts: it never
// assumes continued leadership from an inconclusive call, trading a spurious
// step-down against the risk of two leaders. Event payloads are best effort;
// the IsLeader and CurrentLeader accessors are the authoritative snapshot.
package tenure

import (
	"github.com/eleven-am/tenure/internal/core"
	"github.com/eleven-am/tenure/internal/domain"
	"github.com/eleven-am/tenure/internal/ports"
)

// Election is one participant's handle on a named election: lifecycle,
// manual acquire/release, state accessors, and change notifications.
type Election = core.Election

// LeaseRecord is the immutable description of a held lease.
type LeaseRecord = domain.LeaseRecord

// LeadershipChangedEvent describes one leadership transition. The boolean
// flags are authoritative; the leader record fields may be nil.
type LeadershipChangedEvent = domain.LeadershipChangedEvent

// LeadershipHandler receives leadership transitions in order.
type LeadershipHandler = ports.LeadershipHandler

// LeaseStore is the contract lease backends implement.
type LeaseStore = ports.LeaseStore

// Options configures one participant; see DefaultOptions.
type Options = domain.Options

// StoreError wraps a backend failure with backend, operation and election
// context.
type StoreError = domain.StoreError

// New constructs an election bound to one store and one participant. Options
// are validated strictly: broken timing relationships are rejected, never
// clamped. With Options.AutoStart (the default) the background loop starts
// immediately.
func New(electionName string, store LeaseStore, opts Options) (*Election, error) {
	return core.NewElection(electionName, store, opts)
}

// DefaultOptions returns the baseline configuration with a random
// participant ID.
func DefaultOptions() Options {
	return domain.DefaultOptions()
}
