package tenure_test

import (
	"context"
	"testing"
	"time"

	"github.com/eleven-am/tenure"
	"github.com/stretchr/testify/require"
)

func scenarioOptions(participant string) tenure.Options {
	opts := tenure.DefaultOptions()
	opts.ParticipantID = participant
	opts.LeaseDuration = 600 * time.Millisecond
	opts.RenewalInterval = 200 * time.Millisecond
	opts.RetryInterval = 100 * time.Millisecond
	opts.OperationTimeout = 80 * time.Millisecond
	opts.AutoStart = false
	return opts
}

// Two participants contend on one shared store: A wins within one retry
// cycle, B's manual attempt reports contention, and B takes over after A
// stops and the lease lapses.
func TestTwoParticipantFailover(t *testing.T) {
	store := tenure.NewMemoryStore(nil)
	ctx := context.Background()

	optsA := scenarioOptions("participant-a")
	optsA.AutoStart = true
	optsA.ReleaseOnStop = false
	optsA.Metadata = map[string]string{"hostname": "host-a"}

	electionA, err := tenure.New("reconciler", store, optsA)
	require.NoError(t, err)
	defer electionA.Close()

	require.Eventually(t, electionA.IsLeader, time.Second, 5*time.Millisecond)

	electionB, err := tenure.New("reconciler", store, scenarioOptions("participant-b"))
	require.NoError(t, err)
	defer electionB.Close()

	acquired, err := electionB.TryAcquireLeadership(ctx)
	require.NoError(t, err)
	require.False(t, acquired)
	require.False(t, electionB.IsLeader())

	// B observes A through its accessor even while following.
	leader := electionB.CurrentLeader()
	require.NotNil(t, leader)
	require.Equal(t, "participant-a", leader.ParticipantID)
	require.Equal(t, "host-a", leader.Metadata["hostname"])

	// A stops without releasing; B must take over only once the lease has
	// expired on the store's clock.
	require.NoError(t, electionA.Stop(ctx))

	acquired, err = electionB.TryAcquireLeadership(ctx)
	require.NoError(t, err)
	require.False(t, acquired, "lease must stay held until it expires")

	require.Eventually(t, func() bool {
		acquired, err := electionB.TryAcquireLeadership(ctx)
		require.NoError(t, err)
		return acquired
	}, 3*time.Second, 50*time.Millisecond)

	require.True(t, electionB.IsLeader())
}

// Releasing on stop hands the election over without waiting out the lease.
func TestStopWithReleaseHandsOverQuickly(t *testing.T) {
	store := tenure.NewMemoryStore(nil)
	ctx := context.Background()

	optsA := scenarioOptions("participant-a")
	optsA.AutoStart = true

	electionA, err := tenure.New("reconciler", store, optsA)
	require.NoError(t, err)
	defer electionA.Close()

	require.Eventually(t, electionA.IsLeader, time.Second, 5*time.Millisecond)

	optsB := scenarioOptions("participant-b")
	optsB.AutoStart = true

	electionB, err := tenure.New("reconciler", store, optsB)
	require.NoError(t, err)
	defer electionB.Close()

	require.NoError(t, electionA.Stop(ctx))

	// Well under the lease duration: the explicit release freed the lease.
	require.Eventually(t, electionB.IsLeader, 500*time.Millisecond, 10*time.Millisecond)
}

func TestLeadershipEventsCarryBestEffortPayload(t *testing.T) {
	store := tenure.NewMemoryStore(nil)
	ctx := context.Background()

	election, err := tenure.New("reconciler", store, scenarioOptions("participant-a"))
	require.NoError(t, err)
	defer election.Close()

	var events []tenure.LeadershipChangedEvent
	election.OnLeadershipChanged(func(event tenure.LeadershipChangedEvent) {
		events = append(events, event)
	})

	acquired, err := election.TryAcquireLeadership(ctx)
	require.NoError(t, err)
	require.True(t, acquired)
	require.NoError(t, election.ReleaseLeadership(ctx))

	require.Len(t, events, 2)
	require.True(t, events[0].LeadershipGained)
	require.True(t, events[1].LeadershipLost)

	// Payload fields are best effort: consumers must not dereference them
	// unchecked and must fall back to the accessors.
	for _, event := range events {
		if event.CurrentLeader == nil {
			require.NotPanics(t, func() { _ = event.CurrentLeader.Valid(time.Now()) })
		}
	}
	require.Nil(t, election.CurrentLeader())
}

func TestNewRejectsBrokenTimings(t *testing.T) {
	store := tenure.NewMemoryStore(nil)

	opts := scenarioOptions("participant-a")
	opts.OperationTimeout = opts.RenewalInterval

	_, err := tenure.New("reconciler", store, opts)
	require.ErrorIs(t, err, tenure.ErrInvalidConfig)
}
