package domain

import "time"

// LeadershipChangedEvent describes one leadership transition observed by a
// single participant. The boolean flags are authoritative; CurrentLeader and
// PreviousLeader are best effort and may be nil even when a transition fired,
// because the record describing the new holder can be unobtainable at the
// exact moment of a failure-induced step-down. Consumers needing a reliable
// snapshot must re-query the election's CurrentLeader accessor.
type LeadershipChangedEvent struct {
	ElectionName     string       `json:"election_name"`
	ParticipantID    string       `json:"participant_id"`
	IsLeader         bool         `json:"is_leader"`
	LeadershipGained bool         `json:"leadership_gained"`
	LeadershipLost   bool         `json:"leadership_lost"`
	CurrentLeader    *LeaseRecord `json:"current_leader,omitempty"`
	PreviousLeader   *LeaseRecord `json:"previous_leader,omitempty"`
	ObservedAt       time.Time    `json:"observed_at"`

	// Cause is nil for clean transitions (acquired, released, lost to a
	// peer) and carries the classified backend error when a transient
	// failure forced the step-down.
	Cause error `json:"-"`
}
