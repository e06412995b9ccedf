package domain

import "time"

// LeaseRecord is the serialized representation of a held lease as stored by a
// backend. Generation increments every time ownership changes, never on a
// plain renewal.
type LeaseRecord struct {
	ElectionName  string            `json:"election_name"`
	ParticipantID string            `json:"participant_id"`
	AcquiredAt    time.Time         `json:"acquired_at"`
	RenewedAt     time.Time         `json:"renewed_at"`
	ExpiresAt     time.Time         `json:"expires_at"`
	Generation    int64             `json:"generation"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// Valid reports whether the lease has not yet expired at the given instant.
func (r *LeaseRecord) Valid(now time.Time) bool {
	return r != nil && now.Before(r.ExpiresAt)
}

// HeldBy reports whether the lease names the given participant as holder.
func (r *LeaseRecord) HeldBy(participantID string) bool {
	return r != nil && r.ParticipantID != "" && r.ParticipantID == participantID
}

// Clone returns a deep copy so callers can hand records across goroutines
// without sharing the metadata map.
func (r *LeaseRecord) Clone() *LeaseRecord {
	if r == nil {
		return nil
	}
	cloned := *r
	cloned.Metadata = CloneMetadata(r.Metadata)
	return &cloned
}
