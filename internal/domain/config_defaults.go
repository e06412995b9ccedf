package domain

import (
	"time"

	"github.com/google/uuid"
)

// DefaultOptions returns the baseline configuration: a 15s lease renewed
// every 5s, contested every 2.5s, with each backend call bounded to 2.5s.
func DefaultOptions() Options {
	return Options{
		ParticipantID:    uuid.NewString(),
		LeaseDuration:    15 * time.Second,
		RenewalInterval:  5 * time.Second,
		RetryInterval:    2500 * time.Millisecond,
		OperationTimeout: 2500 * time.Millisecond,
		AutoStart:        true,
		ReleaseOnStop:    true,
	}
}
