package domain

import (
	"fmt"
	"log/slog"
	"time"
)

// Options configures one election participant. Construct with
// DefaultOptions and override fields before passing to the engine; Validate
// rejects broken timing relationships instead of clamping them, because a
// clamped configuration would hide a lease that is guaranteed to expire
// during normal operation.
type Options struct {
	// ParticipantID identifies this participant in the backend. Opaque to
	// the engine. Defaults to a random UUID when empty.
	ParticipantID string

	// LeaseDuration is the TTL written on every acquire and renew.
	LeaseDuration time.Duration

	// RenewalInterval is the pause between renew attempts while leading.
	// Must be strictly less than LeaseDuration.
	RenewalInterval time.Duration

	// RetryInterval is the pause between acquire attempts while following.
	RetryInterval time.Duration

	// OperationTimeout bounds every single backend call. Must be strictly
	// less than RenewalInterval so a hung backend cannot eat the whole
	// renewal window.
	OperationTimeout time.Duration

	// AutoStart starts the background loop at construction. When false the
	// loop starts on an explicit Start call; manual single-shot operations
	// are available in both modes.
	AutoStart bool

	// ReleaseOnStop releases a held lease best-effort when the engine stops
	// while leading. Failure to release is not escalated; the lease expires
	// naturally.
	ReleaseOnStop bool

	// Metadata is written alongside the lease on every acquire and renew.
	// Opaque annotations such as hostname or version.
	Metadata map[string]string

	// Logger receives engine and backend logs. Nil means slog.Default().
	Logger *slog.Logger
}

// Validate checks the timing invariants. It returns ErrInvalidConfig-wrapped
// errors and never mutates the options.
func (o *Options) Validate() error {
	if o.LeaseDuration <= 0 {
		return fmt.Errorf("%w: lease duration must be positive, got %s", ErrInvalidConfig, o.LeaseDuration)
	}
	if o.RenewalInterval <= 0 {
		return fmt.Errorf("%w: renewal interval must be positive, got %s", ErrInvalidConfig, o.RenewalInterval)
	}
	if o.RetryInterval <= 0 {
		return fmt.Errorf("%w: retry interval must be positive, got %s", ErrInvalidConfig, o.RetryInterval)
	}
	if o.OperationTimeout <= 0 {
		return fmt.Errorf("%w: operation timeout must be positive, got %s", ErrInvalidConfig, o.OperationTimeout)
	}
	if o.RenewalInterval >= o.LeaseDuration {
		return fmt.Errorf("%w: renewal interval %s must be less than lease duration %s",
			ErrInvalidConfig, o.RenewalInterval, o.LeaseDuration)
	}
	if o.OperationTimeout >= o.RenewalInterval {
		return fmt.Errorf("%w: operation timeout %s must be less than renewal interval %s",
			ErrInvalidConfig, o.OperationTimeout, o.RenewalInterval)
	}
	return nil
}
