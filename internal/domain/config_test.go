package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultOptionsAreValid(t *testing.T) {
	opts := DefaultOptions()
	require.NoError(t, opts.Validate())
	require.NotEmpty(t, opts.ParticipantID)
	require.True(t, opts.AutoStart)
	require.True(t, opts.ReleaseOnStop)
}

func TestDefaultOptionsAssignUniqueParticipants(t *testing.T) {
	first := DefaultOptions()
	second := DefaultOptions()
	require.NotEqual(t, first.ParticipantID, second.ParticipantID)
}

func TestValidateRejectsRenewalNotBelowLease(t *testing.T) {
	opts := DefaultOptions()
	opts.RenewalInterval = opts.LeaseDuration
	err := opts.Validate()
	require.Error(t, err)
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestValidateRejectsOperationTimeoutNotBelowRenewal(t *testing.T) {
	opts := DefaultOptions()
	opts.OperationTimeout = opts.RenewalInterval
	err := opts.Validate()
	require.Error(t, err)
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestValidateRejectsNonPositiveDurations(t *testing.T) {
	cases := map[string]func(*Options){
		"lease":     func(o *Options) { o.LeaseDuration = 0 },
		"renewal":   func(o *Options) { o.RenewalInterval = -time.Second },
		"retry":     func(o *Options) { o.RetryInterval = 0 },
		"operation": func(o *Options) { o.OperationTimeout = -1 },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			opts := DefaultOptions()
			mutate(&opts)
			require.ErrorIs(t, opts.Validate(), ErrInvalidConfig)
		})
	}
}

func TestValidateDoesNotClamp(t *testing.T) {
	opts := DefaultOptions()
	opts.RenewalInterval = opts.LeaseDuration + time.Second
	_ = opts.Validate()
	require.Equal(t, DefaultOptions().LeaseDuration+time.Second, opts.RenewalInterval)
}
