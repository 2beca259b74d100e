package hwline

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cinemate/internal/adapter/gpio"
	"cinemate/internal/domain"
)

func TestActive(t *testing.T) {
	tests := []struct {
		rawHigh, inverted, want bool
	}{
		{rawHigh: false, inverted: false, want: true},
		{rawHigh: true, inverted: false, want: false},
		{rawHigh: false, inverted: true, want: false},
		{rawHigh: true, inverted: true, want: true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Active(tt.rawHigh, tt.inverted), "raw=%v inverted=%v", tt.rawHigh, tt.inverted)
	}
}

func TestSampleEdges(t *testing.T) {
	m := gpio.NewMockProvider()
	l, err := Claim(m, Spec{Pin: 17, Name: "rec", Pull: domain.PullUp})
	require.NoError(t, err)
	assert.Equal(t, domain.StateUnknown, l.State())

	active, changed, err := l.Sample()
	require.NoError(t, err)
	assert.False(t, active)
	assert.True(t, changed, "first sample always reports a change")
	assert.Equal(t, domain.StateLow, l.State())

	_, changed, _ = l.Sample()
	assert.False(t, changed)

	m.SetRaw(17, false)
	active, changed, _ = l.Sample()
	assert.True(t, active)
	assert.True(t, changed)
	assert.Equal(t, domain.StateHigh, l.State())
}

func TestSampleInverted(t *testing.T) {
	m := gpio.NewMockProvider()
	l, err := Claim(m, Spec{Pin: 5, Name: "sync", Pull: domain.PullUp, Inverted: true})
	require.NoError(t, err)

	active, _, err := l.Sample()
	require.NoError(t, err)
	assert.True(t, active, "inverted line reads active at the idle high level")
}

func TestSampleReadFailureKeepsState(t *testing.T) {
	m := gpio.NewMockProvider()
	l, err := Claim(m, Spec{Pin: 6, Name: "iso_inc"})
	require.NoError(t, err)
	_, _, _ = l.Sample()

	m.FailRead(6, errors.New("EIO"))
	_, changed, err := l.Sample()
	assert.ErrorIs(t, err, domain.ErrTransientRead)
	assert.False(t, changed)
	assert.Equal(t, domain.StateLow, l.State())
}

func TestClaimFailure(t *testing.T) {
	m := gpio.NewMockProvider()
	m.FailClaim(26)
	_, err := Claim(m, Spec{Pin: 26, Name: "pot_lock"})
	assert.ErrorIs(t, err, domain.ErrClaimFailed)
	assert.ErrorContains(t, err, "pot_lock (pin 26)")
}
