package indicator

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"cinemate/internal/adapter/gpio"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestSetRecordingDrivesAllLights(t *testing.T) {
	mock := gpio.NewMockProvider()
	tl := New(mock, []int{20, 21}, discard())

	tl.SetRecording(true)
	assert.True(t, mock.Output(20).Level())
	assert.True(t, mock.Output(21).Level())
	assert.True(t, tl.Recording())

	tl.SetRecording(false)
	assert.Equal(t, []bool{true, false}, mock.Output(20).Writes())
	assert.False(t, tl.Recording())
}

func TestClaimFailureSkipsPin(t *testing.T) {
	mock := gpio.NewMockProvider()
	mock.FailClaim(21)
	tl := New(mock, []int{20, 21}, discard())

	assert.Equal(t, []int{20}, tl.Pins())
	assert.NotPanics(t, func() { tl.SetRecording(true) })
	assert.Nil(t, mock.Output(21))
}

func TestCloseTurnsOffAndReleases(t *testing.T) {
	mock := gpio.NewMockProvider()
	tl := New(mock, []int{20}, discard())
	tl.SetRecording(true)
	out := mock.Output(20)

	tl.Close()
	assert.False(t, out.Level())
	assert.False(t, mock.Claimed(20))
	assert.Empty(t, tl.Pins())
}

func TestNoPins(t *testing.T) {
	tl := New(gpio.NewMockProvider(), nil, discard())
	assert.NotPanics(t, func() { tl.SetRecording(true) })
	assert.True(t, tl.Recording())
}
