package voice

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSamplerStartFailureKeepsRunning(t *testing.T) {
	s := NewSampler(func(facing Facing) (FrameSource, error) {
		return nil, errors.New("camera busy")
	})

	s.Start(FacingEnvironment)
	assert.False(t, s.Active())
	assert.Nil(t, s.Capture())
}

func TestSamplerFlipAlternatesFacing(t *testing.T) {
	var requested []Facing
	s := NewSampler(func(facing Facing) (FrameSource, error) {
		requested = append(requested, facing)
		return &staticSource{frame: []byte("frame")}, nil
	})

	s.Start(FacingEnvironment)
	s.Flip()
	s.Flip()
	s.Stop()

	require.Equal(t, []Facing{FacingEnvironment, FacingUser, FacingEnvironment}, requested)
}

func TestSamplerStopIsIdempotent(t *testing.T) {
	s := NewSampler(func(facing Facing) (FrameSource, error) {
		return &staticSource{frame: []byte("frame")}, nil
	})

	s.Start(FacingEnvironment)
	require.True(t, s.Active())
	s.Stop()
	s.Stop()
	assert.False(t, s.Active())
}

func TestLatestFrameBufferReturnsNewestFrame(t *testing.T) {
	b := NewLatestFrameBuffer()

	frame, err := b.CaptureFrame()
	require.NoError(t, err)
	assert.Nil(t, frame)

	b.Push([]byte("first"))
	b.Push([]byte("second"))

	frame, err = b.CaptureFrame()
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), frame)
}

func TestLatestFrameBufferIgnoresPushAfterClose(t *testing.T) {
	b := NewLatestFrameBuffer()
	b.Push([]byte("frame"))
	require.NoError(t, b.Close())

	b.Push([]byte("late"))
	frame, err := b.CaptureFrame()
	require.NoError(t, err)
	assert.Nil(t, frame)
}
