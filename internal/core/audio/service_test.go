package audio

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/levelhost/internal/core/services"
)

func newAudio(t *testing.T, cfg *Config) *Service {
	t.Helper()
	s := NewService(services.Env{Name: "audio"})
	require.NoError(t, s.Configure(cfg))
	require.NoError(t, s.Start(context.Background(), nil))
	return s
}

func loudest(buf [][2]float64) float64 {
	var peak float64
	for _, frame := range buf {
		if frame[0] > peak {
			peak = frame[0]
		}
	}
	return peak
}

func TestTrack_Valid(t *testing.T) {
	var nilTrack *Track
	assert.False(t, nilTrack.Valid())
	assert.False(t, NewToneTrack("", 440).Valid())
	assert.False(t, NewToneTrack("x", 0).Valid())
	assert.True(t, NewToneTrack("x", 440).Valid())

	tr, err := ParseTrack("theme", "220.5")
	require.NoError(t, err)
	assert.Equal(t, 220.5, tr.Frequency())

	tr, err = ParseTrack("theme", "")
	require.NoError(t, err)
	assert.Nil(t, tr)

	_, err = ParseTrack("theme", "loud")
	assert.Error(t, err)
}

func TestService_PlayAndStop(t *testing.T) {
	s := newAudio(t, DefaultConfig())
	track := NewToneTrack("theme", 440)

	require.NoError(t, s.PlayMusic(track))
	require.NoError(t, s.PlayMusic(track))
	assert.True(t, s.Playing(track))
	assert.Equal(t, 1, s.Active())
	assert.Greater(t, loudest(s.Render(10*time.Millisecond)), 0.0)

	s.StopClip(track)
	s.StopClip(track)
	assert.False(t, s.Playing(track))

	assert.Equal(t, 0.0, loudest(s.Render(10*time.Millisecond)))
	assert.Equal(t, 0, s.Active())
}

func TestService_InvalidHandle(t *testing.T) {
	s := newAudio(t, DefaultConfig())
	assert.ErrorIs(t, s.PlayMusic(nil), ErrInvalidHandle)
	assert.ErrorIs(t, s.PlayMusic(NewToneTrack("bad", -1)), ErrInvalidHandle)
	assert.NotPanics(t, func() { s.StopClip(nil) })
}

func TestService_Muted(t *testing.T) {
	s := newAudio(t, &Config{SampleRate: 22050, Muted: true})
	track := NewToneTrack("theme", 440)

	require.NoError(t, s.PlayMusic(track))
	assert.True(t, s.Playing(track))
	assert.Len(t, s.Render(100*time.Millisecond), 2205)
	assert.Equal(t, 0.0, loudest(s.Render(10*time.Millisecond)))
}

func TestService_StopSilencesEverything(t *testing.T) {
	s := newAudio(t, DefaultConfig())
	require.NoError(t, s.PlayMusic(NewToneTrack("a", 300)))
	require.NoError(t, s.PlayMusic(NewToneTrack("b", 500)))

	require.NoError(t, s.Stop(context.Background(), nil))
	require.NoError(t, s.Stop(context.Background(), nil))
	assert.Equal(t, 0, s.Active())
	assert.False(t, s.Playing(NewToneTrack("a", 300)))
}
