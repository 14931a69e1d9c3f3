// Package audio plays background music through a beep mixer.
package audio

import (
	"math"
	"strconv"

	"github.com/gopxl/beep"
)

// Handle refers to a playable clip.
type Handle interface {
	Valid() bool
	Name() string
}

// Track is a looping tone, enough to stand in for level music.
type Track struct {
	name string
	hz   float64
	gain float64
}

func NewToneTrack(name string, hz float64) *Track {
	return &Track{name: name, hz: hz, gain: 0.2}
}

// ParseTrack builds a tone track from a frequency string such as "440".
// An empty string yields nil.
func ParseTrack(name, hz string) (*Track, error) {
	if hz == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(hz, 64)
	if err != nil {
		return nil, err
	}
	return NewToneTrack(name, f), nil
}

func (t *Track) Valid() bool {
	return t != nil && t.name != "" && t.hz > 0
}

func (t *Track) Name() string {
	if t == nil {
		return ""
	}
	return t.name
}

func (t *Track) Frequency() float64 { return t.hz }

func (t *Track) streamer(sr beep.SampleRate) beep.Streamer {
	return &tone{step: t.hz / float64(sr), gain: t.gain}
}

// tone is an endless sine oscillator.
type tone struct {
	step  float64
	phase float64
	gain  float64
}

func (o *tone) Stream(samples [][2]float64) (n int, ok bool) {
	for i := range samples {
		v := o.gain * math.Sin(2*math.Pi*o.phase)
		samples[i][0] = v
		samples[i][1] = v
		o.phase += o.step
		o.phase -= math.Floor(o.phase)
	}
	return len(samples), true
}

func (o *tone) Err() error { return nil }
