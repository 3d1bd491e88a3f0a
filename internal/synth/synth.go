// Package synth renders notes with simple oscillator voices. Trigger is the
// single entry point for making a note audible: manual key presses, note
// playback and piano-roll steps all go through it, and it unconditionally
// reports the note to the attached sink so that an active recording session
// never misses an event.
package synth

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"

	"github.com/harmonialab/harmonia/internal/config"
	"github.com/harmonialab/harmonia/internal/note"
)

// NoteSink receives every triggered note. The recording session manager
// implements it; appending only happens while a session is capturing.
type NoteSink interface {
	RecordNote(note string)
}

// Oscillator produces one sample for a phase in [0, 2π).
type Oscillator func(phase float64) float64

func oscSine(p float64) float64 { return math.Sin(p) }

func oscSquare(p float64) float64 {
	if math.Sin(p) >= 0 {
		return 1
	}
	return -1
}

func oscSaw(p float64) float64 {
	return 2*(p/(2*math.Pi)) - 1
}

func oscTriangle(p float64) float64 {
	return 2*math.Abs(2*(p/(2*math.Pi))-1) - 1
}

func oscillatorFor(waveform string) Oscillator {
	switch strings.ToLower(waveform) {
	case "square":
		return oscSquare
	case "saw":
		return oscSaw
	case "triangle":
		return oscTriangle
	default:
		return oscSine
	}
}

// Synthesizer is a polyphonic instrument mixing voice streamers into one
// output bus.
type Synthesizer struct {
	mu         sync.Mutex
	mixer      *beep.Mixer
	osc        Oscillator
	sampleRate int
	gain       float64
	release    time.Duration
	octave     int
	sink       NoteSink
}

func New(cfg *config.Config) *Synthesizer {
	return &Synthesizer{
		mixer:      &beep.Mixer{},
		osc:        oscillatorFor(cfg.Synth.Waveform),
		sampleRate: cfg.Audio.SampleRate,
		gain:       math.Pow(10, cfg.Synth.VolumeDB/20),
		release:    time.Duration(cfg.Synth.ReleaseMs) * time.Millisecond,
		octave:     cfg.Synth.Octave,
	}
}

// SetSink attaches the note sink. Nil detaches it.
func (s *Synthesizer) SetSink(sink NoteSink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sink = sink
}

// Output returns the synthesizer's mix bus.
func (s *Synthesizer) Output() beep.Streamer {
	return s
}

// Stream implements beep.Streamer over the internal mixer. The mixer keeps
// producing silence when no voice is active.
func (s *Synthesizer) Stream(out [][2]float64) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mixer.Stream(out)
}

func (s *Synthesizer) Err() error { return nil }

// Trigger starts a voice for the named note and reports the note to the
// sink. A bare pitch class resolves against the configured octave.
func (s *Synthesizer) Trigger(name string) error {
	class, octave, err := note.ParseDefault(name, s.octave)
	if err != nil {
		return fmt.Errorf("trigger note: %w", err)
	}
	resolved := fmt.Sprintf("%s%d", class, octave)
	freq, err := note.Frequency(resolved)
	if err != nil {
		return fmt.Errorf("trigger note: %w", err)
	}

	s.mu.Lock()
	v := &voice{
		osc:        s.osc,
		freq:       freq,
		gain:       s.gain,
		sampleRate: float64(s.sampleRate),
		remaining:  int(float64(s.sampleRate) * s.release.Seconds()),
	}
	s.mixer.Add(v)
	sink := s.sink
	s.mu.Unlock()

	if sink != nil {
		sink.RecordNote(resolved)
	}
	return nil
}

// voice is a single note streamer with a short attack and a linear release
// spread over its lifetime.
type voice struct {
	osc        Oscillator
	freq       float64
	gain       float64
	sampleRate float64
	phase      float64
	env        float64
	remaining  int
	total      int
}

func (v *voice) Stream(out [][2]float64) (int, bool) {
	if v.total == 0 {
		v.total = v.remaining
	}
	if v.remaining <= 0 {
		return 0, false
	}
	step := v.freq * 2 * math.Pi / v.sampleRate
	n := 0
	for i := range out {
		if v.remaining <= 0 {
			return n, false
		}
		if v.env < 1 {
			v.env += 0.01
			if v.env > 1 {
				v.env = 1
			}
		}
		fade := float64(v.remaining) / float64(v.total)
		sample := v.osc(v.phase) * v.gain * v.env * fade
		out[i] = [2]float64{sample, sample}
		v.phase += step
		if v.phase >= 2*math.Pi {
			v.phase -= 2 * math.Pi
		}
		v.remaining--
		n++
	}
	return n, true
}

func (v *voice) Err() error { return nil }
