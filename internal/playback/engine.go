// Package playback replays recordings, either verbatim from the captured
// audio or re-synthesized from the stored note sequence, and drives the
// stepped piano roll. A single engine owns at most one active timeline;
// starting any playback cancels whatever was running before, including a
// claimed external timeline such as the piano roll.
package playback

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/wav"

	"github.com/harmonialab/harmonia/internal/model"
)

// NoteTrigger makes a note audible. The synthesizer implements it; its
// trigger path also feeds the recording session, which is how
// record-while-playing works without playback knowing about recording.
type NoteTrigger interface {
	Trigger(note string) error
}

// Output is the platform audio-out primitive for decoded streams. Play
// returns a stop function that silences the stream before it drains.
type Output interface {
	Play(streamer beep.Streamer, format beep.Format, onDone func()) (stop func(), err error)
}

// Engine schedules note triggers and routes decoded audio to the output.
// It owns the one active timeline: scheduled triggers, an in-flight decoded
// stream, or an external timeline registered through Claim.
type Engine struct {
	mu        sync.Mutex
	trigger   NoteTrigger
	out       Output
	timers    []*time.Timer
	playing   bool
	deadline  time.Time // end of the scheduled note timeline
	gen       int       // invalidates stale onDone callbacks
	stopAudio func()
	external  func()
}

func NewEngine(trigger NoteTrigger, out Output) *Engine {
	return &Engine{trigger: trigger, out: out}
}

// Playing reports whether decoded-audio playback is in flight or scheduled
// note triggers are still pending.
func (e *Engine) Playing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.playing || time.Now().Before(e.deadline)
}

// Claim registers an external timeline's cancel hook, cancelling whatever
// the engine was running first. The piano roll claims the engine before
// stepping; a later PlayNotes or PlayAudio fires the hook, so the two
// timelines can never run concurrently.
func (e *Engine) Claim(cancel func()) {
	e.mu.Lock()
	cleanup := e.cancelLocked()
	e.external = cancel
	e.mu.Unlock()
	if cleanup != nil {
		cleanup()
	}
}

// PlayNotes schedules every event relative to a single "now" snapshot, so
// relative timing survives scheduling overhead. Whatever timeline was
// active is cancelled first.
func (e *Engine) PlayNotes(notes []model.NoteEvent) {
	e.mu.Lock()
	cleanup := e.cancelLocked()

	start := time.Now()
	for _, ev := range notes {
		ev := ev
		d := time.Duration(ev.Time * float64(time.Second))
		if d < 0 {
			d = 0
		}
		if dl := start.Add(d); dl.After(e.deadline) {
			e.deadline = dl
		}
		e.timers = append(e.timers, time.AfterFunc(d, func() {
			if err := e.trigger.Trigger(ev.Note); err != nil {
				slog.Error("scheduled note trigger failed", "note", ev.Note, "error", err)
			}
		}))
	}
	e.mu.Unlock()

	if cleanup != nil {
		cleanup()
	}
	slog.Debug("note playback scheduled", "events", len(notes))
}

// PlayRecording replays a recording. The default is verbatim replay of the
// captured audio whenever a payload is present; recordings without audio
// fall back to re-synthesizing the note sequence.
func (e *Engine) PlayRecording(ctx context.Context, rec *model.Recording) error {
	if rec.Audio.IsZero() {
		if len(rec.Notes) == 0 {
			return fmt.Errorf("recording %s has neither audio nor notes", rec.ID)
		}
		slog.Debug("no audio payload, re-synthesizing notes", "recording", rec.ID)
		e.PlayNotes(rec.Notes)
		return nil
	}

	raw, err := rec.Audio.Normalize(ctx)
	if err != nil {
		return fmt.Errorf("play recording %s: %w", rec.ID, err)
	}
	return e.PlayAudio(raw)
}

// PlayAudio decodes raw WAV bytes and routes them to the output device.
func (e *Engine) PlayAudio(raw []byte) error {
	streamer, format, err := wav.Decode(newByteReader(raw))
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrDecode, err)
	}

	e.mu.Lock()
	cleanup := e.cancelLocked()
	e.playing = true
	g := e.gen
	e.mu.Unlock()
	if cleanup != nil {
		cleanup()
	}

	stop, err := e.out.Play(streamer, format, func() {
		e.mu.Lock()
		if e.gen == g {
			e.playing = false
		}
		e.mu.Unlock()
	})
	if err != nil {
		e.mu.Lock()
		if e.gen == g {
			e.playing = false
		}
		e.mu.Unlock()
		return fmt.Errorf("%w: %v", model.ErrDeviceUnavailable, err)
	}

	e.mu.Lock()
	if e.gen == g {
		e.stopAudio = stop
	}
	e.mu.Unlock()
	return nil
}

// Stop cancels the active timeline: scheduled triggers, the in-flight
// decoded stream, and any claimed external timeline.
func (e *Engine) Stop() {
	e.mu.Lock()
	cleanup := e.cancelLocked()
	e.mu.Unlock()
	if cleanup != nil {
		cleanup()
	}
}

// cancelLocked tears down the engine-owned timeline state and returns the
// cleanup for the parts that must run unlocked: silencing the decoded
// stream and firing the external cancel hook, both of which take locks of
// their own.
func (e *Engine) cancelLocked() func() {
	for _, t := range e.timers {
		t.Stop()
	}
	e.timers = nil
	e.deadline = time.Time{}
	e.playing = false
	e.gen++

	halt := e.stopAudio
	e.stopAudio = nil
	ext := e.external
	e.external = nil
	if halt == nil && ext == nil {
		return nil
	}
	return func() {
		if halt != nil {
			halt()
		}
		if ext != nil {
			ext()
		}
	}
}
