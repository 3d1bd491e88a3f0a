// Package midiexport writes a recording's note sequence as a standard MIDI
// file, so compositions can be edited in external tools.
package midiexport

import (
	"fmt"
	"io"
	"sort"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/harmonialab/harmonia/internal/model"
	"github.com/harmonialab/harmonia/internal/note"
)

const (
	ticksPerQuarter = 480
	exportTempo     = 120.0
	noteLength      = 0.25 // seconds each exported note sounds
	velocity        = 100
)

type timedMessage struct {
	at  float64 // seconds
	off bool
	key uint8
}

// Write renders the recording's notes as a single-track SMF. Each note
// event becomes a fixed-length note-on/note-off pair at its captured
// offset.
func Write(w io.Writer, rec *model.Recording) error {
	if len(rec.Notes) == 0 {
		return fmt.Errorf("recording %s has no notes to export", rec.ID)
	}

	var msgs []timedMessage
	for _, ev := range rec.Notes {
		key, err := note.MIDINumber(ev.Note)
		if err != nil {
			return fmt.Errorf("export %s: %w", rec.ID, err)
		}
		msgs = append(msgs,
			timedMessage{at: ev.Time, key: key},
			timedMessage{at: ev.Time + noteLength, off: true, key: key},
		)
	}
	sort.Slice(msgs, func(i, j int) bool {
		if msgs[i].at != msgs[j].at {
			return msgs[i].at < msgs[j].at
		}
		// Note-off first at equal offsets, so retriggers survive.
		return msgs[i].off && !msgs[j].off
	})

	s := smf.New()
	s.TimeFormat = smf.MetricTicks(ticksPerQuarter)

	var tr smf.Track
	tr.Add(0, smf.MetaTrackSequenceName(rec.Name))
	tr.Add(0, smf.MetaTempo(exportTempo))

	ticksPerSecond := exportTempo / 60 * ticksPerQuarter
	lastTicks := 0
	for _, m := range msgs {
		abs := int(m.at * ticksPerSecond)
		delta := uint32(abs - lastTicks)
		lastTicks = abs
		if m.off {
			tr.Add(delta, midi.NoteOff(0, m.key))
		} else {
			tr.Add(delta, midi.NoteOn(0, m.key, velocity))
		}
	}
	tr.Close(0)

	if err := s.Add(tr); err != nil {
		return fmt.Errorf("export %s: %w", rec.ID, err)
	}
	if _, err := s.WriteTo(w); err != nil {
		return fmt.Errorf("export %s: %w", rec.ID, err)
	}
	return nil
}
