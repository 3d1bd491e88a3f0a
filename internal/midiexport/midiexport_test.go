package midiexport

import (
	"bytes"
	"testing"

	"github.com/harmonialab/harmonia/internal/model"
)

func TestWrite_ProducesStandardMIDIFile(t *testing.T) {
	rec := &model.Recording{
		ID:   "r1",
		Name: "Test Song",
		Notes: []model.NoteEvent{
			{Note: "C4", Time: 0},
			{Note: "E4", Time: 0.5},
			{Note: "G4", Time: 1.0},
		},
	}

	var buf bytes.Buffer
	if err := Write(&buf, rec); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}
	if buf.Len() == 0 {
		t.Fatal("Expected MIDI bytes, got none")
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("MThd")) {
		t.Errorf("Expected MThd header, got %q", buf.Bytes()[:4])
	}
	if !bytes.Contains(buf.Bytes(), []byte("MTrk")) {
		t.Error("Expected a track chunk")
	}
}

func TestWrite_RetriggeredNote(t *testing.T) {
	// The same pitch twice in a row forces an off/on pair at the same
	// offset; the writer must order the note-off first.
	rec := &model.Recording{
		ID:   "r2",
		Name: "Retrigger",
		Notes: []model.NoteEvent{
			{Note: "C4", Time: 0},
			{Note: "C4", Time: 0.25},
		},
	}
	var buf bytes.Buffer
	if err := Write(&buf, rec); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}
}

func TestWrite_EmptyRecording(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, &model.Recording{ID: "r3"}); err == nil {
		t.Error("Expected error for a recording without notes")
	}
}

func TestWrite_UnparsableNote(t *testing.T) {
	rec := &model.Recording{
		ID:    "r4",
		Notes: []model.NoteEvent{{Note: "H9", Time: 0}},
	}
	var buf bytes.Buffer
	if err := Write(&buf, rec); err == nil {
		t.Error("Expected error for an unparsable note name")
	}
}
