package playback

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gopxl/beep/v2"

	"github.com/harmonialab/harmonia/internal/audio"
	"github.com/harmonialab/harmonia/internal/model"
)

func encodeSilence(t *testing.T, samples int) []byte {
	t.Helper()
	raw, err := audio.EncodeWAV(make([]float64, samples), 44100)
	if err != nil {
		t.Fatal(err)
	}
	return raw
}

type fakeTrigger struct {
	mu    sync.Mutex
	notes []string
	times []time.Time
}

func (f *fakeTrigger) Trigger(note string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notes = append(f.notes, note)
	f.times = append(f.times, time.Now())
	return nil
}

func (f *fakeTrigger) Notes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.notes...)
}

type fakeOutput struct{}

func (f *fakeOutput) Play(streamer beep.Streamer, format beep.Format, onDone func()) (func(), error) {
	if onDone != nil {
		onDone()
	}
	return func() {}, nil
}

// heldOutput keeps streams "in flight" until stopped, recording stop calls.
type heldOutput struct {
	mu      sync.Mutex
	stopped int
}

func (o *heldOutput) Play(streamer beep.Streamer, format beep.Format, onDone func()) (func(), error) {
	return func() {
		o.mu.Lock()
		o.stopped++
		o.mu.Unlock()
	}, nil
}

func (o *heldOutput) Stopped() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stopped
}

func newTestEngine() (*Engine, *fakeTrigger) {
	ft := &fakeTrigger{}
	return NewEngine(ft, &fakeOutput{}), ft
}

func TestPlayNotes_RelativeTiming(t *testing.T) {
	e, ft := newTestEngine()

	e.PlayNotes([]model.NoteEvent{
		{Note: "C4", Time: 0},
		{Note: "E4", Time: 0.05},
		{Note: "G4", Time: 0.10},
	})
	if !e.Playing() {
		t.Error("Expected Playing while triggers are scheduled")
	}

	time.Sleep(250 * time.Millisecond)
	got := ft.Notes()
	if len(got) != 3 {
		t.Fatalf("Expected 3 triggered notes, got %v", got)
	}
	for i, want := range []string{"C4", "E4", "G4"} {
		if got[i] != want {
			t.Errorf("Trigger %d = %q, want %q", i, got[i], want)
		}
	}
	if e.Playing() {
		t.Error("Expected Playing to clear after the last scheduled trigger")
	}
}

func TestPlayNotes_CancelsPreviousSchedule(t *testing.T) {
	e, ft := newTestEngine()

	e.PlayNotes([]model.NoteEvent{{Note: "A4", Time: 0.15}})
	e.PlayNotes([]model.NoteEvent{{Note: "D4", Time: 0.02}})

	time.Sleep(300 * time.Millisecond)
	got := ft.Notes()
	if len(got) != 1 || got[0] != "D4" {
		t.Errorf("Expected the first schedule cancelled, got %v", got)
	}
}

func TestStop_CancelsScheduledTriggers(t *testing.T) {
	e, ft := newTestEngine()

	e.PlayNotes([]model.NoteEvent{{Note: "A4", Time: 0.1}})
	e.Stop()
	if e.Playing() {
		t.Error("Expected not Playing after Stop")
	}

	time.Sleep(200 * time.Millisecond)
	if got := ft.Notes(); len(got) != 0 {
		t.Errorf("Expected no triggers after Stop, got %v", got)
	}
}

func TestPlayNotes_NegativeOffsetsFireImmediately(t *testing.T) {
	e, ft := newTestEngine()
	e.PlayNotes([]model.NoteEvent{{Note: "C4", Time: -1}})
	time.Sleep(100 * time.Millisecond)
	if got := ft.Notes(); len(got) != 1 {
		t.Errorf("Expected one trigger, got %v", got)
	}
}

func TestPlayNotes_HaltsActiveRoll(t *testing.T) {
	e, ft := newTestEngine()
	r := NewRoll(e, []string{"C4"}, 20, 600)
	for col := 0; col < 20; col++ {
		if err := r.SetCell(0, col, true); err != nil {
			t.Fatal(err)
		}
	}

	r.Play()
	time.Sleep(250 * time.Millisecond)
	if r.Status() != RollPlaying {
		t.Fatalf("Expected the roll mid-playback, got %s", r.Status())
	}

	// Starting a note timeline claims the engine and must end the roll.
	e.PlayNotes([]model.NoteEvent{{Note: "A4", Time: 0}})
	time.Sleep(50 * time.Millisecond)
	if r.Status() != RollStopped {
		t.Fatalf("Expected roll STOPPED after note playback started, got %s", r.Status())
	}
	if r.Column() != 0 {
		t.Errorf("Expected halted roll reset to column 0, got %d", r.Column())
	}

	before := len(ft.Notes())
	time.Sleep(300 * time.Millisecond)
	if after := len(ft.Notes()); after != before {
		t.Errorf("Roll kept triggering after note playback started: %d -> %d", before, after)
	}
}

func TestPlayAudio_StoppableStream(t *testing.T) {
	ft := &fakeTrigger{}
	out := &heldOutput{}
	e := NewEngine(ft, out)

	raw := encodeSilence(t, 256)
	if err := e.PlayAudio(raw); err != nil {
		t.Fatalf("PlayAudio returned error: %v", err)
	}
	if !e.Playing() {
		t.Fatal("Expected Playing while the stream is in flight")
	}

	e.Stop()
	if e.Playing() {
		t.Error("Expected not Playing after Stop")
	}
	if out.Stopped() != 1 {
		t.Errorf("Expected the in-flight stream silenced, stop calls = %d", out.Stopped())
	}

	// Starting the next playback also silences the previous stream.
	if err := e.PlayAudio(raw); err != nil {
		t.Fatal(err)
	}
	if err := e.PlayAudio(raw); err != nil {
		t.Fatal(err)
	}
	if out.Stopped() != 2 {
		t.Errorf("Expected the replaced stream silenced, stop calls = %d", out.Stopped())
	}
	if !e.Playing() {
		t.Error("Expected the newest stream still Playing")
	}
}

func TestPlayRecording_FallsBackToNotes(t *testing.T) {
	e, ft := newTestEngine()
	rec := &model.Recording{
		ID:    "r1",
		Notes: []model.NoteEvent{{Note: "C4", Time: 0}},
	}
	if err := e.PlayRecording(context.Background(), rec); err != nil {
		t.Fatalf("PlayRecording returned error: %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	if got := ft.Notes(); len(got) != 1 || got[0] != "C4" {
		t.Errorf("Expected re-synthesized C4, got %v", got)
	}
}

func TestPlayRecording_EmptyRecording(t *testing.T) {
	e, _ := newTestEngine()
	if err := e.PlayRecording(context.Background(), &model.Recording{ID: "r1"}); err == nil {
		t.Error("Expected error for a recording with neither audio nor notes")
	}
}

func TestPlayAudio_GarbageReportsDecodeError(t *testing.T) {
	e, _ := newTestEngine()
	err := e.PlayAudio([]byte("not a wav"))
	if err == nil {
		t.Fatal("Expected decode error, got none")
	}
	if e.Playing() {
		t.Error("Failed playback must not report Playing")
	}
}

func newTestRoll(rows []string, columns, bpm int) (*Roll, *fakeTrigger) {
	e, ft := newTestEngine()
	return NewRoll(e, rows, columns, bpm), ft
}

func waitRollStopped(t *testing.T, r *Roll) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for r.Status() != RollStopped {
		if time.Now().After(deadline) {
			t.Fatal("Roll did not finish in time")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestRoll_PlaysActiveCellsAndAutoStops(t *testing.T) {
	r, ft := newTestRoll([]string{"E4", "C4"}, 4, 600)
	if err := r.SetCell(0, 0, true); err != nil {
		t.Fatal(err)
	}
	if err := r.SetCell(1, 2, true); err != nil {
		t.Fatal(err)
	}

	finished := make(chan struct{})
	r.OnFinish(func() { close(finished) })

	r.Play()
	waitRollStopped(t, r)

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("OnFinish hook never fired")
	}

	got := ft.Notes()
	if len(got) != 2 || got[0] != "E4" || got[1] != "C4" {
		t.Errorf("Expected [E4 C4], got %v", got)
	}
	if r.Column() != 0 {
		t.Errorf("Expected column reset after finish, got %d", r.Column())
	}
}

func TestRoll_PauseKeepsColumnStopResets(t *testing.T) {
	r, _ := newTestRoll([]string{"C4"}, 8, 600)

	r.Play()
	time.Sleep(30 * time.Millisecond)
	r.Pause()
	if r.Status() != RollPaused {
		t.Fatalf("Expected PAUSED, got %s", r.Status())
	}
	col := r.Column()
	if col == 0 {
		t.Error("Pause must preserve playback progress")
	}

	// Resuming picks up from the preserved column.
	r.Play()
	time.Sleep(30 * time.Millisecond)
	r.Stop()
	if r.Status() != RollStopped {
		t.Fatalf("Expected STOPPED, got %s", r.Status())
	}
	if r.Column() != 0 {
		t.Errorf("Stop must reset the column, got %d", r.Column())
	}
}

func TestRoll_SetBPMDuringPlayback(t *testing.T) {
	r, _ := newTestRoll([]string{"C4"}, 200, 600)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			if err := r.SetBPM(60 + i); err != nil {
				t.Errorf("SetBPM returned error: %v", err)
				return
			}
			time.Sleep(time.Millisecond)
		}
	}()
	for i := 0; i < 10; i++ {
		r.Play()
		time.Sleep(5 * time.Millisecond)
		r.Pause()
	}
	<-done
	r.Stop()
}

func TestRoll_SetCellBounds(t *testing.T) {
	r, _ := newTestRoll([]string{"C4"}, 4, 120)
	if err := r.SetCell(1, 0, true); err == nil {
		t.Error("Expected error for out-of-range row")
	}
	if err := r.SetCell(0, 4, true); err == nil {
		t.Error("Expected error for out-of-range column")
	}
	if r.Cell(5, 5) {
		t.Error("Out-of-range Cell must read false")
	}
}

func TestRoll_SetBPM(t *testing.T) {
	r, _ := newTestRoll(nil, 4, 120)
	if err := r.SetBPM(0); err == nil {
		t.Error("Expected error for zero bpm")
	}
	if err := r.SetBPM(90); err != nil {
		t.Errorf("SetBPM(90) returned error: %v", err)
	}
}

func TestApplyPattern_Validation(t *testing.T) {
	r, _ := newTestRoll(nil, 4, 120)

	if err := r.ApplyPattern(Pattern{BPM: 0, Rows: []PatternRow{{Note: "C4", Cells: "x"}}}); err == nil {
		t.Error("Expected error for non-positive bpm")
	}
	if err := r.ApplyPattern(Pattern{BPM: 120}); err == nil {
		t.Error("Expected error for empty pattern")
	}
	if err := r.ApplyPattern(Pattern{BPM: 120, Rows: []PatternRow{
		{Note: "C4", Cells: "x..."},
		{Note: "E4", Cells: "x."},
	}}); err == nil {
		t.Error("Expected error for ragged rows")
	}
}

func TestPattern_RoundTrip(t *testing.T) {
	r, _ := newTestRoll(nil, 4, 120)
	in := Pattern{
		BPM: 90,
		Rows: []PatternRow{
			{Note: "E4", Cells: "x.X."},
			{Note: "C4", Cells: "..x."},
		},
	}
	if err := r.ApplyPattern(in); err != nil {
		t.Fatalf("ApplyPattern returned error: %v", err)
	}
	if r.Columns() != 4 {
		t.Errorf("Expected 4 columns, got %d", r.Columns())
	}
	if !r.Cell(0, 0) || !r.Cell(0, 2) || !r.Cell(1, 2) || r.Cell(1, 0) {
		t.Error("Applied cells do not match the pattern")
	}

	out := r.Pattern()
	if out.BPM != 90 {
		t.Errorf("Expected bpm 90, got %d", out.BPM)
	}
	if out.Rows[0].Cells != "x.x." || out.Rows[1].Cells != "..x." {
		t.Errorf("Snapshot cells = %v", out.Rows)
	}
}

func TestPatternFile_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pattern.yaml")
	in := Pattern{
		BPM: 140,
		Rows: []PatternRow{
			{Note: "G4", Cells: "x...x..."},
			{Note: "C4", Cells: "..x...x."},
		},
	}
	if err := SavePatternFile(path, in); err != nil {
		t.Fatalf("SavePatternFile returned error: %v", err)
	}
	got, err := LoadPatternFile(path)
	if err != nil {
		t.Fatalf("LoadPatternFile returned error: %v", err)
	}
	if got.BPM != in.BPM || len(got.Rows) != 2 || got.Rows[0] != in.Rows[0] || got.Rows[1] != in.Rows[1] {
		t.Errorf("Loaded pattern differs: %+v", got)
	}

	if _, err := LoadPatternFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected error for missing pattern file")
	}
}
