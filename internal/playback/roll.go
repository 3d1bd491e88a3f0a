package playback

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// RollStatus is the piano-roll playback state.
type RollStatus string

const (
	RollStopped RollStatus = "STOPPED"
	RollPlaying RollStatus = "PLAYING"
	RollPaused  RollStatus = "PAUSED"
)

// DefaultRows is one octave of pitch rows, top row highest.
var DefaultRows = []string{"B4", "A#4", "A4", "G#4", "G4", "F#4", "F4", "E4", "D#4", "D4", "C#4", "C4"}

// Roll is a fixed-width grid of (pitch-row, time-column) cells driving
// stepped playback at a configurable tempo. Pausing keeps the current
// column; stopping resets it. Reaching the final column auto-stops and
// fires OnFinish.
type Roll struct {
	mu      sync.Mutex
	engine  *Engine
	rows    []string
	cells   [][]bool
	bpm     int
	column  int
	status  RollStatus
	stopCh  chan struct{}
	onEnded func()
}

func NewRoll(engine *Engine, rows []string, columns, bpm int) *Roll {
	if len(rows) == 0 {
		rows = DefaultRows
	}
	cells := make([][]bool, len(rows))
	for i := range cells {
		cells[i] = make([]bool, columns)
	}
	return &Roll{
		engine: engine,
		rows:   rows,
		cells:  cells,
		bpm:    bpm,
		status: RollStopped,
	}
}

// OnFinish registers a hook fired when playback reaches the final column.
// The service wires it to stop an active recording session.
func (r *Roll) OnFinish(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onEnded = fn
}

func (r *Roll) Rows() []string { return r.rows }

func (r *Roll) Columns() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.cells) == 0 {
		return 0
	}
	return len(r.cells[0])
}

func (r *Roll) Status() RollStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

func (r *Roll) Column() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.column
}

func (r *Roll) SetBPM(bpm int) error {
	if bpm <= 0 {
		return fmt.Errorf("bpm must be positive, got %d", bpm)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bpm = bpm
	return nil
}

func (r *Roll) SetCell(row, column int, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if row < 0 || row >= len(r.cells) || column < 0 || column >= len(r.cells[row]) {
		return fmt.Errorf("cell (%d,%d) out of range", row, column)
	}
	r.cells[row][column] = active
	return nil
}

func (r *Roll) Cell(row, column int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if row < 0 || row >= len(r.cells) || column < 0 || column >= len(r.cells[row]) {
		return false
	}
	return r.cells[row][column]
}

// Play starts or resumes stepped playback. The engine is claimed first, so
// roll playback never overlaps note playback, and a later PlayNotes or
// PlayAudio halts this roll through the registered hook.
func (r *Roll) Play() {
	r.mu.Lock()
	if r.status == RollPlaying {
		r.mu.Unlock()
		return
	}
	r.status = RollPlaying
	stop := make(chan struct{})
	r.stopCh = stop
	bpm := r.bpm
	interval := time.Duration(60000/bpm) * time.Millisecond
	r.mu.Unlock()

	r.engine.Claim(func() { r.halt(stop) })

	slog.Debug("piano roll playback", "bpm", bpm, "interval", interval)
	go r.run(stop, interval)
}

// halt ends the timeline identified by stop. A stale hook whose timeline
// already ended, paused or was restarted is a no-op.
func (r *Roll) halt(stop chan struct{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopCh != stop {
		return
	}
	r.status = RollStopped
	r.column = 0
	close(r.stopCh)
	r.stopCh = nil
}

func (r *Roll) run(stop chan struct{}, interval time.Duration) {
	// The current column sounds immediately; each tick advances one column.
	if !r.step() {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if !r.step() {
				return
			}
		}
	}
}

// step plays the current column and advances. It returns false once
// playback should end, either because the roll finished or was interrupted.
func (r *Roll) step() bool {
	r.mu.Lock()
	if r.status != RollPlaying {
		r.mu.Unlock()
		return false
	}
	col := r.column
	var notes []string
	for row, cells := range r.cells {
		if col < len(cells) && cells[col] {
			notes = append(notes, r.rows[row])
		}
	}
	r.column++
	finished := len(r.cells) > 0 && r.column >= len(r.cells[0])
	var onEnded func()
	if finished {
		r.status = RollStopped
		r.column = 0
		r.stopCh = nil
		onEnded = r.onEnded
	}
	r.mu.Unlock()

	for _, n := range notes {
		if err := r.engine.trigger.Trigger(n); err != nil {
			slog.Error("roll trigger failed", "note", n, "error", err)
		}
	}
	if finished {
		if onEnded != nil {
			onEnded()
		}
		return false
	}
	return true
}

// Pause halts playback, preserving the current column for resume.
func (r *Roll) Pause() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status != RollPlaying {
		return
	}
	r.status = RollPaused
	if r.stopCh != nil {
		close(r.stopCh)
		r.stopCh = nil
	}
}

// Stop halts playback and resets the column to zero.
func (r *Roll) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = RollStopped
	r.column = 0
	if r.stopCh != nil {
		close(r.stopCh)
		r.stopCh = nil
	}
}

// Pattern is the YAML-serializable form of a roll grid. Each row's cells
// string marks active columns with 'x'.
type Pattern struct {
	BPM  int          `yaml:"bpm"`
	Rows []PatternRow `yaml:"rows"`
}

type PatternRow struct {
	Note  string `yaml:"note"`
	Cells string `yaml:"cells"`
}

// Pattern snapshots the grid.
func (r *Roll) Pattern() Pattern {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := Pattern{BPM: r.bpm}
	for i, row := range r.rows {
		var b strings.Builder
		for _, on := range r.cells[i] {
			if on {
				b.WriteByte('x')
			} else {
				b.WriteByte('.')
			}
		}
		p.Rows = append(p.Rows, PatternRow{Note: row, Cells: b.String()})
	}
	return p
}

// ApplyPattern replaces the grid with the pattern's rows and tempo.
func (r *Roll) ApplyPattern(p Pattern) error {
	if p.BPM <= 0 {
		return fmt.Errorf("pattern bpm must be positive, got %d", p.BPM)
	}
	if len(p.Rows) == 0 {
		return fmt.Errorf("pattern has no rows")
	}
	columns := len(p.Rows[0].Cells)
	rows := make([]string, len(p.Rows))
	cells := make([][]bool, len(p.Rows))
	for i, row := range p.Rows {
		if len(row.Cells) != columns {
			return fmt.Errorf("row %q has %d cells, want %d", row.Note, len(row.Cells), columns)
		}
		rows[i] = row.Note
		cells[i] = make([]bool, columns)
		for j := 0; j < columns; j++ {
			cells[i][j] = row.Cells[j] == 'x' || row.Cells[j] == 'X'
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows = rows
	r.cells = cells
	r.bpm = p.BPM
	r.column = 0
	return nil
}

// LoadPatternFile reads a YAML pattern file.
func LoadPatternFile(path string) (Pattern, error) {
	var p Pattern
	data, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("read pattern: %w", err)
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("parse pattern %s: %w", path, err)
	}
	return p, nil
}

// SavePatternFile writes a YAML pattern file.
func SavePatternFile(path string, p Pattern) error {
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode pattern: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write pattern: %w", err)
	}
	return nil
}
