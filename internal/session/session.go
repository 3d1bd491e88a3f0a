// Package session owns the recording lifecycle: arming a capture, stamping
// note events against the session start time, and handing the finalized
// audio off for persistence.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/harmonialab/harmonia/internal/audio"
	"github.com/harmonialab/harmonia/internal/model"
)

// Status represents the current state of the session manager.
type Status string

const (
	StatusIdle      Status = "IDLE"
	StatusArmed     Status = "ARMED"
	StatusCapturing Status = "CAPTURING"
)

// Identity is the locally cached authenticated user.
type Identity struct {
	UserID string
	Token  string
}

// Persister stores a finalized recording: it uploads the audio payload and
// creates the recording metadata, returning the server-confirmed entity.
type Persister interface {
	SaveRecording(ctx context.Context, name string, notes []model.NoteEvent, duration float64, audioWAV []byte) (*model.Recording, error)
}

// Manager runs at most one recording session at a time.
type Manager struct {
	mu        sync.Mutex
	status    Status
	startTime time.Time
	notes     []model.NoteEvent

	capturer  audio.Capturer
	persister Persister
	identity  func() *Identity
	now       func() time.Time
}

func New(capturer audio.Capturer, persister Persister, identity func() *Identity) *Manager {
	return &Manager{
		status:    StatusIdle,
		capturer:  capturer,
		persister: persister,
		identity:  identity,
		now:       time.Now,
	}
}

// SetClock overrides the manager's clock. Tests use it to pin note offsets.
func (m *Manager) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Start arms and begins a capture session. Starting while a session is
// already capturing is a no-op that leaves the in-progress buffer intact.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.status != StatusIdle {
		slog.Debug("recording already in progress, ignoring start")
		return nil
	}
	if m.identity == nil || m.identity() == nil {
		return fmt.Errorf("start recording: %w", model.ErrUnauthenticated)
	}

	m.status = StatusArmed
	m.notes = nil
	m.startTime = m.now()

	if err := m.capturer.Start(ctx); err != nil {
		m.status = StatusIdle
		return fmt.Errorf("start recording: %w: %v", model.ErrDeviceUnavailable, err)
	}
	m.status = StatusCapturing
	slog.Info("recording started", "start", m.startTime)
	return nil
}

// RecordNote appends a timestamped note event if a session is capturing,
// and is a no-op otherwise. The synthesizer calls this on every trigger.
func (m *Manager) RecordNote(note string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status != StatusCapturing {
		return
	}
	t := m.now().Sub(m.startTime).Seconds()
	m.notes = append(m.notes, model.NoteEvent{Note: note, Time: t})
}

// Stop finalizes the capture and persists the recording. Whatever happens,
// the manager returns to idle: a failed save surfaces an error but never a
// stuck session. Stop with no active session warns and returns nil, nil.
func (m *Manager) Stop(ctx context.Context) (*model.Recording, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.status != StatusCapturing {
		slog.Warn("stop called with no active recording session")
		return nil, nil
	}

	notes := m.notes
	start := m.startTime
	defer func() {
		m.status = StatusIdle
		m.notes = nil
	}()

	raw, err := m.capturer.Stop(ctx)
	if err != nil {
		return nil, fmt.Errorf("stop recording: %w", err)
	}
	duration := m.now().Sub(start).Seconds()

	name := "Recording " + start.UTC().Format(time.RFC3339)
	rec, err := m.persister.SaveRecording(ctx, name, notes, duration, raw)
	if err != nil {
		return nil, fmt.Errorf("save recording: %w", err)
	}
	slog.Info("recording saved", "id", rec.ID, "notes", len(rec.Notes), "duration", model.FormatDuration(rec.Duration))
	return rec, nil
}
