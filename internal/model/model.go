package model

import (
	"errors"
	"fmt"
	"time"
)

// Error taxonomy shared by the session manager, playback engine, analyzer
// and collaborator clients. Callers match with errors.Is.
var (
	ErrUnauthenticated     = errors.New("unauthenticated")
	ErrDeviceUnavailable   = errors.New("audio device unavailable")
	ErrDecode              = errors.New("audio decode failed")
	ErrPersistenceFailure  = errors.New("persistence failure")
	ErrNotFoundOrForbidden = errors.New("recording not found or not owned by caller")
)

// NoteEvent is a single triggered note, timed in seconds relative to the
// start of the recording session that captured it.
type NoteEvent struct {
	Note string  `json:"note"`
	Time float64 `json:"time"`
}

// Recording is a persisted composition: the captured note events plus the
// audio payload and metadata confirmed by the recordings API.
type Recording struct {
	ID        string      `json:"id"`
	UserID    string      `json:"userId"`
	Name      string      `json:"name"`
	Notes     []NoteEvent `json:"notes"`
	Duration  float64     `json:"duration"`
	CreatedAt time.Time   `json:"createdAt"`
	Audio     AudioRef    `json:"audioUrl"`
}

// AnalysisResult is the transient output of one analyzer call. Chords is
// never empty; it contains the sentinel "Unknown" when nothing matched.
type AnalysisResult struct {
	Scale  string   `json:"scale"`
	Chords []string `json:"chords"`
	Tempo  int      `json:"tempo"`
}

// FormatDuration renders a duration in seconds as "m:ss" for display.
func FormatDuration(seconds float64) string {
	total := int(seconds + 0.5)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
