package audio

import (
	"context"
	"strings"

	"github.com/gopxl/beep/v2"

	"github.com/harmonialab/harmonia/internal/config"
)

// Capturer is the streaming-capture primitive behind a recording session.
// Stop blocks until the capture destination is finalized and returns the
// encoded container (WAV) produced since Start.
type Capturer interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) ([]byte, error)
	Capturing() bool
}

// BackendType identifies a capture backend implementation.
type BackendType string

const (
	BackendLoopback BackendType = "loopback"
	BackendExec     BackendType = "exec"
	BackendAuto     BackendType = "auto"
)

// NewCapturer creates a capturer for the configured backend. The loopback
// backend taps synthOut, recording exactly what the synthesizer renders;
// the exec backend records the system microphone via ffmpeg.
func NewCapturer(cfg *config.Config, synthOut beep.Streamer) Capturer {
	switch determineBackend(cfg) {
	case BackendExec:
		return NewExecCapturer(cfg.Audio.FFmpegBinary, cfg.Audio.CaptureDevice, cfg.Audio.SampleRate)
	default:
		return NewLoopback(synthOut, cfg.Audio.SampleRate)
	}
}

func determineBackend(cfg *config.Config) BackendType {
	switch strings.ToLower(cfg.Audio.CaptureBackend) {
	case "exec":
		return BackendExec
	case "loopback":
		return BackendLoopback
	default:
		// The synth bus is always available; the microphone is not.
		return BackendLoopback
	}
}
