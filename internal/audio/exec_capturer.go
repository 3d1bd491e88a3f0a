package audio

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/harmonialab/harmonia/internal/model"
)

// ExecCapturer records the system microphone by running ffmpeg as a child
// process writing a WAV file, and reading the file back on stop.
type ExecCapturer struct {
	mu         sync.Mutex
	binary     string
	device     string
	sampleRate int
	cmd        *exec.Cmd
	outFile    string
}

func NewExecCapturer(binary, device string, sampleRate int) *ExecCapturer {
	return &ExecCapturer{binary: binary, device: device, sampleRate: sampleRate}
}

func (c *ExecCapturer) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cmd != nil {
		return fmt.Errorf("capture already in progress")
	}

	if _, err := exec.LookPath(c.binary); err != nil {
		return fmt.Errorf("%w: %s not found", model.ErrDeviceUnavailable, c.binary)
	}

	outFile := filepath.Join(os.TempDir(), fmt.Sprintf("harmonia-capture-%d.wav", time.Now().UnixNano()))
	cmd := exec.Command(c.binary,
		"-hide_banner", "-loglevel", "error",
		"-f", "pulse", "-i", c.device,
		"-ar", fmt.Sprintf("%d", c.sampleRate),
		"-ac", "1",
		"-y", outFile,
	)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: start %s: %v", model.ErrDeviceUnavailable, c.binary, err)
	}

	slog.Debug("microphone capture started", "binary", c.binary, "device", c.device, "file", outFile)
	c.cmd = cmd
	c.outFile = outFile
	return nil
}

func (c *ExecCapturer) Stop(ctx context.Context) ([]byte, error) {
	c.mu.Lock()
	cmd := c.cmd
	outFile := c.outFile
	c.cmd = nil
	c.outFile = ""
	c.mu.Unlock()

	if cmd == nil {
		return nil, fmt.Errorf("no capture in progress")
	}
	defer os.Remove(outFile)

	// SIGINT lets ffmpeg finalize the container header.
	if err := cmd.Process.Signal(syscall.SIGINT); err != nil {
		cmd.Process.Kill()
	}
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()
	select {
	case <-ctx.Done():
		cmd.Process.Kill()
		<-done
		return nil, ctx.Err()
	case <-done:
		// ffmpeg exits non-zero on SIGINT; the file is still valid.
	}

	data, err := os.ReadFile(outFile)
	if err != nil {
		return nil, fmt.Errorf("read captured audio: %w", err)
	}
	slog.Debug("microphone capture finalized", "bytes", len(data))
	return data, nil
}

func (c *ExecCapturer) Capturing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cmd != nil
}
