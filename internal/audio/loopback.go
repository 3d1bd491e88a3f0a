package audio

import (
	"context"
	"fmt"
	"sync"

	"github.com/gopxl/beep/v2"
)

// LoopbackCapturer records the synthesizer output bus. It sits between the
// synth mixer and the output device as a pass-through streamer; while a
// capture is active every frame pulled through it is also appended, mixed
// down to mono, to the capture buffer.
type LoopbackCapturer struct {
	mu         sync.Mutex
	src        beep.Streamer
	sampleRate int
	active     bool
	samples    []float64
}

func NewLoopback(src beep.Streamer, sampleRate int) *LoopbackCapturer {
	return &LoopbackCapturer{src: src, sampleRate: sampleRate}
}

// Stream implements beep.Streamer. With no upstream source it emits
// silence, which keeps the output device fed between notes.
func (c *LoopbackCapturer) Stream(out [][2]float64) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(out)
	ok := true
	if c.src != nil {
		n, ok = c.src.Stream(out)
	} else {
		for i := range out {
			out[i] = [2]float64{}
		}
	}
	if c.active {
		for i := 0; i < n; i++ {
			c.samples = append(c.samples, (out[i][0]+out[i][1])/2)
		}
	}
	return n, ok
}

func (c *LoopbackCapturer) Err() error { return nil }

func (c *LoopbackCapturer) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active {
		return fmt.Errorf("capture already in progress")
	}
	c.samples = nil
	c.active = true
	return nil
}

func (c *LoopbackCapturer) Stop(ctx context.Context) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active {
		return nil, fmt.Errorf("no capture in progress")
	}
	c.active = false
	data, err := EncodeWAV(c.samples, c.sampleRate)
	c.samples = nil
	if err != nil {
		return nil, fmt.Errorf("finalize capture: %w", err)
	}
	return data, nil
}

func (c *LoopbackCapturer) Capturing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}
