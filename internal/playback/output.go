package playback

import (
	"bytes"
	"io"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/speaker"
)

// SpeakerOutput plays streams on the default audio device. The speaker is
// initialized once, at the sample rate of the first stream; later streams
// at other rates are resampled.
type SpeakerOutput struct {
	mu   sync.Mutex
	rate beep.SampleRate
}

func NewSpeakerOutput() *SpeakerOutput {
	return &SpeakerOutput{}
}

// Init prepares the device at the given rate. Play calls it lazily when
// needed, but callers that also route a live synth bus through the speaker
// initialize up front.
func (o *SpeakerOutput) Init(rate beep.SampleRate) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.ensureLocked(rate)
}

func (o *SpeakerOutput) ensureLocked(rate beep.SampleRate) error {
	if o.rate != 0 {
		return nil
	}
	if err := speaker.Init(rate, rate.N(100*time.Millisecond)); err != nil {
		return err
	}
	o.rate = rate
	return nil
}

// Play starts the stream and returns a stop function that silences it
// before it drains. Stopping detaches the stream under the speaker lock,
// so the onDone callback of a stopped stream never fires.
func (o *SpeakerOutput) Play(streamer beep.Streamer, format beep.Format, onDone func()) (func(), error) {
	o.mu.Lock()
	if err := o.ensureLocked(format.SampleRate); err != nil {
		o.mu.Unlock()
		return nil, err
	}
	rate := o.rate
	o.mu.Unlock()

	if format.SampleRate != rate {
		streamer = beep.Resample(4, format.SampleRate, rate, streamer)
	}
	ctrl := &beep.Ctrl{Streamer: beep.Seq(streamer, beep.Callback(onDone))}
	speaker.Play(ctrl)
	stop := func() {
		speaker.Lock()
		ctrl.Streamer = nil
		speaker.Unlock()
	}
	return stop, nil
}

// Run attaches a continuous source (the synth bus) to the device.
func (o *SpeakerOutput) Run(src beep.Streamer, rate beep.SampleRate) error {
	if err := o.Init(rate); err != nil {
		return err
	}
	speaker.Play(src)
	return nil
}

// newByteReader wraps bytes for decoders that close their input.
func newByteReader(raw []byte) io.ReadCloser {
	return io.NopCloser(bytes.NewReader(raw))
}
