package audio

import (
	"bytes"
	"fmt"
	"io"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/wav"

	"github.com/harmonialab/harmonia/internal/model"
)

// Decode converts an encoded WAV container into mono float64 PCM samples
// in [-1,1] plus the container's sample rate.
func Decode(raw []byte) ([]float64, int, error) {
	streamer, format, err := wav.Decode(io.NopCloser(bytes.NewReader(raw)))
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", model.ErrDecode, err)
	}
	defer streamer.Close()

	var samples []float64
	buf := make([][2]float64, 1024)
	for {
		n, ok := streamer.Stream(buf)
		for i := 0; i < n; i++ {
			samples = append(samples, (buf[i][0]+buf[i][1])/2)
		}
		if !ok {
			break
		}
	}
	if err := streamer.Err(); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", model.ErrDecode, err)
	}
	return samples, int(format.SampleRate), nil
}

// EncodeWAV packs mono float64 PCM into a 16-bit WAV container.
func EncodeWAV(samples []float64, sampleRate int) ([]byte, error) {
	format := beep.Format{
		SampleRate:  beep.SampleRate(sampleRate),
		NumChannels: 1,
		Precision:   2,
	}
	var buf seekBuffer
	if err := wav.Encode(&buf, &sliceStreamer{samples: samples}, format); err != nil {
		return nil, fmt.Errorf("encode wav: %w", err)
	}
	return buf.data, nil
}

// sliceStreamer adapts a mono sample slice to beep.Streamer.
type sliceStreamer struct {
	samples []float64
	pos     int
}

func (s *sliceStreamer) Stream(out [][2]float64) (int, bool) {
	if s.pos >= len(s.samples) {
		return 0, false
	}
	n := 0
	for i := range out {
		if s.pos >= len(s.samples) {
			break
		}
		v := s.samples[s.pos]
		out[i] = [2]float64{v, v}
		s.pos++
		n++
	}
	return n, true
}

func (s *sliceStreamer) Err() error { return nil }

// seekBuffer is an in-memory io.WriteSeeker for the WAV encoder, which
// seeks back to patch the header length fields.
type seekBuffer struct {
	data []byte
	pos  int
}

func (b *seekBuffer) Write(p []byte) (int, error) {
	if need := b.pos + len(p); need > len(b.data) {
		b.data = append(b.data, make([]byte, need-len(b.data))...)
	}
	copy(b.data[b.pos:], p)
	b.pos += len(p)
	return len(p), nil
}

func (b *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = int64(b.pos) + offset
	case io.SeekEnd:
		abs = int64(len(b.data)) + offset
	default:
		return 0, fmt.Errorf("invalid whence %d", whence)
	}
	if abs < 0 {
		return 0, fmt.Errorf("negative seek position %d", abs)
	}
	b.pos = int(abs)
	return abs, nil
}
