package audio

import (
	"errors"
	"math"
	"testing"

	"github.com/harmonialab/harmonia/internal/model"
)

func sine(freq float64, sampleRate, n int) []float64 {
	samples := make([]float64, n)
	for i := range samples {
		samples[i] = 0.5 * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))
	}
	return samples
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	const sampleRate = 44100
	in := sine(440, sampleRate, sampleRate/10)

	raw, err := EncodeWAV(in, sampleRate)
	if err != nil {
		t.Fatalf("EncodeWAV returned error: %v", err)
	}
	if string(raw[:4]) != "RIFF" {
		t.Errorf("Expected RIFF container, got %q", raw[:4])
	}

	out, rate, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if rate != sampleRate {
		t.Errorf("Expected sample rate %d, got %d", sampleRate, rate)
	}
	if len(out) != len(in) {
		t.Fatalf("Expected %d samples, got %d", len(in), len(out))
	}
	// 16-bit quantization allows a small error per sample.
	for i := range in {
		if math.Abs(out[i]-in[i]) > 0.001 {
			t.Fatalf("Sample %d differs: got %f, want %f", i, out[i], in[i])
		}
	}
}

func TestDecode_Garbage(t *testing.T) {
	_, _, err := Decode([]byte("definitely not a wav container"))
	if err == nil {
		t.Fatal("Expected error for garbage input, got none")
	}
	if !errors.Is(err, model.ErrDecode) {
		t.Errorf("Expected ErrDecode, got %v", err)
	}
}

func TestDecode_Empty(t *testing.T) {
	if _, _, err := Decode(nil); !errors.Is(err, model.ErrDecode) {
		t.Errorf("Expected ErrDecode for empty input, got %v", err)
	}
}

func TestEncodeWAV_Silence(t *testing.T) {
	raw, err := EncodeWAV(make([]float64, 1024), 44100)
	if err != nil {
		t.Fatalf("EncodeWAV returned error: %v", err)
	}
	out, _, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	for i, s := range out {
		if s != 0 {
			t.Fatalf("Expected silence, got %f at sample %d", s, i)
		}
	}
}
