// Package analysis extracts approximate musical features from an encoded
// audio buffer: a best-guess fundamental pitch, candidate chord labels and
// a rough tempo. The heuristics are deliberately naive and deterministic.
// Each call takes a single static spectrum snapshot with fixed thresholds;
// there is no sliding window and no tuning for musical accuracy.
package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/cmplx"
	"strconv"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"

	"github.com/harmonialab/harmonia/internal/audio"
	"github.com/harmonialab/harmonia/internal/model"
)

const (
	fftWindowSize  = 2048
	tempoWindow    = 512
	chordThreshold = -60.0 // dB
	defaultTempo   = 120
	minTempo       = 60
	maxTempo       = 200
	dbFloor        = -120.0
)

// UnknownLabel is the sentinel reported when a sub-analysis finds nothing.
const UnknownLabel = "Unknown"

type chordTemplate struct {
	name  string
	freqs [3]float64
}

// Each chord is three constituent fundamentals; order determines output
// order of detected chords.
var chordTable = []chordTemplate{
	{"CMaj", [3]float64{261.63, 329.63, 392.00}},
	{"GMaj", [3]float64{392.00, 493.88, 587.33}},
	{"DMaj", [3]float64{293.66, 369.99, 440.00}},
	{"Am", [3]float64{440.00, 523.25, 659.25}},
	{"Em", [3]float64{329.63, 392.00, 493.88}},
	{"FMaj", [3]float64{349.23, 440.00, 523.25}},
}

type Analyzer struct{}

func New() *Analyzer {
	return &Analyzer{}
}

// Analyze decodes the buffer and runs the three independent passes. Decode
// failure aborts the whole call; a failing sub-analysis degrades to its
// sentinel without affecting the others.
func (a *Analyzer) Analyze(ctx context.Context, raw []byte) (model.AnalysisResult, error) {
	samples, sampleRate, err := audio.Decode(raw)
	if err != nil {
		return model.AnalysisResult{}, fmt.Errorf("analyze: %w", err)
	}

	spectrum := spectrumSnapshot(samples)

	scale := UnknownLabel
	if freq, ok := detectPitch(spectrum, sampleRate); ok {
		scale = strconv.FormatFloat(freq, 'f', 2, 64)
	}

	result := model.AnalysisResult{
		Scale:  scale,
		Chords: detectChords(spectrum, sampleRate),
		Tempo:  detectTempo(samples, sampleRate),
	}
	slog.Debug("analysis complete", "scale", result.Scale, "chords", result.Chords, "tempo", result.Tempo)
	return result, nil
}

// spectrumSnapshot builds the one static frequency-domain view used by the
// pitch and chord passes: the first 2048 samples (zero-padded), Hann
// windowed, transformed, log-magnitude per bin.
func spectrumSnapshot(samples []float64) []float64 {
	frame := make([]float64, fftWindowSize)
	copy(frame, samples)
	for i, w := range window.Hann(fftWindowSize) {
		frame[i] *= w
	}

	bins := fft.FFTReal(frame)
	out := make([]float64, fftWindowSize/2)
	for i := range out {
		mag := cmplx.Abs(bins[i])
		if mag < 1e-6 {
			out[i] = dbFloor
		} else {
			out[i] = 20 * math.Log10(mag)
		}
	}
	return out
}

// detectPitch runs an autocorrelation pass over the spectrum snapshot and
// maps the dominant lag to a frequency against the sample rate. A flat
// snapshot (no structure to correlate) reports no pitch.
func detectPitch(snapshot []float64, sampleRate int) (float64, bool) {
	n := len(snapshot)
	if n < 4 {
		return 0, false
	}

	mean := 0.0
	for _, v := range snapshot {
		mean += v
	}
	mean /= float64(n)

	centered := make([]float64, n)
	for i, v := range snapshot {
		centered[i] = v - mean
	}

	var r0 float64
	for _, v := range centered {
		r0 += v * v
	}
	if r0 <= 1e-12 {
		return 0, false
	}

	bestLag, bestVal := 0, 0.0
	for lag := 2; lag <= n/2; lag++ {
		var sum float64
		for i := 0; i+lag < n; i++ {
			sum += centered[i] * centered[i+lag]
		}
		if sum > bestVal {
			bestVal = sum
			bestLag = lag
		}
	}
	if bestLag == 0 || bestVal/r0 < 0.1 {
		return 0, false
	}
	return float64(sampleRate) / float64(bestLag), true
}

// detectChords matches each dictionary chord against the snapshot: a chord
// counts as detected when at least 2 of its 3 constituent frequencies land
// on bins above the magnitude threshold. Never returns an empty list.
func detectChords(snapshot []float64, sampleRate int) []string {
	binSize := float64(sampleRate) / float64(len(snapshot))

	var detected []string
	for _, c := range chordTable {
		matches := 0
		for _, freq := range c.freqs {
			bin := int(math.Round(freq / binSize))
			if bin >= 0 && bin < len(snapshot) && snapshot[bin] > chordThreshold {
				matches++
			}
		}
		if matches >= 2 {
			detected = append(detected, c.name)
		}
	}
	if len(detected) == 0 {
		return []string{UnknownLabel}
	}
	return detected
}

// detectTempo partitions the PCM into 512-sample windows, takes RMS energy
// per window, finds strict local maxima and converts the mean peak spacing
// to BPM. Fewer than two peaks yields the 120 BPM default. The result is
// clamped to [60, 200].
func detectTempo(samples []float64, sampleRate int) int {
	numWindows := len(samples) / tempoWindow
	rms := make([]float64, 0, numWindows)
	for i := 0; i < numWindows; i++ {
		start := i * tempoWindow
		end := start + tempoWindow
		if end > len(samples) {
			end = len(samples)
		}
		var sum float64
		for _, s := range samples[start:end] {
			sum += s * s
		}
		rms = append(rms, math.Sqrt(sum/float64(end-start)))
	}

	var peaks []int
	for i := 1; i+1 < len(rms); i++ {
		if rms[i] > rms[i-1] && rms[i] > rms[i+1] {
			peaks = append(peaks, i)
		}
	}

	bpm := defaultTempo
	if len(peaks) > 1 {
		spacing := float64(peaks[len(peaks)-1]-peaks[0]) / float64(len(peaks)-1)
		if spacing > 0 {
			bpm = int(math.Round(60 / (spacing * tempoWindow / float64(sampleRate))))
		}
	}

	if bpm < minTempo {
		bpm = minTempo
	}
	if bpm > maxTempo {
		bpm = maxTempo
	}
	return bpm
}
