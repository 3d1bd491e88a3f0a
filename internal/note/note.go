// Package note converts between scientific pitch names like "C#4" and
// frequencies in equal temperament (A4 = 440 Hz).
package note

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

var names = []string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// Octave-0 base frequencies per pitch class.
var baseFrequencies = map[string]float64{
	"C": 16.35, "C#": 17.32, "D": 18.35, "D#": 19.45,
	"E": 20.60, "F": 21.83, "F#": 23.12, "G": 24.50,
	"G#": 25.96, "A": 27.50, "A#": 29.14, "B": 30.87,
}

var flatAliases = map[string]string{
	"DB": "C#", "EB": "D#", "GB": "F#", "AB": "G#", "BB": "A#",
}

// Parse splits a pitch name into its class and octave. A missing octave is
// an error; use ParseDefault when a fallback octave applies.
func Parse(name string) (class string, octave int, err error) {
	s := strings.TrimSpace(name)
	if s == "" {
		return "", 0, fmt.Errorf("empty note name")
	}
	i := len(s)
	for i > 0 && (s[i-1] >= '0' && s[i-1] <= '9' || s[i-1] == '-') {
		i--
	}
	class = strings.ToUpper(s[:i])
	if i == 0 || i == len(s) {
		return "", 0, fmt.Errorf("note %q has no octave", name)
	}
	if alias, ok := flatAliases[class]; ok {
		class = alias
	}
	if _, ok := baseFrequencies[class]; !ok {
		return "", 0, fmt.Errorf("unknown pitch class %q", s[:i])
	}
	octave, err = strconv.Atoi(s[i:])
	if err != nil {
		return "", 0, fmt.Errorf("note %q has invalid octave", name)
	}
	return class, octave, nil
}

// ParseDefault parses a pitch name, applying defaultOctave when the name is
// a bare pitch class like "C".
func ParseDefault(name string, defaultOctave int) (class string, octave int, err error) {
	class, octave, err = Parse(name)
	if err == nil {
		return class, octave, nil
	}
	s := strings.ToUpper(strings.TrimSpace(name))
	if alias, ok := flatAliases[s]; ok {
		s = alias
	}
	if _, ok := baseFrequencies[s]; ok {
		return s, defaultOctave, nil
	}
	return "", 0, err
}

// Frequency returns the fundamental of a named pitch, e.g. 440 for "A4".
func Frequency(name string) (float64, error) {
	class, octave, err := Parse(name)
	if err != nil {
		return 0, err
	}
	return baseFrequencies[class] * math.Pow(2, float64(octave)), nil
}

// MIDINumber maps a pitch name to its MIDI key number (C4 = 60).
func MIDINumber(name string) (uint8, error) {
	class, octave, err := Parse(name)
	if err != nil {
		return 0, err
	}
	idx := 0
	for i, n := range names {
		if n == class {
			idx = i
			break
		}
	}
	key := 12*(octave+1) + idx
	if key < 0 || key > 127 {
		return 0, fmt.Errorf("note %q outside MIDI range", name)
	}
	return uint8(key), nil
}

// Name maps a frequency to the nearest pitch name. Semitone distance from
// A4 determines both pitch class and octave.
func Name(frequency float64) string {
	if frequency <= 0 {
		return ""
	}
	semitones := 12 * math.Log2(frequency/440.0)
	rounded := math.Round(semitones)
	idx := int(math.Mod(rounded+9, 12))
	if idx < 0 {
		idx += 12
	}
	octave := 4 + int(math.Floor((rounded+9)/12))
	return fmt.Sprintf("%s%d", names[idx], octave)
}
