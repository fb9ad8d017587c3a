// Package audio holds the sample-level PCM helpers shared by the sink and the player.
//
// All functions operate on signed 16-bit little-endian mono PCM, the only
// format the node plays.
package audio

import (
	"encoding/binary"
	"math"
)

// BytesPerSample is the width of one s16le sample.
const BytesPerSample = 2

// ClampVolume limits v to [0.0, 1.0]. NaN maps to 0.
func ClampVolume(v float64) float64 {
	switch {
	case math.IsNaN(v), v <= 0:
		return 0
	case v >= 1:
		return 1
	default:
		return v
	}
}

// ApplyVolume scales every complete sample in p in place.
// Results are truncated toward zero. A trailing odd byte is left untouched;
// callers that split samples across chunks must carry it themselves.
// Volume 1.0 leaves p unmodified.
func ApplyVolume(p []byte, volume float64) {
	volume = ClampVolume(volume)
	if volume == 1 {
		return
	}
	n := len(p) &^ 1
	for i := 0; i < n; i += BytesPerSample {
		s := int16(binary.LittleEndian.Uint16(p[i:]))
		scaled := int16(float64(s) * volume)
		binary.LittleEndian.PutUint16(p[i:], uint16(scaled))
	}
}

// ToDAC8 converts s16le samples in p to the 8-bit DAC word layout in place:
// each sample is offset to unsigned, reduced to its high byte and placed in
// the MSB of a 16-bit little-endian slot. The byte length is unchanged.
func ToDAC8(p []byte) {
	n := len(p) &^ 1
	for i := 0; i < n; i += BytesPerSample {
		s := int32(int16(binary.LittleEndian.Uint16(p[i:])))
		u := uint16((s+32768)>>8) << 8
		binary.LittleEndian.PutUint16(p[i:], u)
	}
}

// Tone generates a continuous sine wave as s16le PCM.
type Tone struct {
	Frequency  float64
	SampleRate int
	Amplitude  int16

	n uint64
}

// DefaultToneAmplitude leaves headroom below full scale.
const DefaultToneAmplitude = 30000

// NewTone returns a sine generator at freq Hz.
func NewTone(freq float64, sampleRate int) *Tone {
	return &Tone{
		Frequency:  freq,
		SampleRate: sampleRate,
		Amplitude:  DefaultToneAmplitude,
	}
}

// Fill writes as many whole samples into p as fit and returns the byte count.
// Phase is continuous across calls.
func (t *Tone) Fill(p []byte) int {
	n := len(p) &^ 1
	step := 2 * math.Pi * t.Frequency / float64(t.SampleRate)
	for i := 0; i < n; i += BytesPerSample {
		v := float64(t.Amplitude) * math.Sin(step*float64(t.n))
		binary.LittleEndian.PutUint16(p[i:], uint16(int16(v)))
		t.n++
	}
	return n
}

// DurationBytes is the byte length of ms milliseconds of mono s16le audio.
func DurationBytes(sampleRate, ms int) int {
	return sampleRate * ms / 1000 * BytesPerSample
}
