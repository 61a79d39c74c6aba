package voice

import (
	"math"
	"sync"
)

// RMSEnergy computes the root-mean-square energy of 16-bit signed
// little-endian PCM. Returns a value between 0.0 and 1.0.
func RMSEnergy(pcm []byte) float64 {
	samples := len(pcm) / 2
	if samples == 0 {
		return 0
	}

	var sum float64
	for i := 0; i+1 < len(pcm); i += 2 {
		sample := int16(pcm[i]) | int16(pcm[i+1])<<8
		normalized := float64(sample) / 32768.0
		sum += normalized * normalized
	}

	return math.Sqrt(sum / float64(samples))
}

// PeakAmplitude returns the maximum absolute amplitude in the PCM data,
// between 0.0 and 1.0.
func PeakAmplitude(pcm []byte) float64 {
	if len(pcm) < 2 {
		return 0
	}

	var maxAbs float64
	for i := 0; i+1 < len(pcm); i += 2 {
		sample := int16(pcm[i]) | int16(pcm[i+1])<<8
		// float64 to avoid overflow when negating -32768
		abs := math.Abs(float64(sample))
		if abs > maxAbs {
			maxAbs = abs
		}
	}

	return maxAbs / 32768.0
}

// EnergyWindow keeps the most recent stretch of caller audio so barge-in
// detection can look at energy over a short window instead of a single
// frame. Older data is discarded as new frames arrive.
type EnergyWindow struct {
	mu       sync.Mutex
	data     []byte
	maxBytes int
	config   AudioConfig
}

// NewEnergyWindow creates a window holding up to maxDurationMs of audio.
func NewEnergyWindow(config AudioConfig, maxDurationMs int) *EnergyWindow {
	maxBytes := config.BytesForDurationMs(maxDurationMs)
	return &EnergyWindow{
		data:     make([]byte, 0, maxBytes),
		maxBytes: maxBytes,
		config:   config,
	}
}

// Write appends a frame, trimming from the front past the window size.
func (w *EnergyWindow) Write(frame []byte) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.data = append(w.data, frame...)
	if len(w.data) > w.maxBytes {
		excess := len(w.data) - w.maxBytes
		w.data = w.data[excess:]
	}
}

// RMS returns the energy of the buffered window.
func (w *EnergyWindow) RMS() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return RMSEnergy(w.data)
}

// DurationMs returns how much audio the window currently holds.
func (w *EnergyWindow) DurationMs() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.config.DurationMs(len(w.data))
}

// Clear empties the window. Called when playback starts so stale caller
// audio does not trigger an immediate barge-in.
func (w *EnergyWindow) Clear() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.data = w.data[:0]
}
