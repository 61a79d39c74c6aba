// Package voice runs duplex phone calls against the engagement engine.
// Caller audio is transcribed live, each completed utterance becomes a
// text turn, and the decoy reply is spoken back with barge-in support.
package voice

import "time"

// AudioConfig specifies PCM format parameters.
type AudioConfig struct {
	// SampleRate in Hz. Deepgram and ElevenLabs both handle 16000 well.
	SampleRate int `json:"sample_rate"`

	// Channels: 1 for mono, 2 for stereo.
	Channels int `json:"channels"`

	// BitsPerSample: 16 for signed little-endian PCM.
	BitsPerSample int `json:"bits_per_sample"`
}

// DefaultAudioConfig returns the standard telephony-adjacent format.
func DefaultAudioConfig() AudioConfig {
	return AudioConfig{
		SampleRate:    16000,
		Channels:      1,
		BitsPerSample: 16,
	}
}

// BytesPerSecond returns the audio byte rate.
func (c AudioConfig) BytesPerSecond() int {
	return c.SampleRate * c.Channels * (c.BitsPerSample / 8)
}

// DurationMs returns the duration in milliseconds for the given byte count.
func (c AudioConfig) DurationMs(bytes int) int {
	if c.BytesPerSecond() == 0 {
		return 0
	}
	return (bytes * 1000) / c.BytesPerSecond()
}

// BytesForDurationMs returns the byte count for the given duration.
func (c AudioConfig) BytesForDurationMs(ms int) int {
	return (c.BytesPerSecond() * ms) / 1000
}

// CallConfig tunes a single duplex call.
type CallConfig struct {
	Audio AudioConfig `json:"audio"`

	// BargeInThreshold is the caller RMS energy above which speech during
	// decoy playback cancels the current utterance. Range 0.0 to 1.0.
	BargeInThreshold float64 `json:"barge_in_threshold"`

	// BargeInWindowMs is how much recent caller audio the energy check
	// looks at.
	BargeInWindowMs int `json:"barge_in_window_ms"`

	// SilenceTimeout is how long the caller may stay quiet while the
	// decoy is listening before a re-engagement prompt is spoken.
	SilenceTimeout time.Duration `json:"silence_timeout"`

	// MaxReengagements bounds the re-engagement prompts per silence
	// stretch so a dead line eventually hangs up.
	MaxReengagements int `json:"max_reengagements"`
}

// DefaultCallConfig returns the tuning used in production calls.
func DefaultCallConfig() CallConfig {
	return CallConfig{
		Audio:            DefaultAudioConfig(),
		BargeInThreshold: 0.05,
		BargeInWindowMs:  300,
		SilenceTimeout:   5 * time.Second,
		MaxReengagements: 3,
	}
}
