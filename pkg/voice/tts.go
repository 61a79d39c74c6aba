package voice

import (
	"context"
	"sync"
	"sync/atomic"
)

// SpeakOptions configures a synthesis stream.
type SpeakOptions struct {
	Voice      string  // Voice identifier
	Speed      float64 // Speed multiplier
	Language   string  // Language code
	SampleRate int     // Output sample rate
}

// Synthesizer is the interface for streaming text-to-speech services.
type Synthesizer interface {
	// Name returns the provider identifier.
	Name() string

	// NewSpeechStream opens an incremental synthesis session. Text is
	// sent in chunks and PCM audio is read back as it is generated.
	NewSpeechStream(ctx context.Context, opts SpeakOptions) (*SpeechStream, error)
}

// SpeechStream manages an incremental TTS session. Text goes in via
// SendText, audio chunks come out of Audio.
type SpeechStream struct {
	audio     chan []byte
	err       error
	errMu     sync.Mutex
	done      chan struct{}
	closed    atomic.Bool
	closeOnce sync.Once

	// For implementations to use
	sendFunc  func(text string, flush bool) error
	closeFunc func() error
}

func newSpeechStream() *SpeechStream {
	return &SpeechStream{
		audio: make(chan []byte, 100),
		done:  make(chan struct{}),
	}
}

// SendText queues a text chunk for synthesis. Set flush for the last
// chunk of an utterance.
func (s *SpeechStream) SendText(text string, flush bool) error {
	if s.closed.Load() {
		return ErrSpeechClosed
	}
	if s.sendFunc != nil {
		return s.sendFunc(text, flush)
	}
	return nil
}

// Flush signals that all text for the utterance has been sent.
func (s *SpeechStream) Flush() error {
	return s.SendText("", true)
}

// Audio returns the channel of PCM chunks.
func (s *SpeechStream) Audio() <-chan []byte {
	return s.audio
}

// Err returns any error that occurred.
func (s *SpeechStream) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// Done returns a channel closed when the stream is finished.
func (s *SpeechStream) Done() <-chan struct{} {
	return s.done
}

// Close tears the session down.
func (s *SpeechStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		if s.closeFunc != nil {
			err = s.closeFunc()
		}
		close(s.done)
	})
	return err
}

func (s *SpeechStream) pushAudio(chunk []byte) bool {
	select {
	case s.audio <- chunk:
		return true
	case <-s.done:
		return false
	}
}

func (s *SpeechStream) setError(err error) {
	s.errMu.Lock()
	s.err = err
	s.errMu.Unlock()
}

func (s *SpeechStream) finishAudio() {
	close(s.audio)
}

// ErrSpeechClosed is returned when sending to a closed stream.
var ErrSpeechClosed = &speechClosedError{}

type speechClosedError struct{}

func (e *speechClosedError) Error() string { return "speech stream closed" }
