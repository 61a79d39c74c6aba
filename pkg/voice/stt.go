package voice

import (
	"context"
	"sync"
	"sync/atomic"
)

// TranscriptDelta is a streaming transcript update from the recognizer.
type TranscriptDelta struct {
	Text string // Transcribed text for this segment

	// IsFinal marks a segment the recognizer will not revise.
	IsFinal bool

	// UtteranceEnd marks the end of a caller utterance: the recognizer
	// saw enough trailing silence to call the turn complete.
	UtteranceEnd bool
}

// TranscribeOptions configures a live recognition stream.
type TranscribeOptions struct {
	Model      string // Provider-specific model
	Language   string // ISO language code (default: "en")
	SampleRate int    // PCM sample rate in Hz

	// EndpointingMs is the trailing-silence window after which a segment
	// is closed out as an utterance end. Default 500.
	EndpointingMs int
}

// Transcriber is the interface for live speech-to-text services.
type Transcriber interface {
	// Name returns the provider identifier.
	Name() string

	// NewStream opens a live recognition session. Audio is sent
	// incrementally and deltas are read from the stream's channel.
	NewStream(ctx context.Context, opts TranscribeOptions) (*TranscriptStream, error)
}

// TranscriptStream is a live recognition session. Audio goes in via
// SendAudio, transcript deltas come out of Deltas.
type TranscriptStream struct {
	deltas    chan TranscriptDelta
	done      chan struct{}
	closed    atomic.Bool
	closeOnce sync.Once
	writeMu   sync.Mutex

	// For implementations to use
	sendFunc     func(frame []byte) error
	finalizeFunc func() error
	closeFunc    func() error
}

func newTranscriptStream() *TranscriptStream {
	return &TranscriptStream{
		deltas: make(chan TranscriptDelta, 100),
		done:   make(chan struct{}),
	}
}

// SendAudio sends a PCM frame to the recognizer.
func (s *TranscriptStream) SendAudio(frame []byte) error {
	if s.closed.Load() {
		return ErrStreamClosed
	}
	if s.sendFunc == nil {
		return nil
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.sendFunc(frame)
}

// Finalize flushes buffered audio and forces the current segment closed.
func (s *TranscriptStream) Finalize() error {
	if s.closed.Load() {
		return ErrStreamClosed
	}
	if s.finalizeFunc == nil {
		return nil
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.finalizeFunc()
}

// Deltas returns the channel of transcript updates.
func (s *TranscriptStream) Deltas() <-chan TranscriptDelta {
	return s.deltas
}

// Done returns a channel closed when the session ends.
func (s *TranscriptStream) Done() <-chan struct{} {
	return s.done
}

// Close shuts the session down.
func (s *TranscriptStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		if s.closeFunc != nil {
			err = s.closeFunc()
		}
	})
	return err
}

func (s *TranscriptStream) push(d TranscriptDelta) bool {
	select {
	case s.deltas <- d:
		return true
	case <-s.done:
		return false
	}
}

func (s *TranscriptStream) finish() {
	close(s.deltas)
	close(s.done)
}

// ErrStreamClosed is returned when writing to a closed stream.
var ErrStreamClosed = &streamClosedError{}

type streamClosedError struct{}

func (e *streamClosedError) Error() string { return "transcript stream closed" }
