package voice

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/lurelab/lure/pkg/engage"
	"github.com/lurelab/lure/pkg/persona"
)

// CallState is the current mode of the duplex loop.
type CallState int

const (
	// StateListening means caller audio is being transcribed.
	StateListening CallState = iota
	// StateProcessing means a completed utterance is running through the
	// engagement engine.
	StateProcessing
	// StateSpeaking means decoy audio is being played to the caller.
	StateSpeaking
	// StateEnded means the call is over.
	StateEnded
)

// String returns a human-readable state name.
func (s CallState) String() string {
	switch s {
	case StateListening:
		return "LISTENING"
	case StateProcessing:
		return "PROCESSING"
	case StateSpeaking:
		return "SPEAKING"
	case StateEnded:
		return "ENDED"
	default:
		return "UNKNOWN"
	}
}

// Engager accepts one text turn and returns the committed outcome.
// Satisfied by engage.Controller.
type Engager interface {
	Submit(ctx context.Context, ev engage.InboundEvent) (*engage.TurnResult, error)
}

// CallDeps are the collaborators a call needs.
type CallDeps struct {
	Engager Engager
	STT     Transcriber
	TTS     Synthesizer
	Profile persona.Profile
	Speak   SpeakOptions
	Logger  *slog.Logger
}

// Event is a control frame sent to the caller leg alongside audio.
type Event struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	State     string `json:"state,omitempty"`
	Text      string `json:"text,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// Call is one duplex phone engagement. A single goroutine owns the state
// machine; audio in, transcripts, turn results and playback completion
// all funnel through its select loop.
type Call struct {
	sessionID string
	cfg       CallConfig
	deps      CallDeps
	log       *slog.Logger

	audioIn  chan []byte
	priority chan outboundFrame
	normal   chan outboundFrame

	canceledMu sync.Mutex
	canceled   map[string]bool

	speakers sync.WaitGroup

	state        CallState
	utteranceSeq int
	turnSeq      int
	reengageSeq  int
	reengages    int
}

type turnOutcome struct {
	result *engage.TurnResult
	err    error
}

type speakFinished struct {
	utteranceID string
	err         error
}

// NewCall prepares a call for the given session.
func NewCall(sessionID string, cfg CallConfig, deps CallDeps) *Call {
	if cfg.Audio.SampleRate == 0 {
		cfg.Audio = DefaultAudioConfig()
	}
	if cfg.BargeInThreshold == 0 {
		cfg.BargeInThreshold = DefaultCallConfig().BargeInThreshold
	}
	if cfg.BargeInWindowMs == 0 {
		cfg.BargeInWindowMs = DefaultCallConfig().BargeInWindowMs
	}
	if cfg.SilenceTimeout == 0 {
		cfg.SilenceTimeout = DefaultCallConfig().SilenceTimeout
	}
	if cfg.MaxReengagements == 0 {
		cfg.MaxReengagements = DefaultCallConfig().MaxReengagements
	}
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Call{
		sessionID: sessionID,
		cfg:       cfg,
		deps:      deps,
		log:       log.With("session_id", sessionID),
		audioIn:   make(chan []byte, 64),
		priority:  make(chan outboundFrame, 32),
		normal:    make(chan outboundFrame, 256),
		canceled:  make(map[string]bool),
		state:     StateListening,
	}
}

// PushAudio hands a caller PCM frame to the call. Frames are dropped
// when the loop falls behind; losing audio beats blocking the reader.
func (c *Call) PushAudio(frame []byte) {
	buf := make([]byte, len(frame))
	copy(buf, frame)
	select {
	case c.audioIn <- buf:
	default:
	}
}

// IsCanceled reports whether an utterance was barged in on. Queued audio
// frames for canceled utterances are skipped by the outbound writer.
func (c *Call) IsCanceled(utteranceID string) bool {
	c.canceledMu.Lock()
	defer c.canceledMu.Unlock()
	return c.canceled[utteranceID]
}

func (c *Call) markCanceled(utteranceID string) {
	c.canceledMu.Lock()
	c.canceled[utteranceID] = true
	c.canceledMu.Unlock()
}

// Run drives the call until the engagement completes, the caller stays
// silent too long, or ctx is canceled. It closes the outbound channels
// on return.
func (c *Call) Run(ctx context.Context) error {
	var utterance strings.Builder
	var speakCancel context.CancelFunc
	currentUtterance := ""
	endAfterSpeaking := ""

	// Stop any in-flight playback and wait for its goroutine before
	// closing the outbound channels it writes to.
	defer func() {
		if speakCancel != nil {
			speakCancel()
		}
		c.speakers.Wait()
		close(c.priority)
		close(c.normal)
	}()

	stream, err := c.deps.STT.NewStream(ctx, TranscribeOptions{
		SampleRate:    c.cfg.Audio.SampleRate,
		EndpointingMs: 500,
	})
	if err != nil {
		return err
	}
	defer stream.Close()

	window := NewEnergyWindow(c.cfg.Audio, c.cfg.BargeInWindowMs)

	turns := make(chan turnOutcome, 1)
	spoken := make(chan speakFinished, 4)

	silence := time.NewTimer(c.cfg.SilenceTimeout)
	defer silence.Stop()

	c.setState(StateListening)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case frame := <-c.audioIn:
			if err := stream.SendAudio(frame); err != nil {
				c.log.Warn("stt send failed", "error", err)
			}
			if c.state == StateSpeaking {
				window.Write(frame)
				if window.DurationMs() >= c.cfg.BargeInWindowMs/2 && window.RMS() > c.cfg.BargeInThreshold {
					c.log.Info("barge-in detected", "energy", window.RMS(), "utterance_id", currentUtterance)
					c.bargeIn(&speakCancel, currentUtterance, window)
					c.resetSilence(silence)
				}
			}

		case delta, ok := <-stream.Deltas():
			if !ok {
				return stream.Close()
			}
			if delta.Text != "" {
				c.resetSilence(silence)
				c.reengages = 0
				if c.state == StateSpeaking {
					// Speech survived the energy gate, treat it as a
					// barge-in even if the RMS check missed it.
					c.bargeIn(&speakCancel, currentUtterance, window)
				}
			}
			if delta.IsFinal && delta.Text != "" {
				if utterance.Len() > 0 {
					utterance.WriteString(" ")
				}
				utterance.WriteString(strings.TrimSpace(delta.Text))
				c.sendEvent(Event{Type: "transcript", SessionID: c.sessionID, Text: utterance.String()})
			}
			if delta.UtteranceEnd && utterance.Len() > 0 && c.state == StateListening {
				text := utterance.String()
				utterance.Reset()
				c.setState(StateProcessing)
				go c.runTurn(ctx, text, turns)
			}

		case outcome := <-turns:
			reply := ""
			if outcome.err != nil {
				c.turnSeq++
				reply = c.deps.Profile.Fallback(c.turnSeq)
				c.log.Warn("turn failed, speaking fallback", "error", outcome.err)
			} else {
				reply = outcome.result.Reply
				c.sendEvent(Event{Type: "reply", SessionID: c.sessionID, Text: reply})
				if outcome.result.State == engage.StatusCompleted {
					endAfterSpeaking = outcome.result.Meta.EndReason
				}
			}
			currentUtterance = c.nextUtteranceID()
			window.Clear()
			c.setState(StateSpeaking)
			speakCtx, cancel := context.WithCancel(ctx)
			speakCancel = cancel
			c.speakers.Add(1)
			go c.speak(speakCtx, currentUtterance, reply, spoken)

		case fin := <-spoken:
			if fin.utteranceID != currentUtterance {
				continue
			}
			if speakCancel != nil {
				speakCancel()
				speakCancel = nil
			}
			if fin.err != nil {
				c.log.Warn("playback failed", "error", fin.err, "utterance_id", fin.utteranceID)
			}
			if endAfterSpeaking != "" {
				c.end(endAfterSpeaking)
				return nil
			}
			c.setState(StateListening)
			c.resetSilence(silence)

		case <-silence.C:
			if c.state != StateListening {
				c.resetSilence(silence)
				continue
			}
			if c.reengages >= c.cfg.MaxReengagements {
				c.end("caller_silent")
				return nil
			}
			c.reengages++
			line := c.deps.Profile.Reengage(c.reengageSeq)
			c.reengageSeq++
			c.log.Info("re-engaging silent caller", "attempt", c.reengages)
			currentUtterance = c.nextUtteranceID()
			window.Clear()
			c.setState(StateSpeaking)
			speakCtx, cancel := context.WithCancel(ctx)
			speakCancel = cancel
			c.speakers.Add(1)
			go c.speak(speakCtx, currentUtterance, line, spoken)
		}
	}
}

// runTurn submits the utterance as a text turn. The engine owns
// admission, serialization and the turn deadline.
func (c *Call) runTurn(ctx context.Context, text string, out chan<- turnOutcome) {
	res, err := c.deps.Engager.Submit(ctx, engage.InboundEvent{
		SessionID: c.sessionID,
		Channel:   engage.ChannelVoice,
		Text:      text,
		At:        time.Now().UTC(),
	})
	select {
	case out <- turnOutcome{result: res, err: err}:
	case <-ctx.Done():
	}
}

// speak synthesizes one utterance and queues its audio frames.
func (c *Call) speak(ctx context.Context, utteranceID, text string, done chan<- speakFinished) {
	defer c.speakers.Done()
	finish := func(err error) {
		select {
		case done <- speakFinished{utteranceID: utteranceID, err: err}:
		case <-ctx.Done():
		}
	}

	stream, err := c.deps.TTS.NewSpeechStream(ctx, c.deps.Speak)
	if err != nil {
		finish(err)
		return
	}
	defer stream.Close()

	if err := stream.SendText(text, false); err != nil {
		finish(err)
		return
	}
	if err := stream.Flush(); err != nil {
		finish(err)
		return
	}

	for {
		select {
		case <-ctx.Done():
			finish(ctx.Err())
			return
		case chunk, ok := <-stream.Audio():
			if !ok {
				finish(stream.Err())
				return
			}
			select {
			case c.normal <- outboundFrame{audioPayload: chunk, utteranceID: utteranceID}:
			case <-ctx.Done():
				finish(ctx.Err())
				return
			}
		}
	}
}

func (c *Call) bargeIn(speakCancel *context.CancelFunc, utteranceID string, window *EnergyWindow) {
	if *speakCancel != nil {
		(*speakCancel)()
		*speakCancel = nil
	}
	if utteranceID != "" {
		c.markCanceled(utteranceID)
	}
	window.Clear()
	c.setState(StateListening)
	c.sendEvent(Event{Type: "barge_in", SessionID: c.sessionID})
}

func (c *Call) end(reason string) {
	c.state = StateEnded
	c.sendEvent(Event{Type: "ended", SessionID: c.sessionID, Reason: reason})
	c.log.Info("call ended", "reason", reason)
}

func (c *Call) setState(s CallState) {
	if c.state == s {
		return
	}
	c.state = s
	c.sendEvent(Event{Type: "state", SessionID: c.sessionID, State: s.String()})
}

func (c *Call) sendEvent(ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	select {
	case c.priority <- outboundFrame{textPayload: payload}:
	default:
		c.log.Warn("event dropped, priority queue full", "type", ev.Type)
	}
}

func (c *Call) resetSilence(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(c.cfg.SilenceTimeout)
}

func (c *Call) nextUtteranceID() string {
	c.utteranceSeq++
	return "utt_" + c.sessionID + "_" + strconv.Itoa(c.utteranceSeq)
}
