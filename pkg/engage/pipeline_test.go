package engage

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lurelab/lure/pkg/core"
	"github.com/lurelab/lure/pkg/detect"
	"github.com/lurelab/lure/pkg/extract"
	"github.com/lurelab/lure/pkg/persona"
	"github.com/lurelab/lure/pkg/timeline"
)

type fakeStore struct {
	mu        sync.Mutex
	sessions  map[string]*Session
	commits   int
	loadErr   error
	commitErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{sessions: make(map[string]*Session)}
}

func (s *fakeStore) Load(_ context.Context, id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	cp := *sess
	cp.Messages = append([]Message(nil), sess.Messages...)
	cp.Findings = append([]extract.Finding(nil), sess.Findings...)
	return &cp, nil
}

func (s *fakeStore) Commit(_ context.Context, req CommitRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.commitErr != nil {
		return s.commitErr
	}
	cp := *req.Session
	s.sessions[req.Session.ID] = &cp
	s.commits++
	return nil
}

func (s *fakeStore) Stats(context.Context) (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{TotalSessions: int64(len(s.sessions))}, nil
}

type stubProvider struct {
	mu    sync.Mutex
	reply string
	err   error
	calls int
}

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) Reply(context.Context, persona.ReplyRequest) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return "", p.err
	}
	return p.reply, nil
}

func (p *stubProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type captureNotifier struct {
	mu     sync.Mutex
	events []TurnEvent
}

func (n *captureNotifier) TurnCommitted(ev TurnEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
}

func newTestPipeline(store Store, provider persona.Provider, notifier Notifier) *Pipeline {
	profile := persona.DefaultProfile()
	return NewPipeline(PipelineDeps{
		Store:      store,
		Detector:   detect.New(),
		Responder:  persona.NewResponder(provider, profile, persona.WithRetryDelay(time.Millisecond)),
		Validator:  persona.NewValidator(profile),
		Aggregator: timeline.New(timeline.DefaultPolicy()),
		Notifier:   notifier,
	})
}

func TestRunScamTurnCommits(t *testing.T) {
	store := newFakeStore()
	provider := &stubProvider{reply: "Which OTP, beta? I got so many messages today."}
	notifier := &captureNotifier{}
	p := newTestPipeline(store, provider, notifier)

	res, err := p.Run(context.Background(), InboundEvent{
		SessionID: "s1",
		Channel:   ChannelSMS,
		Text:      "send OTP to 9876543210 or pay via scammer@paytm",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if res.Meta.Label != detect.LabelScam {
		t.Fatalf("label=%s, want SCAM", res.Meta.Label)
	}
	if res.Meta.ScamType != detect.ScamUPI {
		t.Fatalf("scamType=%s, want UPI_SCAM", res.Meta.ScamType)
	}

	kinds := make(map[extract.Kind]bool)
	for _, f := range res.Meta.NewFindings {
		kinds[f.Kind] = true
	}
	if !kinds[extract.KindPhone] || !kinds[extract.KindUPI] {
		t.Fatalf("new findings=%v, want phone and upi", res.Meta.NewFindings)
	}

	if store.commits != 1 {
		t.Fatalf("commits=%d, want 1", store.commits)
	}
	if len(notifier.events) != 1 {
		t.Fatalf("notifier events=%d, want 1", len(notifier.events))
	}
	if res.State != StatusEngaged {
		t.Fatalf("state=%s", res.State)
	}

	// Stage order is fixed.
	var stages []string
	for _, st := range res.Meta.Stages {
		stages = append(stages, st.Stage)
	}
	want := []string{StageLoad, StageClassify, StageExtract, StageRespond, StageValidate, StageAggregate, StagePersist, StageDecide}
	if strings.Join(stages, ",") != strings.Join(want, ",") {
		t.Fatalf("stages=%v, want %v", stages, want)
	}
}

func TestRunProviderDegradedStillCommits(t *testing.T) {
	store := newFakeStore()
	provider := &stubProvider{err: errors.New("inference timeout")}
	p := newTestPipeline(store, provider, nil)

	// Second turn of a scam session forces the provider path.
	seedScamSession(t, p, store)

	res, err := p.Run(context.Background(), InboundEvent{
		SessionID: "s1",
		Text:      "pay the fee now or your account is blocked",
	})
	if err != nil {
		t.Fatalf("degraded turn must commit, got %v", err)
	}
	if res.Reply == "" {
		t.Fatalf("degraded turn has empty reply")
	}
	if !res.Meta.Degraded() {
		t.Fatalf("meta not marked degraded: %+v", res.Meta)
	}
	found := false
	for _, st := range res.Meta.Stages {
		if st.Stage == StageRespond && st.Fallback && st.Reason == "provider_degraded" {
			found = true
		}
	}
	if !found {
		t.Fatalf("respond stage not marked fallback: %+v", res.Meta.Stages)
	}
	// Two calls per degraded turn: initial plus one retry, for the
	// seed turn and for this one.
	if provider.callCount() != 4 {
		t.Fatalf("provider calls=%d, want 4", provider.callCount())
	}
	if store.commits != 2 {
		t.Fatalf("commits=%d, want seed plus degraded turn", store.commits)
	}
}

func TestRunFirstTurnFastPath(t *testing.T) {
	store := newFakeStore()
	provider := &stubProvider{reply: "should not be called"}
	p := newTestPipeline(store, provider, nil)

	res, err := p.Run(context.Background(), InboundEvent{
		SessionID: "fresh",
		Text:      "hello ji, how are you",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Meta.FastPath {
		t.Fatalf("first unclassified turn did not use fast path")
	}
	if provider.callCount() != 0 {
		t.Fatalf("provider called %d times on fast path", provider.callCount())
	}
	if res.Reply == "" {
		t.Fatalf("fast path reply empty")
	}
}

func TestRunTrustedSenderCompletesPolitely(t *testing.T) {
	store := newFakeStore()
	provider := &stubProvider{reply: "x"}
	p := newTestPipeline(store, provider, nil)

	res, err := p.Run(context.Background(), InboundEvent{
		SessionID: "bank",
		Text:      "Rs 500 debited. Your OTP is 123456, do not share this OTP with anyone. Valid for 10 min.",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.State != StatusCompleted {
		t.Fatalf("state=%s, want completed for trusted sender", res.State)
	}
	if res.Meta.EndReason != "trusted_sender" {
		t.Fatalf("endReason=%q", res.Meta.EndReason)
	}
	if provider.callCount() != 0 {
		t.Fatalf("provider called for trusted sender")
	}
}

func TestRunProbeWindowExitsUnconvictedSession(t *testing.T) {
	store := newFakeStore()
	provider := &stubProvider{reply: "Haan beta, tell me more."}
	p := newTestPipeline(store, provider, nil)

	// Benign small talk engages through the probe window.
	turns := []string{
		"hey are we still on for dinner tonight",
		"the meeting moved to tomorrow morning",
		"happy birthday hope you have a great day",
	}
	for i, text := range turns {
		res, err := p.Run(context.Background(), InboundEvent{SessionID: "chatty", Text: text})
		if err != nil {
			t.Fatalf("turn %d: %v", i+1, err)
		}
		if res.State != StatusEngaged {
			t.Fatalf("turn %d state=%s, want engaged inside probe window", i+1, res.State)
		}
	}

	// The fourth turn without a conviction gets the polite exit.
	res, err := p.Run(context.Background(), InboundEvent{SessionID: "chatty", Text: "ok see you tomorrow morning then"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.State != StatusCompleted {
		t.Fatalf("state=%s, want completed past probe window", res.State)
	}
	if res.Meta.EndReason != "not_scam" {
		t.Fatalf("endReason=%q, want not_scam", res.Meta.EndReason)
	}
	if !res.Meta.FastPath {
		t.Fatalf("probe exit should not call the provider")
	}
}

func TestRunProbeWindowDoesNotApplyToConvictedSession(t *testing.T) {
	store := newFakeStore()
	provider := &stubProvider{reply: "Which account number, beta?"}
	p := newTestPipeline(store, provider, nil)
	seedScamSession(t, p, store)

	// Convicted sessions keep engaging past the probe window even if
	// later messages look harmless.
	for i, text := range []string{"hello", "are you there", "ok", "fine"} {
		res, err := p.Run(context.Background(), InboundEvent{SessionID: "s1", Text: text})
		if err != nil {
			t.Fatalf("turn %d: %v", i+2, err)
		}
		if res.State != StatusEngaged {
			t.Fatalf("turn %d state=%s, want engaged for convicted session", i+2, res.State)
		}
	}
}

func TestRunCompletedSessionRejectsTurns(t *testing.T) {
	store := newFakeStore()
	store.sessions["done"] = &Session{ID: "done", Status: StatusCompleted}
	p := newTestPipeline(store, &stubProvider{reply: "x"}, nil)

	_, err := p.Run(context.Background(), InboundEvent{SessionID: "done", Text: "more"})
	var ce *core.Error
	if !errors.As(err, &ce) || ce.Type != core.ErrInvalidRequest {
		t.Fatalf("err=%v, want invalid request", err)
	}
}

func TestRunStoreLoadFailureIsFatal(t *testing.T) {
	store := newFakeStore()
	store.loadErr = errors.New("connection refused")
	p := newTestPipeline(store, &stubProvider{reply: "x"}, nil)

	_, err := p.Run(context.Background(), InboundEvent{SessionID: "s", Text: "hi"})
	var ce *core.Error
	if !errors.As(err, &ce) || ce.Type != core.ErrStore {
		t.Fatalf("err=%v, want store error", err)
	}
}

func TestRunStoreCommitFailureIsFatal(t *testing.T) {
	store := newFakeStore()
	store.commitErr = errors.New("tx aborted")
	p := newTestPipeline(store, &stubProvider{reply: "x"}, nil)

	_, err := p.Run(context.Background(), InboundEvent{SessionID: "s", Text: "hi"})
	var ce *core.Error
	if !errors.As(err, &ce) || ce.Type != core.ErrStore {
		t.Fatalf("err=%v, want store error", err)
	}
	if store.commits != 0 {
		t.Fatalf("commits=%d, want 0", store.commits)
	}
}

func TestRunCanceledContextDoesNotCommit(t *testing.T) {
	store := newFakeStore()
	ctx, cancel := context.WithCancel(context.Background())

	// Cancel while the provider is in flight.
	provider := &stubProvider{err: errors.New("slow")}
	p := newTestPipeline(store, provider, nil)
	seedScamSession(t, p, store)
	before := store.commits

	cancel()
	_, err := p.Run(ctx, InboundEvent{SessionID: "s1", Text: "pay the processing fee now"})
	if err == nil {
		t.Fatalf("want error for canceled context")
	}
	if store.commits != before {
		t.Fatalf("canceled turn committed")
	}
}

func TestRunIntelligenceRichSessionEnds(t *testing.T) {
	store := newFakeStore()
	provider := &stubProvider{reply: "Let me write that down slowly..."}
	p := newTestPipeline(store, provider, nil)
	seedScamSession(t, p, store)

	res, err := p.Run(context.Background(), InboundEvent{
		SessionID: "s1",
		Text:      "pay to scammer@paytm or account 123456789012, call 9876543210 if issues",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.State != StatusCompleted {
		t.Fatalf("state=%s, want completed with 3+ finding categories", res.State)
	}
	if res.Meta.EndReason != "intelligence_rich" {
		t.Fatalf("endReason=%q", res.Meta.EndReason)
	}
	// The committed session refuses further turns.
	if _, err := p.Run(context.Background(), InboundEvent{SessionID: "s1", Text: "hello?"}); err == nil {
		t.Fatalf("completed session accepted another turn")
	}
}

func TestRunExtractionAccumulatesWithoutDuplicates(t *testing.T) {
	store := newFakeStore()
	provider := &stubProvider{reply: "Okay beta."}
	p := newTestPipeline(store, provider, nil)

	res1, err := p.Run(context.Background(), InboundEvent{SessionID: "s2", Text: "urgent kyc blocked, pay scammer@paytm"})
	if err != nil {
		t.Fatalf("turn 1: %v", err)
	}
	if len(res1.Meta.NewFindings) != 1 {
		t.Fatalf("turn 1 new findings=%v", res1.Meta.NewFindings)
	}

	res2, err := p.Run(context.Background(), InboundEvent{SessionID: "s2", Text: "I repeat: scammer@paytm"})
	if err != nil {
		t.Fatalf("turn 2: %v", err)
	}
	if len(res2.Meta.NewFindings) != 0 {
		t.Fatalf("repeated artifact counted as new: %v", res2.Meta.NewFindings)
	}
	if res2.Meta.TotalFindings != 1 {
		t.Fatalf("total findings=%d, want 1", res2.Meta.TotalFindings)
	}
}

// seedScamSession runs one convicting first turn for session s1.
func seedScamSession(t *testing.T, p *Pipeline, store *fakeStore) {
	t.Helper()
	_, err := p.Run(context.Background(), InboundEvent{
		SessionID: "s1",
		Text:      "your kyc is pending, account will be blocked, share otp",
	})
	if err != nil {
		t.Fatalf("seed turn: %v", err)
	}
	if store.sessions["s1"].Label != detect.LabelScam {
		t.Fatalf("seed turn did not convict: %+v", store.sessions["s1"])
	}
}
