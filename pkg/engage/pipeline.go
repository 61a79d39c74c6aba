package engage

import (
	"context"
	"log/slog"
	"time"

	"github.com/lurelab/lure/pkg/core"
	"github.com/lurelab/lure/pkg/detect"
	"github.com/lurelab/lure/pkg/extract"
	"github.com/lurelab/lure/pkg/persona"
	"github.com/lurelab/lure/pkg/timeline"
)

// Notifier receives committed turn events. Implementations must not
// block; delivery is best effort and never affects the turn.
type Notifier interface {
	TurnCommitted(ev TurnEvent)
}

// TurnEvent is what observers see after a turn commits.
type TurnEvent struct {
	Session *Session
	Inbound InboundEvent
	Result  *TurnResult
}

// PipelineDeps wires the pipeline's collaborators.
type PipelineDeps struct {
	Store      Store
	Detector   *detect.Detector
	Responder  *persona.Responder
	Validator  *persona.Validator
	Aggregator *timeline.Aggregator
	Notifier   Notifier // optional
	Now        func() time.Time
	Logger     *slog.Logger
}

// probeTurns is how many caller turns an unconvicted session keeps
// engaging before the decoy exits politely. Soft-start scams often
// open with harmless small talk, so benign-looking sessions get a
// short grace window rather than an immediate brush-off.
const probeTurns = 3

// Pipeline runs the fixed stage order for one turn:
// load, classify, extract, respond, validate, aggregate, persist, decide.
// Stage failures degrade to fallbacks; only store failures are fatal.
type Pipeline struct {
	store      Store
	detector   *detect.Detector
	responder  *persona.Responder
	validator  *persona.Validator
	aggregator *timeline.Aggregator
	notifier   Notifier
	now        func() time.Time
	logger     *slog.Logger
}

// NewPipeline creates a Pipeline.
func NewPipeline(deps PipelineDeps) *Pipeline {
	p := &Pipeline{
		store:      deps.Store,
		detector:   deps.Detector,
		responder:  deps.Responder,
		validator:  deps.Validator,
		aggregator: deps.Aggregator,
		notifier:   deps.Notifier,
		now:        deps.Now,
		logger:     deps.Logger,
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// Run executes one turn. The returned error is nil for every degraded
// path; it is non-nil only when the turn could not commit (store
// failure or context expiry before persist).
func (p *Pipeline) Run(ctx context.Context, ev InboundEvent) (*TurnResult, error) {
	var trace []StageTrace
	now := p.now()
	profile := p.responder.Profile()

	// Load.
	sess, err := p.store.Load(ctx, ev.SessionID)
	switch {
	case err == nil:
	case err == ErrSessionNotFound:
		sess = &Session{
			ID:        ev.SessionID,
			Channel:   ev.Channel,
			Status:    StatusEngaged,
			Label:     detect.LabelUnknown,
			CreatedAt: now,
		}
	default:
		return nil, core.NewStoreError(ev.SessionID, err)
	}
	trace = append(trace, StageTrace{Stage: StageLoad})

	if sess.Status == StatusCompleted {
		return nil, core.NewInvalidRequestError("session already completed")
	}

	inbound := Message{Role: persona.RoleCaller, Text: ev.Text, At: ev.At}
	if inbound.At.IsZero() {
		inbound.At = now
	}
	sess.Messages = append(sess.Messages, inbound)
	callerCount := sess.CallerMessages()

	// Classify. The verdict latches: a session convicted once stays
	// convicted, later turns only refine the type.
	verdict := p.detector.Classify(ev.Text)
	if verdict.IsScam() {
		sess.Label = detect.LabelScam
		if verdict.ScamType != "" {
			sess.ScamType = verdict.ScamType
		}
	} else if sess.Label != detect.LabelScam && verdict.Label != detect.LabelUnknown {
		sess.Label = verdict.Label
	}
	trace = append(trace, StageTrace{Stage: StageClassify})

	trustedSender := verdict.Source == detect.SourceAllowlist && sess.Label != detect.LabelScam
	probeExpired := !trustedSender && sess.Label != detect.LabelScam && callerCount > probeTurns

	// Extract over the full caller history, raw and normalized.
	allFindings := extract.Extract(sess.CallerTexts())
	newFindings := diffFindings(sess.Findings, allFindings)
	sess.Findings = allFindings
	trace = append(trace, StageTrace{Stage: StageExtract})

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Respond.
	var reply string
	fastPath := false
	degradedReason := ""
	switch {
	case trustedSender, probeExpired:
		reply = profile.PoliteExit(callerCount)
		fastPath = true
	case callerCount == 1 && sess.Label != detect.LabelScam:
		// Brand-new session, nothing convicted yet: a canned opener
		// answers instantly without an inference round trip.
		reply = profile.Opener(callerCount)
		fastPath = true
	default:
		r := p.responder.Respond(ctx, toPersonaHistory(sess.Messages))
		reply = r.Text
		if r.Degraded {
			degradedReason = r.Reason
		}
	}
	trace = append(trace, StageTrace{Stage: StageRespond, Fallback: degradedReason != "", Reason: degradedReason})

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Validate.
	vr := p.validator.Check(reply, callerCount)
	reply = vr.Reply
	trace = append(trace, StageTrace{
		Stage:    StageValidate,
		Fallback: vr.Overridden,
		Reason:   overrideReason(vr.Overridden),
	})

	// Aggregate: cumulative confidence, phases, termination decision.
	sess.Confidence = p.aggregator.Confidence(sess.Confidence, verdict.Confidence, callerCount == 1)
	sess.Phases = timeline.Phases(sess.CallerTexts())

	endReason := ""
	if trustedSender {
		sess.Status = StatusCompleted
		endReason = "trusted_sender"
	} else if probeExpired {
		sess.Status = StatusCompleted
		endReason = "not_scam"
	} else if end, reason := p.aggregator.ShouldEnd(callerCount, extract.Categories(sess.Findings)); end {
		sess.Status = StatusCompleted
		endReason = reason
		// Close in character when confidence supports completion;
		// otherwise the exit stays a plain polite line.
		if p.aggregator.CanComplete(sess.Confidence) {
			reply = profile.Closing(callerCount)
		} else {
			reply = profile.PoliteExit(callerCount)
		}
	}
	sess.EndReason = endReason
	trace = append(trace, StageTrace{Stage: StageAggregate})

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Persist. The only fatal stage: a turn that cannot commit
	// surfaces a store error and leaves no partial state behind.
	outbound := Message{Role: persona.RoleDecoy, Text: reply, At: p.now()}
	sess.Messages = append(sess.Messages, outbound)
	sess.UpdatedAt = p.now()
	if err := p.store.Commit(ctx, CommitRequest{
		Session:     sess,
		Inbound:     inbound,
		Reply:       outbound,
		NewFindings: newFindings,
	}); err != nil {
		return nil, core.NewStoreError(ev.SessionID, err)
	}
	trace = append(trace, StageTrace{Stage: StagePersist})

	// Decide.
	trace = append(trace, StageTrace{Stage: StageDecide})
	result := &TurnResult{
		SessionID: sess.ID,
		Reply:     reply,
		State:     sess.Status,
		Meta: TurnMeta{
			Label:               sess.Label,
			ScamType:            sess.ScamType,
			Confidence:          sess.Confidence,
			NewFindings:         newFindings,
			TotalFindings:       len(sess.Findings),
			Stages:              trace,
			FastPath:            fastPath,
			ValidatorOverridden: vr.Overridden,
			Redactions:          vr.Redactions,
			EndReason:           endReason,
		},
	}

	if sess.Status == StatusCompleted {
		p.logger.Info("session completed",
			"session_id", sess.ID,
			"reason", endReason,
			"summary", timeline.Summary(sess.ScamType, sess.Confidence, callerCount, len(sess.Findings), sess.Phases),
		)
	}

	if p.notifier != nil {
		p.notifier.TurnCommitted(TurnEvent{Session: sess, Inbound: ev, Result: result})
	}
	return result, nil
}

func toPersonaHistory(messages []Message) []persona.Message {
	out := make([]persona.Message, 0, len(messages))
	for _, m := range messages {
		out = append(out, persona.Message{Role: m.Role, Text: m.Text})
	}
	return out
}

func diffFindings(old, current []extract.Finding) []extract.Finding {
	seen := make(map[string]struct{}, len(old))
	for _, f := range old {
		seen[f.Key()] = struct{}{}
	}
	var out []extract.Finding
	for _, f := range current {
		if _, ok := seen[f.Key()]; !ok {
			out = append(out, f)
		}
	}
	return out
}

func overrideReason(overridden bool) string {
	if overridden {
		return "validator_override"
	}
	return ""
}
