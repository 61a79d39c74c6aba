// Package detect classifies inbound messages as scam activity. It runs
// two tiers: a deterministic rule tier for known scripts and allowlisted
// senders, then a naive Bayes statistical tier for everything else.
package detect

import (
	"log/slog"
	"strings"

	"github.com/lurelab/lure/pkg/extract"
)

// Classification labels.
const (
	LabelScam      = "SCAM"
	LabelHam       = "NOT_SCAM"
	LabelJailbreak = "JAILBREAK_ATTEMPT"
	LabelUnknown   = "UNKNOWN"
)

// Scam types.
const (
	ScamDigitalArrest = "DIGITAL_ARREST"
	ScamUPI           = "UPI_SCAM"
	ScamJob           = "JOB_SCAM"
	ScamSextortion    = "SEXTORTION"
	ScamLottery       = "LOTTERY_SCAM"
)

// Verdict sources.
const (
	SourceRules     = "rules"
	SourceAllowlist = "allowlist"
	SourceModel     = "model"
)

// Verdict is the outcome of classifying a message in its session context.
type Verdict struct {
	Label      string  `json:"label"`
	ScamType   string  `json:"scam_type,omitempty"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source"`
}

// IsScam reports whether the verdict convicts the counterparty.
func (v Verdict) IsScam() bool {
	return v.Label == LabelScam || v.Label == LabelJailbreak
}

// Detector combines the rule and statistical tiers.
type Detector struct {
	model  *bayes
	logger *slog.Logger

	// modelThreshold is the minimum posterior for the statistical tier
	// to convict; below it the verdict stays UNKNOWN.
	modelThreshold float64
}

// Option configures a Detector.
type Option func(*Detector)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Detector) { d.logger = logger }
}

// WithModelThreshold overrides the statistical tier conviction threshold.
func WithModelThreshold(t float64) Option {
	return func(d *Detector) { d.modelThreshold = t }
}

// New builds a Detector, training the statistical tier from the
// embedded corpus.
func New(opts ...Option) *Detector {
	d := &Detector{
		model:          newBayes(trainingCorpus),
		modelThreshold: 0.65,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	return d
}

// Classify returns a verdict for the latest message. The tier order is
// fixed: allowlist, jailbreak triggers, keyword rules, statistical model.
// Rule verdicts carry pinned near-certain confidence; only the model
// tier produces graded confidence.
func (d *Detector) Classify(text string) Verdict {
	if strings.TrimSpace(text) == "" {
		return Verdict{Label: LabelUnknown, Source: SourceRules}
	}

	collapsed := extract.CollapseSpacedLetters(text)
	lower := strings.ToLower(collapsed)

	if matchTrustedSender(collapsed) {
		return Verdict{Label: LabelHam, Confidence: 0.0, Source: SourceAllowlist}
	}

	if matchJailbreak(collapsed) {
		return Verdict{Label: LabelJailbreak, Confidence: 0.99, Source: SourceRules}
	}

	if scamType, ok := matchCritical(lower); ok {
		return Verdict{Label: LabelScam, ScamType: scamType, Confidence: 1.0, Source: SourceRules}
	}

	if score, _ := ruleScore(lower); score >= 0.8 {
		return Verdict{
			Label:      LabelScam,
			ScamType:   classifyType(lower),
			Confidence: 0.95,
			Source:     SourceRules,
		}
	}

	label, p := d.model.predict(lower)
	d.logger.Debug("model tier", "label", label, "posterior", p)

	if label == LabelScam && p >= d.modelThreshold {
		return Verdict{
			Label:      LabelScam,
			ScamType:   classifyType(lower),
			Confidence: p,
			Source:     SourceModel,
		}
	}
	if label == LabelHam && p >= d.modelThreshold {
		return Verdict{Label: LabelHam, Confidence: 1 - p, Source: SourceModel}
	}
	return Verdict{Label: LabelUnknown, Confidence: p, Source: SourceModel}
}
