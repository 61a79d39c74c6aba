package persona

import (
	"context"
	"log/slog"
	"time"
)

// Responder wraps a Provider with the policies that keep the
// conversation alive: bounded history, one retry with a short backoff,
// and a rotating static fallback when the provider stays down.
type Responder struct {
	provider Provider
	profile  Profile

	maxHistory  int
	maxTokens   int
	temperature float64
	retryDelay  time.Duration

	sleep  func(ctx context.Context, d time.Duration)
	logger *slog.Logger
}

// ResponderOption configures a Responder.
type ResponderOption func(*Responder)

// WithMaxHistory bounds how many trailing messages are sent upstream.
func WithMaxHistory(n int) ResponderOption {
	return func(r *Responder) { r.maxHistory = n }
}

// WithRetryDelay sets the backoff before the single retry.
func WithRetryDelay(d time.Duration) ResponderOption {
	return func(r *Responder) { r.retryDelay = d }
}

// WithResponderLogger sets the logger.
func WithResponderLogger(logger *slog.Logger) ResponderOption {
	return func(r *Responder) { r.logger = logger }
}

// withSleep replaces the backoff sleep, for tests.
func withSleep(fn func(ctx context.Context, d time.Duration)) ResponderOption {
	return func(r *Responder) { r.sleep = fn }
}

// NewResponder creates a Responder.
func NewResponder(provider Provider, profile Profile, opts ...ResponderOption) *Responder {
	r := &Responder{
		provider:    provider,
		profile:     profile,
		maxHistory:  12,
		maxTokens:   160,
		temperature: 0.8,
		retryDelay:  250 * time.Millisecond,
		sleep: func(ctx context.Context, d time.Duration) {
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-t.C:
			case <-ctx.Done():
			}
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Profile returns the responder's decoy profile.
func (r *Responder) Profile() Profile {
	return r.profile
}

// Reply is the outcome of generating one decoy line.
type Reply struct {
	Text string

	// Degraded is set when the provider failed and a static fallback
	// was substituted. The turn still commits.
	Degraded bool
	Reason   string
}

// Respond produces the decoy's next line. It never returns an error:
// after one retry the rotating fallback line is used and the result is
// marked degraded.
func (r *Responder) Respond(ctx context.Context, history []Message) Reply {
	bounded := history
	if r.maxHistory > 0 && len(bounded) > r.maxHistory {
		bounded = bounded[len(bounded)-r.maxHistory:]
	}

	req := ReplyRequest{
		System:      r.profile.System,
		History:     bounded,
		MaxTokens:   r.maxTokens,
		Temperature: r.temperature,
	}

	text, err := r.provider.Reply(ctx, req)
	if err == nil {
		return Reply{Text: text}
	}
	firstErr := err

	if ctx.Err() == nil {
		r.sleep(ctx, r.retryDelay)
	}
	if ctx.Err() == nil {
		text, err = r.provider.Reply(ctx, req)
		if err == nil {
			return Reply{Text: text}
		}
	}

	r.logger.Warn("provider degraded, using fallback line",
		"provider", r.provider.Name(),
		"first_error", firstErr,
		"retry_error", err,
	)
	return Reply{
		Text:     r.profile.Fallback(len(history)),
		Degraded: true,
		Reason:   "provider_degraded",
	}
}
