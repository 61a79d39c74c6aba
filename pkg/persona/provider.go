package persona

import "context"

// Provider is the inference backend that turns conversation history
// into a candidate reply.
type Provider interface {
	// Name returns the provider identifier.
	Name() string

	// Reply generates the decoy's next line given the system prompt and
	// bounded history. The last message is the caller's latest.
	Reply(ctx context.Context, req ReplyRequest) (string, error)
}

// ReplyRequest carries everything a provider needs for one completion.
type ReplyRequest struct {
	System      string
	History     []Message
	MaxTokens   int
	Temperature float64
}
