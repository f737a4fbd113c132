package ai

import "context"

// Provider is a minimal LLM completion interface. The scenario supply and the
// host persona are both built on top of it.
type Provider interface {
	Complete(ctx context.Context, model string, prompt string) (string, error)
	CompleteWithSystem(ctx context.Context, model string, systemPrompt string, prompt string) (string, error)
}
