package ai

import "context"

// LLMProvider sends a prompt to an LLM and returns the raw text response.
// Implementations must not retry: a failed call is reported as an error and
// the message it belongs to is retried on a later run.
type LLMProvider interface {
	Complete(ctx context.Context, prompt string) (string, error)
}
