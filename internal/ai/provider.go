package ai

import (
	"context"
	"fmt"
)

type Message struct {
	Role    string
	Content string
}

type ChatOptions struct {
	Temperature *float64
	MaxTokens   int
	// JSON asks the model for a single JSON object reply.
	JSON bool
}

type ChatOption func(*ChatOptions)

func WithTemperature(t float64) ChatOption {
	return func(o *ChatOptions) { o.Temperature = &t }
}

func WithMaxTokens(n int) ChatOption {
	return func(o *ChatOptions) { o.MaxTokens = n }
}

func WithJSONResponse() ChatOption {
	return func(o *ChatOptions) { o.JSON = true }
}

func applyOptions(opts []ChatOption) ChatOptions {
	var o ChatOptions
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

type ChatResult struct {
	Content    string
	Model      string
	TokensUsed int
}

type Provider interface {
	Chat(ctx context.Context, messages []Message, opts ...ChatOption) (*ChatResult, error)
}

// ProviderError is returned for non-2xx upstream responses.
type ProviderError struct {
	Provider string
	Status   int
	Body     string
}

func (e *ProviderError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: status %d", e.Provider, e.Status)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Provider, e.Status, e.Body)
}
