// Package llm wraps the text-generation service behind a narrow Generator
// interface so agents and classifiers depend on a single call shape:
// prompt in, text out.
package llm

import "context"

// Generator produces text for a prompt. Implementations must be safe for
// concurrent use.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}
