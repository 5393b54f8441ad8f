package llm

import (
	"context"

	"github.com/carebridge/carebridge/internal/platform/retry"
)

type retryingGenerator struct {
	inner  Generator
	policy retry.Policy
}

// WithRetry wraps a Generator so every Generate call runs under the policy.
func WithRetry(inner Generator, policy retry.Policy) Generator {
	return &retryingGenerator{inner: inner, policy: policy}
}

func (g *retryingGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	var out string
	err := g.policy.Do(ctx, func() error {
		var genErr error
		out, genErr = g.inner.Generate(ctx, prompt)
		return genErr
	})
	if err != nil {
		return "", err
	}
	return out, nil
}
