package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/carebridge/carebridge/internal/platform/retry"
)

func TestWithRetryRecoversFromTransient(t *testing.T) {
	calls := 0
	gen := GeneratorFunc(func(ctx context.Context, prompt string) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("503 Service Unavailable")
		}
		return "ok", nil
	})

	policy := retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond}
	out, err := WithRetry(gen, policy).Generate(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out != "ok" {
		t.Errorf("Generate = %q, want ok", out)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestWithRetryStopsOnTerminalError(t *testing.T) {
	calls := 0
	terminal := errors.New("API key not valid")
	gen := GeneratorFunc(func(ctx context.Context, prompt string) (string, error) {
		calls++
		return "", terminal
	})

	policy := retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond}
	_, err := WithRetry(gen, policy).Generate(context.Background(), "hello")
	if !errors.Is(err, terminal) {
		t.Fatalf("Generate err = %v, want terminal error", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}
