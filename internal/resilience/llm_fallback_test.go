package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nwehr/confab/pkg/provider/llm"
	llmmock "github.com/nwehr/confab/pkg/provider/llm/mock"
)

func TestLLMFallbackPrimarySucceeds(t *testing.T) {
	primary := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "from primary"},
	}
	backup := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "from backup"},
	}

	f := NewLLMFallback(primary, "openai", FallbackConfig{})
	f.AddFallback("ollama", backup)

	resp, err := f.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "from primary" {
		t.Errorf("Content = %q", resp.Content)
	}
	if len(backup.Calls()) != 0 {
		t.Error("backup should not be called when primary succeeds")
	}
}

func TestLLMFallbackFailsOver(t *testing.T) {
	primary := &llmmock.Provider{CompleteErr: errors.New("rate limited")}
	backup := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "from backup"},
	}

	f := NewLLMFallback(primary, "openai", FallbackConfig{})
	f.AddFallback("ollama", backup)

	resp, err := f.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "from backup" {
		t.Errorf("Content = %q", resp.Content)
	}
}

func TestLLMFallbackOpenBreakerSkipsPrimary(t *testing.T) {
	primary := &llmmock.Provider{CompleteErr: errors.New("down")}
	backup := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "from backup"},
	}

	f := NewLLMFallback(primary, "openai", FallbackConfig{
		CircuitBreaker: BreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour},
	})
	f.AddFallback("ollama", backup)

	ctx := context.Background()
	req := llm.CompletionRequest{Messages: []llm.Message{{Role: "user", Content: "hi"}}}

	// First call trips the primary's breaker.
	if _, err := f.Complete(ctx, req); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	// Second call must bypass the primary entirely.
	if _, err := f.Complete(ctx, req); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	if got := len(primary.Calls()); got != 1 {
		t.Errorf("primary called %d times, want 1", got)
	}
	if got := len(backup.Calls()); got != 2 {
		t.Errorf("backup called %d times, want 2", got)
	}
}
