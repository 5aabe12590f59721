package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kweiler/clipscribe/pkg/media"
	asrmock "github.com/kweiler/clipscribe/pkg/provider/asr/mock"
	"github.com/kweiler/clipscribe/pkg/provider/llm"
	llmmock "github.com/kweiler/clipscribe/pkg/provider/llm/mock"
)

var errTest = errors.New("backend down")

func TestCircuitBreaker_Defaults(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "test"})
	if cb.maxFailures != 5 {
		t.Errorf("maxFailures = %d, want 5", cb.maxFailures)
	}
	if cb.resetTimeout != 30*time.Second {
		t.Errorf("resetTimeout = %v, want 30s", cb.resetTimeout)
	}
	if cb.halfOpenMax != 3 {
		t.Errorf("halfOpenMax = %d, want 3", cb.halfOpenMax)
	}
}

func TestCircuitBreaker_OpensAfterMaxFailures(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "test", MaxFailures: 2, ResetTimeout: time.Hour})

	for range 2 {
		if err := cb.Execute(func() error { return errTest }); !errors.Is(err, errTest) {
			t.Fatalf("err = %v, want %v", err, errTest)
		}
	}
	if got := cb.CurrentState(); got != StateOpen {
		t.Errorf("state = %v, want open", got)
	}
	if err := cb.Execute(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("err = %v, want ErrCircuitOpen", err)
	}
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "test", MaxFailures: 2})

	cb.Execute(func() error { return errTest })
	cb.Execute(func() error { return nil })
	cb.Execute(func() error { return errTest })

	if got := cb.CurrentState(); got != StateClosed {
		t.Errorf("state = %v, want closed", got)
	}
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:         "test",
		MaxFailures:  1,
		ResetTimeout: 10 * time.Millisecond,
		HalfOpenMax:  1,
	})

	cb.Execute(func() error { return errTest })
	if got := cb.CurrentState(); got != StateOpen {
		t.Fatalf("state = %v, want open", got)
	}

	time.Sleep(20 * time.Millisecond)

	// A successful probe closes the breaker again.
	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatalf("probe err = %v", err)
	}
	if got := cb.CurrentState(); got != StateClosed {
		t.Errorf("state = %v, want closed", got)
	}
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:         "test",
		MaxFailures:  1,
		ResetTimeout: 10 * time.Millisecond,
		HalfOpenMax:  1,
	})

	cb.Execute(func() error { return errTest })
	time.Sleep(20 * time.Millisecond)

	cb.Execute(func() error { return errTest })
	if got := cb.CurrentState(); got != StateOpen {
		t.Errorf("state = %v, want open", got)
	}
	if err := cb.Execute(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("err = %v, want ErrCircuitOpen", err)
	}
}

func TestFallbackGroup_PrimaryFirst(t *testing.T) {
	fg := NewFallbackGroup("primary", "primary", FallbackConfig{})
	fg.AddFallback("backup", "backup")

	var used string
	err := fg.Execute(func(v string) error {
		used = v
		return nil
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if used != "primary" {
		t.Errorf("used = %q, want primary", used)
	}
}

func TestFallbackGroup_FallsBackOnFailure(t *testing.T) {
	fg := NewFallbackGroup("primary", "primary", FallbackConfig{})
	fg.AddFallback("backup", "backup")

	got, err := ExecuteWithResult(fg, func(v string) (string, error) {
		if v == "primary" {
			return "", errTest
		}
		return v, nil
	})
	if err != nil {
		t.Fatalf("ExecuteWithResult: %v", err)
	}
	if got != "backup" {
		t.Errorf("result = %q, want backup", got)
	}
}

func TestFallbackGroup_AllFailed(t *testing.T) {
	fg := NewFallbackGroup("only", "only", FallbackConfig{})

	err := fg.Execute(func(string) error { return errTest })
	if !errors.Is(err, ErrAllFailed) {
		t.Errorf("err = %v, want ErrAllFailed", err)
	}
}

func TestASRFailover_UsesFallback(t *testing.T) {
	want := media.Transcript{Segments: []media.Segment{{Text: "hello", Start: 0, End: 1}}}
	primary := &asrmock.Provider{Err: errTest}
	backup := &asrmock.Provider{Result: want}

	f := NewASRFailover(primary, "primary", FallbackConfig{})
	f.AddFallback("backup", backup)

	got, err := f.Transcribe(context.Background(), "a.wav")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if len(got.Segments) != 1 || got.Segments[0].Text != "hello" {
		t.Errorf("transcript = %+v", got)
	}
	if len(primary.Paths()) != 1 || len(backup.Paths()) != 1 {
		t.Errorf("primary calls = %d, backup calls = %d, want 1/1",
			len(primary.Paths()), len(backup.Paths()))
	}
	if err := f.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestASRFailover_SkipsOpenBreaker(t *testing.T) {
	primary := &asrmock.Provider{Err: errTest}
	backup := &asrmock.Provider{}

	f := NewASRFailover(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour},
	})
	f.AddFallback("backup", backup)

	// First call trips the primary breaker, second must not touch it.
	f.Transcribe(context.Background(), "a.wav")
	f.Transcribe(context.Background(), "b.wav")

	if got := len(primary.Paths()); got != 1 {
		t.Errorf("primary calls = %d, want 1 (breaker open)", got)
	}
	if got := len(backup.Paths()); got != 2 {
		t.Errorf("backup calls = %d, want 2", got)
	}
}

func TestLLMFailover_UsesFallback(t *testing.T) {
	primary := &llmmock.Provider{Err: errTest}
	backup := &llmmock.Provider{Responses: []string{"ok"}}

	f := NewLLMFailover(primary, "primary", FallbackConfig{})
	f.AddFallback("backup", backup)

	resp, err := f.Complete(context.Background(), llm.CompletionRequest{Prompt: "hi"})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "ok" {
		t.Errorf("content = %q, want ok", resp.Content)
	}
}
