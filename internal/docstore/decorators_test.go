package docstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/herdsphere/herdsphere/internal/reliability/retry"
)

// faultStore wraps a MemoryStore and fails the next n Get calls with err.
type faultStore struct {
	*MemoryStore
	failures int
	err      error
	calls    int
}

func (f *faultStore) Get(ctx context.Context, collection, key string) (Document, error) {
	f.calls++
	if f.failures > 0 {
		f.failures--
		return nil, f.err
	}
	return f.MemoryStore.Get(ctx, collection, key)
}

func fastRetryConfig() *retry.Config {
	return &retry.Config{
		MaxAttempts:       3,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}
}

func TestRetryingRecoversFromTransientFailure(t *testing.T) {
	inner := &faultStore{MemoryStore: NewMemoryStore(), failures: 2, err: ErrUnavailable}
	ctx := context.Background()
	inner.MemoryStore.Set(ctx, "farms", "farm-001", Document{"farmName": "North"})

	s := WithRetry(inner, fastRetryConfig(), nil)
	doc, err := s.Get(ctx, "farms", "farm-001")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if doc["farmName"] != "North" {
		t.Errorf("doc = %v", doc)
	}
	if inner.calls != 3 {
		t.Errorf("calls = %d, want 3", inner.calls)
	}
}

func TestRetryingDoesNotRetryNotFound(t *testing.T) {
	inner := &faultStore{MemoryStore: NewMemoryStore()}
	s := WithRetry(inner, fastRetryConfig(), nil)

	_, err := s.Get(context.Background(), "farms", "farm-404")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if inner.calls != 1 {
		t.Errorf("calls = %d, want 1 for a validation outcome", inner.calls)
	}
}

// applyFaultStore fails the next n Apply calls with err.
type applyFaultStore struct {
	*MemoryStore
	failures int
	err      error
	calls    int
}

func (f *applyFaultStore) Apply(ctx context.Context, collection, key string, ops ...FieldOp) error {
	f.calls++
	if f.failures > 0 {
		f.failures--
		return f.err
	}
	return f.MemoryStore.Apply(ctx, collection, key, ops...)
}

func TestRetryingRunsIncrementsExactlyOnce(t *testing.T) {
	inner := &applyFaultStore{MemoryStore: NewMemoryStore(), failures: 1, err: ErrUnavailable}
	s := WithRetry(inner, fastRetryConfig(), nil)
	ctx := context.Background()

	err := s.Apply(ctx, "farms/farm-001/meta", "stats", Increment("totalMilk", 5))
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if inner.calls != 1 {
		t.Errorf("calls = %d, want 1 for an increment", inner.calls)
	}
}

func TestRetryingRetriesIdempotentApply(t *testing.T) {
	inner := &applyFaultStore{MemoryStore: NewMemoryStore(), failures: 1, err: ErrUnavailable}
	s := WithRetry(inner, fastRetryConfig(), nil)
	ctx := context.Background()

	if err := s.Apply(ctx, "farms", "farm-001", Set("deleting", true)); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if inner.calls != 2 {
		t.Errorf("calls = %d, want 2", inner.calls)
	}
}

func TestBreakerOpensAndMapsToUnavailable(t *testing.T) {
	inner := &faultStore{MemoryStore: NewMemoryStore(), failures: 100, err: ErrUnavailable}
	s := WithBreaker(inner, nil)
	ctx := context.Background()

	// Trip the circuit.
	for i := 0; i < 5; i++ {
		s.Get(ctx, "farms", "farm-001")
	}

	callsBefore := inner.calls
	_, err := s.Get(ctx, "farms", "farm-001")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable while open, got %v", err)
	}
	if inner.calls != callsBefore {
		t.Errorf("inner store was called while the circuit was open")
	}
}

func TestBreakerIgnoresValidationOutcomes(t *testing.T) {
	inner := &faultStore{MemoryStore: NewMemoryStore()}
	s := WithBreaker(inner, nil)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		s.Get(ctx, "farms", "farm-404")
	}
	// NotFound must never trip the circuit.
	_, err := s.Get(ctx, "farms", "farm-404")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
