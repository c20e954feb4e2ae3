package docstore

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/herdsphere/herdsphere/internal/reliability/circuitbreaker"
)

// Breaking decorates a Store with a circuit breaker so a down database
// fast-fails instead of stacking up blocked requests. Only transient
// failures count against the circuit.
type Breaking struct {
	inner Store
	cb    *circuitbreaker.CircuitBreaker
}

// WithBreaker wraps inner with a circuit breaker.
func WithBreaker(inner Store, logger *slog.Logger) *Breaking {
	cb := circuitbreaker.New(5, 2, 10*time.Second)
	if logger != nil {
		cb.OnStateChange(func(from, to circuitbreaker.State) {
			logger.Warn("docstore circuit state changed",
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		})
	}
	return &Breaking{inner: inner, cb: cb}
}

func transient(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

func (b *Breaking) do(fn func() error) error {
	err := b.cb.Do(transient, fn)
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return errors.Join(ErrUnavailable, err)
	}
	return err
}

func (b *Breaking) Get(ctx context.Context, collection, key string) (Document, error) {
	var out Document
	err := b.do(func() error {
		var err error
		out, err = b.inner.Get(ctx, collection, key)
		return err
	})
	return out, err
}

func (b *Breaking) Set(ctx context.Context, collection, key string, doc Document) error {
	return b.do(func() error { return b.inner.Set(ctx, collection, key, doc) })
}

func (b *Breaking) Create(ctx context.Context, collection, key string, doc Document) error {
	return b.do(func() error { return b.inner.Create(ctx, collection, key, doc) })
}

func (b *Breaking) Apply(ctx context.Context, collection, key string, ops ...FieldOp) error {
	return b.do(func() error { return b.inner.Apply(ctx, collection, key, ops...) })
}

func (b *Breaking) Delete(ctx context.Context, collection, key string) error {
	return b.do(func() error { return b.inner.Delete(ctx, collection, key) })
}

func (b *Breaking) Query(ctx context.Context, collection, field, value string) ([]Keyed, error) {
	var out []Keyed
	err := b.do(func() error {
		var err error
		out, err = b.inner.Query(ctx, collection, field, value)
		return err
	})
	return out, err
}

func (b *Breaking) QueryContains(ctx context.Context, collection, field, value string) ([]Keyed, error) {
	var out []Keyed
	err := b.do(func() error {
		var err error
		out, err = b.inner.QueryContains(ctx, collection, field, value)
		return err
	})
	return out, err
}

func (b *Breaking) Keys(ctx context.Context, collection string, limit int) ([]string, error) {
	var out []string
	err := b.do(func() error {
		var err error
		out, err = b.inner.Keys(ctx, collection, limit)
		return err
	})
	return out, err
}

func (b *Breaking) List(ctx context.Context, collection string) ([]Keyed, error) {
	var out []Keyed
	err := b.do(func() error {
		var err error
		out, err = b.inner.List(ctx, collection)
		return err
	})
	return out, err
}

func (b *Breaking) BatchWrite(ctx context.Context, writes []Write) error {
	return b.do(func() error { return b.inner.BatchWrite(ctx, writes) })
}
