package docstore

import (
	"context"
	"errors"
	"log/slog"

	"github.com/herdsphere/herdsphere/internal/reliability/retry"
)

// Retrying decorates a Store with bounded retry-with-backoff on transient
// failures, transparent to callers. Validation outcomes (not found, exists)
// pass through untouched.
type Retrying struct {
	inner  Store
	cfg    *retry.Config
	logger *slog.Logger
}

// WithRetry wraps inner so ErrUnavailable results are retried.
func WithRetry(inner Store, cfg *retry.Config, logger *slog.Logger) *Retrying {
	if cfg == nil {
		cfg = retry.DefaultConfig()
	}
	cfg.ShouldRetry = func(err error) bool { return errors.Is(err, ErrUnavailable) }
	return &Retrying{inner: inner, cfg: cfg, logger: logger}
}

func (r *Retrying) do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	return retry.Do(ctx, r.cfg, r.logger, op, fn)
}

func (r *Retrying) Get(ctx context.Context, collection, key string) (Document, error) {
	var out Document
	err := r.do(ctx, "docstore.get", func(ctx context.Context) error {
		var err error
		out, err = r.inner.Get(ctx, collection, key)
		return err
	})
	return out, err
}

func (r *Retrying) Set(ctx context.Context, collection, key string, doc Document) error {
	return r.do(ctx, "docstore.set", func(ctx context.Context) error {
		return r.inner.Set(ctx, collection, key, doc)
	})
}

func (r *Retrying) Create(ctx context.Context, collection, key string, doc Document) error {
	return r.do(ctx, "docstore.create", func(ctx context.Context) error {
		return r.inner.Create(ctx, collection, key, doc)
	})
}

func (r *Retrying) Apply(ctx context.Context, collection, key string, ops ...FieldOp) error {
	// Increments are not idempotent: a commit whose ack was lost still
	// surfaces as ErrUnavailable, and retrying it would double-count.
	// Applies carrying an increment run exactly once; the caller decides
	// whether resubmitting is safe.
	for _, op := range ops {
		if op.Kind == OpIncrement {
			return r.inner.Apply(ctx, collection, key, ops...)
		}
	}
	return r.do(ctx, "docstore.apply", func(ctx context.Context) error {
		return r.inner.Apply(ctx, collection, key, ops...)
	})
}

func (r *Retrying) Delete(ctx context.Context, collection, key string) error {
	return r.do(ctx, "docstore.delete", func(ctx context.Context) error {
		return r.inner.Delete(ctx, collection, key)
	})
}

func (r *Retrying) Query(ctx context.Context, collection, field, value string) ([]Keyed, error) {
	var out []Keyed
	err := r.do(ctx, "docstore.query", func(ctx context.Context) error {
		var err error
		out, err = r.inner.Query(ctx, collection, field, value)
		return err
	})
	return out, err
}

func (r *Retrying) QueryContains(ctx context.Context, collection, field, value string) ([]Keyed, error) {
	var out []Keyed
	err := r.do(ctx, "docstore.query_contains", func(ctx context.Context) error {
		var err error
		out, err = r.inner.QueryContains(ctx, collection, field, value)
		return err
	})
	return out, err
}

func (r *Retrying) Keys(ctx context.Context, collection string, limit int) ([]string, error) {
	var out []string
	err := r.do(ctx, "docstore.keys", func(ctx context.Context) error {
		var err error
		out, err = r.inner.Keys(ctx, collection, limit)
		return err
	})
	return out, err
}

func (r *Retrying) List(ctx context.Context, collection string) ([]Keyed, error) {
	var out []Keyed
	err := r.do(ctx, "docstore.list", func(ctx context.Context) error {
		var err error
		out, err = r.inner.List(ctx, collection)
		return err
	})
	return out, err
}

func (r *Retrying) BatchWrite(ctx context.Context, writes []Write) error {
	return r.do(ctx, "docstore.batch_write", func(ctx context.Context) error {
		return r.inner.BatchWrite(ctx, writes)
	})
}
