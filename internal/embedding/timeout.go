package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DefaultTimeout bounds a single embedding call.
const DefaultTimeout = 30 * time.Second

// TimeoutEmbedder bounds every call of the wrapped embedder. The call runs
// in its own goroutine so backends that ignore ctx cannot stall the caller.
type TimeoutEmbedder struct {
	Embedder
	timeout time.Duration
}

// WithTimeout wraps e so each call fails with ErrEmbeddingTimeout after d.
// A non-positive d uses DefaultTimeout.
func WithTimeout(e Embedder, d time.Duration) *TimeoutEmbedder {
	if d <= 0 {
		d = DefaultTimeout
	}
	return &TimeoutEmbedder{Embedder: e, timeout: d}
}

// Embed calls the wrapped embedder with a deadline.
func (t *TimeoutEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return callWithTimeout(ctx, t.timeout, func(ctx context.Context) ([]float32, error) {
		return t.Embedder.Embed(ctx, text)
	})
}

// EmbedBatch calls the wrapped embedder with a deadline covering the whole batch.
func (t *TimeoutEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return callWithTimeout(ctx, t.timeout, func(ctx context.Context) ([][]float32, error) {
		return t.Embedder.EmbedBatch(ctx, texts)
	})
}

type callResult[T any] struct {
	v   T
	err error
}

// callWithTimeout runs fn in its own goroutine. The result is only read
// from the channel, so a call abandoned at the deadline shares nothing with
// the caller.
func callWithTimeout[T any](parent context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	done := make(chan callResult[T], 1)
	go func() {
		v, err := fn(ctx)
		done <- callResult[T]{v: v, err: err}
	}()

	var zero T
	select {
	case r := <-done:
		if r.err != nil && errors.Is(r.err, context.DeadlineExceeded) && parent.Err() == nil {
			return zero, fmt.Errorf("%w after %s: %v", ErrEmbeddingTimeout, timeout, r.err)
		}
		return r.v, r.err
	case <-ctx.Done():
		if parent.Err() != nil {
			return zero, parent.Err()
		}
		return zero, fmt.Errorf("%w after %s", ErrEmbeddingTimeout, timeout)
	}
}
