package service

import (
	"context"
	"sync"
	"time"
)

// inFlightRequest tracks a single upstream fetch that multiple callers may wait for.
type inFlightRequest[T any] struct {
	done   chan struct{}
	result T
	err    error
}

// requestCoalescer keeps at most one fetch in flight per key. Callers arriving while a
// fetch runs wait for its result instead of starting their own.
type requestCoalescer[T any] struct {
	mu       sync.Mutex
	inFlight map[string]*inFlightRequest[T]
	timeout  time.Duration
}

// newRequestCoalescer creates a requestCoalescer. timeout bounds both the fetch and each wait.
func newRequestCoalescer[T any](timeout time.Duration) *requestCoalescer[T] {
	return &requestCoalescer[T]{
		inFlight: make(map[string]*inFlightRequest[T]),
		timeout:  timeout,
	}
}

// GetOrDo joins the in-flight fetch for key or starts fn. shared is true when the caller
// joined a fetch started by someone else.
// fn runs on a context detached from the caller so one caller's cancellation does not
// fail the others; it is bounded by the coalescer timeout instead.
func (rc *requestCoalescer[T]) GetOrDo(ctx context.Context, key string, fn func(context.Context) (T, error)) (result T, shared bool, err error) {
	rc.mu.Lock()
	req, exists := rc.inFlight[key]
	if !exists {
		req = &inFlightRequest[T]{done: make(chan struct{})}
		rc.inFlight[key] = req
		go rc.run(context.WithoutCancel(ctx), key, req, fn)
	}
	rc.mu.Unlock()

	waitCtx, cancel := context.WithTimeout(ctx, rc.timeout)
	defer cancel()
	select {
	case <-req.done:
		return req.result, exists, req.err
	case <-waitCtx.Done():
		var zero T
		return zero, exists, waitCtx.Err()
	}
}

func (rc *requestCoalescer[T]) run(ctx context.Context, key string, req *inFlightRequest[T], fn func(context.Context) (T, error)) {
	fetchCtx, cancel := context.WithTimeout(ctx, rc.timeout)
	defer cancel()
	req.result, req.err = fn(fetchCtx)

	rc.mu.Lock()
	delete(rc.inFlight, key)
	rc.mu.Unlock()
	close(req.done)
}
