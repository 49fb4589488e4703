package service

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// limited bounds the number of in-flight calls to a wrapped service. A
// successful Ready reserves one permit, which the following Call consumes and
// releases when it returns.
type limited[Req any, Resp any] struct {
	inner Service[Req, Resp]
	sem   *semaphore.Weighted

	mu       sync.Mutex
	reserved int
}

// ConcurrencyLimit wraps svc so that at most n calls run at once. Ready blocks
// while n calls are in flight, which the server observes as backpressure. Up
// to n overlapping calls are still admitted.
//
// Parameters:
//   - svc: The service to wrap
//   - n: Maximum number of concurrent calls; values below 1 are treated as 1
//
// Returns:
//   - A Service enforcing the limit
func ConcurrencyLimit[Req any, Resp any](svc Service[Req, Resp], n int) Service[Req, Resp] {
	if n < 1 {
		n = 1
	}

	return &limited[Req, Resp]{
		inner: svc,
		sem:   semaphore.NewWeighted(int64(n)),
	}
}

// Ready implements Service.
func (l *limited[Req, Resp]) Ready(ctx context.Context) error {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return err
	}

	if err := l.inner.Ready(ctx); err != nil {
		l.sem.Release(1)
		return err
	}

	l.mu.Lock()
	l.reserved++
	l.mu.Unlock()

	return nil
}

// Call implements Service. A Call without a preceding Ready acquires its own
// permit.
func (l *limited[Req, Resp]) Call(ctx context.Context, req Req) (Resp, error) {
	l.mu.Lock()
	hasPermit := l.reserved > 0
	if hasPermit {
		l.reserved--
	}
	l.mu.Unlock()

	if !hasPermit {
		if err := l.sem.Acquire(ctx, 1); err != nil {
			var zero Resp
			return zero, err
		}
	}
	defer l.sem.Release(1)

	return l.inner.Call(ctx, req)
}
