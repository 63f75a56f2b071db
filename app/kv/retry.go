package kv

import (
	"context"
	"errors"
	"time"

	"github.com/go-pkgz/repeater"
	"github.com/go-pkgz/repeater/strategy"
)

// RetryParams defines backoff for Retry decorator
type RetryParams struct {
	Attempts int
	Duration time.Duration
	Factor   float64
	Jitter   bool
}

// Retry wraps Store and repeats failed calls with backoff.
// ErrNotFound and context errors are final and never repeated.
type Retry struct {
	Store
	rptr *repeater.Repeater
}

// NewRetry makes Retry for store. With Attempts <= 1 the store is returned as is.
func NewRetry(store Store, p RetryParams) Store {
	if p.Attempts <= 1 {
		return store
	}
	rptr := repeater.New(&strategy.Backoff{Repeats: p.Attempts, Duration: p.Duration, Factor: p.Factor, Jitter: p.Jitter})
	return &Retry{Store: store, rptr: rptr}
}

// List with retries
func (r *Retry) List(ctx context.Context, pattern string, withValues bool) (res []Item, err error) {
	err = r.do(ctx, func() (e error) {
		res, e = r.Store.List(ctx, pattern, withValues)
		return e
	})
	return res, err
}

// Get with retries, ErrNotFound returned immediately
func (r *Retry) Get(ctx context.Context, key string) (res string, err error) {
	err = r.do(ctx, func() (e error) {
		res, e = r.Store.Get(ctx, key)
		return e
	})
	return res, err
}

// Set with retries
func (r *Retry) Set(ctx context.Context, key, value string) error {
	return r.do(ctx, func() error { return r.Store.Set(ctx, key, value) })
}

// Delete with retries
func (r *Retry) Delete(ctx context.Context, key string) error {
	return r.do(ctx, func() error { return r.Store.Delete(ctx, key) })
}

func (r *Retry) do(ctx context.Context, fn func() error) error {
	var final error
	err := r.rptr.Do(ctx, func() error {
		err := fn()
		if errors.Is(err, ErrNotFound) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			final = err
			return nil // stop repeating
		}
		return err
	})
	if final != nil {
		return final
	}
	return err
}
