// Package groutine starts named background goroutines. The name is attached
// as a pprof label so stack dumps and profiles show which radio or hardware
// worker a goroutine belongs to.
package groutine

import (
	"context"
	"fmt"
	"runtime/pprof"
)

type ctxKey string

const nameKey ctxKey = "goroutine_name"

// Go starts fn in a goroutine labelled name. A nil parent means
// context.Background().
func Go(parent context.Context, name string, fn func(ctx context.Context)) {
	if parent == nil {
		parent = context.Background()
	}

	go pprof.Do(parent, pprof.Labels("goroutine_name", name), func(ctx context.Context) {
		fn(context.WithValue(ctx, nameKey, name))
	})
}

// GoErr is Go for workers that can fail. A returned error or a panic is
// handed to onErr; a nil onErr drops it.
func GoErr(parent context.Context, name string, fn func(ctx context.Context) error, onErr func(error)) {
	Go(parent, name, func(ctx context.Context) {
		defer func() {
			if r := recover(); r != nil && onErr != nil {
				onErr(fmt.Errorf("%s panicked: %v", name, r))
			}
		}()
		if err := fn(ctx); err != nil && onErr != nil {
			onErr(fmt.Errorf("%s: %w", name, err))
		}
	})
}

// Name returns the goroutine name stored in ctx, or "".
func Name(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if s, ok := ctx.Value(nameKey).(string); ok {
		return s
	}
	return ""
}
