// Package task provides named-goroutine helpers used by the orchestrator's
// background workers, so profiles and stack dumps can attribute CPU time to
// "auto-discover" or "reconnect" rather than an anonymous goroutine.
package task

import (
	"bytes"
	"context"
	"runtime"
	"runtime/pprof"
	"strconv"
	"time"
)

type ctxKey string

const goroutineNameKey ctxKey = "goroutine_name"

// Go starts a named goroutine with an optional parent context. If parentCtx
// is nil, context.Background() is used.
func Go(parentCtx context.Context, name string, fn func(ctx context.Context)) {
	if parentCtx == nil {
		parentCtx = context.Background()
	}

	labels := pprof.Labels("goroutine_name", name)

	go pprof.Do(parentCtx, labels, func(ctx context.Context) {
		ctx = context.WithValue(ctx, goroutineNameKey, name)
		fn(ctx)
	})
}

// GetName retrieves the goroutine name from the context.
func GetName(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v := ctx.Value(goroutineNameKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// GetGID returns the numeric goroutine ID (hacky, for debugging).
func GetGID() uint64 {
	b := make([]byte, 64)
	b = b[:runtime.Stack(b, false)]
	b = bytes.TrimPrefix(b, []byte("goroutine "))
	i := bytes.IndexByte(b, ' ')
	if i < 0 {
		return 0
	}
	gid, _ := strconv.ParseUint(string(b[:i]), 10, 64)
	return gid
}

// GoEvery starts a named goroutine that calls fn immediately and then every
// interval, until ctx is cancelled. The orchestrator's auto-discover and
// reconnect workers run once through Go and do not use it.
func GoEvery(parentCtx context.Context, name string, interval time.Duration, fn func(ctx context.Context)) {
	Go(parentCtx, name, func(ctx context.Context) {
		fn(ctx)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fn(ctx)
			}
		}
	})
}
