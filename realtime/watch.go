package realtime

import (
	"context"
	"log/slog"
	"time"
)

// Watcher keeps a derived value fresh from two sources: pushed change
// events for immediate updates and a fixed poll as a backstop for events the
// feed missed.
type Watcher[T any] struct {
	Interval time.Duration
	Load     func(ctx context.Context) (T, error)
	// Equal suppresses unchanged values. Nil means every load is emitted.
	Equal  func(a, b T) bool
	Logger *slog.Logger
}

// Run loads once immediately, then on every tick and every push. The
// returned channel closes when ctx is done. push may be nil.
func (w Watcher[T]) Run(ctx context.Context, push <-chan struct{}) <-chan T {
	out := make(chan T)
	go func() {
		defer close(out)

		ticker := time.NewTicker(w.Interval)
		defer ticker.Stop()

		var last T
		have := false
		refresh := func() bool {
			v, err := w.Load(ctx)
			if err != nil {
				if ctx.Err() == nil && w.Logger != nil {
					w.Logger.Warn("watch refresh failed", "error", err)
				}
				return true
			}
			if have && w.Equal != nil && w.Equal(last, v) {
				return true
			}
			last, have = v, true
			select {
			case out <- v:
				return true
			case <-ctx.Done():
				return false
			}
		}

		if !refresh() {
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			case _, ok := <-push:
				if !ok {
					push = nil
					continue
				}
			}
			if !refresh() {
				return
			}
		}
	}()
	return out
}

// Signal turns a subscription into a push channel for Watcher.Run.
func Signal(ctx context.Context, sub *Subscription) <-chan struct{} {
	out := make(chan struct{}, 1)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-sub.C:
				if !ok {
					return
				}
				select {
				case out <- struct{}{}:
				default:
				}
			}
		}
	}()
	return out
}
