package prediction

import (
	"context"

	"ideaforge/internal/replicate"
)

// Progress is a snapshot reported after submission (Attempt 0) and after
// every status poll.
type Progress struct {
	PredictionID string
	Attempt      int
	Status       replicate.Status
}

type progressKey struct{}

// WithProgress attaches an observer that Run calls synchronously.
func WithProgress(ctx context.Context, fn func(Progress)) context.Context {
	if fn == nil {
		return ctx
	}
	return context.WithValue(ctx, progressKey{}, fn)
}

// Report delivers p to the observer attached by WithProgress, if any.
func Report(ctx context.Context, p Progress) {
	if fn, ok := ctx.Value(progressKey{}).(func(Progress)); ok {
		fn(p)
	}
}
