package buildsys

import (
	"context"

	"github.com/rs/zerolog"
)

type (
	logKey   struct{}
	hooksKey struct{}
)

var nopLogger = zerolog.Nop()

func log(ctx context.Context) *zerolog.Logger {
	logger := ctx.Value(logKey{})
	if logger == nil {
		return &nopLogger
	}

	return logger.(*zerolog.Logger)
}

// Log returns the logger attached to ctx. Task actions should use it so that their messages
// carry the task name.
func Log(ctx context.Context) *zerolog.Logger {
	return log(ctx)
}

// WithLogger attaches the given logger to the context
func WithLogger(ctx context.Context, logger *zerolog.Logger) context.Context {
	return context.WithValue(ctx, logKey{}, logger)
}

// Hooks are notified while a run progresses. All fields are optional.
type Hooks struct {
	OnPlan   func(plan []string)
	OnStart  func(task string)
	OnFinish func(task string, err error)
}

// WithHooks attaches run hooks to the context
func WithHooks(ctx context.Context, hooks Hooks) context.Context {
	return context.WithValue(ctx, hooksKey{}, hooks)
}

func getHooks(ctx context.Context) Hooks {
	hooks, _ := ctx.Value(hooksKey{}).(Hooks)
	return hooks
}
