package bridge

import (
	"context"
	"errors"
)

// Reasoner is an external reasoning agent. Process is the production
// implementation; Funcs adapts plain functions for tests.
type Reasoner interface {
	// Invoke runs the agent to completion and returns its document.
	Invoke(ctx context.Context, env Envelope) Outcome
	// InvokeStreaming starts the agent and returns its output lines as
	// they are produced.
	InvokeStreaming(ctx context.Context, env Envelope) *LineStream
}

var errNotImplemented = errors.New("not implemented")

// Funcs is an in-process Reasoner. A nil function behaves like an agent
// that cannot be launched.
type Funcs struct {
	InvokeFunc func(ctx context.Context, env Envelope) Outcome
	StreamFunc func(ctx context.Context, env Envelope, yield func(Line) bool)
}

var _ Reasoner = Funcs{}

// Invoke implements Reasoner.
func (f Funcs) Invoke(ctx context.Context, env Envelope) Outcome {
	if f.InvokeFunc == nil {
		return Failure("agent launch failed", errNotImplemented.Error(), errors.Join(ErrLaunch, errNotImplemented))
	}
	return f.InvokeFunc(ctx, env)
}

// InvokeStreaming implements Reasoner.
func (f Funcs) InvokeStreaming(ctx context.Context, env Envelope) *LineStream {
	return NewLineStream(ctx, func(ctx context.Context, yield func(Line) bool) {
		if f.StreamFunc == nil {
			yield(ErrorLine(errors.Join(ErrLaunch, errNotImplemented), ""))
			return
		}
		f.StreamFunc(ctx, env, yield)
	})
}

// StaticLines returns a StreamFunc that yields lines in order.
func StaticLines(lines ...Line) func(ctx context.Context, env Envelope, yield func(Line) bool) {
	return func(ctx context.Context, env Envelope, yield func(Line) bool) {
		for _, l := range lines {
			if !yield(l) {
				return
			}
		}
	}
}
