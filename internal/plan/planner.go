// Package plan turns a conversation into a list of imperative steps using
// the model provider's JSON mode.
package plan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/kilobridge/kilobridge/internal/chat"
	"github.com/kilobridge/kilobridge/internal/provider"
)

const systemPrompt = "You are a senior software planner.\n" +
	"Return a concise plan as JSON with keys: plan (array of steps), summary (string).\n" +
	"Each plan step should be an imperative action.\n"

// Result is a normalized plan.
type Result struct {
	Plan    []string `json:"plan"`
	Summary string   `json:"summary"`
}

// Completer is the subset of the provider client the planner needs.
type Completer interface {
	Complete(ctx context.Context, messages []chat.Message, opts provider.Options) (string, error)
}

// Options configures a Planner.
type Options struct {
	// MaxAttempts bounds provider calls per plan (default 3). Only rate
	// limits and transport errors are retried.
	MaxAttempts int
	Temperature float64
	// InitialInterval and MaxInterval shape the retry backoff
	// (default 500ms and 5s).
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// Planner produces plans.
type Planner struct {
	completer Completer
	opts      Options
	logger    *slog.Logger
}

// New returns a Planner.
func New(c Completer, opts Options) *Planner {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.InitialInterval <= 0 {
		opts.InitialInterval = 500 * time.Millisecond
	}
	if opts.MaxInterval <= 0 {
		opts.MaxInterval = 5 * time.Second
	}
	return &Planner{
		completer: c,
		opts:      opts,
		logger:    slog.With("component", "planner"),
	}
}

func (p *Planner) newBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.opts.InitialInterval
	b.MaxInterval = p.opts.MaxInterval
	b.Multiplier = 2.0
	b.RandomizationFactor = 0.2
	b.Reset()
	return b
}

// Plan asks the model for a plan covering messages.
func (p *Planner) Plan(ctx context.Context, messages []chat.Message) (Result, error) {
	msgs := make([]chat.Message, 0, len(messages)+1)
	msgs = append(msgs, chat.System(systemPrompt))
	msgs = append(msgs, messages...)

	opts := provider.Options{
		Temperature: provider.Float(p.opts.Temperature),
		JSONMode:    true,
	}

	b := p.newBackoff()
	for attempt := 1; ; attempt++ {
		raw, err := p.completer.Complete(ctx, msgs, opts)
		if err == nil {
			return Result{Plan: Normalize(raw), Summary: Summary(raw)}, nil
		}
		if attempt >= p.opts.MaxAttempts || !retryable(err) {
			return Result{}, fmt.Errorf("plan: %w", err)
		}

		wait := b.NextBackOff()
		p.logger.Warn("planner request failed, retrying",
			"attempt", attempt,
			"retry_in", wait,
			"error", err,
		)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return Result{}, errors.Join(fmt.Errorf("plan: %w", err), ctx.Err())
		case <-timer.C:
		}
	}
}

func retryable(err error) bool {
	switch provider.KindOf(err) {
	case provider.KindRateLimited, provider.KindTransport:
		return true
	}
	return false
}
