package provider

import (
	"context"
)

// TokenStream is a finite, non-restartable sequence of completion tokens.
// Read Tokens until the channel closes, then check Err. Close releases the
// underlying transport and may be called at any time, more than once.
type TokenStream struct {
	tokens chan string
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// NewTokenStream runs produce in its own goroutine and exposes what it
// yields as a TokenStream. yield reports false once the stream has been
// closed; produce should return promptly after that. The error produce
// returns becomes Err.
func NewTokenStream(ctx context.Context, produce func(ctx context.Context, yield func(string) bool) error) *TokenStream {
	ctx, cancel := context.WithCancel(ctx)
	s := &TokenStream{
		tokens: make(chan string),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(s.done)
		defer close(s.tokens)
		s.err = produce(ctx, func(token string) bool {
			select {
			case s.tokens <- token:
				return true
			case <-ctx.Done():
				return false
			}
		})
	}()

	return s
}

// Tokens returns the channel tokens are delivered on.
func (s *TokenStream) Tokens() <-chan string {
	return s.tokens
}

// Err returns the terminal error, blocking until the producer has
// finished. Call it after the Tokens channel has been closed.
func (s *TokenStream) Err() error {
	<-s.done
	return s.err
}

// Close stops the stream and waits for the producer to exit.
func (s *TokenStream) Close() {
	s.cancel()
	<-s.done
}
