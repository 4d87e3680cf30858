package bridge

import (
	"context"
)

// ErrorLinePrefix marks a line the bridge synthesized to report a failure.
const ErrorLinePrefix = "Error: "

// Line is one unit of streamed agent output. Err is set only on the final
// line of a failed invocation; its Text then starts with ErrorLinePrefix.
type Line struct {
	Text string
	Err  error
}

// ErrorLine builds the terminal line reporting err. detail is the text shown
// to clients; when empty, err's message is used.
func ErrorLine(err error, detail string) Line {
	if detail == "" {
		detail = err.Error()
	}
	return Line{Text: ErrorLinePrefix + detail, Err: err}
}

// LineStream is a finite, non-restartable sequence of agent output lines.
// Read Lines until the channel closes. Close abandons the stream: it stops
// the producer, terminates the agent process and waits until the handoff
// has been released. Close is safe to call more than once.
type LineStream struct {
	lines  chan Line
	cancel context.CancelFunc
	done   chan struct{}
}

// NewLineStream runs produce in its own goroutine and exposes what it
// yields as a LineStream. yield reports false once the stream has been
// closed or ctx is done.
func NewLineStream(ctx context.Context, produce func(ctx context.Context, yield func(Line) bool)) *LineStream {
	ctx, cancel := context.WithCancel(ctx)
	s := &LineStream{
		lines:  make(chan Line),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(s.done)
		defer close(s.lines)
		produce(ctx, func(line Line) bool {
			select {
			case s.lines <- line:
				return true
			case <-ctx.Done():
				return false
			}
		})
	}()

	return s
}

// Lines returns the channel lines are delivered on.
func (s *LineStream) Lines() <-chan Line {
	return s.lines
}

// Close stops the stream and waits for the producer to exit.
func (s *LineStream) Close() {
	s.cancel()
	<-s.done
}

// Done is closed once the producer has exited.
func (s *LineStream) Done() <-chan struct{} {
	return s.done
}
