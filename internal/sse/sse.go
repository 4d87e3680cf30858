// Package sse implements the token stream framing used by the streaming
// endpoints: every token is sent as "data: <token>\n\n" and every stream
// ends with "data: [DONE]\n\n".
package sse

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
)

const (
	// Sentinel is the payload of the final frame of every stream.
	Sentinel = "[DONE]"
	// ErrorPrefix marks a token that reports a terminal error.
	ErrorPrefix = "Error: "
)

// ErrClosed is returned when writing to a stream that has already ended.
var ErrClosed = errors.New("sse: stream closed")

// Emitter receives the framed output of one streaming response. Done is
// called exactly once, after the last token.
type Emitter interface {
	Token(token string) error
	Done() error
}

// Frame encodes token as one event. Tokens that span several lines are
// sent as consecutive data lines so the frame boundary stays intact.
func Frame(token string) string {
	var b strings.Builder
	for _, line := range strings.Split(token, "\n") {
		b.WriteString("data: ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	return b.String()
}

// ErrorToken formats msg as an in-band error token.
func ErrorToken(msg string) string {
	return ErrorPrefix + msg
}

// Writer is an Emitter that writes frames to an HTTP response, flushing
// after each one.
type Writer struct {
	mu      sync.Mutex
	w       io.Writer
	flusher http.Flusher
	done    bool
}

var _ Emitter = (*Writer)(nil)

// NewWriter prepares w for an event stream and returns a Writer for it.
func NewWriter(w http.ResponseWriter) *Writer {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	sw := &Writer{w: w}
	if f, ok := w.(http.Flusher); ok {
		sw.flusher = f
		f.Flush()
	}
	return sw
}

// Token writes one token frame.
func (s *Writer) Token(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return ErrClosed
	}
	return s.write(Frame(token))
}

// Done writes the sentinel frame. Calls after the first are no-ops.
func (s *Writer) Done() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return nil
	}
	s.done = true
	return s.write(Frame(Sentinel))
}

func (s *Writer) write(frame string) error {
	if _, err := io.WriteString(s.w, frame); err != nil {
		return err
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}
	return nil
}

// Recorder is an in-memory Emitter. It is used by the WebSocket transport's
// tests and by callers that need the whole stream at once.
type Recorder struct {
	mu     sync.Mutex
	tokens []string
	dones  int
}

var _ Emitter = (*Recorder)(nil)

// Token implements Emitter.
func (r *Recorder) Token(token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.dones > 0 {
		return ErrClosed
	}
	r.tokens = append(r.tokens, token)
	return nil
}

// Done implements Emitter. Unlike Writer it counts every call so tests can
// assert the sentinel was sent exactly once.
func (r *Recorder) Done() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dones++
	return nil
}

// Tokens returns the tokens received so far.
func (r *Recorder) Tokens() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.tokens...)
}

// Dones returns how many times Done was called.
func (r *Recorder) Dones() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dones
}

// Body renders the recorded stream as it would appear on the wire.
func (r *Recorder) Body() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var b strings.Builder
	for _, t := range r.tokens {
		b.WriteString(Frame(t))
	}
	for range r.dones {
		b.WriteString(Frame(Sentinel))
	}
	return b.String()
}
