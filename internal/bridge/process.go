package bridge

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/kilobridge/kilobridge/internal/metrics"
	"github.com/kilobridge/kilobridge/internal/mode"
)

const (
	defaultTimeout      = 60 * time.Second
	defaultKillGrace    = 5 * time.Second
	defaultMaxLineBytes = 16 * 1024 * 1024
)

// Options configures a Process bridge.
type Options struct {
	// Command is the agent executable followed by its fixed arguments.
	// The handoff path is appended as the last argument.
	Command []string
	// Dir is the agent's installation directory, used as its working
	// directory.
	Dir string
	// Timeout bounds a blocking invocation (default 60s). Streaming
	// invocations run until the agent exits or the stream is closed.
	Timeout time.Duration
	// KillGrace is how long a terminated agent has to exit after SIGTERM
	// before it is killed (default 5s).
	KillGrace time.Duration
	// HandoffDir holds handoff files. Defaults to the system temp dir.
	HandoffDir string
	// MaxLineBytes bounds one line of streamed output (default 16 MiB).
	MaxLineBytes int
}

func (o Options) timeout() time.Duration {
	if o.Timeout > 0 {
		return o.Timeout
	}
	return defaultTimeout
}

func (o Options) maxLineBytes() int {
	if o.MaxLineBytes > 0 {
		return o.MaxLineBytes
	}
	return defaultMaxLineBytes
}

func (o Options) killGrace() time.Duration {
	if o.KillGrace > 0 {
		return o.KillGrace
	}
	return defaultKillGrace
}

// Process is a Reasoner backed by a child process per invocation.
type Process struct {
	opts   Options
	logger *slog.Logger
}

var _ Reasoner = (*Process)(nil)

// New returns a Process bridge. It panics if opts.Command is empty.
func New(opts Options) *Process {
	if len(opts.Command) == 0 {
		panic("bridge: empty agent command")
	}
	return &Process{
		opts:   opts,
		logger: slog.With("component", "bridge"),
	}
}

// command builds the agent command for one invocation. Cancelling ctx sends
// SIGTERM; if the agent is still running after KillGrace it is killed.
func (p *Process) command(ctx context.Context, handoffPath string) *exec.Cmd {
	args := append(append([]string(nil), p.opts.Command[1:]...), handoffPath)
	cmd := exec.CommandContext(ctx, p.opts.Command[0], args...)
	cmd.Dir = p.opts.Dir
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = p.opts.killGrace()
	return cmd
}

// Invoke runs the agent and waits for it to exit, bounded by the configured
// timeout. The handoff file is removed before Invoke returns.
func (p *Process) Invoke(ctx context.Context, env Envelope) Outcome {
	start := time.Now()
	out := p.invoke(ctx, env)
	p.observe(env.Mode, "blocking", outcomeLabel(out), start)
	if !out.OK() {
		p.logger.Warn("agent invocation failed",
			"mode", env.Mode,
			"reason", out.Reason,
			"error", out.Err,
		)
	}
	return out
}

func (p *Process) invoke(ctx context.Context, env Envelope) Outcome {
	h, err := AcquireHandoff(p.opts.HandoffDir, env)
	if err != nil {
		return Failure("handoff failed", err.Error(), fmt.Errorf("%w: %w", ErrHandoff, err))
	}
	defer p.release(h)

	timeout := p.opts.timeout()
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := p.command(runCtx, h.Path())
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return Failure("agent launch failed", err.Error(), fmt.Errorf("%w: %w", ErrLaunch, err))
	}
	metrics.ActiveAgents.Inc()
	waitErr := cmd.Wait()
	metrics.ActiveAgents.Dec()

	switch {
	case ctx.Err() != nil:
		return Failure("agent cancelled", ctx.Err().Error(), fmt.Errorf("%w: %w", ErrCancelled, ctx.Err()))
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		return Failure("agent timed out", fmt.Sprintf("no result within %s", timeout), ErrTimeout)
	case waitErr != nil:
		return Failure("agent failed", strings.TrimSpace(stderr.String()), fmt.Errorf("%w: %w", ErrNonZeroExit, waitErr))
	}

	return Success(parseDocument(stdout.Bytes()))
}

// parseDocument decodes the agent's output. Anything that is not a single
// JSON object is returned verbatim under "raw".
func parseDocument(out []byte) Document {
	var doc Document
	if err := json.Unmarshal(out, &doc); err != nil || doc == nil {
		return Document{"error": NonJSON, "raw": string(out)}
	}
	return doc
}

// InvokeStreaming starts the agent and streams every non-empty stdout line.
// If the agent exits non-zero, a final error line carrying its stderr is
// emitted. The handoff file is removed only after the agent has exited.
func (p *Process) InvokeStreaming(ctx context.Context, env Envelope) *LineStream {
	return NewLineStream(ctx, func(ctx context.Context, yield func(Line) bool) {
		start := time.Now()
		outcome := p.stream(ctx, env, yield)
		p.observe(env.Mode, "streaming", outcome, start)
	})
}

func (p *Process) stream(ctx context.Context, env Envelope, yield func(Line) bool) string {
	h, err := AcquireHandoff(p.opts.HandoffDir, env)
	if err != nil {
		p.logger.Warn("agent handoff failed", "mode", env.Mode, "error", err)
		yield(ErrorLine(fmt.Errorf("%w: %w", ErrHandoff, err), ""))
		return "handoff_error"
	}
	defer p.release(h)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	cmd := p.command(runCtx, h.Path())
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		yield(ErrorLine(fmt.Errorf("%w: %w", ErrLaunch, err), ""))
		return "launch_error"
	}

	if err := cmd.Start(); err != nil {
		p.logger.Warn("agent launch failed", "mode", env.Mode, "error", err)
		yield(ErrorLine(fmt.Errorf("%w: %w", ErrLaunch, err), ""))
		return "launch_error"
	}
	metrics.ActiveAgents.Inc()
	defer metrics.ActiveAgents.Dec()

	scanner := bufio.NewScanner(stdout)
	maxLine := p.opts.maxLineBytes()
	scanner.Buffer(make([]byte, 0, min(64*1024, maxLine)), maxLine)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		if !yield(Line{Text: line}) {
			break
		}
	}
	readErr := scanner.Err()
	if readErr != nil {
		p.logger.Warn("agent stdout read error", "mode", env.Mode, "error", readErr)
		// The agent may block on a full pipe once we stop reading.
		cancel()
	}

	// Wait only after stdout is drained (or abandoned) so it cannot close
	// the pipe under the scanner.
	waitErr := cmd.Wait()

	if ctx.Err() != nil {
		p.logger.Debug("agent stream abandoned", "mode", env.Mode)
		return "cancelled"
	}
	if readErr != nil {
		yield(ErrorLine(fmt.Errorf("%w: %w", ErrOutput, readErr), "read agent output: "+readErr.Error()))
		return "read_error"
	}
	if waitErr != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = waitErr.Error()
		}
		p.logger.Warn("agent exited with error", "mode", env.Mode, "error", waitErr)
		yield(ErrorLine(fmt.Errorf("%w: %w", ErrNonZeroExit, waitErr), detail))
		return "failed"
	}
	return "success"
}

func (p *Process) release(h *Handoff) {
	if err := h.Release(); err != nil {
		p.logger.Error("failed to release handoff", "path", h.Path(), "error", err)
	}
}

func (p *Process) observe(m mode.Name, form, outcome string, start time.Time) {
	metrics.BridgeInvocationsTotal.WithLabelValues(string(m), form, outcome).Inc()
	metrics.BridgeDuration.WithLabelValues(string(m), form).Observe(time.Since(start).Seconds())
}

func outcomeLabel(o Outcome) string {
	switch {
	case o.OK():
		if _, bad := o.Document.ErrorField(); bad {
			return "error_document"
		}
		return "success"
	case errors.Is(o.Err, ErrTimeout):
		return "timeout"
	case errors.Is(o.Err, ErrLaunch):
		return "launch_error"
	case errors.Is(o.Err, ErrHandoff):
		return "handoff_error"
	case errors.Is(o.Err, ErrCancelled):
		return "cancelled"
	default:
		return "failed"
	}
}
