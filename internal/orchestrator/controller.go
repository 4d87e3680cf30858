// Package orchestrator answers chat requests by delegating to the external
// agent and falling back to a direct model call when the agent does not
// produce a clean result.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kilobridge/kilobridge/internal/bridge"
	"github.com/kilobridge/kilobridge/internal/chat"
	"github.com/kilobridge/kilobridge/internal/metrics"
	"github.com/kilobridge/kilobridge/internal/mode"
	"github.com/kilobridge/kilobridge/internal/provider"
	"github.com/kilobridge/kilobridge/internal/sse"
)

// ErrNoUserMessage is returned for conversations without a user message.
var ErrNoUserMessage = errors.New("no user message provided")

// Provenance records which path produced a response.
type Provenance string

const (
	ProvenanceAgent    Provenance = "agent"
	ProvenanceFallback Provenance = "fallback"
)

// Composer builds the system prompt for the fallback path.
type Composer interface {
	Compose(m mode.Mode, projectContext map[string]any, customRules map[string]string) string
}

// Completer is the model provider used by the fallback path.
type Completer interface {
	Complete(ctx context.Context, messages []chat.Message, opts provider.Options) (string, error)
	CompleteStream(ctx context.Context, messages []chat.Message, opts provider.Options) *provider.TokenStream
}

// Request is one chat request.
type Request struct {
	Mode           string
	Messages       []chat.Message
	ProjectContext map[string]any
	CustomRules    map[string]string
}

// Response is the answer to a blocking chat request.
type Response struct {
	Content    string
	Mode       mode.Name
	Provenance Provenance
}

// PlanRequest asks the agent to carry out a plan.
type PlanRequest struct {
	Mode    string
	Plan    []string
	Context map[string]any
}

// Options configures a Controller.
type Options struct {
	// Temperature is used for fallback completions.
	Temperature float64
	// MaxTokens bounds fallback completions. Zero uses the provider default.
	MaxTokens int
}

// Controller routes requests between the agent and the provider.
type Controller struct {
	reasoner  bridge.Reasoner
	composer  Composer
	completer Completer
	opts      Options
	logger    *slog.Logger
}

// New returns a Controller.
func New(reasoner bridge.Reasoner, composer Composer, completer Completer, opts Options) *Controller {
	return &Controller{
		reasoner:  reasoner,
		composer:  composer,
		completer: completer,
		opts:      opts,
		logger:    slog.With("component", "orchestrator"),
	}
}

// SelectCurrent splits messages into the current request, which is the last
// user message, and the history before it. Messages after the current
// request are discarded.
func SelectCurrent(messages []chat.Message) (history []chat.Message, current chat.Message, err error) {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == chat.RoleUser {
			history = append([]chat.Message(nil), messages[:i]...)
			return history, messages[i], nil
		}
	}
	return nil, chat.Message{}, ErrNoUserMessage
}

// conversation returns history followed by current in a fresh slice.
func conversation(history []chat.Message, current chat.Message) []chat.Message {
	out := make([]chat.Message, 0, len(history)+1)
	out = append(out, history...)
	return append(out, current)
}

// Respond answers req. The agent is tried first; any failure, error
// document or document without string content falls back to the provider.
// The returned error is ErrNoUserMessage or a provider error.
func (c *Controller) Respond(ctx context.Context, req Request) (Response, error) {
	history, current, err := SelectCurrent(req.Messages)
	if err != nil {
		return Response{}, err
	}
	m := mode.Lookup(req.Mode)
	convo := conversation(history, current)

	out := c.reasoner.Invoke(ctx, bridge.NewChat(m.Name, convo, req.ProjectContext))
	if content, ok := agentContent(out); ok {
		return Response{Content: content, Mode: m.Name, Provenance: ProvenanceAgent}, nil
	}

	c.logger.Info("agent unavailable, using provider",
		"mode", m.Name,
		"reason", fallbackReason(out),
	)
	metrics.FallbacksTotal.WithLabelValues(string(m.Name), "blocking").Inc()

	content, err := c.completer.Complete(ctx, c.fallbackMessages(m, req, convo), c.providerOptions())
	if err != nil {
		return Response{}, fmt.Errorf("fallback completion: %w", err)
	}
	return Response{Content: content, Mode: m.Name, Provenance: ProvenanceFallback}, nil
}

// RespondStream streams the answer to req into emit. It never fails: every
// problem is reported as an in-band error token, and emit.Done is called
// exactly once before RespondStream returns.
func (c *Controller) RespondStream(ctx context.Context, req Request, emit sse.Emitter) {
	defer c.done(emit)

	history, current, err := SelectCurrent(req.Messages)
	if err != nil {
		c.emitError(emit, err.Error())
		return
	}
	m := mode.Lookup(req.Mode)
	convo := conversation(history, current)

	s := c.reasoner.InvokeStreaming(ctx, bridge.NewChat(m.Name, convo, req.ProjectContext))
	defer s.Close()

	emitted := false
	for line := range s.Lines() {
		if line.Err != nil {
			if emitted {
				c.emit(emit, "error", line.Text)
				return
			}
			// Nothing reached the client yet, so the provider can still
			// answer the whole request.
			s.Close()
			c.logger.Info("agent stream failed, using provider",
				"mode", m.Name,
				"error", line.Err,
			)
			metrics.FallbacksTotal.WithLabelValues(string(m.Name), "streaming").Inc()
			c.streamFallback(ctx, m, req, convo, emit)
			return
		}
		if !c.emit(emit, "agent", Unwrap(line.Text)) {
			return
		}
		emitted = true
	}
}

// ExecutePlan streams the agent's progress on req.Plan into emit. There is
// no fallback: a failing agent is reported in-band. emit.Done is called
// exactly once.
func (c *Controller) ExecutePlan(ctx context.Context, req PlanRequest, emit sse.Emitter) {
	defer c.done(emit)

	m := mode.Lookup(req.Mode)
	s := c.reasoner.InvokeStreaming(ctx, bridge.NewPlan(m.Name, req.Plan, req.Context))
	defer s.Close()

	for line := range s.Lines() {
		if line.Err != nil {
			c.emit(emit, "error", line.Text)
			return
		}
		if !c.emit(emit, "agent", Unwrap(line.Text)) {
			return
		}
	}
}

func (c *Controller) streamFallback(ctx context.Context, m mode.Mode, req Request, convo []chat.Message, emit sse.Emitter) {
	ts := c.completer.CompleteStream(ctx, c.fallbackMessages(m, req, convo), c.providerOptions())
	defer ts.Close()

	for tok := range ts.Tokens() {
		if !c.emit(emit, "fallback", tok) {
			return
		}
	}
	if err := ts.Err(); err != nil {
		c.logger.Warn("fallback stream failed", "mode", m.Name, "error", err)
		c.emitError(emit, err.Error())
	}
}

// fallbackMessages prepends the composed system prompt to the conversation.
func (c *Controller) fallbackMessages(m mode.Mode, req Request, convo []chat.Message) []chat.Message {
	system := c.composer.Compose(m, req.ProjectContext, req.CustomRules)
	out := make([]chat.Message, 0, len(convo)+1)
	out = append(out, chat.System(system))
	return append(out, convo...)
}

func (c *Controller) providerOptions() provider.Options {
	return provider.Options{
		Temperature: provider.Float(c.opts.Temperature),
		MaxTokens:   c.opts.MaxTokens,
	}
}

// emit writes one token and reports whether the client is still there.
// A token equal to the end-of-stream sentinel is dropped so that the
// sentinel only ever marks the real end of the stream.
func (c *Controller) emit(emit sse.Emitter, source, token string) bool {
	if token == sse.Sentinel {
		c.logger.Debug("dropping sentinel token", "source", source)
		return true
	}
	if err := emit.Token(token); err != nil {
		c.logger.Debug("stream client gone", "error", err)
		return false
	}
	metrics.StreamFramesTotal.WithLabelValues(source).Inc()
	return true
}

func (c *Controller) emitError(emit sse.Emitter, msg string) {
	c.emit(emit, "error", sse.ErrorToken(msg))
}

func (c *Controller) done(emit sse.Emitter) {
	if err := emit.Done(); err != nil {
		c.logger.Debug("failed to write stream sentinel", "error", err)
	}
}

// agentContent extracts the answer from a clean agent outcome.
func agentContent(out bridge.Outcome) (string, bool) {
	if !out.OK() {
		return "", false
	}
	if _, bad := out.Document.ErrorField(); bad {
		return "", false
	}
	return out.Document.Content()
}

func fallbackReason(out bridge.Outcome) string {
	if !out.OK() {
		if out.Detail != "" {
			return out.Reason + ": " + out.Detail
		}
		return out.Reason
	}
	if v, bad := out.Document.ErrorField(); bad {
		return fmt.Sprint(v)
	}
	return "document has no content"
}

// Unwrap extracts the token carried by one line of agent output: a
// non-empty "delta", else a non-empty "content", else the line itself.
func Unwrap(line string) string {
	var frag map[string]any
	if err := json.Unmarshal([]byte(line), &frag); err != nil {
		return line
	}
	for _, key := range []string{"delta", "content"} {
		if s, ok := frag[key].(string); ok && s != "" {
			return s
		}
	}
	return line
}
