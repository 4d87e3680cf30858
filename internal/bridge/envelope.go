// Package bridge delegates requests to an external reasoning agent.
//
// The agent is a separate executable. Each invocation serializes an
// Envelope to a handoff file, launches the agent with the file's path as its
// only argument, and reads the result from the agent's standard output:
// either one JSON document (Invoke) or a live stream of lines
// (InvokeStreaming).
package bridge

import (
	"github.com/kilobridge/kilobridge/internal/chat"
	"github.com/kilobridge/kilobridge/internal/mode"
)

// Envelope is the only contract shared with the agent process.
type Envelope struct {
	Mode  mode.Name `json:"mode"`
	Input any       `json:"input"`
}

// ChatInput is the envelope input for chat requests.
type ChatInput struct {
	Messages       []chat.Message `json:"messages"`
	ProjectContext map[string]any `json:"project_context,omitempty"`
}

// PlanInput is the envelope input for plan execution.
type PlanInput struct {
	Plan    []string       `json:"plan"`
	Context map[string]any `json:"context"`
}

// NewChat builds a chat envelope.
func NewChat(m mode.Name, messages []chat.Message, projectContext map[string]any) Envelope {
	return Envelope{
		Mode:  m,
		Input: ChatInput{Messages: messages, ProjectContext: projectContext},
	}
}

// NewPlan builds a plan-execution envelope. A nil context is sent as an
// empty object.
func NewPlan(m mode.Name, plan []string, context map[string]any) Envelope {
	if plan == nil {
		plan = []string{}
	}
	if context == nil {
		context = map[string]any{}
	}
	return Envelope{
		Mode:  m,
		Input: PlanInput{Plan: plan, Context: context},
	}
}
