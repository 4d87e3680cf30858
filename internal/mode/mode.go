// Package mode defines the reasoning personas a request can select.
//
// Modes form a closed set. Each one maps to a fixed base instruction and an
// optional render function that turns project context into a
// mode-specific instruction block.
package mode

import (
	"fmt"
	"strings"
)

// Name identifies a mode on the wire.
type Name string

const (
	Architect Name = "architect"
	Coder     Name = "coder"
	Debugger  Name = "debugger"
	Ask       Name = "ask"
)

// Default is used whenever a request names an unknown mode.
const Default = Coder

// maxLogLines bounds how many log entries the debugger block includes.
const maxLogLines = 5

// RenderFunc builds the mode-specific block from project context. An empty
// result means the mode contributes no block for this context.
type RenderFunc func(projectContext map[string]any) string

// Mode is an immutable persona definition.
type Mode struct {
	Name        Name
	Instruction string
	Render      RenderFunc
	// Consumes lists the project context keys Render turns into the block.
	Consumes []string
}

// Block returns the mode-specific instruction block for projectContext.
func (m Mode) Block(projectContext map[string]any) string {
	if m.Render == nil {
		return ""
	}
	return strings.TrimSpace(m.Render(projectContext))
}

var table = map[Name]Mode{
	Architect: {
		Name: Architect,
		Instruction: "You are an expert software architect. Produce high-level designs,\n" +
			"constraints, and tradeoffs. Output concise, actionable plans.",
	},
	Coder: {
		Name: Coder,
		Instruction: "You are a senior engineer writing clean, production-quality code.\n" +
			"Respond with code blocks and brief notes.",
		Render:   renderFiles,
		Consumes: []string{"files_index"},
	},
	Debugger: {
		Name: Debugger,
		Instruction: "You are an expert at debugging. Analyze errors and propose minimal\n" +
			"fixes.",
		Render:   renderLogs,
		Consumes: []string{"logs"},
	},
	Ask: {
		Name: Ask,
		Instruction: "You answer questions about codebases and technology. " +
			"Prefer precise, cited, minimal answers; when code helps, include small snippets.",
	},
}

// Lookup resolves a mode by name. Unknown names resolve to Default.
func Lookup(name string) Mode {
	if m, ok := table[Name(name)]; ok {
		return m
	}
	return table[Default]
}

// Known reports whether name is one of the defined modes.
func Known(name string) bool {
	_, ok := table[Name(name)]
	return ok
}

// Names returns all mode names in a stable order.
func Names() []Name {
	return []Name{Architect, Coder, Debugger, Ask}
}

func renderFiles(projectContext map[string]any) string {
	files, ok := projectContext["files_index"]
	if !ok || isEmpty(files) {
		return ""
	}
	return fmt.Sprintf("You can reference these files: %s.", formatList(files))
}

func renderLogs(projectContext map[string]any) string {
	raw, ok := projectContext["logs"]
	if !ok {
		return ""
	}
	logs, ok := raw.([]any)
	if !ok || len(logs) == 0 {
		return ""
	}
	if len(logs) > maxLogLines {
		logs = logs[:maxLogLines]
	}
	var b strings.Builder
	b.WriteString("Recent logs:")
	for _, l := range logs {
		b.WriteString("\n- ")
		b.WriteString(fmt.Sprint(l))
	}
	return b.String()
}

func formatList(v any) string {
	items, ok := v.([]any)
	if !ok {
		return fmt.Sprint(v)
	}
	parts := make([]string, 0, len(items))
	for _, it := range items {
		if m, ok := it.(map[string]any); ok {
			if p, ok := m["path"].(string); ok {
				parts = append(parts, p)
				continue
			}
		}
		parts = append(parts, fmt.Sprint(it))
	}
	return strings.Join(parts, ", ")
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case []any:
		return len(t) == 0
	case string:
		return t == ""
	}
	return false
}
