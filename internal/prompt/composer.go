// Package prompt composes system prompts from a mode, optional rule text
// and optional project context.
package prompt

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kilobridge/kilobridge/internal/mode"
)

// Rule keys accepted in the custom rules mapping.
const (
	RuleGlobal  = "global"
	RuleProject = "project"
)

// DefaultContextItems bounds the rendered project context.
const DefaultContextItems = 20

// Options configures a Composer.
type Options struct {
	RulesDir        string // Directory holding global.md (empty disables)
	ProjectRulesDir string // Directory holding <mode>.md or project.md (empty disables)
	ContextItems    int    // Max keys and list elements rendered from project context
}

// Composer builds system prompts. It is safe for concurrent use; the only
// side effect is reading rule files.
type Composer struct {
	rulesDir        string
	projectRulesDir string
	contextItems    int
}

// New creates a Composer.
func New(opts Options) *Composer {
	items := opts.ContextItems
	if items <= 0 {
		items = DefaultContextItems
	}
	return &Composer{
		rulesDir:        opts.RulesDir,
		projectRulesDir: opts.ProjectRulesDir,
		contextItems:    items,
	}
}

// Compose assembles the system prompt in fixed order: base instruction,
// global rules, project rules, mode block, project context. Sections
// without content are omitted entirely.
func (c *Composer) Compose(m mode.Mode, projectContext map[string]any, customRules map[string]string) string {
	sections := []string{strings.TrimSpace(m.Instruction)}

	if global := c.rule(RuleGlobal, m.Name, customRules); global != "" {
		sections = append(sections, "## Global Rules\n"+global)
	}
	if project := c.rule(RuleProject, m.Name, customRules); project != "" {
		sections = append(sections, "## Project Rules\n"+project)
	}
	summarized := projectContext
	if block := m.Block(projectContext); block != "" {
		sections = append(sections, block)
		summarized = without(projectContext, m.Consumes)
	}
	if summary := c.renderContext(summarized); summary != "" {
		sections = append(sections, "## Project Context\n"+summary)
	}

	return strings.Join(sections, "\n\n")
}

// rule resolves rule text for key. A key present in customRules always
// wins, even when its value is empty, so on-disk text never leaks into a
// request that overrides it.
func (c *Composer) rule(key string, name mode.Name, customRules map[string]string) string {
	if v, ok := customRules[key]; ok {
		return strings.TrimSpace(v)
	}
	for _, p := range c.rulePaths(key, name) {
		text, err := readRule(p)
		if err != nil {
			slog.Warn("read rule file", "path", p, "error", err)
			continue
		}
		if text != "" {
			return text
		}
	}
	return ""
}

func (c *Composer) rulePaths(key string, name mode.Name) []string {
	switch key {
	case RuleGlobal:
		if c.rulesDir == "" {
			return nil
		}
		return []string{filepath.Join(c.rulesDir, "global.md")}
	case RuleProject:
		if c.projectRulesDir == "" {
			return nil
		}
		return []string{
			filepath.Join(c.projectRulesDir, string(name)+".md"),
			filepath.Join(c.projectRulesDir, "project.md"),
		}
	}
	return nil
}

func readRule(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// renderContext renders at most contextItems keys in sorted order. List
// values are cut to contextItems elements as well.
func (c *Composer) renderContext(projectContext map[string]any) string {
	if len(projectContext) == 0 {
		return ""
	}

	keys := make([]string, 0, len(projectContext))
	for k := range projectContext {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i == c.contextItems {
			fmt.Fprintf(&b, "\n- (%d more keys omitted)", len(keys)-i)
			break
		}
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "- %s: %s", k, c.renderValue(projectContext[k]))
	}
	return b.String()
}

// without returns projectContext minus keys. projectContext is not modified.
func without(projectContext map[string]any, keys []string) map[string]any {
	if len(keys) == 0 {
		return projectContext
	}
	out := make(map[string]any, len(projectContext))
	for k, v := range projectContext {
		out[k] = v
	}
	for _, k := range keys {
		delete(out, k)
	}
	return out
}

func (c *Composer) renderValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []any:
		if len(t) > c.contextItems {
			return fmt.Sprintf("%s (+%d more)", encode(t[:c.contextItems]), len(t)-c.contextItems)
		}
		return encode(t)
	}
	return encode(v)
}

func encode(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}
