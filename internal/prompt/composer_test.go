package prompt

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilobridge/kilobridge/internal/mode"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestCompose_CoderBareIsBaseInstruction(t *testing.T) {
	c := New(Options{RulesDir: t.TempDir(), ProjectRulesDir: t.TempDir()})
	m := mode.Lookup("coder")

	assert.Equal(t, m.Instruction, c.Compose(m, nil, nil))
	assert.Equal(t, m.Instruction, c.Compose(m, map[string]any{}, map[string]string{}))
}

func TestCompose_SectionOrder(t *testing.T) {
	rules := t.TempDir()
	project := t.TempDir()
	writeFile(t, rules, "global.md", "  be kind  \n")
	writeFile(t, project, "debugger.md", "use gdb")

	c := New(Options{RulesDir: rules, ProjectRulesDir: project})
	m := mode.Lookup("debugger")
	got := c.Compose(m, map[string]any{"logs": []any{"panic: nil map"}, "service": "api"}, nil)

	want := strings.Join([]string{
		m.Instruction,
		"## Global Rules\nbe kind",
		"## Project Rules\nuse gdb",
		"Recent logs:\n- panic: nil map",
		"## Project Context\n- service: api",
	}, "\n\n")
	assert.Equal(t, want, got)
}

func TestCompose_ModeBlockKeysNotRepeated(t *testing.T) {
	c := New(Options{})
	ctx := map[string]any{
		"files_index": []any{"main.go", "go.mod"},
		"language":    "go",
	}

	got := c.Compose(mode.Lookup("coder"), ctx, nil)
	assert.Equal(t, 1, strings.Count(got, "main.go"), got)
	assert.Contains(t, got, "You can reference these files: main.go, go.mod.")
	assert.Contains(t, got, "## Project Context\n- language: go")
	assert.NotContains(t, got, "files_index")
	assert.Len(t, ctx, 2, "project context must not be modified")

	// Without a block for the key, it stays in the summary.
	got = c.Compose(mode.Lookup("ask"), ctx, nil)
	assert.Contains(t, got, `- files_index: ["main.go","go.mod"]`)
}

func TestCompose_OnlyBlockKeysOmitsContextSection(t *testing.T) {
	c := New(Options{})
	got := c.Compose(mode.Lookup("coder"), map[string]any{"files_index": []any{"a.go"}}, nil)
	assert.NotContains(t, got, "## Project Context")
}

func TestCompose_ProjectRuleFallsBackToProjectFile(t *testing.T) {
	project := t.TempDir()
	writeFile(t, project, "project.md", "monorepo rules")

	c := New(Options{ProjectRulesDir: project})
	got := c.Compose(mode.Lookup("ask"), nil, nil)
	assert.True(t, strings.HasSuffix(got, "## Project Rules\nmonorepo rules"), got)
}

func TestCompose_CustomRulesWin(t *testing.T) {
	rules := t.TempDir()
	project := t.TempDir()
	writeFile(t, rules, "global.md", "disk global")
	writeFile(t, project, "project.md", "disk project")

	c := New(Options{RulesDir: rules, ProjectRulesDir: project})
	m := mode.Lookup("architect")

	got := c.Compose(m, nil, map[string]string{RuleGlobal: "custom global"})
	assert.Contains(t, got, "## Global Rules\ncustom global")
	assert.NotContains(t, got, "disk global")
	assert.Contains(t, got, "## Project Rules\ndisk project")

	// An empty override suppresses the on-disk text instead of mixing.
	got = c.Compose(m, nil, map[string]string{RuleProject: ""})
	assert.NotContains(t, got, "Project Rules")
	assert.NotContains(t, got, "disk project")
}

func TestCompose_ContextIsBounded(t *testing.T) {
	c := New(Options{ContextItems: 2})
	ctx := map[string]any{
		"c":     "third",
		"a":     "first",
		"b":     []any{1.0, 2.0, 3.0},
		"extra": true,
	}
	got := c.Compose(mode.Lookup("ask"), ctx, nil)
	assert.Contains(t, got, "## Project Context\n- a: first\n- b: [1,2] (+1 more)\n- (2 more keys omitted)")
	assert.NotContains(t, got, "third")
}

func TestCompose_Deterministic(t *testing.T) {
	c := New(Options{})
	ctx := map[string]any{"z": 1.0, "y": "two", "x": []any{"a"}}
	first := c.Compose(mode.Lookup("coder"), ctx, nil)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, c.Compose(mode.Lookup("coder"), ctx, nil))
	}
}
