package fsindex

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTree creates a small project and returns its resolved root.
//
//	root/
//	  README.md
//	  main.go
//	  image.bin
//	  src/app.py
//	  src/lib/util.js
//	  src/lib/deep/x.txt
//	  .git/config
//	  node_modules/pkg/index.js
func newTree(t *testing.T) string {
	t.Helper()
	root, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)

	files := map[string]string{
		"README.md":                 "# Demo\nHello World\n",
		"main.go":                   "package main\n\nfunc main() { println(\"hello\") }\n",
		"image.bin":                 "\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR",
		"src/app.py":                "print('Hello')\nprint('hello again')\n",
		"src/lib/util.js":           "export const hello = 1\n",
		"src/lib/deep/x.txt":        "deep hello\n",
		".git/config":               "[core]\nhello = true\n",
		"node_modules/pkg/index.js": "module.exports = 'hello'\n",
	}
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return root
}

func newTool(t *testing.T, root string, mutate ...func(*Options)) *Tool {
	t.Helper()
	opts := Options{
		AllowedPaths: []string{root},
		Ignore:       []string{"**/.git", "**/node_modules"},
	}
	for _, m := range mutate {
		m(&opts)
	}
	tool, err := New(opts)
	require.NoError(t, err)
	return tool
}

func relPaths(t *testing.T, root string, paths []string) []string {
	t.Helper()
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		rel, err := filepath.Rel(root, p)
		require.NoError(t, err)
		out = append(out, filepath.ToSlash(rel))
	}
	return out
}

func TestIndex(t *testing.T) {
	root := newTree(t)
	tool := newTool(t, root)

	idx, err := tool.Index(context.Background(), ".", 2)
	require.NoError(t, err)

	assert.Equal(t, root, idx.Path)
	assert.ElementsMatch(t, []string{"src", "src/lib"}, relPaths(t, root, idx.Directories))

	var files []string
	text := map[string]bool{}
	for _, f := range idx.Files {
		rel, _ := filepath.Rel(root, f.Path)
		files = append(files, filepath.ToSlash(rel))
		text[f.Name] = f.IsText
	}
	assert.ElementsMatch(t, []string{"README.md", "main.go", "image.bin", "src/app.py", "src/lib/util.js"}, files)
	assert.Equal(t, 5, idx.TotalFiles)
	assert.Equal(t, 2, idx.TotalDirs)

	assert.True(t, text["README.md"])
	assert.True(t, text["main.go"])
	assert.False(t, text["image.bin"])
}

func TestIndex_DepthZero(t *testing.T) {
	root := newTree(t)
	tool := newTool(t, root)

	idx, err := tool.Index(context.Background(), root, 0)
	require.NoError(t, err)

	assert.Empty(t, idx.Directories)
	assert.Len(t, idx.Files, 3)
}

func TestIndex_WithoutIgnore(t *testing.T) {
	root := newTree(t)
	tool := newTool(t, root, func(o *Options) { o.Ignore = nil })

	idx, err := tool.Index(context.Background(), ".", 1)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"src", ".git", "node_modules"}, relPaths(t, root, idx.Directories))
}

func TestIndex_NotADirectory(t *testing.T) {
	root := newTree(t)
	tool := newTool(t, root)

	_, err := tool.Index(context.Background(), "README.md", 2)
	assert.ErrorIs(t, err, ErrNotDir)
}

func TestAccessControl(t *testing.T) {
	root := newTree(t)
	outside, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(outside, "secret.txt"), []byte("secret"), 0o644))
	require.NoError(t, os.Symlink(filepath.Join(outside, "secret.txt"), filepath.Join(root, "link.txt")))

	tool := newTool(t, root)
	ctx := context.Background()

	_, err = tool.ReadSnippet(filepath.Join(outside, "secret.txt"), 1, 10)
	assert.ErrorIs(t, err, ErrAccessDenied)

	_, err = tool.ReadSnippet("link.txt", 1, 10)
	assert.ErrorIs(t, err, ErrAccessDenied, "symlink escaping the root")

	_, err = tool.ReadSnippet("../secret.txt", 1, 10)
	assert.ErrorIs(t, err, ErrInvalidPath)

	_, err = tool.Index(ctx, outside, 2)
	assert.ErrorIs(t, err, ErrAccessDenied)

	_, err = tool.Search(ctx, "secret", outside, nil)
	assert.ErrorIs(t, err, ErrAccessDenied)

	idx, err := tool.Index(ctx, ".", 2)
	require.NoError(t, err)
	for _, f := range idx.Files {
		assert.NotEqual(t, "link.txt", f.Name)
	}
}

func TestReadSnippet(t *testing.T) {
	root := newTree(t)
	var b strings.Builder
	for i := 1; i <= 10; i++ {
		b.WriteString("line ")
		b.WriteString(string(rune('0' + i%10)))
		b.WriteString("\n")
	}
	require.NoError(t, os.WriteFile(filepath.Join(root, "ten.txt"), []byte(b.String()), 0o644))
	tool := newTool(t, root)

	s, err := tool.ReadSnippet("ten.txt", 3, 2)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(root, "ten.txt"), s.FilePath)
	assert.Equal(t, 3, s.StartLine)
	assert.Equal(t, 4, s.EndLine)
	assert.Equal(t, 10, s.TotalLines)
	assert.Equal(t, "line 3\nline 4\n", s.Content)
	assert.False(t, s.Truncated)

	s, err = tool.ReadSnippet("ten.txt", 9, 50)
	require.NoError(t, err)
	assert.Equal(t, 10, s.EndLine)
	assert.Equal(t, "line 9\nline 0\n", s.Content)

	s, err = tool.ReadSnippet("ten.txt", 20, 5)
	require.NoError(t, err)
	assert.Equal(t, "", s.Content)
}

func TestReadSnippet_Truncated(t *testing.T) {
	root := newTree(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "long.txt"), []byte(strings.Repeat("é", 30)), 0o644))
	tool := newTool(t, root, func(o *Options) { o.MaxSnippet = 10 })

	s, err := tool.ReadSnippet("long.txt", 1, 5)
	require.NoError(t, err)
	assert.True(t, s.Truncated)
	assert.Equal(t, strings.Repeat("é", 10)+"...", s.Content)
}

func TestReadSnippet_Errors(t *testing.T) {
	root := newTree(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "big.txt"), []byte(strings.Repeat("a", 64)), 0o644))
	tool := newTool(t, root, func(o *Options) { o.MaxFileSize = 32 })

	_, err := tool.ReadSnippet("missing.txt", 1, 5)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = tool.ReadSnippet("image.bin", 1, 5)
	assert.ErrorIs(t, err, ErrNotText)

	_, err = tool.ReadSnippet("big.txt", 1, 5)
	assert.ErrorIs(t, err, ErrTooLarge)

	_, err = tool.ReadSnippet("src", 1, 5)
	assert.ErrorIs(t, err, ErrIsDir)
}

func TestSearch(t *testing.T) {
	root := newTree(t)
	tool := newTool(t, root)

	res, err := tool.Search(context.Background(), "HELLO", ".", nil)
	require.NoError(t, err)
	assert.Equal(t, "HELLO", res.Query)

	byFile := map[string][]Match{}
	for _, r := range res.Results {
		rel, _ := filepath.Rel(root, r.FilePath)
		byFile[filepath.ToSlash(rel)] = r.Matches
	}
	assert.ElementsMatch(t,
		[]string{"README.md", "main.go", "src/app.py", "src/lib/util.js", "src/lib/deep/x.txt"},
		keys(byFile))
	assert.Equal(t, []Match{{Line: 2, Content: "Hello World"}}, byFile["README.md"])
	assert.Equal(t, []Match{
		{Line: 1, Content: "print('Hello')"},
		{Line: 2, Content: "print('hello again')"},
	}, byFile["src/app.py"])
}

func TestSearch_ExtensionFilter(t *testing.T) {
	root := newTree(t)
	tool := newTool(t, root)

	res, err := tool.Search(context.Background(), "hello", ".", []string{".PY", "js"})
	require.NoError(t, err)

	var files []string
	for _, r := range res.Results {
		files = append(files, filepath.Base(r.FilePath))
	}
	assert.ElementsMatch(t, []string{"app.py", "util.js"}, files)
}

func TestSearch_MatchLimit(t *testing.T) {
	root := newTree(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "many.txt"), []byte(strings.Repeat("needle\n", 20)), 0o644))
	tool := newTool(t, root)

	res, err := tool.Search(context.Background(), "needle", ".", nil)
	require.NoError(t, err)
	require.Len(t, res.Results, 1)
	assert.Len(t, res.Results[0].Matches, 5)
}

func TestSearch_EmptyQuery(t *testing.T) {
	tool := newTool(t, newTree(t))

	_, err := tool.Search(context.Background(), "  ", ".", nil)
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestSearch_Cancelled(t *testing.T) {
	tool := newTool(t, newTree(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := tool.Search(ctx, "hello", ".", nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNew_InvalidIgnorePattern(t *testing.T) {
	_, err := New(Options{AllowedPaths: []string{t.TempDir()}, Ignore: []string{"[unclosed"}})
	assert.Error(t, err)
}

func TestNew_MissingRoot(t *testing.T) {
	_, err := New(Options{AllowedPaths: []string{filepath.Join(t.TempDir(), "missing")}})
	assert.Error(t, err)
}

func TestCleanPath(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", "/base"},
		{".", "/base"},
		{"src/app.py", "/base/src/app.py"},
		{"/abs/path/", "/abs/path"},
		{"  /abs\x00/x  ", "/abs/x"},
		{"~/code", "/home/u/code"},
		{"~", "/home/u"},
		{"../etc", ""},
		{"/base/../etc", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, cleanPath(tt.in, "/base", "/home/u"), "input %q", tt.in)
	}
	assert.Equal(t, "", cleanPath("~/x", "/base", ""))
}

func keys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
