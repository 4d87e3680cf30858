// Package fsindex provides read-only access to project files for the
// agent and the UI: a depth-limited index, line-based snippets and a
// case-insensitive text search. Every path is confined to a set of
// allowed roots.
package fsindex

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/gabriel-vasile/mimetype"
)

const (
	// DefaultMaxFileSize is the largest file ReadSnippet and Search open.
	DefaultMaxFileSize = 1 << 20
	// DefaultMaxSnippet bounds snippet content, in characters.
	DefaultMaxSnippet = 2000
	// maxMatchesPerFile bounds search matches reported for one file.
	maxMatchesPerFile = 5
)

var (
	ErrInvalidPath  = errors.New("invalid path")
	ErrAccessDenied = errors.New("access denied")
	ErrNotFound     = errors.New("file not found")
	ErrNotText      = errors.New("not a text file")
	ErrTooLarge     = errors.New("file too large")
	ErrIsDir        = errors.New("path is a directory")
	ErrNotDir       = errors.New("path is not a directory")
	ErrEmptyQuery   = errors.New("empty search query")
)

var textExtensions = map[string]bool{
	".txt": true, ".md": true, ".py": true, ".js": true, ".ts": true,
	".html": true, ".css": true, ".json": true, ".xml": true, ".yaml": true,
	".yml": true, ".ini": true, ".cfg": true, ".sh": true, ".bash": true,
	".sql": true, ".csv": true, ".go": true, ".mod": true, ".toml": true,
	".tsx": true, ".jsx": true,
}

// Options configures a Tool.
type Options struct {
	// AllowedPaths are the roots every request must stay within. Relative
	// request paths resolve against the first one. Defaults to the working
	// directory.
	AllowedPaths []string
	// Ignore holds doublestar patterns, relative to the walked root, for
	// entries skipped by Index and Search.
	Ignore      []string
	MaxFileSize int64
	MaxSnippet  int
}

// Tool serves filesystem queries.
type Tool struct {
	roots       []string
	ignore      []string
	maxFileSize int64
	maxSnippet  int
	homeDir     string
	logger      *slog.Logger
}

// New returns a Tool. Allowed roots are resolved to absolute, symlink-free
// paths and must exist.
func New(opts Options) (*Tool, error) {
	allowed := opts.AllowedPaths
	if len(allowed) == 0 {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("working directory: %w", err)
		}
		allowed = []string{wd}
	}

	roots := make([]string, 0, len(allowed))
	for _, p := range allowed {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("allowed path %q: %w", p, err)
		}
		resolved, err := filepath.EvalSymlinks(abs)
		if err != nil {
			return nil, fmt.Errorf("allowed path %q: %w", p, err)
		}
		roots = append(roots, resolved)
	}

	for _, pattern := range opts.Ignore {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid ignore pattern %q", pattern)
		}
	}

	t := &Tool{
		roots:       roots,
		ignore:      opts.Ignore,
		maxFileSize: opts.MaxFileSize,
		maxSnippet:  opts.MaxSnippet,
		logger:      slog.With("component", "fsindex"),
	}
	if t.maxFileSize <= 0 {
		t.maxFileSize = DefaultMaxFileSize
	}
	if t.maxSnippet <= 0 {
		t.maxSnippet = DefaultMaxSnippet
	}
	t.homeDir, _ = os.UserHomeDir()
	return t, nil
}

// Roots returns the resolved allowed roots.
func (t *Tool) Roots() []string {
	return append([]string(nil), t.roots...)
}

// resolve turns a request path into an absolute path inside an allowed
// root. Symlinks are resolved before the containment check.
func (t *Tool) resolve(path string) (string, error) {
	clean := cleanPath(path, t.roots[0], t.homeDir)
	if clean == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	resolved, err := filepath.EvalSymlinks(clean)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			if !t.allowed(clean) {
				return "", fmt.Errorf("%w: %s", ErrAccessDenied, path)
			}
			return "", fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}
	if !t.allowed(resolved) {
		return "", fmt.Errorf("%w: %s", ErrAccessDenied, path)
	}
	return resolved, nil
}

// allowed reports whether path lies within one of the roots.
func (t *Tool) allowed(path string) bool {
	for _, root := range t.roots {
		rel, err := filepath.Rel(root, path)
		if err != nil {
			continue
		}
		if rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))) {
			return true
		}
	}
	return false
}

// ignored reports whether the entry at rel (slash-separated, relative to
// the walked root) matches an ignore pattern.
func (t *Tool) ignored(rel string, isDir bool) bool {
	for _, pattern := range t.ignore {
		if doublestar.MatchUnvalidated(pattern, rel) {
			return true
		}
		if isDir && doublestar.MatchUnvalidated(pattern, rel+"/") {
			return true
		}
	}
	return false
}

// isText reports whether path looks like a text file. Known extensions
// and text/* MIME types are accepted without reading the file; other
// files are sniffed.
func isText(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if textExtensions[ext] {
		return true
	}
	if ext != "" && strings.HasPrefix(mime.TypeByExtension(ext), "text/") {
		return true
	}
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return false
	}
	for m := mt; m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return true
		}
	}
	return false
}
