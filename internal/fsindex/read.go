package fsindex

import (
	"fmt"
	"os"
	"strings"
	"unicode/utf8"
)

// DefaultSnippetLines is used when ReadSnippet is called without a line count.
const DefaultSnippetLines = 50

// Snippet is a range of lines from a text file.
type Snippet struct {
	FilePath   string `json:"file_path"`
	StartLine  int    `json:"start_line"`
	EndLine    int    `json:"end_line"`
	TotalLines int    `json:"total_lines"`
	Content    string `json:"content"`
	Truncated  bool   `json:"truncated"`
}

// ReadSnippet returns up to maxLines lines of path starting at the 1-based
// startLine. Content longer than the snippet limit is cut and suffixed
// with "..." and Truncated is set. Invalid UTF-8 is dropped.
func (t *Tool) ReadSnippet(path string, startLine, maxLines int) (*Snippet, error) {
	if startLine < 1 {
		startLine = 1
	}
	if maxLines <= 0 {
		maxLines = DefaultSnippetLines
	}

	resolved, err := t.resolve(path)
	if err != nil {
		return nil, err
	}
	data, err := t.readText(resolved)
	if err != nil {
		return nil, err
	}

	lines := splitLines(strings.ToValidUTF8(string(data), ""))
	total := len(lines)
	end := min(startLine+maxLines-1, total)

	var content string
	if startLine <= end {
		content = strings.Join(lines[startLine-1:end], "")
	}

	truncated := utf8.RuneCountInString(content) > t.maxSnippet
	if truncated {
		content = string([]rune(content)[:t.maxSnippet]) + "..."
	}

	return &Snippet{
		FilePath:   resolved,
		StartLine:  startLine,
		EndLine:    end,
		TotalLines: total,
		Content:    content,
		Truncated:  truncated,
	}, nil
}

// readText reads a regular text file no larger than the size limit.
func (t *Tool) readText(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrIsDir, path)
	}
	if !isText(path) {
		return nil, fmt.Errorf("%w: %s", ErrNotText, path)
	}
	if info.Size() > t.maxFileSize {
		return nil, fmt.Errorf("%w: %d bytes (max: %d)", ErrTooLarge, info.Size(), t.maxFileSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

// splitLines splits s after each newline, keeping the terminators. A
// trailing newline does not start an extra line.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.SplitAfter(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

func requireDir(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrNotDir, path)
	}
	return nil
}
