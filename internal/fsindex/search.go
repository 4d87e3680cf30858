package fsindex

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Match is one matching line.
type Match struct {
	Line    int    `json:"line"`
	Content string `json:"content"`
}

// FileMatches lists the matches found in one file.
type FileMatches struct {
	FilePath string  `json:"file_path"`
	Matches  []Match `json:"matches"`
}

// SearchResult is the outcome of Search.
type SearchResult struct {
	Query   string        `json:"query"`
	Results []FileMatches `json:"results"`
}

// Search finds text files under path containing query, ignoring case.
// When extensions is non-empty only files with one of those extensions
// (with or without the leading dot) are searched. At most five matching
// lines are reported per file. Files that cannot be read are skipped.
func (t *Tool) Search(ctx context.Context, query, path string, extensions []string) (*SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	root, err := t.resolve(path)
	if err != nil {
		return nil, err
	}
	if err := requireDir(root); err != nil {
		return nil, err
	}

	exts := make(map[string]bool, len(extensions))
	for _, e := range extensions {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		exts[e] = true
	}

	needle := strings.ToLower(query)
	res := &SearchResult{Query: query, Results: []FileMatches{}}
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if d != nil && d.IsDir() && p != root {
				return fs.SkipDir
			}
			return nil
		}
		if p == root {
			return nil
		}
		rel, _ := filepath.Rel(root, p)
		if t.ignored(filepath.ToSlash(rel), d.IsDir()) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if len(exts) > 0 && !exts[strings.ToLower(filepath.Ext(p))] {
			return nil
		}
		if fm, ok := t.searchFile(p, needle); ok {
			res.Results = append(res.Results, fm)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", path, err)
	}
	return res, nil
}

func (t *Tool) searchFile(path, needle string) (FileMatches, bool) {
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil || !t.allowed(resolved) {
		return FileMatches{}, false
	}
	info, err := os.Stat(resolved)
	if err != nil || !info.Mode().IsRegular() || info.Size() > t.maxFileSize {
		return FileMatches{}, false
	}
	if !isText(resolved) {
		return FileMatches{}, false
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return FileMatches{}, false
	}

	content := strings.ToValidUTF8(string(data), "")
	if !strings.Contains(strings.ToLower(content), needle) {
		return FileMatches{}, false
	}

	var matches []Match
	for i, line := range strings.Split(content, "\n") {
		if strings.Contains(strings.ToLower(line), needle) {
			matches = append(matches, Match{Line: i + 1, Content: strings.TrimSpace(line)})
			if len(matches) >= maxMatchesPerFile {
				break
			}
		}
	}
	return FileMatches{FilePath: path, Matches: matches}, true
}
