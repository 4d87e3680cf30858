package fsindex

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
)

// DefaultIndexDepth is used when Index is called with a negative depth.
const DefaultIndexDepth = 2

// FileInfo describes one indexed file.
type FileInfo struct {
	Path   string `json:"path"`
	Name   string `json:"name"`
	Size   int64  `json:"size"`
	IsText bool   `json:"is_text"`
}

// Index is a depth-limited listing of a directory tree.
type Index struct {
	Path        string     `json:"path"`
	Files       []FileInfo `json:"files"`
	Directories []string   `json:"directories"`
	TotalFiles  int        `json:"total_files"`
	TotalDirs   int        `json:"total_dirs"`
}

// Index lists the tree under path. Directories up to maxDepth levels below
// path are listed and descended into; files are listed when their parent
// was descended into. Unreadable entries are skipped.
func (t *Tool) Index(ctx context.Context, path string, maxDepth int) (*Index, error) {
	if maxDepth < 0 {
		maxDepth = DefaultIndexDepth
	}
	root, err := t.resolve(path)
	if err != nil {
		return nil, err
	}
	if err := requireDir(root); err != nil {
		return nil, err
	}

	idx := &Index{Path: root, Files: []FileInfo{}, Directories: []string{}}
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			t.logger.Debug("skipping unreadable entry", "path", p, "error", err)
			if d != nil && d.IsDir() && p != root {
				return fs.SkipDir
			}
			return nil
		}
		if p == root {
			return nil
		}

		rel, _ := filepath.Rel(root, p)
		rel = filepath.ToSlash(rel)
		if t.ignored(rel, d.IsDir()) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if strings.Count(rel, "/")+1 > maxDepth {
				return fs.SkipDir
			}
			idx.Directories = append(idx.Directories, p)
			return nil
		}

		fi, ok := t.fileInfo(p, d)
		if ok {
			idx.Files = append(idx.Files, fi)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("index %s: %w", path, err)
	}

	idx.TotalFiles = len(idx.Files)
	idx.TotalDirs = len(idx.Directories)
	return idx, nil
}

// fileInfo describes a walked file. Symlinks pointing outside the allowed
// roots are omitted.
func (t *Tool) fileInfo(p string, d fs.DirEntry) (FileInfo, bool) {
	target := p
	if d.Type()&fs.ModeSymlink != 0 {
		resolved, err := filepath.EvalSymlinks(p)
		if err != nil || !t.allowed(resolved) {
			return FileInfo{}, false
		}
		target = resolved
	}
	info, err := d.Info()
	if err != nil {
		return FileInfo{}, false
	}
	return FileInfo{
		Path:   p,
		Name:   d.Name(),
		Size:   info.Size(),
		IsText: isText(target),
	}, true
}
