package fsindex

import (
	"path/filepath"
	"strings"
)

// cleanPath sanitizes a user-supplied path. It strips control characters,
// trims whitespace, expands "~" with homeDir, rejects ".." components and
// resolves relative paths against base. It returns "" for rejected input.
// An empty value resolves to base.
func cleanPath(value, base, homeDir string) string {
	var b strings.Builder
	for _, r := range value {
		if r < 0x20 || r == 0x7F {
			continue
		}
		b.WriteRune(r)
	}
	s := strings.TrimSpace(b.String())
	if s == "" || s == "." {
		return filepath.Clean(base)
	}

	if s == "~" || strings.HasPrefix(s, "~/") {
		if homeDir == "" {
			return ""
		}
		s = filepath.Join(homeDir, strings.TrimLeft(s[1:], "/"))
	}

	for _, comp := range strings.Split(filepath.ToSlash(s), "/") {
		if comp == ".." {
			return ""
		}
	}

	if !filepath.IsAbs(s) {
		s = filepath.Join(base, s)
	}
	return filepath.Clean(s)
}
