package treepath

import (
	"fmt"
	"strings"
)

// RelPath is a path relative to a declared root, kept as segments so it can
// be matched across the local and remote trees regardless of separator.
type RelPath []string

// ParseRelPath parses a POSIX-style relative path. "." and "" denote the root.
func ParseRelPath(s string) (RelPath, error) {
	if strings.HasPrefix(s, "/") {
		return nil, fmt.Errorf("%q is absolute: %w", s, ErrNotRooted)
	}
	var rel RelPath
	for _, seg := range strings.Split(s, "/") {
		switch seg {
		case "", ".":
			continue
		case "..":
			return nil, fmt.Errorf("%q escapes its root: %w", s, ErrNotRooted)
		}
		rel = append(rel, seg)
	}
	return rel, nil
}

func (r RelPath) String() string {
	if len(r) == 0 {
		return "."
	}
	return strings.Join(r, "/")
}

// Depth is the number of segments; the root has depth 0.
func (r RelPath) Depth() int {
	return len(r)
}

func (r RelPath) IsRoot() bool {
	return len(r) == 0
}

// Parent returns the parent of r. The parent of the root is the root.
func (r RelPath) Parent() RelPath {
	if len(r) == 0 {
		return r
	}
	return r[:len(r)-1]
}
