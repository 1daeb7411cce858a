package treepath

import (
	"bufio"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/openmined/treesync/internal/utils"
	gitignore "github.com/sabhiram/go-gitignore"
)

// IgnoreFileName is read from the local root of a sync, gitignore syntax.
const IgnoreFileName = ".treesyncignore"

var defaultExcludeLines = []string{
	IgnoreFileName,
	// partial downloads
	".*.tmp.*",
}

// ExcludeList matches relative paths against gitignore-style patterns.
// A nil ExcludeList excludes nothing.
type ExcludeList struct {
	ignore *gitignore.GitIgnore
	rules  int
}

func NewExcludeList(patterns ...string) *ExcludeList {
	lines := append(append([]string{}, defaultExcludeLines...), patterns...)
	return &ExcludeList{
		ignore: gitignore.CompileIgnoreLines(lines...),
		rules:  len(lines),
	}
}

// LoadExcludeList combines the patterns with the ignore file in localRoot, if any.
func LoadExcludeList(localRoot string, patterns ...string) *ExcludeList {
	ignorePath := filepath.Join(localRoot, IgnoreFileName)
	if !utils.FileExists(ignorePath) {
		return NewExcludeList(patterns...)
	}

	file, err := os.Open(ignorePath)
	if err != nil {
		slog.Warn("failed to open ignore file", "path", ignorePath, "error", err)
		return NewExcludeList(patterns...)
	}
	defer file.Close()

	lines := append([]string{}, patterns...)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		slog.Warn("error reading ignore file", "path", ignorePath, "error", err)
	} else {
		slog.Debug("loaded ignore file", "path", ignorePath, "rules", len(lines)-len(patterns))
	}
	return NewExcludeList(lines...)
}

// Excludes reports whether rel is matched. Containers are also matched as
// "rel/" so directory-only patterns like "build/" apply to them.
func (e *ExcludeList) Excludes(rel RelPath, container bool) bool {
	if e == nil || rel.IsRoot() {
		return false
	}
	if e.ignore.MatchesPath(rel.String()) {
		return true
	}
	return container && e.ignore.MatchesPath(rel.String()+"/")
}

func (e *ExcludeList) Rules() int {
	if e == nil {
		return 0
	}
	return e.rules
}
