package watch

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// IgnoreFilter decides which paths in a shard drop directory the watcher
// should skip. Extraction jobs and sync tools leave partial and temp files
// around; none of those should trigger a merge attempt.
type IgnoreFilter struct {
	root     string
	patterns []gitignore.Pattern
}

func NewIgnoreFilter(root string) (*IgnoreFilter, error) {
	f := &IgnoreFilter{root: root}

	// Add default patterns
	defaultPatterns := []string{
		".git",
		".DS_Store",
		"*.tmp",
		"*.partial",
		"*.swp",
		"*.lock",
		"*.log",
		"lost+found",
		".idea",
		".vscode",
	}

	for _, p := range defaultPatterns {
		pattern := gitignore.ParsePattern(p, nil)
		f.patterns = append(f.patterns, pattern)
	}

	// Load .gitignore if exists
	f.loadPatternFile(filepath.Join(root, ".gitignore"))

	// Load .irbignore if exists
	f.loadPatternFile(filepath.Join(root, ".irbignore"))

	return f, nil
}

func (f *IgnoreFilter) loadPatternFile(path string) {
	file, err := os.Open(path)
	if err != nil {
		return
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		pattern := gitignore.ParsePattern(line, nil)
		f.patterns = append(f.patterns, pattern)
	}
}

func (f *IgnoreFilter) ShouldIgnore(path string) bool {
	relPath, err := filepath.Rel(f.root, path)
	if err != nil {
		return false
	}

	// Check each pattern
	pathParts := strings.Split(relPath, string(filepath.Separator))
	for _, pattern := range f.patterns {
		if pattern.Match(pathParts, false) == gitignore.Exclude {
			return true
		}
	}

	return false
}
