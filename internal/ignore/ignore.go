// Package ignore provides gitignore-style pattern matching for the
// snapshotter's working-tree walk.
package ignore

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Pattern represents a single ignore pattern with its properties.
type Pattern struct {
	pattern  string
	negated  bool
	dirOnly  bool
	anchored bool // Pattern starts with / (matches from root only)
}

// Matcher holds compiled ignore patterns and provides matching functionality.
type Matcher struct {
	patterns []Pattern
	basePath string
}

// NewMatcher creates a new empty Matcher with the given base path.
func NewMatcher(basePath string) *Matcher {
	return &Matcher{basePath: basePath}
}

// AddPattern adds a single pattern string to the matcher.
func (m *Matcher) AddPattern(line string) {
	line = strings.TrimSpace(line)

	// Skip empty lines and comments
	if line == "" || strings.HasPrefix(line, "#") {
		return
	}

	p := Pattern{}

	if strings.HasPrefix(line, "!") {
		p.negated = true
		line = line[1:]
	}

	if strings.HasSuffix(line, "/") {
		p.dirOnly = true
		line = strings.TrimSuffix(line, "/")
	}

	if strings.HasPrefix(line, "/") {
		p.anchored = true
		line = line[1:]
	}

	// Patterns without slashes match the basename at any depth unless
	// anchored.
	if !p.anchored && !strings.Contains(line, "/") {
		line = "**/" + line
	}

	p.pattern = line
	m.patterns = append(m.patterns, p)
}

// AddPatterns adds multiple pattern strings to the matcher.
func (m *Matcher) AddPatterns(lines []string) {
	for _, line := range lines {
		m.AddPattern(line)
	}
}

// LoadFile loads patterns from a gitignore-style file. A missing file is
// not an error.
func (m *Matcher) LoadFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		m.AddPattern(scanner.Text())
	}
	return scanner.Err()
}

// Match checks if a path should be ignored.
// The path should be relative to the matcher's base path.
// isDir indicates whether the path is a directory.
func (m *Matcher) Match(path string, isDir bool) bool {
	path = filepath.ToSlash(path)
	path = strings.TrimPrefix(path, "./")

	ignored := false
	for _, p := range m.patterns {
		// A dirOnly pattern matches a file only via a matching parent
		// directory.
		if p.dirOnly && !isDir {
			if m.matchDirPattern(p.pattern, path) {
				ignored = !p.negated
			}
			continue
		}
		if m.matchPattern(p.pattern, path) {
			ignored = !p.negated
		}
	}
	return ignored
}

// matchDirPattern checks if a path is inside a directory matching the pattern.
func (m *Matcher) matchDirPattern(pattern, path string) bool {
	// Check prefixes up to but not including the full path (the full path
	// is a file).
	parts := strings.Split(path, "/")
	for i := 1; i < len(parts); i++ {
		if m.matchPattern(pattern, strings.Join(parts[:i], "/")) {
			return true
		}
	}
	return false
}

// matchPattern checks if a path matches a single pattern.
func (m *Matcher) matchPattern(pattern, path string) bool {
	matched, _ := doublestar.Match(pattern, path)
	if matched {
		return true
	}
	// "node_modules" should also match "node_modules/foo/bar.js".
	if !strings.HasSuffix(pattern, "/**") {
		matched, _ = doublestar.Match(pattern+"/**", path)
		if matched {
			return true
		}
	}
	return false
}

// LoadFromRepo builds the matcher the snapshotter uses: the repository's
// .gitignore plus .git/info/exclude. The .git directory itself is always
// excluded.
func LoadFromRepo(root string) (*Matcher, error) {
	m := NewMatcher(root)

	m.AddPattern(".git/")

	if err := m.LoadFile(filepath.Join(root, ".gitignore")); err != nil {
		return nil, err
	}
	if err := m.LoadFile(filepath.Join(root, ".git", "info", "exclude")); err != nil {
		return nil, err
	}
	return m, nil
}

// Compile creates a matcher from a list of pattern strings.
func Compile(patterns []string) *Matcher {
	m := NewMatcher("")
	m.AddPatterns(patterns)
	return m
}
