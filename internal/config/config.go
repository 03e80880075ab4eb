// Package config loads the git-ai configuration file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
)

// ErrSelfReference means git_path resolves to the git-ai binary itself.
// Executing it would recurse forever, so configuration loading refuses it.
var ErrSelfReference = errors.New("git_path points at git-ai itself")

// Config holds the process-wide settings from ~/.git-ai/config.json.
type Config struct {
	// GitPath is the absolute path of the real git binary. Required.
	GitPath string `json:"git_path"`
	// IgnorePrompts disables storage of prompt transcripts.
	IgnorePrompts bool `json:"ignore_prompts"`
	// AllowRepositories, when non-empty, restricts tracking to repositories
	// whose remote URLs appear in the list.
	AllowRepositories []string `json:"allow_repositories"`
}

var (
	once    sync.Once
	loaded  *Config
	errLoad error
)

// Path returns the location of the config file.
func Path() (string, error) {
	if p := os.Getenv("GIT_AI_CONFIG"); p != "" {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home dir: %w", err)
	}
	return filepath.Join(home, ".git-ai", "config.json"), nil
}

// Load reads the configuration exactly once per process.
func Load() (*Config, error) {
	once.Do(func() {
		loaded, errLoad = load()
	})
	return loaded, errLoad
}

func load() (*Config, error) {
	cfg := &Config{}

	path, err := Path()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// Fall through to discovery below.
	default:
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	if env := os.Getenv("GIT_AI_GIT"); env != "" {
		cfg.GitPath = env
	}
	if cfg.GitPath == "" {
		cfg.GitPath = discoverGit()
	}
	if cfg.GitPath == "" {
		return nil, fmt.Errorf("no git_path in %s and no git on PATH", path)
	}

	if err := rejectSelf(cfg.GitPath); err != nil {
		return nil, err
	}
	return cfg, nil
}

// discoverGit looks for a real git on PATH, skipping any entry that is
// this binary wearing the git name.
func discoverGit() string {
	self, _ := os.Executable()
	self, _ = filepath.EvalSymlinks(self)

	for _, dir := range filepath.SplitList(os.Getenv("PATH")) {
		cand := filepath.Join(dir, "git")
		resolved, err := filepath.EvalSymlinks(cand)
		if err != nil {
			continue
		}
		if info, err := os.Stat(resolved); err != nil || info.IsDir() || info.Mode()&0111 == 0 {
			continue
		}
		if self != "" && resolved == self {
			continue
		}
		return cand
	}

	if p, err := exec.LookPath("git"); err == nil {
		return p
	}
	return ""
}

// rejectSelf canonicalizes the configured path and compares it to the
// running executable.
func rejectSelf(gitPath string) error {
	resolved, err := filepath.EvalSymlinks(gitPath)
	if err != nil {
		return fmt.Errorf("resolving git_path %s: %w", gitPath, err)
	}
	self, err := os.Executable()
	if err != nil {
		return nil
	}
	self, err = filepath.EvalSymlinks(self)
	if err != nil {
		return nil
	}
	if resolved == self {
		return fmt.Errorf("%w: %s", ErrSelfReference, gitPath)
	}
	return nil
}

// AllowsRepository checks a repository's remote URLs against the allowlist.
// An empty allowlist allows everything; with an allowlist active, a
// repository we cannot identify is denied.
func (c *Config) AllowsRepository(remoteURLs []string) bool {
	if len(c.AllowRepositories) == 0 {
		return true
	}
	for _, url := range remoteURLs {
		for _, allowed := range c.AllowRepositories {
			if url == allowed {
				return true
			}
		}
	}
	return false
}
