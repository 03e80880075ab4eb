// Package agents holds the preset table of supported editor/agent tools
// and installs their checkpoint hooks.
package agents

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

//go:embed presets.yaml
var presetsYAML []byte

// Preset describes one supported agent tool.
type Preset struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	HookDir     string `yaml:"hook_dir"`
	HookFile    string `yaml:"hook_file"`
	Kind        string `yaml:"kind"`
	Command     string `yaml:"command"`
}

type presetFile struct {
	Presets []Preset `yaml:"presets"`
}

// Load parses the embedded preset table.
func Load() ([]Preset, error) {
	var pf presetFile
	if err := yaml.Unmarshal(presetsYAML, &pf); err != nil {
		return nil, fmt.Errorf("parsing agent presets: %w", err)
	}
	return pf.Presets, nil
}

// InstallResult reports one preset's installation outcome.
type InstallResult struct {
	Preset    string
	Path      string
	Installed bool
	Err       error
}

// InstallAll writes checkpoint hook files for every preset whose tool
// directory exists in the user's home. Best-effort: a failed preset is
// reported, not fatal.
func InstallAll(home string) []InstallResult {
	presets, err := Load()
	if err != nil {
		return []InstallResult{{Err: err}}
	}

	var results []InstallResult
	for _, p := range presets {
		dir := filepath.Join(home, p.HookDir)
		res := InstallResult{Preset: p.Name, Path: filepath.Join(dir, p.HookFile)}
		if _, err := os.Stat(dir); err != nil {
			// Tool not present; nothing to install.
			results = append(results, res)
			continue
		}
		if err := writeHookFile(res.Path, p); err != nil {
			res.Err = err
		} else {
			res.Installed = true
		}
		results = append(results, res)
	}
	return results
}

func writeHookFile(path string, p Preset) error {
	var content string
	switch p.Kind {
	case "shell":
		content = "#!/bin/sh\n# Installed by git-ai install-hooks.\nexec " + p.Command + "\n"
	default:
		content = fmt.Sprintf("{\n  \"checkpoint_command\": %q\n}\n", p.Command)
	}
	mode := os.FileMode(0644)
	if p.Kind == "shell" {
		mode = 0755
	}
	if err := os.WriteFile(path, []byte(content), mode); err != nil {
		return fmt.Errorf("writing hook for %s: %w", p.Name, err)
	}
	return nil
}

// postRewriteHook is the channel registration for the rewrite-report
// stream: git invokes it with `old new` pairs on stdin after rebase and
// amend.
const postRewriteHook = `#!/bin/sh
# Installed by git-ai: carries authorship notes across history rewrites.
exec git-ai post-rewrite "$@"
`

// InstallPostRewriteHook registers the post-rewrite channel in a
// repository's hooks directory. An existing foreign hook is left alone
// and reported.
func InstallPostRewriteHook(gitDir string) (string, error) {
	hooksDir := filepath.Join(gitDir, "hooks")
	if err := os.MkdirAll(hooksDir, 0755); err != nil {
		return "", fmt.Errorf("creating hooks dir: %w", err)
	}

	path := filepath.Join(hooksDir, "post-rewrite")
	if existing, err := os.ReadFile(path); err == nil {
		if string(existing) == postRewriteHook {
			return path, nil
		}
		return "", fmt.Errorf("foreign post-rewrite hook already present at %s", path)
	}

	if err := os.WriteFile(path, []byte(postRewriteHook), 0755); err != nil {
		return "", fmt.Errorf("writing post-rewrite hook: %w", err)
	}
	return path, nil
}
