// Package stats reads authorship notes back out: per-commit summaries
// and the blame overlay.
package stats

import (
	"sort"

	"gitai/internal/authorship"
)

// FileSummary aggregates one file's attribution.
type FileSummary struct {
	Path       string         `json:"path"`
	TotalLines int            `json:"total_lines"`
	AILines    int            `json:"ai_lines"`
	Agents     map[string]int `json:"agents,omitempty"`
}

// Summary aggregates a whole note.
type Summary struct {
	Commit     string         `json:"commit"`
	Files      []FileSummary  `json:"files"`
	TotalLines int            `json:"total_lines"`
	AILines    int            `json:"ai_lines"`
	Agents     map[string]int `json:"agents,omitempty"`
}

// Summarize folds a note into line totals. A nil note (no note attached)
// summarizes to all-human zeros.
func Summarize(commitID string, note *authorship.Note) *Summary {
	s := &Summary{Commit: commitID, Agents: make(map[string]int)}
	if note == nil {
		return s
	}

	for _, f := range note.Files {
		fs := FileSummary{
			Path:       f.Path,
			TotalLines: f.LineCount,
			Agents:     make(map[string]int),
		}
		for _, run := range f.Runs {
			if run.Kind != authorship.Agent {
				continue
			}
			fs.AILines += run.Len
			fs.Agents[run.AgentID] += run.Len
			s.Agents[run.AgentID] += run.Len
		}
		s.Files = append(s.Files, fs)
		s.TotalLines += fs.TotalLines
		s.AILines += fs.AILines
	}

	sort.Slice(s.Files, func(i, j int) bool { return s.Files[i].Path < s.Files[j].Path })
	return s
}

// AgentNames lists contributing agents, most lines first, ties by name.
func (s *Summary) AgentNames() []string {
	names := make([]string, 0, len(s.Agents))
	for name := range s.Agents {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if s.Agents[names[i]] != s.Agents[names[j]] {
			return s.Agents[names[i]] > s.Agents[names[j]]
		}
		return names[i] < names[j]
	})
	return names
}
