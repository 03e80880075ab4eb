// Package rewrite carries authorship notes across history rewrites:
// rebase, amend, cherry-pick, reset, and squash merges.
//
// The host VCS reports rewrites as a stream of `old-sha new-sha` pairs.
// For every pair the note at the old commit is re-materialized against
// the tree of the new commit by the same LCS alignment the materializer
// uses; old notes are never mutated.
package rewrite

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"gitai/internal/authorship"
	"gitai/internal/gitio"
	"gitai/internal/linediff"
	"gitai/internal/logging"
	"gitai/internal/notes"
)

// Pair is one rewrite report line.
type Pair struct {
	Old string
	New string
}

// ParsePairs reads the rewrite report stream: one `old new` pair per
// line, extra fields ignored, blank lines skipped.
func ParsePairs(r io.Reader) ([]Pair, error) {
	var pairs []Pair
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		pairs = append(pairs, Pair{Old: fields[0], New: fields[1]})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading rewrite report: %w", err)
	}
	return pairs, nil
}

// Remapper re-materializes notes at rewritten commits.
type Remapper struct {
	Repo   *gitio.Repository
	Notes  *notes.Manager
	Differ *linediff.Differ
}

// New builds a remapper.
func New(repo *gitio.Repository, mgr *notes.Manager) *Remapper {
	return &Remapper{Repo: repo, Notes: mgr, Differ: linediff.New()}
}

// Remap processes a full rewrite report. Pairs sharing a new commit form
// a squash: the new note is the union of the component notes in report
// order, the later contributing source winning conflicting lines.
//
// Errors on individual commits are logged and skipped; a rewrite must
// never fail the surrounding git operation.
func (r *Remapper) Remap(ctx context.Context, pairs []Pair) error {
	grouped := make(map[string][]string)
	var order []string
	for _, p := range pairs {
		if _, seen := grouped[p.New]; !seen {
			order = append(order, p.New)
		}
		grouped[p.New] = append(grouped[p.New], p.Old)
	}

	for _, newID := range order {
		if err := r.remapOne(ctx, grouped[newID], newID); err != nil {
			logging.Debugf("remap %s: %v", newID, err)
		}
	}
	return nil
}

// remapOne folds the notes of the source commits onto the new commit's
// tree and attaches the result.
func (r *Remapper) remapOne(ctx context.Context, oldIDs []string, newID string) error {
	// The target's own note, if any, is the base layer; sources overlay
	// it in order.
	type layer struct {
		commit string
		note   *authorship.Note
	}
	var layers []layer
	for _, oldID := range oldIDs {
		if oldID == newID {
			continue
		}
		note, err := r.Notes.Read(ctx, oldID)
		if err != nil {
			return err
		}
		if note != nil {
			layers = append(layers, layer{commit: oldID, note: note})
		}
	}
	if len(layers) == 0 {
		return nil
	}
	own, err := r.Notes.Read(ctx, newID)
	if err != nil {
		return err
	}
	if own != nil {
		layers = append([]layer{{commit: newID, note: own}}, layers...)
	}

	// Per-file line authors over the new tree, agent lines carried from
	// each layer in order.
	files := make(map[string][]authorship.LineAuthor)
	lineCounts := make(map[string]int)

	for _, l := range layers {
		for _, fa := range l.note.Files {
			newBlob, ok, err := r.Repo.FileAtCommit(newID, fa.Path)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			oldBlob, ok, err := r.Repo.FileAtCommit(l.commit, fa.Path)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}

			authors, seen := files[fa.Path]
			if !seen {
				n := linediff.CountLines(newBlob)
				authors = make([]authorship.LineAuthor, n)
				files[fa.Path] = authors
				lineCounts[fa.Path] = n
			}

			mapping := r.Differ.Align(oldBlob, newBlob)
			oldLines := fa.ExpandRuns()
			for i, la := range oldLines {
				if la.Kind != authorship.Agent {
					continue
				}
				mapped, ok := mapping[i+1]
				if !ok || mapped < 1 || mapped > len(authors) {
					continue
				}
				authors[mapped-1] = la
			}
		}
	}

	note := &authorship.Note{Version: authorship.CurrentVersion, Commit: newID}
	for path, authors := range files {
		runs := authorship.CompressLines(authors)
		hasAgent := false
		for _, run := range runs {
			if run.Kind == authorship.Agent {
				hasAgent = true
				break
			}
		}
		if !hasAgent {
			continue
		}
		note.Files = append(note.Files, authorship.FileAuthorship{
			Path:      path,
			LineCount: lineCounts[path],
			Runs:      runs,
		})
	}
	if len(note.Files) == 0 {
		return nil
	}
	// Order the file table by path so re-materializing is deterministic
	// regardless of map iteration.
	sort.Slice(note.Files, func(i, j int) bool { return note.Files[i].Path < note.Files[j].Path })

	payload, err := authorship.Encode(note)
	if err != nil {
		return err
	}
	return r.Notes.Attach(ctx, newID, payload)
}
