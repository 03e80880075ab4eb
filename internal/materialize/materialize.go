// Package materialize folds the working log against a commit tree into a
// compact authorship note.
package materialize

import (
	"bytes"
	"context"
	"fmt"

	"gitai/internal/authorship"
	"gitai/internal/gitio"
	"gitai/internal/linediff"
	"gitai/internal/logging"
	"gitai/internal/notes"
	"gitai/internal/store"
	"gitai/internal/transcript"
	"gitai/internal/worklog"
)

// Materializer folds working logs into notes for one repository.
type Materializer struct {
	Repo   *gitio.Repository
	Store  *store.Store
	Differ *linediff.Differ
}

// New builds a materializer.
func New(repo *gitio.Repository, st *store.Store) *Materializer {
	return &Materializer{Repo: repo, Store: st, Differ: linediff.New()}
}

// Build replays the log entries over the commit tree and produces the
// note, without touching the log or the notes ref. Deterministic: the
// same (commit, entries) input yields a byte-identical encoded note.
//
// Lines default to human; log intervals are remapped from checkpoint-time
// coordinates to commit-time coordinates by LCS alignment, and later
// entries win on overlap. Files with no agent-authored line are left out
// of the note: absence reads as all-human.
func (m *Materializer) Build(commitID string, entries []worklog.Entry) (*authorship.Note, error) {
	treeEntries, err := m.Repo.TreeEntries(commitID)
	if err != nil {
		return nil, err
	}

	note := &authorship.Note{Version: authorship.CurrentVersion, Commit: commitID}

	for _, te := range treeEntries {
		if te.Symlink {
			continue
		}
		blob, err := m.Repo.BlobContent(te.Hash)
		if err != nil {
			return nil, err
		}
		if linediff.IsBinary(blob) {
			continue
		}

		lineCount := linediff.CountLines(blob)
		authors := make([]authorship.LineAuthor, lineCount)

		touched := false
		for _, entry := range entries {
			change, ok := entry.Files[te.Path]
			if !ok {
				continue
			}
			if m.applyChange(authors, blob, entry, change) {
				touched = true
			}
		}
		if !touched {
			continue
		}

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
			Path:      te.Path,
			LineCount: lineCount,
			Runs:      runs,
		})
	}

	if err := note.Validate(); err != nil {
		return nil, err
	}
	return note, nil
}

// applyChange overwrites the authorship of the commit-blob lines a single
// checkpoint's intervals survive to. Reports whether any line changed.
func (m *Materializer) applyChange(authors []authorship.LineAuthor, commitBlob []byte, entry worklog.Entry, change worklog.FileChange) bool {
	ckContent, err := m.Store.ReadContent(change.BlobHash)
	if err != nil {
		// Reclaimed snapshot content: the interval cannot be remapped and
		// is dropped, leaving the lines human.
		logging.Debugf("checkpoint blob %s unreadable: %v", change.BlobHash, err)
		return false
	}

	author := authorship.LineAuthor{Kind: entry.Kind, AgentID: entry.AgentID}

	if bytes.Equal(ckContent, commitBlob) {
		applied := false
		for _, span := range change.Spans {
			for line := span.Start; line < span.End && line <= len(authors); line++ {
				authors[line-1] = author
				applied = true
			}
		}
		return applied
	}

	// The committed blob differs from the checkpoint-time content (for
	// example a partially staged hunk). Align and carry only surviving
	// lines; the rest are dropped.
	mapping := m.Differ.Align(ckContent, commitBlob)
	applied := false
	for _, span := range change.Spans {
		for line := span.Start; line < span.End; line++ {
			mapped, ok := mapping[line]
			if !ok || mapped < 1 || mapped > len(authors) {
				continue
			}
			authors[mapped-1] = author
			applied = true
		}
	}
	return applied
}

// Commit is the post-commit entry point: build the note, attach it,
// archive the prompt transcripts, and consume the working log.
//
// A data-consistency failure aborts before anything is written; the
// commit itself already succeeded and simply carries no note.
func (m *Materializer) Commit(ctx context.Context, mgr *notes.Manager, log *worklog.Log, commitID string) error {
	entries, err := log.Entries()
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	note, err := m.Build(commitID, entries)
	if err != nil {
		return err
	}

	var archiveEntries []transcript.ArchiveEntry
	for _, entry := range entries {
		if entry.PromptRef == "" {
			continue
		}
		payload, err := m.Store.ReadContent(entry.PromptRef)
		if err != nil {
			logging.Debugf("prompt blob %s unreadable: %v", entry.PromptRef, err)
			continue
		}
		archiveEntries = append(archiveEntries, transcript.ArchiveEntry{
			Seq:     entry.Seq,
			AgentID: entry.AgentID,
			Payload: payload,
		})
	}

	if len(note.Files) > 0 || len(archiveEntries) > 0 {
		ref, err := transcript.Build(m.Store, commitID, archiveEntries)
		if err != nil {
			return err
		}
		note.TranscriptRef = ref

		payload, err := authorship.Encode(note)
		if err != nil {
			return err
		}
		if err := mgr.Attach(ctx, commitID, payload); err != nil {
			return err
		}
	}

	// The log is consumed: sequence numbers restart and the next
	// checkpoint diffs against the new HEAD tree.
	if err := log.Invalidate(); err != nil {
		return fmt.Errorf("consuming working log: %w", err)
	}
	return nil
}
