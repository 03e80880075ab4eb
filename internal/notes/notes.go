// Package notes attaches, reads, and removes authorship notes under
// refs/notes/ai.
package notes

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"gitai/internal/authorship"
	"gitai/internal/gitexec"
)

// Ref is the dedicated notes ref carrying authorship payloads.
const Ref = "refs/notes/ai"

// FetchRefspec syncs the notes ref on fetch; forced so rewritten note
// trees fast-forward past local state.
const FetchRefspec = "+refs/notes/ai:refs/notes/ai"

// PushRefspec syncs the notes ref on push, without force.
const PushRefspec = "refs/notes/ai:refs/notes/ai"

// Manager performs note I/O through the real git binary.
type Manager struct {
	runner *gitexec.Runner
}

// NewManager creates a manager running against one repository.
func NewManager(runner *gitexec.Runner) *Manager {
	return &Manager{runner: runner}
}

// Attach writes a note payload for a commit. Idempotent: re-attaching an
// identical payload is a no-op, a different payload replaces the note.
//
// The payload goes through hash-object and `notes add -C` so binary
// envelopes survive byte-exact; `notes add -F` would normalize
// whitespace.
func (m *Manager) Attach(ctx context.Context, commitID string, payload []byte) error {
	if existing, err := m.ReadRaw(ctx, commitID); err == nil && bytes.Equal(existing, payload) {
		return nil
	}

	out, err := m.runner.OutputWithStdin(ctx, payload, "hash-object", "-w", "--stdin")
	if err != nil {
		return fmt.Errorf("storing note blob for %s: %w", commitID, err)
	}
	blob := strings.TrimSpace(string(out))

	_, err = m.runner.Output(ctx, "notes", "--ref=ai", "add", "-f", "-C", blob, commitID)
	if err != nil {
		return fmt.Errorf("attaching note to %s: %w", commitID, err)
	}
	return nil
}

// ReadRaw returns the undecoded note payload for a commit, or nil when no
// note exists.
func (m *Manager) ReadRaw(ctx context.Context, commitID string) ([]byte, error) {
	out, err := m.runner.Output(ctx, "notes", "--ref=ai", "show", commitID)
	if err != nil {
		if gitexec.ExitCode(err) == 1 {
			return nil, nil
		}
		return nil, err
	}
	return out, nil
}

// Read fetches and decodes the note for a commit. A missing note returns
// (nil, nil): absence means all-human.
func (m *Manager) Read(ctx context.Context, commitID string) (*authorship.Note, error) {
	raw, err := m.ReadRaw(ctx, commitID)
	if err != nil || raw == nil {
		return nil, err
	}
	note, err := authorship.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("note at %s: %w", commitID, err)
	}
	return note, nil
}

// Remove deletes the note for a commit, if any.
func (m *Manager) Remove(ctx context.Context, commitID string) error {
	_, err := m.runner.Output(ctx, "notes", "--ref=ai", "remove", "--ignore-missing", commitID)
	if err != nil {
		return fmt.Errorf("removing note at %s: %w", commitID, err)
	}
	return nil
}

// Exists reports whether a commit carries a note.
func (m *Manager) Exists(ctx context.Context, commitID string) (bool, error) {
	raw, err := m.ReadRaw(ctx, commitID)
	return raw != nil, err
}
