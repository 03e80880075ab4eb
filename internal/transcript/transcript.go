// Package transcript archives prompt transcripts as companion objects of
// authorship notes.
//
// Prompt payloads arrive opaque from hooks and live in the content store
// until materialization; at commit time the checkpoint prompts are folded
// into one zstd-compressed archive referenced by hash from the note
// envelope.
package transcript

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"gitai/internal/store"
)

// ArchiveEntry pairs a checkpoint's sequence number with its raw prompt
// payload.
type ArchiveEntry struct {
	Seq     uint64          `json:"seq"`
	AgentID string          `json:"agent_id,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

// Archive is the companion object: every prompt that contributed to one
// commit.
type Archive struct {
	Commit  string         `json:"commit"`
	Entries []ArchiveEntry `json:"entries"`
}

// Store saves a raw prompt payload into the content store and returns
// its reference.
func Store(st *store.Store, raw []byte) (string, error) {
	return st.WriteBlob(raw)
}

// Build collects the given prompt references into a compressed archive,
// writes it as a content-store object, and drops a commit-keyed pointer
// file for discovery. Returns the archive's content reference, or "" when
// there are no entries.
func Build(st *store.Store, commitID string, entries []ArchiveEntry) (string, error) {
	if len(entries) == 0 {
		return "", nil
	}

	arch := Archive{Commit: commitID, Entries: entries}
	raw, err := json.Marshal(&arch)
	if err != nil {
		return "", fmt.Errorf("encoding transcript archive: %w", err)
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return "", fmt.Errorf("creating zstd writer: %w", err)
	}
	compressed := enc.EncodeAll(raw, nil)
	enc.Close()

	ref, err := st.WriteBlob(compressed)
	if err != nil {
		return "", err
	}

	pointer := filepath.Join(st.TranscriptDir(), commitID)
	if err := store.AtomicWrite(pointer, []byte(ref+"\n")); err != nil {
		return "", err
	}
	return ref, nil
}

// Load reads an archive back by its content reference.
func Load(st *store.Store, ref string) (*Archive, error) {
	compressed, err := st.ReadContent(ref)
	if err != nil {
		return nil, err
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("creating zstd reader: %w", err)
	}
	defer dec.Close()

	raw, err := dec.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("decompressing transcript archive: %w", err)
	}

	var arch Archive
	if err := json.Unmarshal(raw, &arch); err != nil {
		return nil, fmt.Errorf("decoding transcript archive: %w", err)
	}
	return &arch, nil
}

// RefForCommit resolves the commit-keyed pointer left by Build.
func RefForCommit(st *store.Store, commitID string) (string, bool) {
	data, err := os.ReadFile(filepath.Join(st.TranscriptDir(), commitID))
	if err != nil {
		return "", false
	}
	ref := string(data)
	for len(ref) > 0 && (ref[len(ref)-1] == '\n' || ref[len(ref)-1] == '\r') {
		ref = ref[:len(ref)-1]
	}
	return ref, ref != ""
}
