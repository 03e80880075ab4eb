package snapshot

import (
	"time"

	"gitai/internal/linediff"
	"gitai/internal/store"
)

// FileDelta carries one file's changed spans plus the hash of its
// checkpoint-time content, which the materializer later aligns against
// the committed blob.
type FileDelta struct {
	BlobHash string
	Spans    []linediff.Span
}

// Diff computes per-file line deltas between two snapshots: the spans of
// lines in curr that were not present verbatim in prev at the same
// logical position.
//
// Opaque and symlink entries are skipped. A path whose content hash
// already existed anywhere in prev contributes nothing, so renames and
// copies without edits are free. A file whose diff exceeds the per-file
// budget is treated as opaque for this checkpoint.
func Diff(st *store.Store, differ *linediff.Differ, prev, curr *store.Snapshot) (map[string]FileDelta, error) {
	prevHashes := make(map[string]bool, len(prev.Entries))
	for _, e := range prev.Entries {
		prevHashes[e.Hash] = true
	}

	deltas := make(map[string]FileDelta)
	for _, e := range curr.Entries {
		if e.Kind != store.KindText {
			continue
		}
		if prevHashes[e.Hash] {
			continue
		}

		currContent, err := st.ReadContent(e.Hash)
		if err != nil {
			return nil, err
		}

		var prevContent []byte
		if pe, ok := prev.Lookup(e.Path); ok && pe.Kind == store.KindText {
			prevContent, err = st.ReadContent(pe.Hash)
			if err != nil {
				return nil, err
			}
		}

		start := time.Now()
		spans := differ.Changed(prevContent, currContent)
		if differ.Budget > 0 && time.Since(start) > differ.Budget {
			continue
		}
		if len(spans) == 0 {
			continue
		}
		deltas[e.Path] = FileDelta{BlobHash: e.Hash, Spans: spans}
	}
	return deltas, nil
}
