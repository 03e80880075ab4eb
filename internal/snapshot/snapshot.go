// Package snapshot captures deterministic fingerprints of the working
// tree into the content-addressed store.
package snapshot

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gitai/internal/cache"
	"gitai/internal/gitio"
	"gitai/internal/ignore"
	"gitai/internal/linediff"
	"gitai/internal/store"
)

// Capturer walks the working tree and materializes snapshots.
type Capturer struct {
	root    string
	store   *store.Store
	cache   *cache.DB
	matcher *ignore.Matcher
}

// NewCapturer builds a capturer for a repository root. The cache is
// optional; without it every file is rehashed.
func NewCapturer(root string, st *store.Store, db *cache.DB) (*Capturer, error) {
	matcher, err := ignore.LoadFromRepo(root)
	if err != nil {
		return nil, fmt.Errorf("loading ignore rules: %w", err)
	}
	return &Capturer{root: root, store: st, cache: db, matcher: matcher}, nil
}

// Capture walks tracked and untracked-but-not-ignored files, hashes each
// with the blob function of the host VCS, stores unseen content, and
// writes the path→hash index. Two captures of an identical tree produce
// the same snapshot id and byte-identical index files.
func (c *Capturer) Capture() (*store.Snapshot, error) {
	var entries []store.Entry

	err := filepath.WalkDir(c.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("%w: walking %s: %v", store.ErrSnapshotIO, path, err)
		}
		rel, rerr := filepath.Rel(c.root, path)
		if rerr != nil {
			return fmt.Errorf("%w: relativizing %s: %v", store.ErrSnapshotIO, path, rerr)
		}
		if rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if c.matcher.Match(rel, true) {
				return filepath.SkipDir
			}
			return nil
		}
		if c.matcher.Match(rel, false) {
			return nil
		}

		entry, err := c.captureFile(path, rel, d)
		if err != nil {
			return err
		}
		entries = append(entries, entry)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return c.store.WriteSnapshot(entries)
}

// captureFile hashes one file, short-circuiting unchanged files via the
// stat cache before touching content.
func (c *Capturer) captureFile(path, rel string, d fs.DirEntry) (store.Entry, error) {
	info, err := d.Info()
	if err != nil {
		return store.Entry{}, fmt.Errorf("%w: stat %s: %v", store.ErrSnapshotIO, rel, err)
	}

	// Symlinks are captured by target string, never dereferenced.
	if info.Mode()&os.ModeSymlink != 0 {
		target, err := os.Readlink(path)
		if err != nil {
			return store.Entry{}, fmt.Errorf("%w: readlink %s: %v", store.ErrSnapshotIO, rel, err)
		}
		hash := gitio.BlobHash([]byte(target))
		if err := c.store.WriteContent(hash, []byte(target)); err != nil {
			return store.Entry{}, err
		}
		return store.Entry{Path: rel, Hash: hash, Kind: store.KindSymlink}, nil
	}

	if c.cache != nil {
		if hash := c.cache.LookupDigest(rel, info); hash != "" && c.store.HasContent(hash) {
			kind := store.KindText
			if !c.isTextHash(hash) {
				kind = store.KindOpaque
			}
			return store.Entry{Path: rel, Hash: hash, Kind: kind}, nil
		}
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return store.Entry{}, fmt.Errorf("%w: reading %s: %v", store.ErrSnapshotIO, rel, err)
	}

	fp := cache.Fingerprint(content)
	var hash string
	if c.cache != nil {
		// Touched but unchanged: reuse the stored blob hash on a
		// fingerprint match instead of recomputing it.
		hash = c.cache.LookupByFingerprint(rel, info, fp)
	}
	if hash == "" {
		hash = gitio.BlobHash(content)
		if c.cache != nil {
			c.cache.StoreDigest(rel, info, fp, hash)
		}
	}

	if err := c.store.WriteContent(hash, content); err != nil {
		return store.Entry{}, err
	}

	kind := store.KindText
	if linediff.IsBinary(content) {
		kind = store.KindOpaque
	}
	return store.Entry{Path: rel, Hash: hash, Kind: kind}, nil
}

// isTextHash re-checks binary-ness from stored content on a cache hit.
func (c *Capturer) isTextHash(hash string) bool {
	content, err := c.store.ReadContent(hash)
	if err != nil {
		return true
	}
	return !linediff.IsBinary(content)
}

// FromTree builds the pseudo-snapshot of a commit tree. Used as the prior
// for the first checkpoint after a commit, clone, or checkout; blob
// contents are copied into the content store so the differ can read them.
func FromTree(repo *gitio.Repository, st *store.Store, commitID string) (*store.Snapshot, error) {
	if commitID == "" {
		return st.WriteSnapshot(nil)
	}
	treeEntries, err := repo.TreeEntries(commitID)
	if err != nil {
		return nil, err
	}

	entries := make([]store.Entry, 0, len(treeEntries))
	for _, te := range treeEntries {
		content, err := repo.BlobContent(te.Hash)
		if err != nil {
			return nil, err
		}
		kind := store.KindText
		switch {
		case te.Symlink:
			kind = store.KindSymlink
		case linediff.IsBinary(content):
			kind = store.KindOpaque
		}
		if err := st.WriteContent(te.Hash, content); err != nil {
			return nil, err
		}
		entries = append(entries, store.Entry{Path: te.Path, Hash: te.Hash, Kind: kind})
	}
	return st.WriteSnapshot(entries)
}
