// Package gitio provides read-only Git repository access using go-git.
package gitio

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// ErrNotARepository means no git repository was found at or above the path.
var ErrNotARepository = errors.New("not a git repository")

// ErrDetachedHead means HEAD does not point at a branch.
var ErrDetachedHead = errors.New("detached HEAD")

// TreeEntry describes one blob in a commit tree.
type TreeEntry struct {
	Path    string
	Hash    string
	Symlink bool
}

// Repository wraps a go-git repository rooted at a worktree.
type Repository struct {
	repo *git.Repository
	root string
}

// Open locates and opens the repository containing dir.
func Open(dir string) (*Repository, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", dir, err)
	}
	repo, err := git.PlainOpenWithOptions(abs, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return nil, fmt.Errorf("%w: %s", ErrNotARepository, dir)
		}
		return nil, fmt.Errorf("opening repository at %s: %w", dir, err)
	}

	root := abs
	wt, err := repo.Worktree()
	if err == nil {
		root = wt.Filesystem.Root()
	}
	return &Repository{repo: repo, root: root}, nil
}

// Root returns the worktree root directory.
func (r *Repository) Root() string {
	return r.root
}

// AIDir returns the .git/ai state directory for this repository.
func (r *Repository) AIDir() string {
	return filepath.Join(r.root, ".git", "ai")
}

// CurrentBranch returns the short branch name HEAD points at.
// Fails with ErrDetachedHead when HEAD is not symbolic.
func (r *Repository) CurrentBranch() (string, error) {
	ref, err := r.repo.Reference(plumbing.HEAD, false)
	if err != nil {
		return "", fmt.Errorf("reading HEAD: %w", err)
	}
	if ref.Type() != plumbing.SymbolicReference {
		return "", ErrDetachedHead
	}
	target := ref.Target()
	if !target.IsBranch() {
		return "", ErrDetachedHead
	}
	return target.Short(), nil
}

// Head returns the commit id HEAD resolves to, or "" in an unborn repository.
func (r *Repository) Head() (string, error) {
	ref, err := r.repo.Head()
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("resolving HEAD: %w", err)
	}
	return ref.Hash().String(), nil
}

// ResolveCommit resolves a revision string (branch, tag, or hash) to a
// commit id.
func (r *Repository) ResolveCommit(rev string) (string, error) {
	h, err := r.repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return "", fmt.Errorf("resolving %q: %w", rev, err)
	}
	commit, err := r.repo.CommitObject(*h)
	if err != nil {
		return "", fmt.Errorf("resolving %q: not a commit", rev)
	}
	return commit.Hash.String(), nil
}

// TreeEntries lists every blob in the tree of a commit, sorted by go-git's
// tree walk order (lexical within each directory).
func (r *Repository) TreeEntries(commitID string) ([]TreeEntry, error) {
	tree, err := r.treeOf(commitID)
	if err != nil {
		return nil, err
	}

	var entries []TreeEntry
	walker := object.NewTreeWalker(tree, true, nil)
	defer walker.Close()
	for {
		name, entry, err := walker.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("walking tree of %s: %w", commitID, err)
		}
		if !entry.Mode.IsFile() {
			continue
		}
		entries = append(entries, TreeEntry{
			Path:    name,
			Hash:    entry.Hash.String(),
			Symlink: entry.Mode == filemode.Symlink,
		})
	}
	return entries, nil
}

// BlobContent reads a blob by hash.
func (r *Repository) BlobContent(hash string) ([]byte, error) {
	blob, err := r.repo.BlobObject(plumbing.NewHash(hash))
	if err != nil {
		return nil, fmt.Errorf("reading blob %s: %w", hash, err)
	}
	reader, err := blob.Reader()
	if err != nil {
		return nil, fmt.Errorf("opening blob %s: %w", hash, err)
	}
	defer reader.Close()
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("reading blob %s: %w", hash, err)
	}
	return data, nil
}

// FileAtCommit reads one path from a commit tree. Returns nil content and
// false when the path is absent.
func (r *Repository) FileAtCommit(commitID, path string) ([]byte, bool, error) {
	tree, err := r.treeOf(commitID)
	if err != nil {
		return nil, false, err
	}
	f, err := tree.File(path)
	if err != nil {
		if errors.Is(err, object.ErrFileNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("reading %s at %s: %w", path, commitID, err)
	}
	content, err := f.Contents()
	if err != nil {
		return nil, false, fmt.Errorf("reading %s at %s: %w", path, commitID, err)
	}
	return []byte(content), true, nil
}

// CommitParents returns the parent commit ids of a commit.
func (r *Repository) CommitParents(commitID string) ([]string, error) {
	commit, err := r.repo.CommitObject(plumbing.NewHash(commitID))
	if err != nil {
		return nil, fmt.Errorf("reading commit %s: %w", commitID, err)
	}
	parents := make([]string, 0, commit.NumParents())
	for _, p := range commit.ParentHashes {
		parents = append(parents, p.String())
	}
	return parents, nil
}

// RemoteURLs returns the fetch URLs of every configured remote.
func (r *Repository) RemoteURLs() ([]string, error) {
	remotes, err := r.repo.Remotes()
	if err != nil {
		return nil, fmt.Errorf("listing remotes: %w", err)
	}
	var urls []string
	for _, remote := range remotes {
		urls = append(urls, remote.Config().URLs...)
	}
	return urls, nil
}

// BlobHash computes the id git would assign to content as a blob.
func BlobHash(content []byte) string {
	return plumbing.ComputeHash(plumbing.BlobObject, content).String()
}

func (r *Repository) treeOf(commitID string) (*object.Tree, error) {
	commit, err := r.repo.CommitObject(plumbing.NewHash(commitID))
	if err != nil {
		return nil, fmt.Errorf("reading commit %s: %w", commitID, err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("reading tree of %s: %w", commitID, err)
	}
	return tree, nil
}
