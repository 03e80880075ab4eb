// Package checkpoint implements the transactional snapshot-diff-append
// unit recording authored line ranges between commits.
package checkpoint

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"gitai/internal/authorship"
	"gitai/internal/cache"
	"gitai/internal/config"
	"gitai/internal/gitio"
	"gitai/internal/hookinput"
	"gitai/internal/linediff"
	"gitai/internal/lockfile"
	"gitai/internal/logging"
	"gitai/internal/snapshot"
	"gitai/internal/store"
	"gitai/internal/transcript"
	"gitai/internal/worklog"
)

// ErrBusy means another checkpoint held the lock past the timeout.
var ErrBusy = errors.New("checkpoint busy")

// ErrDetached means HEAD is not on a branch and no override was given.
var ErrDetached = errors.New("checkpoint on detached HEAD")

// ThrottleWindow collapses human checkpoints that land within it of the
// previous one, bounding hook-storm cost.
const ThrottleWindow = 500 * time.Millisecond

// Result reports what a checkpoint did.
type Result int

const (
	// NoOp means nothing changed (or the checkpoint was throttled).
	NoOp Result = iota
	// Recorded means an entry was appended to the working log.
	Recorded
)

// Options adjust a single checkpoint invocation.
type Options struct {
	// AllowDetached permits checkpoints on a detached HEAD, logged under
	// a synthetic branch name.
	AllowDetached bool
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Engine binds the checkpoint flow to one repository.
type Engine struct {
	Repo   *gitio.Repository
	Store  *store.Store
	Cache  *cache.DB
	Differ *linediff.Differ
	Config *config.Config

	// LockTimeout bounds the wait for a competing checkpoint.
	LockTimeout time.Duration
}

// New assembles an engine with default timeouts for a repository.
func New(repo *gitio.Repository, st *store.Store, db *cache.DB, cfg *config.Config) *Engine {
	return &Engine{
		Repo:        repo,
		Store:       st,
		Cache:       db,
		Differ:      linediff.New(),
		Config:      cfg,
		LockTimeout: lockfile.DefaultTimeout,
	}
}

// Run records one checkpoint from a validated hook payload.
//
// The whole unit is serialized behind .git/ai/log.lock. Failures leave
// the working log untouched; the caller decides whether they are fatal
// (direct invocation) or swallowed (hook context).
func (e *Engine) Run(in *hookinput.Input, opts Options) (Result, error) {
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}

	branch, err := e.Repo.CurrentBranch()
	if err != nil {
		if errors.Is(err, gitio.ErrDetachedHead) {
			if !opts.AllowDetached {
				return NoOp, ErrDetached
			}
			branch = "DETACHED"
		} else {
			return NoOp, err
		}
	}

	lockPath := filepath.Join(e.Store.Dir(), "log.lock")
	lock, err := lockfile.Acquire(lockPath, e.LockTimeout)
	if err != nil {
		if errors.Is(err, lockfile.ErrBusy) {
			return NoOp, fmt.Errorf("%w: %v", ErrBusy, err)
		}
		return NoOp, err
	}
	defer lock.Unlock()

	log := worklog.Open(e.Store.LogDir(), branch)

	// Human hook storms collapse: a human checkpoint right after another
	// human checkpoint records nothing.
	if in.AuthorKind() == authorship.Human && in.Type == "human" {
		if last, ok, err := log.LastEntry(); err == nil && ok {
			age := now().UnixMilli() - last.WallTimeMs
			if last.Kind == authorship.Human && age >= 0 && time.Duration(age)*time.Millisecond < ThrottleWindow {
				return NoOp, nil
			}
		}
	}

	capturer, err := snapshot.NewCapturer(e.Repo.Root(), e.Store, e.Cache)
	if err != nil {
		return NoOp, err
	}
	curr, err := capturer.Capture()
	if err != nil {
		return NoOp, err
	}

	prev, err := e.priorSnapshot(log)
	if err != nil {
		return NoOp, err
	}

	deltas, err := snapshot.Diff(e.Store, e.Differ, prev, curr)
	if err != nil {
		return NoOp, err
	}
	if len(deltas) == 0 {
		// Advance the prior pointer so identical re-captures stay cheap;
		// the log itself is untouched.
		if err := log.SetPrior(curr.ID); err != nil {
			return NoOp, err
		}
		return NoOp, nil
	}

	var promptRef string
	if in.HasTranscript() && (e.Config == nil || !e.Config.IgnorePrompts) {
		promptRef, err = transcript.Store(e.Store, in.Raw)
		if err != nil {
			return NoOp, err
		}
	}

	entry := &worklog.Entry{
		WallTimeMs: now().UnixMilli(),
		Kind:       in.AuthorKind(),
		AgentID:    in.AgentID(),
		PromptRef:  promptRef,
		SnapshotID: curr.ID,
		Files:      make(map[string]worklog.FileChange, len(deltas)),
	}
	for path, delta := range deltas {
		entry.Files[path] = worklog.FileChange{BlobHash: delta.BlobHash, Spans: delta.Spans}
	}

	if err := log.Append(entry); err != nil {
		return NoOp, err
	}
	if err := log.SetPrior(curr.ID); err != nil {
		return NoOp, err
	}

	logging.Debugf("checkpoint %s seq=%d files=%d", in.Summary(), entry.Seq, len(entry.Files))
	return Recorded, nil
}

// priorSnapshot loads the branch's recorded prior, falling back to the
// HEAD tree when none exists yet.
func (e *Engine) priorSnapshot(log *worklog.Log) (*store.Snapshot, error) {
	priorID, err := log.Prior()
	if err != nil {
		return nil, err
	}
	if priorID != "" {
		snap, err := e.Store.ReadSnapshot(priorID)
		if err == nil {
			return snap, nil
		}
		// A reclaimed snapshot is not fatal; realign with HEAD.
		logging.Debugf("prior snapshot %s unreadable: %v", priorID, err)
	}

	head, err := e.Repo.Head()
	if err != nil {
		return nil, err
	}
	return snapshot.FromTree(e.Repo, e.Store, head)
}
