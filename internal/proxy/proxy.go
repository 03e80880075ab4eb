// Package proxy intercepts git invocations: it dispatches to the real
// binary with stdio streamed unchanged, and runs pre/post hooks around
// the subcommands that affect authorship state.
//
// The propagation rule is absolute: no failure in any hook may alter the
// exit code or the stdio of the proxied command. Hooks log locally and
// enqueue telemetry instead.
package proxy

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"gitai/internal/cache"
	"gitai/internal/checkpoint"
	"gitai/internal/cliparse"
	"gitai/internal/config"
	"gitai/internal/flush"
	"gitai/internal/gitexec"
	"gitai/internal/gitio"
	"gitai/internal/hookinput"
	"gitai/internal/logging"
	"gitai/internal/materialize"
	"gitai/internal/notes"
	"gitai/internal/refspec"
	"gitai/internal/rewrite"
	"gitai/internal/store"
	"gitai/internal/worklog"
)

// Run proxies one git invocation and returns the exit code to propagate.
func Run(args []string) int {
	cfg, err := config.Load()
	if err != nil {
		// Without a real git there is nothing to proxy; this is the one
		// failure that surfaces.
		fmt.Fprintf(os.Stderr, "git-ai: %v\n", err)
		return 1
	}

	inv := cliparse.Parse(args)
	p := &proxy{cfg: cfg, inv: inv}

	if !inv.IsHelp {
		p.openRepo()
		inv = p.preHook(inv)
	}

	code, err := gitexec.Passthrough(cfg.GitPath, inv.Argv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "git-ai: %v\n", err)
		return 1
	}

	if code == 0 && !inv.IsHelp {
		p.postHook(inv)
	}
	return code
}

type proxy struct {
	cfg  *config.Config
	inv  *cliparse.Invocation
	repo *gitio.Repository
	st   *store.Store

	// preHookState carries values from pre to post hook.
	oldHead   string
	oldBranch string
}

// openRepo locates the repository the invocation targets. Absence is
// fine: clone, init, and global commands have no repo yet.
func (p *proxy) openRepo() {
	dir := p.inv.RepoDirFromGlobals()
	if dir == "" {
		dir = "."
	}
	repo, err := gitio.Open(dir)
	if err != nil {
		return
	}

	remotes, _ := repo.RemoteURLs()
	if !p.cfg.AllowsRepository(remotes) {
		return
	}

	st, err := store.Open(repo.AIDir())
	if err != nil {
		return
	}
	p.repo = repo
	p.st = st
	logging.SetDir(repo.AIDir())
}

// tracked reports whether hooks apply to this invocation.
func (p *proxy) tracked() bool {
	return p.repo != nil && p.st != nil
}

// preHook runs before the real git and may rewrite the argument vector
// (refspec injection). Never fails.
func (p *proxy) preHook(inv *cliparse.Invocation) *cliparse.Invocation {
	defer p.recover("pre", inv.Command)

	switch inv.Command {
	case "fetch", "pull":
		return inv.WithCommandArgs(refspec.InjectFetch(inv.CommandArgs))
	case "push":
		return inv.WithCommandArgs(refspec.InjectPush(inv.CommandArgs))
	}

	if !p.tracked() {
		// Still strip the synthetic flag so it never reaches real git.
		return inv.WithCommandArgs(stripNoNotes(inv.CommandArgs))
	}

	switch inv.Command {
	case "commit", "merge", "revert":
		// Capture hand edits made since the last hook event, so the
		// materializer sees the full picture.
		p.flushCheckpoint()
		p.oldHead, _ = p.repo.Head()
	case "rebase", "cherry-pick", "reset":
		p.oldHead, _ = p.repo.Head()
	case "checkout", "switch":
		p.flushCheckpoint()
		p.oldBranch, _ = p.repo.CurrentBranch()
	default:
		if strings.HasPrefix(inv.Command, "filter-") {
			p.oldHead, _ = p.repo.Head()
		}
	}
	return inv.WithCommandArgs(stripNoNotes(inv.CommandArgs))
}

// postHook runs after a successful real-git exit. Never fails.
func (p *proxy) postHook(inv *cliparse.Invocation) {
	defer p.recover("post", inv.Command)

	switch inv.Command {
	case "fetch", "pull", "push":
		if p.tracked() {
			flush.Spawn(p.repo.Root())
		}
		return
	}

	if !p.tracked() {
		return
	}

	switch inv.Command {
	case "commit":
		if isAmend(inv.CommandArgs) {
			p.remapAmend()
			return
		}
		p.materializeHead()
	case "merge", "revert":
		p.materializeHead()
	case "rebase", "cherry-pick", "reset":
		// The rewrite-report hook carries the notes; the log's
		// checkpoint coordinates are meaningless now.
		p.invalidateLog()
		if inv.Command == "cherry-pick" || inv.Command == "reset" {
			p.remapAgainstOldHead()
		}
	case "checkout", "switch":
		p.rotateLog()
	default:
		if strings.HasPrefix(inv.Command, "filter-") {
			p.invalidateLog()
		}
	}
}

// recover converts a hook panic or lingering error into a debug line;
// the proxied git result is already decided.
func (p *proxy) recover(phase, command string) {
	if r := recover(); r != nil {
		logging.Debugf("%s-hook %s panicked: %v", phase, command, r)
		if p.st != nil {
			flush.Enqueue(p.st, "hook_panic", fmt.Sprintf("%s %s: %v", phase, command, r))
		}
	}
}

// flushCheckpoint records a best-effort human checkpoint of the working
// tree before a commit-like operation.
func (p *proxy) flushCheckpoint() {
	db, err := cache.Open(p.st.Dir())
	if err != nil {
		logging.Debugf("flush checkpoint: %v", err)
		return
	}
	defer db.Close()

	in, err := hookinput.Parse([]byte(`{"type": "human"}`))
	if err != nil {
		return
	}
	engine := checkpoint.New(p.repo, p.st, db, p.cfg)
	if _, err := engine.Run(in, checkpoint.Options{AllowDetached: true}); err != nil {
		logging.Debugf("flush checkpoint: %v", err)
	}
}

// materializeHead folds the working log into a note for the new HEAD.
func (p *proxy) materializeHead() {
	head, err := p.repo.Head()
	if err != nil || head == "" {
		return
	}
	branch, err := p.repo.CurrentBranch()
	if err != nil {
		branch = "DETACHED"
	}

	log := worklog.Open(p.st.LogDir(), branch)
	mgr := notes.NewManager(p.runner())
	mater := materialize.New(p.repo, p.st)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := mater.Commit(ctx, mgr, log, head); err != nil {
		logging.Debugf("materialize %s: %v", head, err)
		flush.Enqueue(p.st, "materialize_error", err.Error())
	}
}

// remapAmend carries the pre-amend note onto the replacement commit.
func (p *proxy) remapAmend() {
	newHead, err := p.repo.Head()
	if err != nil || newHead == "" || p.oldHead == "" || p.oldHead == newHead {
		return
	}

	// Amend folds any pending checkpoints first, then unions with the
	// old commit's note via the rewrite path.
	p.materializeHead()

	remapper := rewrite.New(p.repo, notes.NewManager(p.runner()))
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := remapper.Remap(ctx, []rewrite.Pair{{Old: p.oldHead, New: newHead}}); err != nil {
		logging.Debugf("amend remap: %v", err)
	}
}

// remapAgainstOldHead handles cherry-pick and hard reset, where git does
// not emit a rewrite report through the hook channel.
func (p *proxy) remapAgainstOldHead() {
	newHead, err := p.repo.Head()
	if err != nil || newHead == "" || p.oldHead == "" || p.oldHead == newHead {
		return
	}
	remapper := rewrite.New(p.repo, notes.NewManager(p.runner()))
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := remapper.Remap(ctx, []rewrite.Pair{{Old: p.oldHead, New: newHead}}); err != nil {
		logging.Debugf("head remap: %v", err)
	}
}

// rotateLog prepares per-branch state after a branch switch.
func (p *proxy) rotateLog() {
	branch, err := p.repo.CurrentBranch()
	if err != nil {
		return
	}
	if branch == p.oldBranch {
		return
	}
	if err := worklog.Rotate(p.st.LogDir(), branch); err != nil {
		logging.Debugf("rotate log to %s: %v", branch, err)
	}
}

// invalidateLog discards working-log state after history rewrites.
func (p *proxy) invalidateLog() {
	branch, err := p.repo.CurrentBranch()
	if err != nil {
		branch = "DETACHED"
	}
	if err := worklog.Open(p.st.LogDir(), branch).Invalidate(); err != nil {
		logging.Debugf("invalidate log: %v", err)
	}
}

func (p *proxy) runner() *gitexec.Runner {
	return gitexec.NewRunner(p.cfg.GitPath, p.repo.Root())
}

func isAmend(args []string) bool {
	for _, a := range args {
		if a == "--amend" {
			return true
		}
	}
	return false
}

func stripNoNotes(args []string) []string {
	out := make([]string, 0, len(args))
	for _, a := range args {
		if a == refspec.NoNotesFlag {
			continue
		}
		out = append(out, a)
	}
	return out
}
