package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"gitai/internal/agents"
	"gitai/internal/cache"
	"gitai/internal/checkpoint"
	"gitai/internal/config"
	"gitai/internal/flush"
	"gitai/internal/gitexec"
	"gitai/internal/gitio"
	"gitai/internal/hookinput"
	"gitai/internal/notes"
	"gitai/internal/rewrite"
	"gitai/internal/stats"
	"gitai/internal/store"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Prepare the current repository for authorship tracking",
	RunE:  runInit,
}

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint [<agent-id>]",
	Short: "Record an authored snapshot of the working tree",
	Long: `Record a checkpoint: snapshot the working tree, diff it against the
previous checkpoint, and append the authored line ranges to the branch's
working log.

Editor and agent hooks call this between commits. The payload on stdin
(--hook-input stdin) identifies the author:

  {"type": "human" | "ai_agent", "agent_name": "...", "model": "...",
   "transcript": {"messages": [...]}}

Without a payload the checkpoint records as the named agent, or as human
when no agent id is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCheckpoint,
}

var statsCmd = &cobra.Command{
	Use:   "stats [<commit>]",
	Short: "Summarize a commit's authorship note",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runStats,
}

var blameCmd = &cobra.Command{
	Use:   "blame <file>",
	Short: "Per-line authorship overlay on git blame",
	Args:  cobra.ExactArgs(1),
	RunE:  runBlame,
}

var installHooksCmd = &cobra.Command{
	Use:   "install-hooks",
	Short: "Install editor/agent checkpoint hooks and the rewrite channel",
	RunE:  runInstallHooks,
}

var flushLogsCmd = &cobra.Command{
	Use:    "flush-logs",
	Short:  "Drain the pending telemetry queue",
	RunE:   runFlushLogs,
	Hidden: true,
}

var postRewriteCmd = &cobra.Command{
	Use:    "post-rewrite",
	Short:  "Consume a rewrite report and carry notes forward",
	RunE:   runPostRewrite,
	Hidden: true,
}

// openTracked opens the repository at the working directory plus its
// .git/ai store.
func openTracked() (*gitio.Repository, *store.Store, error) {
	repo, err := gitio.Open(".")
	if err != nil {
		return nil, nil, err
	}
	st, err := store.Open(repo.AIDir())
	if err != nil {
		return nil, nil, err
	}
	return repo, st, nil
}

func newRunner(repo *gitio.Repository) (*gitexec.Runner, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return gitexec.NewRunner(cfg.GitPath, repo.Root()), nil
}

func runInit(cmd *cobra.Command, args []string) error {
	repo, _, err := openTracked()
	if err != nil {
		return err
	}

	hookPath, err := agents.InstallPostRewriteHook(repoGitDir(repo))
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	} else {
		fmt.Printf("registered rewrite channel: %s\n", hookPath)
	}
	fmt.Printf("initialized authorship tracking in %s\n", repo.AIDir())
	return nil
}

func repoGitDir(repo *gitio.Repository) string {
	// AIDir is <gitdir>/ai.
	return filepath.Dir(repo.AIDir())
}

func runCheckpoint(cmd *cobra.Command, args []string) error {
	hookInput, _ := cmd.Flags().GetString("hook-input")
	allowDetached, _ := cmd.Flags().GetBool("allow-detached")

	var in *hookinput.Input
	switch {
	case hookInput == "stdin":
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("reading hook input: %w", err)
		}
		in, err = hookinput.Parse(data)
		if err != nil {
			return usagef("%v", err)
		}
	case hookInput != "":
		data, err := os.ReadFile(hookInput)
		if err != nil {
			return fmt.Errorf("reading hook input: %w", err)
		}
		in, err = hookinput.Parse(data)
		if err != nil {
			return usagef("%v", err)
		}
	case len(args) == 1:
		var err error
		in, err = hookinput.Parse([]byte(fmt.Sprintf(`{"type": "ai_agent", "agent_name": %q}`, args[0])))
		if err != nil {
			return usagef("%v", err)
		}
	default:
		var err error
		in, err = hookinput.Parse([]byte(`{"type": "human"}`))
		if err != nil {
			return err
		}
	}

	// Past argument validation, checkpoint always exits 0: a failed
	// checkpoint must never break the hook that invoked it.
	if err := recordCheckpoint(in, allowDetached); err != nil {
		fmt.Fprintf(os.Stderr, "git-ai: checkpoint: %v\n", err)
	}
	return nil
}

func recordCheckpoint(in *hookinput.Input, allowDetached bool) error {
	if in.RepoWorkingDir != "" {
		if err := os.Chdir(in.RepoWorkingDir); err != nil {
			return fmt.Errorf("entering %s: %w", in.RepoWorkingDir, err)
		}
	}

	repo, st, err := openTracked()
	if err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	db, err := cache.Open(st.Dir())
	if err != nil {
		return err
	}
	defer db.Close()

	engine := checkpoint.New(repo, st, db, cfg)
	result, err := engine.Run(in, checkpoint.Options{AllowDetached: allowDetached})
	if err != nil {
		return err
	}
	if result == checkpoint.Recorded {
		fmt.Println("checkpoint recorded")
	} else {
		fmt.Println("no changes")
	}
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	asJSON, _ := cmd.Flags().GetBool("json")

	repo, _, err := openTracked()
	if err != nil {
		return err
	}
	runner, err := newRunner(repo)
	if err != nil {
		return err
	}

	rev := "HEAD"
	if len(args) == 1 {
		rev = args[0]
	}
	commit, err := repo.ResolveCommit(rev)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	note, err := notes.NewManager(runner).Read(ctx, commit)
	if err != nil {
		return err
	}

	summary := stats.Summarize(commit, note)
	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	}

	fmt.Printf("commit %s\n", summary.Commit)
	if summary.TotalLines == 0 {
		fmt.Println("no AI attribution recorded (all human)")
		return nil
	}
	fmt.Printf("attributed files: %d, lines: %d, AI lines: %d\n",
		len(summary.Files), summary.TotalLines, summary.AILines)
	for _, name := range summary.AgentNames() {
		fmt.Printf("  %-30s %d lines\n", name, summary.Agents[name])
	}
	for _, f := range summary.Files {
		fmt.Printf("  %s: %d/%d AI\n", f.Path, f.AILines, f.TotalLines)
	}
	return nil
}

func runBlame(cmd *cobra.Command, args []string) error {
	asJSON, _ := cmd.Flags().GetBool("json")
	rev, _ := cmd.Flags().GetString("rev")

	repo, _, err := openTracked()
	if err != nil {
		return err
	}
	runner, err := newRunner(repo)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	lines, err := stats.Blame(ctx, runner, notes.NewManager(runner), rev, args[0])
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(lines)
	}

	for _, l := range lines {
		author := "human"
		if l.AgentID != "" {
			author = l.AgentID
		}
		fmt.Printf("%6d %-24s %.8s  %s\n", l.Line, author, l.Commit, l.Content)
	}
	return nil
}

func runInstallHooks(cmd *cobra.Command, args []string) error {
	home, err := os.UserHomeDir()
	if err != nil {
		return err
	}

	results := agents.InstallAll(home)
	for _, r := range results {
		switch {
		case r.Err != nil:
			fmt.Fprintf(os.Stderr, "%s: %v\n", r.Preset, r.Err)
		case r.Installed:
			fmt.Printf("installed %s hook: %s\n", r.Preset, r.Path)
		}
	}

	// Register the rewrite channel when run inside a repository.
	if repo, _, err := openTracked(); err == nil {
		if path, err := agents.InstallPostRewriteHook(repoGitDir(repo)); err == nil {
			fmt.Printf("registered rewrite channel: %s\n", path)
		} else {
			fmt.Fprintf(os.Stderr, "warning: %v\n", err)
		}
	}

	// Partial success still exits 0.
	return nil
}

func runFlushLogs(cmd *cobra.Command, args []string) error {
	// Bad config is the only non-zero exit; a missing repo just means
	// there is nothing to drain.
	if _, err := config.Load(); err != nil {
		return err
	}
	_, st, err := openTracked()
	if err != nil {
		return nil
	}
	if err := flush.Drain(context.Background(), st.Dir()); err != nil {
		fmt.Fprintf(os.Stderr, "git-ai: flush: %v\n", err)
	}
	return nil
}

func runPostRewrite(cmd *cobra.Command, args []string) error {
	repo, _, err := openTracked()
	if err != nil {
		return err
	}
	runner, err := newRunner(repo)
	if err != nil {
		return err
	}

	pairs, err := rewrite.ParsePairs(os.Stdin)
	if err != nil {
		return err
	}
	if len(pairs) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	return rewrite.New(repo, notes.NewManager(runner)).Remap(ctx, pairs)
}
