// Command git-ai is the transparent git proxy with AI authorship
// tracking.
//
// Invoked as `git` (via a PATH shim) it dispatches to the real binary,
// streaming stdio unchanged and running authorship hooks around the
// relevant subcommands. Invoked as `git-ai` it exposes the tracker's own
// surface: checkpoint, stats, blame, install-hooks, flush-logs.
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"gitai/internal/authorship"
	"gitai/internal/checkpoint"
	"gitai/internal/gitio"
	"gitai/internal/proxy"
)

// Version is the current git-ai version.
var Version = "1.0.0"

// Exit codes for direct git-ai invocations. The proxy path never uses
// these: it propagates the wrapped git's code.
const (
	exitOK        = 0
	exitError     = 1
	exitUsage     = 2
	exitNoRepo    = 3
	exitInvariant = 4
)

var rootCmd = &cobra.Command{
	Use:           "git-ai",
	Short:         "git proxy with AI authorship tracking",
	Long:          `git-ai tracks which lines were written by humans and which by AI agents, binding per-line authorship to commits as notes under refs/notes/ai.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(checkpointCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(blameCmd)
	rootCmd.AddCommand(installHooksCmd)
	rootCmd.AddCommand(flushLogsCmd)
	rootCmd.AddCommand(postRewriteCmd)

	checkpointCmd.Flags().String("hook-input", "", "read hook payload from 'stdin' or a file path")
	checkpointCmd.Flags().Bool("allow-detached", false, "permit checkpoints on a detached HEAD")
	statsCmd.Flags().Bool("json", false, "emit machine-readable output")
	blameCmd.Flags().String("rev", "", "revision to blame (default: the working-tree file)")
	blameCmd.Flags().Bool("json", false, "emit machine-readable output")
}

func main() {
	binary := filepath.Base(os.Args[0])
	if binary != "git-ai" && binary != "git-ai.exe" {
		// Wearing the git name: proxy everything.
		os.Exit(proxy.Run(os.Args[1:]))
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "git-ai: %v\n", err)
		os.Exit(exitCodeFor(err))
	}
}

// usageError marks argument problems (exit 2).
type usageError struct{ msg string }

func (e *usageError) Error() string { return e.msg }

func usagef(format string, args ...interface{}) error {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}

func exitCodeFor(err error) int {
	var ue *usageError
	switch {
	case errors.As(err, &ue):
		return exitUsage
	case errors.Is(err, gitio.ErrNotARepository):
		return exitNoRepo
	case errors.Is(err, authorship.ErrInvariant):
		return exitInvariant
	case errors.Is(err, checkpoint.ErrDetached), errors.Is(err, checkpoint.ErrBusy):
		return exitError
	}
	return exitError
}
