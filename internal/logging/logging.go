// Package logging provides the local debug log.
//
// The proxy must never write diagnostics to the stdio of a wrapped git
// command, so everything goes to a log file and only when GIT_AI_DEBUG is
// set: .git/ai/debug.log once SetDir has been called, a file in the OS
// temp dir before that.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

var (
	mu      sync.Mutex
	logPath string
	enabled = os.Getenv("GIT_AI_DEBUG") != ""
)

// SetDir points the debug log at the repository's .git/ai directory.
// Until this is called, Debugf writes to a file in the OS temp dir.
func SetDir(aiDir string) {
	mu.Lock()
	defer mu.Unlock()
	logPath = filepath.Join(aiDir, "debug.log")
}

// Enabled reports whether debug logging is active.
func Enabled() bool {
	return enabled
}

// Debugf appends a timestamped line to the debug log. Errors are ignored:
// a failing log write must never affect the surrounding operation.
func Debugf(format string, args ...interface{}) {
	if !enabled {
		return
	}
	mu.Lock()
	path := logPath
	mu.Unlock()
	if path == "" {
		path = filepath.Join(os.TempDir(), "git-ai-debug.log")
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return
	}
	defer f.Close()

	fmt.Fprintf(f, "%s %s\n", time.Now().Format(time.RFC3339), fmt.Sprintf(format, args...))
}
