//go:build !windows

package flush

import (
	"os/exec"
	"syscall"
)

// detach puts the child in its own session so it survives the parent and
// never receives the terminal's signals.
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}
