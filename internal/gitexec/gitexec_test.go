package gitexec

import (
	"context"
	"errors"
	"os"
	"runtime"
	"strings"
	"testing"
)

func shell(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell-based tests are unix-only")
	}
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("no /bin/sh")
	}
	return "/bin/sh"
}

func TestOutputCapturesStdout(t *testing.T) {
	r := NewRunner(shell(t), "")
	out, err := r.Output(context.Background(), "-c", "printf hello")
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != "hello" {
		t.Errorf("got %q", out)
	}
}

func TestOutputNonZeroExit(t *testing.T) {
	r := NewRunner(shell(t), "")
	_, err := r.Output(context.Background(), "-c", "echo oops >&2; exit 3")

	var ee *ExitError
	if !errors.As(err, &ee) {
		t.Fatalf("got %T: %v", err, err)
	}
	if ee.Code != 3 {
		t.Errorf("code %d, want 3", ee.Code)
	}
	if !strings.Contains(ee.Stderr, "oops") {
		t.Errorf("stderr %q", ee.Stderr)
	}
	if ExitCode(err) != 3 {
		t.Errorf("ExitCode: %d", ExitCode(err))
	}
}

func TestOutputWithStdin(t *testing.T) {
	r := NewRunner(shell(t), "")
	out, err := r.OutputWithStdin(context.Background(), []byte("payload\x00binary"), "-c", "cat")
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != "payload\x00binary" {
		t.Errorf("binary stdin mangled: %q", out)
	}
}

func TestGlobalArgsPrepended(t *testing.T) {
	r := NewRunner(shell(t), "")
	r.GlobalArgs = []string{"-c", "echo global"}
	out, err := r.Output(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(string(out)) != "global" {
		t.Errorf("got %q", out)
	}
}

func TestPassthroughExitCode(t *testing.T) {
	sh := shell(t)
	code, err := Passthrough(sh, []string{"-c", "exit 7"})
	if err != nil {
		t.Fatal(err)
	}
	if code != 7 {
		t.Errorf("code %d, want 7", code)
	}

	code, err = Passthrough(sh, []string{"-c", "exit 0"})
	if err != nil || code != 0 {
		t.Errorf("code %d err=%v", code, err)
	}
}

func TestExitCodeNonExitError(t *testing.T) {
	if ExitCode(errors.New("plain")) != -1 {
		t.Error("non-exit error should map to -1")
	}
}
