package run

import (
	"context"
	"errors"
	"runtime"
	"strings"
	"testing"
)

func skipWithoutShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
}

func TestVerboseDisablesProgress(t *testing.T) {
	// In-place percentage rendering would interleave with the per-line
	// debug log, so verbose mode keeps it off even on a terminal.
	if NewExecRunner(true).Progress {
		t.Error("verbose runner renders progress")
	}
}

func TestExecRunnerCapture(t *testing.T) {
	skipWithoutShell(t)

	r := &ExecRunner{}
	out, err := r.Capture(context.Background(), Cmd{Argv: []string{"sh", "-c", "echo hello; echo world 1>&2"}})
	if err != nil {
		t.Fatalf("Capture() error: %v", err)
	}
	if !strings.Contains(out, "hello") || !strings.Contains(out, "world") {
		t.Errorf("Capture() = %q, want stdout and stderr combined", out)
	}
}

func TestExecRunnerExitError(t *testing.T) {
	skipWithoutShell(t)

	r := &ExecRunner{}
	err := r.Run(context.Background(), Cmd{Argv: []string{"sh", "-c", "echo boom; exit 3"}})
	if err == nil {
		t.Fatal("Run() succeeded for a failing command")
	}
	var ee *ExitError
	if !errors.As(err, &ee) {
		t.Fatalf("Run() error is %T, want *ExitError", err)
	}
	if ee.Code != 3 {
		t.Errorf("exit code = %d, want 3", ee.Code)
	}
	if !strings.Contains(ee.Tail, "boom") {
		t.Errorf("tail = %q, want to contain command output", ee.Tail)
	}
}

func TestExecRunnerRespectsDir(t *testing.T) {
	skipWithoutShell(t)

	dir := t.TempDir()
	r := &ExecRunner{}
	out, err := r.Capture(context.Background(), Cmd{Dir: dir, Argv: []string{"pwd"}})
	if err != nil {
		t.Fatalf("Capture() error: %v", err)
	}
	if !strings.Contains(out, dir) {
		t.Errorf("pwd = %q, want it under %q", out, dir)
	}
}

func TestExecRunnerMissingBinary(t *testing.T) {
	r := &ExecRunner{}
	err := r.Run(context.Background(), Cmd{Argv: []string{"mortar-no-such-tool-xyzzy"}})
	if err == nil {
		t.Fatal("Run() succeeded for a missing binary")
	}
	var ee *ExitError
	if errors.As(err, &ee) {
		t.Errorf("missing binary reported as ExitError: %v", err)
	}
}

func TestExitErrorMessage(t *testing.T) {
	e := &ExitError{
		Argv: []string{"cmake", "-S", "src dir", "-B", "build"},
		Code: 1,
		Tail: "CMake Error: something\n",
	}
	msg := e.Error()
	if !strings.Contains(msg, "exit status 1") {
		t.Errorf("message %q missing exit status", msg)
	}
	if !strings.Contains(msg, "'src dir'") {
		t.Errorf("message %q missing quoted argument", msg)
	}
	if !strings.Contains(msg, "CMake Error") {
		t.Errorf("message %q missing output tail", msg)
	}
}

func TestExitErrorMessageNoTail(t *testing.T) {
	e := &ExitError{Argv: []string{"make"}, Code: 2}
	if strings.Contains(e.Error(), "last output") {
		t.Errorf("message %q mentions output for empty tail", e.Error())
	}
}
