// Package run executes external build tools. All subprocess invocations
// in the pipeline go through a Runner so tests can substitute a scripted
// implementation and assert on the exact commands a step would issue.
package run

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/apparentlymart/go-shquot/shquot"
	"github.com/armon/circbuf"
	"github.com/mattn/go-isatty"
	"github.com/mitchellh/go-linereader"
	"github.com/qiniu/x/log"

	"github.com/mortarbuild/mortar/internal/testparse"
)

// Cmd describes one external tool invocation.
type Cmd struct {
	Dir  string
	Env  []string // nil inherits the process environment
	Argv []string
}

// String returns the shell-quoted command line.
func (c Cmd) String() string {
	return shquot.POSIXShell(c.Argv)
}

// Runner runs external tools synchronously: both methods return only
// after the process has exited.
type Runner interface {
	// Run executes the command, streaming its output to the log.
	Run(ctx context.Context, c Cmd) error
	// Capture executes the command and additionally returns its
	// combined stdout+stderr.
	Capture(ctx context.Context, c Cmd) (string, error)
}

// tailSize bounds the output kept for error reports.
const tailSize = 64 * 1024

// ExitError reports a tool that ran but exited non-zero. It carries the
// command line and the tail of the combined output so failures are
// diagnosable without scrolling the full log.
type ExitError struct {
	Argv []string
	Code int
	Tail string
}

func (e *ExitError) Error() string {
	cmd := shquot.POSIXShell(e.Argv)
	tail := strings.TrimSpace(e.Tail)
	if tail == "" {
		return fmt.Sprintf("command failed with exit status %d: %s", e.Code, cmd)
	}
	return fmt.Sprintf("command failed with exit status %d: %s\nlast output:\n%s", e.Code, cmd, tail)
}

// ExecRunner is the os/exec-backed Runner.
type ExecRunner struct {
	// Progress renders make/ninja percentage markers in place on the
	// terminal instead of logging every line.
	Progress bool
}

var _ Runner = (*ExecRunner)(nil)

// NewExecRunner returns a runner with progress rendering enabled when
// stdout is a terminal. Verbose logging disables it: the in-place
// rewrites would interleave with the per-line debug log.
func NewExecRunner(verbose bool) *ExecRunner {
	return &ExecRunner{Progress: !verbose && isatty.IsTerminal(os.Stdout.Fd())}
}

func (r *ExecRunner) Run(ctx context.Context, c Cmd) error {
	_, err := r.exec(ctx, c, false)
	return err
}

func (r *ExecRunner) Capture(ctx context.Context, c Cmd) (string, error) {
	return r.exec(ctx, c, true)
}

func (r *ExecRunner) exec(ctx context.Context, c Cmd, capture bool) (string, error) {
	if len(c.Argv) == 0 {
		return "", errors.New("run: empty command")
	}
	log.Debugf("run: %s", c)

	tail, err := circbuf.NewBuffer(tailSize)
	if err != nil {
		return "", err
	}
	var full strings.Builder

	// Tee the combined output: the ring buffer keeps the tail for error
	// reports while the pipe feeds the line logger.
	pr, pw := io.Pipe()
	copyDone := make(chan struct{})
	go r.copyOutput(pr, copyDone)

	cmd := exec.CommandContext(ctx, c.Argv[0], c.Argv[1:]...)
	cmd.Dir = c.Dir
	cmd.Env = c.Env
	var out io.Writer = io.MultiWriter(tail, pw)
	if capture {
		out = io.MultiWriter(tail, &full, pw)
	}
	cmd.Stdout = out
	cmd.Stderr = out

	runErr := cmd.Run()
	pw.Close()
	<-copyDone

	if runErr != nil {
		var ee *exec.ExitError
		if errors.As(runErr, &ee) {
			return full.String(), &ExitError{Argv: c.Argv, Code: ee.ExitCode(), Tail: tail.String()}
		}
		return full.String(), fmt.Errorf("run %s: %w", c.Argv[0], runErr)
	}
	return full.String(), nil
}

func (r *ExecRunner) copyOutput(rd io.Reader, done chan<- struct{}) {
	defer close(done)
	lr := linereader.New(rd)
	inProgress := false
	for line := range lr.Ch {
		if r.Progress {
			if percent, ok := testparse.ParseProgress(line); ok {
				fmt.Printf("\r  [%3d%%]", percent)
				inProgress = true
				continue
			}
		}
		if inProgress {
			fmt.Println()
			inProgress = false
		}
		log.Debugf("| %s", line)
	}
	if inProgress {
		fmt.Println()
	}
}
