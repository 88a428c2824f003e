// Package vcs shells out to git for the two places mortar needs version
// control: synchronizing the recipe store and checking out git-sourced
// packages.
package vcs

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Git runs a git binary. The zero value is not usable; call New.
type Git struct {
	bin string
}

// Option configures Git.
type Option func(*Git)

// WithBinary sets a custom git executable path.
func WithBinary(path string) Option {
	return func(g *Git) {
		g.bin = path
	}
}

// New returns a Git using the "git" found on PATH unless overridden.
func New(opts ...Option) *Git {
	g := &Git{bin: "git"}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Available reports whether the git binary can be located.
func (g *Git) Available() bool {
	_, err := exec.LookPath(g.bin)
	return err == nil
}

// Sync brings dir to ref from remote, initializing the repository on
// first use. ref may be a branch or tag; a bare commit hash works only
// when the server permits fetching it directly.
func (g *Git) Sync(ctx context.Context, remote, ref, dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	if _, err := os.Stat(filepath.Join(dir, ".git")); os.IsNotExist(err) {
		if err := g.run(ctx, dir, "init", "--quiet"); err != nil {
			return fmt.Errorf("init %s: %w", dir, err)
		}
	}
	if err := g.run(ctx, dir, "fetch", "--quiet", "--depth", "1", remote, ref); err != nil {
		return fmt.Errorf("fetch %s from %s: %w", ref, remote, err)
	}
	if err := g.run(ctx, dir, "checkout", "--quiet", "--force", "FETCH_HEAD"); err != nil {
		return fmt.Errorf("checkout %s: %w", ref, err)
	}
	return nil
}

// Tags lists the remote's tag names.
func (g *Git) Tags(ctx context.Context, remote string) ([]string, error) {
	out, err := g.output(ctx, "", "ls-remote", "--tags", "--refs", remote)
	if err != nil {
		return nil, fmt.Errorf("list tags of %s: %w", remote, err)
	}

	var tags []string
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		// format: <hash>\trefs/tags/<tag>
		_, ref, ok := strings.Cut(line, "\t")
		if !ok {
			continue
		}
		tags = append(tags, strings.TrimPrefix(ref, "refs/tags/"))
	}
	return tags, nil
}

// Head returns the remote's HEAD commit hash.
func (g *Git) Head(ctx context.Context, remote string) (string, error) {
	out, err := g.output(ctx, "", "ls-remote", remote, "HEAD")
	if err != nil {
		return "", fmt.Errorf("resolve HEAD of %s: %w", remote, err)
	}
	hash, _, ok := strings.Cut(strings.TrimSpace(out), "\t")
	if !ok || hash == "" {
		return "", fmt.Errorf("no HEAD found in remote %s", remote)
	}
	return hash, nil
}

func (g *Git) run(ctx context.Context, dir string, args ...string) error {
	_, err := g.output(ctx, dir, args...)
	return err
}

func (g *Git) output(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, g.bin, args...)
	if dir != "" {
		cmd.Dir = dir
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("git %s: %s", args[0], msg)
		}
		return "", fmt.Errorf("git %s: %w", args[0], err)
	}
	return stdout.String(), nil
}
