// Package workdir builds the directories a condition runs in.
//
// The isolated condition gets a fresh temp directory holding the stub and a
// single git commit, free of any ambient project tooling. The shared
// condition writes the stub into a persistent root so whatever tooling lives
// there acts on it naturally. The shared root holds at most one stub at a
// time and callers must remove it after every use.
package workdir

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/mcpchecker/pairbench/pkg/task"
)

const (
	DefaultArtifactFile = "solution.py"
	DefaultGit          = "git"
	isolatedDirPrefix   = "baseline_"
)

// ErrStaleStub is returned when the shared root still holds a stub from an
// earlier task.
var ErrStaleStub = errors.New("stale stub in shared root")

type Provisioner struct {
	// SharedRoot is the persistent directory for the shared condition.
	SharedRoot string
	// ArtifactFile is the stub/artifact file name inside a workdir.
	ArtifactFile string
	// TempDir is where isolated workdirs are created. Empty uses os.TempDir.
	TempDir string
	// Git is the git executable.
	Git string
}

func NewProvisioner(sharedRoot string) *Provisioner {
	return &Provisioner{
		SharedRoot:   sharedRoot,
		ArtifactFile: DefaultArtifactFile,
		Git:          DefaultGit,
	}
}

// CreateIsolated makes a fresh directory with the task stub committed to a new
// git repository. When git fails after the stub is written, the directory is
// still returned together with the error so the caller can continue with a
// degraded workdir.
func (p *Provisioner) CreateIsolated(ctx context.Context, t task.Task) (string, error) {
	prefix := isolatedDirPrefix + strings.ReplaceAll(t.ID(), "/", "_") + "_"
	dir, err := os.MkdirTemp(p.TempDir, prefix)
	if err != nil {
		return "", fmt.Errorf("failed to create isolated workdir for %s: %w", t.ID(), err)
	}

	gitErr := p.git(ctx, dir, "init", "--quiet")

	if err := p.writeStub(dir, t); err != nil {
		_ = os.RemoveAll(dir)
		return "", err
	}

	if gitErr == nil {
		gitErr = errors.Join(
			p.git(ctx, dir, "add", "."),
			p.git(ctx, dir, "-c", "user.name=pairbench", "-c", "user.email=pairbench@localhost", "commit", "--quiet", "-m", "init"),
		)
	}
	if gitErr != nil {
		return dir, fmt.Errorf("failed to initialise git in %s: %w", dir, gitErr)
	}
	return dir, nil
}

// CreateShared writes the task stub into the shared root and returns it.
func (p *Provisioner) CreateShared(t task.Task) (string, error) {
	if err := p.writeStub(p.SharedRoot, t); err != nil {
		return "", err
	}
	return p.SharedRoot, nil
}

// RemoveSharedStub deletes the stub from the shared root. The root itself is
// never removed. A missing stub is not an error.
func (p *Provisioner) RemoveSharedStub() error {
	err := os.Remove(p.sharedStubPath())
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove shared stub: %w", err)
	}
	return nil
}

// CheckSharedClean returns ErrStaleStub when a stub is left in the shared root.
func (p *Provisioner) CheckSharedClean() error {
	_, err := os.Stat(p.sharedStubPath())
	switch {
	case err == nil:
		return fmt.Errorf("%w: %s", ErrStaleStub, p.sharedStubPath())
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return fmt.Errorf("failed to check shared root: %w", err)
	}
}

// RemoveIsolated deletes an isolated workdir. It refuses to touch the shared
// root.
func (p *Provisioner) RemoveIsolated(dir string) error {
	if dir == "" {
		return nil
	}
	if p.SharedRoot != "" && filepath.Clean(dir) == filepath.Clean(p.SharedRoot) {
		return fmt.Errorf("refusing to remove shared root %s", dir)
	}
	return os.RemoveAll(dir)
}

// ReadArtifact returns the artifact in dir. A missing file yields "".
func (p *Provisioner) ReadArtifact(dir string) (string, error) {
	data, err := os.ReadFile(filepath.Join(dir, p.artifactFile()))
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read artifact in %s: %w", dir, err)
	}
	return string(data), nil
}

func (p *Provisioner) writeStub(dir string, t task.Task) error {
	path := filepath.Join(dir, p.artifactFile())
	if err := os.WriteFile(path, []byte(t.Stub()), 0644); err != nil {
		return fmt.Errorf("failed to write stub for %s: %w", t.ID(), err)
	}
	return nil
}

func (p *Provisioner) sharedStubPath() string {
	return filepath.Join(p.SharedRoot, p.artifactFile())
}

func (p *Provisioner) artifactFile() string {
	if p.ArtifactFile == "" {
		return DefaultArtifactFile
	}
	return p.ArtifactFile
}

func (p *Provisioner) git(ctx context.Context, dir string, args ...string) error {
	bin := p.Git
	if bin == "" {
		bin = DefaultGit
	}

	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Dir = dir
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s %s: %w: %s", bin, strings.Join(args, " "), err, strings.TrimSpace(out.String()))
	}
	return nil
}
