package update

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Applier installs a verified artifact into its final location.
type Applier interface {
	// Apply replaces the install target with the artifact at path.
	Apply(ctx context.Context, artifactPath string) error
	// TargetPath is the file Apply replaces. Used for backups.
	TargetPath() string
}

// FileApplier replaces a single file, the common case of a self-updating
// binary. The swap goes through a temporary file next to the target so the
// rename is atomic on the same filesystem.
type FileApplier struct {
	target string
	mode   os.FileMode
}

// NewFileApplier creates an applier for the given target path. Installed
// files get the given mode.
func NewFileApplier(target string, mode os.FileMode) *FileApplier {
	if mode == 0 {
		mode = 0o755
	}
	return &FileApplier{target: target, mode: mode}
}

func (a *FileApplier) TargetPath() string {
	return a.target
}

func (a *FileApplier) Apply(ctx context.Context, artifactPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	in, err := os.Open(artifactPath)
	if err != nil {
		return fmt.Errorf("open artifact: %w", err)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(a.target), 0o755); err != nil {
		return fmt.Errorf("create target dir: %w", err)
	}

	tmpPath := a.target + ".new"
	out, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, a.mode)
	if err != nil {
		return fmt.Errorf("create staging file: %w", err)
	}

	cleanupNeeded := true
	defer func() {
		out.Close()
		if cleanupNeeded {
			os.Remove(tmpPath)
		}
	}()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("stage artifact: %w", err)
	}
	if err := out.Sync(); err != nil {
		return fmt.Errorf("sync staging file: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close staging file: %w", err)
	}

	if err := os.Rename(tmpPath, a.target); err != nil {
		return fmt.Errorf("install artifact: %w", err)
	}

	cleanupNeeded = false
	return nil
}
