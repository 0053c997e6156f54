package update

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestFileApplierInstalls(t *testing.T) {
	dir := t.TempDir()
	artifact := filepath.Join(dir, "artifact")
	if err := os.WriteFile(artifact, []byte("new binary"), 0o600); err != nil {
		t.Fatalf("write artifact: %v", err)
	}

	target := filepath.Join(dir, "bin", "app")
	a := NewFileApplier(target, 0o755)

	if err := a.Apply(context.Background(), artifact); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	got, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read target: %v", err)
	}
	if string(got) != "new binary" {
		t.Errorf("target content = %q", got)
	}

	info, err := os.Stat(target)
	if err != nil {
		t.Fatalf("stat target: %v", err)
	}
	if info.Mode().Perm() != 0o755 {
		t.Errorf("target mode = %o, want 0755", info.Mode().Perm())
	}
}

func TestFileApplierReplacesExisting(t *testing.T) {
	dir := t.TempDir()
	artifact := filepath.Join(dir, "artifact")
	if err := os.WriteFile(artifact, []byte("v2"), 0o600); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
	target := filepath.Join(dir, "app")
	if err := os.WriteFile(target, []byte("v1"), 0o755); err != nil {
		t.Fatalf("write target: %v", err)
	}

	a := NewFileApplier(target, 0o755)
	if err := a.Apply(context.Background(), artifact); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	got, _ := os.ReadFile(target)
	if string(got) != "v2" {
		t.Errorf("target content = %q, want v2", got)
	}
	if _, err := os.Stat(target + ".new"); !os.IsNotExist(err) {
		t.Error("staging file left behind")
	}
}

func TestFileApplierMissingArtifact(t *testing.T) {
	dir := t.TempDir()
	a := NewFileApplier(filepath.Join(dir, "app"), 0o755)
	if err := a.Apply(context.Background(), filepath.Join(dir, "missing")); err == nil {
		t.Error("expected error for missing artifact")
	}
}

func TestFileApplierHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	dir := t.TempDir()
	a := NewFileApplier(filepath.Join(dir, "app"), 0o755)
	if err := a.Apply(ctx, filepath.Join(dir, "artifact")); err != context.Canceled {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
