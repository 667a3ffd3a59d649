package simulation

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/c-star-org/cstar"
	"github.com/c-star-org/cstar/internal/retrieve"
	"github.com/c-star-org/cstar/internal/stage"
)

func TestAdditionalCodeGetStagesLocalFiles(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	if err := os.MkdirAll(src, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "roms.in"), []byte("settings"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "extra.opt"), []byte("opts"), 0o644); err != nil {
		t.Fatal(err)
	}

	ac := &AdditionalCode{
		Files:    []string{"roms.in", "extra.opt"},
		Resource: cstar.Resource{Kind: cstar.ResourceKindFile, Location: src},
	}
	dest := filepath.Join(dir, "dest")
	if err := ac.Get(context.Background(), retrieve.New(), stage.New(), dir, dest); err != nil {
		t.Fatalf("Get: %v", err)
	}
	for _, f := range ac.Files {
		if _, err := os.Stat(filepath.Join(dest, f)); err != nil {
			t.Fatalf("expected %s staged: %v", f, err)
		}
	}
}

func TestAdditionalCodeGetFailsOnMissingDeclaredFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	if err := os.MkdirAll(src, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "roms.in"), []byte("settings"), 0o644); err != nil {
		t.Fatal(err)
	}

	ac := &AdditionalCode{
		Files:    []string{"roms.in", "missing.opt"},
		Resource: cstar.Resource{Kind: cstar.ResourceKindFile, Location: src},
	}
	dest := filepath.Join(dir, "dest")
	err := ac.Get(context.Background(), retrieve.New(), stage.New(), dir, dest)
	if err == nil {
		t.Fatal("expected error for missing declared file")
	}
	var cerr *cstar.Error
	if !errors.As(err, &cerr) || cerr.Kind != cstar.KindValidation {
		t.Fatalf("err = %v, want ValidationError", err)
	}
}
