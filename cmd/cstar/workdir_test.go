package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/c-star-org/cstar"
)

func TestPrepareWorkingDirCreatesMissingDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "run", "case1")
	if err := prepareWorkingDir(dir, false); err != nil {
		t.Fatalf("prepareWorkingDir: %v", err)
	}
	if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
		t.Fatalf("expected directory to exist, got err=%v", err)
	}
}

func TestPrepareWorkingDirAllowsEmptyExistingDirectory(t *testing.T) {
	dir := t.TempDir()
	if err := prepareWorkingDir(dir, false); err != nil {
		t.Fatalf("prepareWorkingDir: %v", err)
	}
}

func TestPrepareWorkingDirRefusesNonEmptyWithoutClobber(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "stale.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	err := prepareWorkingDir(dir, false)
	var cerr *cstar.Error
	if err == nil || !errors.As(err, &cerr) || cerr.Kind != cstar.KindConfiguration {
		t.Fatalf("expected a KindConfiguration refusal, got %v", err)
	}
}

func TestPrepareWorkingDirClobbersWhenRequested(t *testing.T) {
	dir := t.TempDir()
	stale := filepath.Join(dir, "stale.txt")
	if err := os.WriteFile(stale, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := prepareWorkingDir(dir, true); err != nil {
		t.Fatalf("prepareWorkingDir: %v", err)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Fatalf("expected stale file to be removed, stat err=%v", err)
	}
}
