package cstar

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"time"
)

// ResourceKind distinguishes the two shapes of Resource.Location understood
// by the Source Retriever and Stager: a single remote/local file, or a git
// repository checked out at a ref.
type ResourceKind string

const (
	ResourceKindFile    ResourceKind = "file"
	ResourceKindGitRepo ResourceKind = "git-repo"
)

// DateRange is an inclusive [Start, End] interval. Both Simulation.valid_date_range
// and every Input Dataset's own range are expressed with it.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether other is fully inside d (inclusive).
func (d DateRange) Contains(other DateRange) bool {
	return !other.Start.Before(d.Start) && !other.End.After(d.End)
}

// Valid reports whether Start <= End.
func (d DateRange) Valid() bool { return !d.End.Before(d.Start) }

// Resource is the abstract referenced artifact described in SPEC_FULL §3:
// a location (URL or filesystem path), an optional git ref, an optional
// subdirectory restriction, an optional content hash, an optional valid
// date range, and a transient WorkingPath assigned once Stager has
// materialized it.
type Resource struct {
	Kind           ResourceKind
	Location       string
	CheckoutTarget string // git ref / commit; only meaningful for ResourceKindGitRepo
	Subdir         string
	FileHash       string // sha256, hex, lowercase; empty means unverified
	ValidDateRange *DateRange

	// WorkingPath is set by the Stager once this Resource has been
	// materialized on disk. It is never part of the serialized Blueprint.
	WorkingPath string
}

// Staged reports whether WorkingPath has been assigned and its invariant —
// that the working path exists, and matches FileHash if one was declared —
// holds.
func (r *Resource) Staged() bool {
	if r.WorkingPath == "" {
		return false
	}
	if _, err := os.Stat(r.WorkingPath); err != nil {
		return false
	}
	return r.VerifyHash(r.WorkingPath) == nil
}

// VerifyHash checks that the file at path hashes to r.FileHash. If FileHash
// is empty, verification is a no-op (the resource carries no hash to
// enforce, per SPEC_FULL §4.11: hash verification is advisory for local
// datasets and unset entirely for resources that never declared one).
func (r *Resource) VerifyHash(path string) error {
	if r.FileHash == "" {
		return nil
	}
	got, err := sha256File(path)
	if err != nil {
		return Wrap(KindIntegrity, err, "hashing %s", path)
	}
	if got != r.FileHash {
		return New(KindIntegrity, "hash mismatch for %s: got %s, want %s", path, got, r.FileHash)
	}
	return nil
}

func sha256File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Sha256Hex hashes a byte stream rather than a file already on disk. No code
// in this module calls it; the Stager checks files on disk with VerifyHash.
func Sha256Hex(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
