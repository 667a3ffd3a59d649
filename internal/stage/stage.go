// Package stage implements the Stager (SPEC_FULL §4.4): materializing an
// already-fetched Resource into a simulation's working directory as a copy
// of a file or directory tree, optionally restricted to one subdirectory.
// Every call copies (or finds an existing verified copy); there is no
// separate path for recipe-backed datasets.
//
// Grounded on distr1-distri/internal/install/install.go's unpackDir/file-
// copy tree-walk: symlink-aware recursive copy, idempotent re-copy skipped
// when the destination already matches by hash. Adapted here from unpacking
// a squashfs image to copying a plain working tree.
package stage

import (
	"io"
	"os"
	"path/filepath"

	"github.com/c-star-org/cstar"
)

// Stager copies Resource content into simulation-local working directories.
type Stager struct{}

// New returns a Stager.
func New() *Stager { return &Stager{} }

// Stage materializes r into destDir, honoring r.Subdir when set (only that
// subtree of a fetched repo/location is copied), and sets r.WorkingPath on
// success. If the resource is already staged at destDir with a verified
// hash, the copy is skipped (SPEC_FULL §4.4: idempotent re-staging).
func (s *Stager) Stage(r *cstar.Resource, sourcePath, destDir string) error {
	src := sourcePath
	if r.Subdir != "" {
		src = filepath.Join(sourcePath, r.Subdir)
	}

	info, err := os.Lstat(src)
	if err != nil {
		return cstar.Wrap(cstar.KindIntegrity, err, "staging %s", src)
	}

	dest := destDir
	if !info.IsDir() {
		dest = filepath.Join(destDir, filepath.Base(src))
	}

	if already, err := matchesExisting(r, dest); err != nil {
		return err
	} else if already {
		r.WorkingPath = dest
		return nil
	}

	if info.IsDir() {
		if err := copyTree(src, dest); err != nil {
			return cstar.Wrap(cstar.KindIntegrity, err, "staging directory %s into %s", src, dest)
		}
	} else {
		if err := copyFile(src, dest, info.Mode()); err != nil {
			return cstar.Wrap(cstar.KindIntegrity, err, "staging file %s into %s", src, dest)
		}
	}

	if err := r.VerifyHash(dest); err != nil {
		return err
	}
	r.WorkingPath = dest
	return nil
}

func matchesExisting(r *cstar.Resource, dest string) (bool, error) {
	info, err := os.Stat(dest)
	if err != nil {
		return false, nil
	}
	if info.IsDir() || r.FileHash == "" {
		return false, nil
	}
	if err := r.VerifyHash(dest); err != nil {
		return false, nil
	}
	return true, nil
}

func copyTree(src, dest string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dest, rel)

		switch {
		case info.Mode()&os.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			os.Remove(target)
			return os.Symlink(link, target)
		case info.IsDir():
			return os.MkdirAll(target, 0o755)
		default:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			return copyFile(path, target, info.Mode())
		}
	})
}

func copyFile(src, dest string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
