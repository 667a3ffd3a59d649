package simulation

import (
	"context"
	"path/filepath"

	"github.com/c-star-org/cstar"
	"github.com/c-star-org/cstar/internal/retrieve"
	"github.com/c-star-org/cstar/internal/stage"
)

// AdditionalCode is an ordered list of plain-text files (namelists or
// compile-time mods) sourced locally or from a repo subdir (SPEC_FULL §3).
// It has no dedicated top-level package: it is small enough, and owned
// exclusively by Simulation, to live alongside the aggregate that uses it —
// the same way distr1-distri keeps small value types next to the package
// that is their only consumer rather than splitting every struct into its
// own package.
type AdditionalCode struct {
	Files    []string // file names, relative to Resource.WorkingPath once staged
	Resource cstar.Resource
}

// Get fetches (if Resource.Kind is a git repo, via retriever) and stages
// AdditionalCode into destDir, then checks that every declared file name is
// present in the staged tree, enforcing the invariant from SPEC_FULL §3:
// "the file list and the staged directory agree after get()".
func (a *AdditionalCode) Get(ctx context.Context, retriever *retrieve.Retriever, stager *stage.Stager, cacheDir, destDir string) error {
	sourcePath := a.Resource.Location
	if a.Resource.Kind == cstar.ResourceKindGitRepo {
		root, err := retriever.FetchRepo(ctx, a.Resource.Location, a.Resource.CheckoutTarget, cacheDir, false)
		if err != nil {
			return cstar.Wrap(cstar.KindNetwork, err, "fetching additional code %s", a.Resource.Location)
		}
		sourcePath = root
	}

	if err := stager.Stage(&a.Resource, sourcePath, destDir); err != nil {
		return err
	}

	for _, name := range a.Files {
		full := filepath.Join(a.Resource.WorkingPath, name)
		if !pathExists(full) {
			return cstar.New(cstar.KindValidation, "additional code file %q missing from staged directory %s", name, a.Resource.WorkingPath)
		}
	}
	return nil
}
