// Package codebase implements the External Codebase (SPEC_FULL §4.5): a
// pinned version of a model source repository, installed on demand (clone,
// checkout, build) and recorded in the Environment Store so later sessions
// skip reinstall.
//
// Grounded on distr1-distri/internal/install/install.go's Ctx.install1
// check-state-before-acting shape and its ErrNotFound-style typed error for
// "not installed yet".
package codebase

import (
	"context"
	"fmt"
	"strings"

	"github.com/c-star-org/cstar"
	"github.com/c-star-org/cstar/internal/envstore"
	"github.com/c-star-org/cstar/internal/retrieve"
)

// ConfigStatus classifies an External Codebase's local install relative to
// its declared source_repo/checkout_target.
type ConfigStatus string

const (
	StatusConfigured  ConfigStatus = "configured"
	StatusWrongCommit ConfigStatus = "wrong-commit"
	StatusWrongRemote ConfigStatus = "wrong-remote"
	StatusAbsent      ConfigStatus = "absent"
)

// Codebase represents a pinned external model source repository.
type Codebase struct {
	Name           string // e.g. "ROMS", "MARBL"; env var key is "<NAME>_ROOT"
	SourceRepo     string
	CheckoutTarget string

	LocalRoot string // populated by ConfigStatus/Get

	// ForceFresh mirrors CSTAR_FRESH_CODEBASES=1 (SPEC_FULL §3, §4.3): when
	// set, Get re-fetches even a StatusConfigured codebase instead of
	// reusing the clone already recorded in the Environment Store.
	ForceFresh bool

	store     *envstore.Store
	retriever *retrieve.Retriever
	builder   cstar.ModelBuilder
}

// New returns a Codebase backed by store for install-root persistence,
// retriever for fetches, and builder to compile it. All are injectable for
// tests; builder may be nil for codebases with no build step.
func New(name, sourceRepo, checkoutTarget string, store *envstore.Store, retriever *retrieve.Retriever, builder cstar.ModelBuilder) *Codebase {
	return &Codebase{
		Name:           name,
		SourceRepo:     sourceRepo,
		CheckoutTarget: checkoutTarget,
		store:          store,
		retriever:      retriever,
		builder:        builder,
	}
}

func (c *Codebase) envKey() string {
	return strings.ToUpper(c.Name) + "_ROOT"
}

// ConfigStatus computes, lazily and without caching, whether this codebase
// is configured, pointed at the wrong commit/remote, or not installed at
// all, per SPEC_FULL §4.5: "computed lazily from the current value of
// <NAME>_ROOT, the repo's remote, and the currently checked-out commit."
func (c *Codebase) ConfigStatus(ctx context.Context) (ConfigStatus, error) {
	root, ok := c.store.Get(c.envKey())
	if !ok || root == "" {
		return StatusAbsent, nil
	}
	status, err := c.retriever.VerifyLocal(ctx, root, c.SourceRepo, c.CheckoutTarget)
	if err != nil {
		return "", err
	}
	switch status {
	case retrieve.StatusMatches:
		c.LocalRoot = root
		return StatusConfigured, nil
	case retrieve.StatusWrongRef:
		c.LocalRoot = root
		return StatusWrongCommit, nil
	case retrieve.StatusWrongRemote:
		c.LocalRoot = root
		return StatusWrongRemote, nil
	default:
		return StatusAbsent, nil
	}
}

// Get installs this codebase into targetRoot if it is not already
// configured: fetch, build, and record the root in the Environment Store
// (SPEC_FULL §4.5).
func (c *Codebase) Get(ctx context.Context, targetRoot, compilerFamily string) error {
	status, err := c.ConfigStatus(ctx)
	if err != nil {
		return err
	}
	if status == StatusConfigured && !c.ForceFresh {
		return nil
	}

	if _, err := c.retriever.FetchRepo(ctx, c.SourceRepo, c.CheckoutTarget, targetRoot, status != StatusAbsent || c.ForceFresh); err != nil {
		return cstar.Wrap(cstar.KindNetwork, err, "installing %s", c.Name)
	}

	if c.builder != nil {
		stdout, stderr, err := c.builder.Build(ctx, targetRoot, compilerFamily, nil)
		if err != nil {
			return &cstar.Error{
				Kind:    cstar.KindBuild,
				Message: fmt.Sprintf("building %s failed", c.Name),
				Context: map[string]string{
					"stdout": string(stdout),
					"stderr": string(stderr),
				},
				Cause: err,
			}
		}
	}

	c.LocalRoot = targetRoot
	return c.store.Set(c.envKey(), targetRoot)
}
