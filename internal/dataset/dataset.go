// Package dataset implements the Input Dataset (SPEC_FULL §4.6, §3): a
// tagged union of a pre-existing netCDF file and a yaml-recipe that must be
// materialized via the cstar.Generator collaborator before a simulation can
// use it.
//
// Grounded on the Resource abstraction's shape in distri.go's Repo struct,
// generalized, with the materialize/black-box-collaborator idiom borrowed
// from the gRPC "remote compute resource" abstraction in pb/builder —
// narrowed here to the single-method Generator interface from SPEC_FULL
// §6.1.
package dataset

import (
	"context"
	"time"

	"github.com/c-star-org/cstar"
)

// Role is the function an Input Dataset serves within a Simulation.
type Role string

const (
	RoleGrid               Role = "grid"
	RoleInitialConditions  Role = "initial-conditions"
	RoleTidalForcing       Role = "tidal-forcing"
	RoleBoundaryForcing    Role = "boundary-forcing"
	RoleSurfaceForcing     Role = "surface-forcing"
	RoleRiverForcing       Role = "river-forcing"
	RoleForcingCorrections Role = "forcing-corrections"
)

// Kind distinguishes the two Input Dataset shapes.
type Kind string

const (
	KindNetCDFFile Kind = "netcdf-file"
	KindYAMLRecipe Kind = "yaml-recipe"
)

// Dataset is one Input Dataset: either a ready netCDF file (Resource
// points straight at it) or a yaml-recipe that Materialize must turn into
// one first.
type Dataset struct {
	Kind  Kind
	Role  Role
	Range cstar.DateRange

	Resource cstar.Resource // for KindNetCDFFile: the file itself

	RecipePath      string // for KindYAMLRecipe: path to the recipe YAML
	MaterializedOut []string
}

// CoversRange reports whether d's declared date range fully contains want,
// the containment test SPEC_FULL §3 requires ("the Simulation's requested
// date range must be a subset of the union of its datasets' ranges for
// each required role").
func (d *Dataset) CoversRange(want cstar.DateRange) bool {
	return d.Range.Contains(want)
}

// Materialize runs a yaml-recipe dataset through gen, producing one or more
// netCDF files written next to the recipe (not into a PARTITIONED/
// subdirectory, per SPEC_FULL §4.6). It is a no-op for netcdf-file
// datasets. Any generator failure becomes DatasetError carrying the recipe
// path and requested range.
func (d *Dataset) Materialize(ctx context.Context, gen cstar.Generator) error {
	if d.Kind != KindYAMLRecipe {
		return nil
	}
	outputs, err := gen.Generate(ctx, d.RecipePath, d.Range.Start, d.Range.End)
	if err != nil {
		return (&cstar.Error{
			Kind:    cstar.KindDataset,
			Message: "materializing input dataset failed",
			Context: map[string]string{
				"recipe_path": d.RecipePath,
				"start_date":  d.Range.Start.Format("2006-01-02"),
				"end_date":    d.Range.End.Format("2006-01-02"),
			},
			Cause: err,
		})
	}
	d.MaterializedOut = outputs
	return nil
}

// Union computes the date range spanned by all datasets sharing role among
// ds, used to check Simulation.ValidDateRange coverage per role.
func Union(ds []*Dataset, role Role) (cstar.DateRange, bool) {
	var out cstar.DateRange
	found := false
	for _, d := range ds {
		if d.Role != role {
			continue
		}
		if !found {
			out = d.Range
			found = true
			continue
		}
		if d.Range.Start.Before(out.Start) {
			out.Start = d.Range.Start
		}
		if d.Range.End.After(out.End) {
			out.End = d.Range.End
		}
	}
	return out, found
}

// RequiredRoles lists the roles every Simulation must cover, per SPEC_FULL
// §3.
var RequiredRoles = []Role{
	RoleGrid,
	RoleInitialConditions,
	RoleTidalForcing,
	RoleBoundaryForcing,
	RoleSurfaceForcing,
	RoleRiverForcing,
	RoleForcingCorrections,
}

// ValidateCoverage checks that for every role in RequiredRoles, the union
// of that role's datasets fully covers want. It returns a DatasetError
// naming the first uncovered role.
func ValidateCoverage(ds []*Dataset, want cstar.DateRange) error {
	for _, role := range RequiredRoles {
		union, found := Union(ds, role)
		if !found {
			return cstar.New(cstar.KindDataset, "no input dataset supplies required role %q", role)
		}
		if !union.Contains(want) {
			return cstar.New(cstar.KindDataset,
				"input datasets for role %q cover %s..%s, which does not contain requested range %s..%s",
				role,
				union.Start.Format(time.DateOnly), union.End.Format(time.DateOnly),
				want.Start.Format(time.DateOnly), want.End.Format(time.DateOnly))
		}
	}
	return nil
}
