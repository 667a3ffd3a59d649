package blueprint

import (
	"github.com/c-star-org/cstar"
	"github.com/c-star-org/cstar/internal/dataset"
)

// ToResource converts a parsed ResourceSpec into a cstar.Resource. kind
// selects file vs. git-repo interpretation; a ResourceSpec never declares
// which one it is (that is determined by the field it occupies: base_model
// is always git-repo, every forcing/grid/IC field is always file).
//
// A file resource's Location already names wherever Decode's placeholder
// resolution left it (a concrete local path or URL); file resources are
// used directly rather than staged into a cache directory first, so
// WorkingPath is set immediately instead of waiting for a Stager to assign
// it (git-repo resources still need CheckoutTarget resolved and a subdir
// extracted, so their WorkingPath is left for the Stager to fill in).
func (r ResourceSpec) ToResource(kind cstar.ResourceKind) cstar.Resource {
	res := cstar.Resource{
		Kind:           kind,
		Location:       r.Location,
		CheckoutTarget: r.CheckoutTarget,
		Subdir:         r.Subdir,
		FileHash:       r.FileHash,
	}
	if kind == cstar.ResourceKindFile {
		res.WorkingPath = r.Location
	}
	return res
}

// dateRange parses a ResourceSpec's start_date/end_date pair, defaulting
// to a zero-value (unbounded-at-parse, filled in by the caller) range when
// either is blank.
func (r ResourceSpec) dateRange() (cstar.DateRange, error) {
	var dr cstar.DateRange
	if r.StartDate != "" {
		t, err := ParseDate(r.StartDate)
		if err != nil {
			return dr, cstar.Wrap(cstar.KindValidation, err, "parsing start_date %q", r.StartDate)
		}
		dr.Start = t
	}
	if r.EndDate != "" {
		t, err := ParseDate(r.EndDate)
		if err != nil {
			return dr, cstar.Wrap(cstar.KindValidation, err, "parsing end_date %q", r.EndDate)
		}
		dr.End = t
	}
	return dr, nil
}

// Datasets converts a ComponentSpec's forcing/grid/IC fields into
// dataset.Dataset values, one per resource entry (list fields such as
// boundary_forcing yield one per element), tagged with its role (SPEC_FULL
// §3's required roles),
// ready for Simulation.Datasets. Every Dataset is KindNetCDFFile: Blueprint
// YAML has no yaml-recipe shape of its own, those are produced upstream by
// a Generator and staged back in as ordinary netCDF files.
func (c *ComponentSpec) Datasets() ([]*dataset.Dataset, error) {
	var out []*dataset.Dataset
	add := func(role dataset.Role, r *ResourceSpec) error {
		if r == nil {
			return nil
		}
		dr, err := r.dateRange()
		if err != nil {
			return err
		}
		out = append(out, &dataset.Dataset{
			Kind:     dataset.KindNetCDFFile,
			Role:     role,
			Range:    dr,
			Resource: r.ToResource(cstar.ResourceKindFile),
		})
		return nil
	}
	if err := add(dataset.RoleGrid, c.ModelGrid); err != nil {
		return nil, err
	}
	if err := add(dataset.RoleInitialConditions, c.InitialConditions); err != nil {
		return nil, err
	}
	if err := add(dataset.RoleTidalForcing, c.TidalForcing); err != nil {
		return nil, err
	}
	for i := range c.BoundaryForcing {
		if err := add(dataset.RoleBoundaryForcing, &c.BoundaryForcing[i]); err != nil {
			return nil, err
		}
	}
	for i := range c.SurfaceForcing {
		if err := add(dataset.RoleSurfaceForcing, &c.SurfaceForcing[i]); err != nil {
			return nil, err
		}
	}
	for i := range c.RiverForcing {
		if err := add(dataset.RoleRiverForcing, &c.RiverForcing[i]); err != nil {
			return nil, err
		}
	}
	for i := range c.ForcingCorrections {
		if err := add(dataset.RoleForcingCorrections, &c.ForcingCorrections[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// CstarDiscretization converts the optional discretization spec to a
// cstar.Discretization, returning the zero value when unset.
func (c *ComponentSpec) CstarDiscretization() cstar.Discretization {
	if c.Discretization == nil {
		return cstar.Discretization{}
	}
	return cstar.Discretization{
		NProcsX:  c.Discretization.NProcsX,
		NProcsY:  c.Discretization.NProcsY,
		TimeStep: c.Discretization.TimeStep,
	}
}

// ValidDateRange parses the Blueprint's registry_attrs.valid_date_range.
func (b *Blueprint) ValidDateRange() (cstar.DateRange, error) {
	var dr cstar.DateRange
	start, err := ParseDate(b.RegistryAttrs.ValidDateRange.StartDate)
	if err != nil {
		return dr, cstar.Wrap(cstar.KindValidation, err, "parsing registry_attrs.valid_date_range.start_date")
	}
	end, err := ParseDate(b.RegistryAttrs.ValidDateRange.EndDate)
	if err != nil {
		return dr, cstar.Wrap(cstar.KindValidation, err, "parsing registry_attrs.valid_date_range.end_date")
	}
	return cstar.DateRange{Start: start, End: end}, nil
}
