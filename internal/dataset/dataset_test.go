package dataset

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/c-star-org/cstar"
)

func date(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t
}

type fakeGenerator struct {
	outputs []string
	err     error
}

func (f *fakeGenerator) Generate(ctx context.Context, recipePath string, start, end time.Time) ([]string, error) {
	return f.outputs, f.err
}

func TestMaterializeYAMLRecipe(t *testing.T) {
	d := &Dataset{
		Kind:       KindYAMLRecipe,
		Role:       RoleSurfaceForcing,
		Range:      cstar.DateRange{Start: date("2012-01-01"), End: date("2012-01-31")},
		RecipePath: "surface_forcing.yaml",
	}
	gen := &fakeGenerator{outputs: []string{"surface_forcing_2012-01.nc"}}
	if err := d.Materialize(context.Background(), gen); err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	if len(d.MaterializedOut) != 1 || d.MaterializedOut[0] != "surface_forcing_2012-01.nc" {
		t.Fatalf("MaterializedOut = %v", d.MaterializedOut)
	}
}

func TestMaterializeGeneratorFailureBecomesDatasetError(t *testing.T) {
	d := &Dataset{
		Kind:       KindYAMLRecipe,
		Role:       RoleGrid,
		Range:      cstar.DateRange{Start: date("2012-01-01"), End: date("2012-01-31")},
		RecipePath: "grid.yaml",
	}
	gen := &fakeGenerator{err: errors.New("roms-tools: bathymetry file not found")}
	err := d.Materialize(context.Background(), gen)
	if err == nil {
		t.Fatalf("expected error")
	}
	var cerr *cstar.Error
	if !errors.As(err, &cerr) || cerr.Kind != cstar.KindDataset {
		t.Fatalf("expected KindDataset error, got %v", err)
	}
	if cerr.Context["recipe_path"] != "grid.yaml" {
		t.Fatalf("context missing recipe_path: %v", cerr.Context)
	}
}

func TestMaterializeNetCDFFileIsNoop(t *testing.T) {
	d := &Dataset{Kind: KindNetCDFFile}
	if err := d.Materialize(context.Background(), &fakeGenerator{err: errors.New("should not be called")}); err != nil {
		t.Fatalf("Materialize on netcdf-file dataset should be a no-op: %v", err)
	}
}

func TestValidateCoverageMissingRole(t *testing.T) {
	ds := []*Dataset{
		{Role: RoleGrid, Range: cstar.DateRange{Start: date("2012-01-01"), End: date("2012-12-31")}},
	}
	want := cstar.DateRange{Start: date("2012-06-01"), End: date("2012-06-30")}
	err := ValidateCoverage(ds, want)
	if err == nil {
		t.Fatalf("expected DatasetError for missing roles")
	}
}

func TestValidateCoverageFullCoverage(t *testing.T) {
	var ds []*Dataset
	for _, role := range RequiredRoles {
		ds = append(ds, &Dataset{Role: role, Range: cstar.DateRange{Start: date("2012-01-01"), End: date("2012-12-31")}})
	}
	want := cstar.DateRange{Start: date("2012-06-01"), End: date("2012-06-30")}
	if err := ValidateCoverage(ds, want); err != nil {
		t.Fatalf("ValidateCoverage: %v", err)
	}
}

func TestValidateCoverageUnionOfTwoDatasetsSameRole(t *testing.T) {
	var ds []*Dataset
	for _, role := range RequiredRoles {
		if role == RoleBoundaryForcing {
			continue
		}
		ds = append(ds, &Dataset{Role: role, Range: cstar.DateRange{Start: date("2012-01-01"), End: date("2012-12-31")}})
	}
	// boundary-forcing split across two files, jointly covering the year.
	ds = append(ds,
		&Dataset{Role: RoleBoundaryForcing, Range: cstar.DateRange{Start: date("2012-01-01"), End: date("2012-06-30")}},
		&Dataset{Role: RoleBoundaryForcing, Range: cstar.DateRange{Start: date("2012-07-01"), End: date("2012-12-31")}},
	)
	want := cstar.DateRange{Start: date("2012-06-01"), End: date("2012-07-15")}
	if err := ValidateCoverage(ds, want); err != nil {
		t.Fatalf("ValidateCoverage: %v", err)
	}
}
