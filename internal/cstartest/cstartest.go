// Package cstartest holds small test helpers shared across this module's
// test files: temp-directory fixture writers and cleanup wrappers, adapted
// from distr1-distri's internal/distritest (which served the same role for
// package-build tests) to blueprint/workplan fixtures.
package cstartest

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

// RemoveAll wraps os.RemoveAll and fails the test on failure.
func RemoveAll(t testing.TB, path string) {
	t.Helper()
	if err := os.RemoveAll(path); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
}

// WriteFile creates path's parent directories and writes data to it,
// failing the test on any error.
func WriteFile(t testing.TB, path string, data []byte, perm os.FileMode) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("preparing %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, data, perm); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

// WriteExecutable writes an executable shell script to path. An empty body
// defaults to a no-op success script, enough to stand in for a Builder's
// produced binary in tests that exercise the Execution Handler but don't
// care what actually runs.
func WriteExecutable(t testing.TB, path, body string) {
	t.Helper()
	if body == "" {
		body = "#!/bin/sh\nexit 0\n"
	}
	WriteFile(t, path, []byte(body), 0o755)
}

// RuntimeTemplate is a minimal roms.in.template fixture covering every
// runtime-settings key Simulation.PreRun fills in, usable by any test that
// needs a Simulation to reach PreRun.
const RuntimeTemplate = `grid:
          /placeholder/grid.nc
initial-conditions:
          /placeholder/ic.nc
tidal-forcing:
          /placeholder/tide.nc
boundary-forcing:
          /placeholder/bry.nc
surface-forcing:
          /placeholder/frc.nc
river-forcing:
          /placeholder/river.nc
forcing-corrections:
          /placeholder/corr.nc
start_date:
          2012-01-01 00:00:00
end_date:
          2012-01-31 00:00:00
tiling:
          1   1
time_stepping:
          2000   100   1   1
`

// BlueprintFixture writes a self-contained, local-only Blueprint YAML
// (modern schema) under dir/name plus the dataset files and runtime
// template it references, and returns the blueprint's path. Every role
// dataset.RequiredRoles names gets a file and a start_date/end_date
// covering dateStart..dateEnd, so bp.Validate and Setup's
// dataset.ValidateCoverage both pass against the fixture unmodified.
func BlueprintFixture(t testing.TB, dir, name, dateStart, dateEnd string) string {
	t.Helper()
	root := filepath.Join(dir, name)
	templateDir := filepath.Join(root, "runtime-code")
	WriteFile(t, filepath.Join(templateDir, "roms.in.template"), []byte(RuntimeTemplate), 0o644)

	for _, role := range []string{"grid", "ic", "tide", "bry", "frc", "river", "corr"} {
		WriteFile(t, filepath.Join(root, role+".nc"), []byte("data"), 0o644)
	}

	// mappingDates is appended after a mapping-valued resource field's
	// location (4-space indent, aligned with "location:"); listDates
	// after a list-item resource field's location (6-space indent,
	// aligned with "location:" following "- ").
	mappingDates := fmt.Sprintf("\n    start_date: %q\n    end_date: %q", dateStart, dateEnd)
	listDates := fmt.Sprintf("\n      start_date: %q\n      end_date: %q", dateStart, dateEnd)

	doc := fmt.Sprintf(`
registry_attrs:
  name: %s
  valid_date_range:
    start_date: %q
    end_date: %q
ROMSSimulation:
  component_type: ROMS
  base_model:
    source_repo: https://example.com/roms.git
    checkout_target: main
  discretization:
    n_procs_x: 1
    n_procs_y: 1
    time_step: 60
  runtime_code:
    location: %s
  model_grid:
    location: %s%s
  initial_conditions:
    location: %s%s
  tidal_forcing:
    location: %s%s
  boundary_forcing:
    - location: %s%s
  surface_forcing:
    - location: %s%s
  river_forcing:
    - location: %s%s
  forcing_corrections:
    - location: %s%s
`, name, dateStart, dateEnd, templateDir,
		filepath.Join(root, "grid.nc"), mappingDates,
		filepath.Join(root, "ic.nc"), mappingDates,
		filepath.Join(root, "tide.nc"), mappingDates,
		filepath.Join(root, "bry.nc"), listDates,
		filepath.Join(root, "frc.nc"), listDates,
		filepath.Join(root, "river.nc"), listDates,
		filepath.Join(root, "corr.nc"), listDates)

	path := filepath.Join(root, "blueprint.yaml")
	WriteFile(t, path, []byte(doc), 0o644)
	return path
}
