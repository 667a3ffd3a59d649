package blueprint

import (
	"strings"
	"testing"
)

const legacyYAML = `
registry_attrs:
  name: sample-sim
  valid_date_range:
    start_date: "2010-01-01"
    end_date: "2015-01-01"
components:
  - component_type: ROMS
    base_model:
      source_repo: https://github.com/CESR-lab/ucla-roms.git
      checkout_target: main
    discretization:
      n_procs_x: 2
      n_procs_y: 2
      time_step: 60
    namelists:
      location: <additional_code_location>/namelists
    model_grid:
      location: <input_datasets_location>/grid.nc
    initial_conditions:
      location: https://example.com/ic.nc
      file_hash: deadbeef00000000000000000000000000000000000000000000000000000000
      start_date: "2012-01-01"
      end_date: "2012-01-01"
    tidal_forcing:
      location: <input_datasets_location>/tide.nc
    boundary_forcing:
      - location: <input_datasets_location>/bry.nc
    surface_forcing:
      - location: <input_datasets_location>/frc.nc
    river_forcing:
      - location: <input_datasets_location>/river.nc
runtime_vars:
  experiment: baseline
`

const modernYAML = `
registry_attrs:
  name: sample-sim
  valid_date_range:
    start_date: "2010-01-01"
    end_date: "2015-01-01"
ROMSSimulation:
  component_type: ROMS
  base_model:
    source_repo: https://github.com/CESR-lab/ucla-roms.git
    checkout_target: main
  runtime_code:
    location: <additional_code_location>/namelists
  model_grid:
    location: <input_datasets_location>/grid.nc
`

// s1YAML mirrors cstar_blueprint_with_yaml_datasets_template.yaml (spec
// scenario S1): a genuinely two-component blueprint (MARBL first, ROMS
// second, per S1's components[0]/components[1] assertions) with a
// datetime-valued valid_date_range (spec scenario S5's
// "2012-01-01 12:00:00"), not a bare date. This is the shape the
// single-component, date-only legacyYAML fixture above never exercises.
const s1YAML = `
registry_attrs:
  name: yaml-dataset-sim
  valid_date_range:
    start_date: "2012-01-01 12:00:00"
    end_date: "2012-12-31 12:00:00"
components:
  - component_type: MARBL
    base_model:
      source_repo: https://github.com/marbl-ecosys/MARBL.git
      checkout_target: marbl0.45.0
    runtime_code:
      location: <additional_code_location>/marbl_in
  - component_type: ROMS
    base_model:
      source_repo: https://github.com/CESR-lab/ucla-roms.git
      checkout_target: main
    discretization:
      n_procs_x: 2
      n_procs_y: 2
      time_step: 60
    runtime_code:
      location: <additional_code_location>/namelists
    model_grid:
      location: <input_datasets_location>/grid.nc
    initial_conditions:
      location: https://example.com/ic.nc
      file_hash: deadbeef00000000000000000000000000000000000000000000000000000000
      start_date: "2012-01-01 12:00:00"
      end_date: "2012-01-01 12:00:00"
    tidal_forcing:
      location: <input_datasets_location>/tide.nc
    boundary_forcing:
      - location: <input_datasets_location>/bry.nc
    surface_forcing:
      - location: <input_datasets_location>/frc.nc
    river_forcing:
      - location: <input_datasets_location>/river.nc
`

func TestDecodeLegacyResolvesPlaceholdersAndRenamesNamelists(t *testing.T) {
	bp, err := Decode([]byte(legacyYAML), "/work/root")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bp.wasLegacy {
		t.Fatal("expected wasLegacy = true")
	}
	if len(bp.Components) != 1 {
		t.Fatalf("len(Components) = %d, want 1", len(bp.Components))
	}
	c := bp.Components[0]
	if c.RuntimeCode == nil {
		t.Fatal("expected namelists to be normalized into RuntimeCode")
	}
	if c.RuntimeCode.Location != "/work/root/namelists" {
		t.Fatalf("RuntimeCode.Location = %q, want placeholder resolved", c.RuntimeCode.Location)
	}
	if c.ModelGrid.Location != "/work/root/grid.nc" {
		t.Fatalf("ModelGrid.Location = %q, want placeholder resolved", c.ModelGrid.Location)
	}
	if bp.RuntimeVars["experiment"] != "baseline" {
		t.Fatalf("RuntimeVars[experiment] = %q, want baseline", bp.RuntimeVars["experiment"])
	}
}

func TestDecodeModernAccepted(t *testing.T) {
	bp, err := Decode([]byte(modernYAML), "/work/root")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if bp.wasLegacy {
		t.Fatal("expected wasLegacy = false for modern schema")
	}
	if bp.Components[0].RuntimeCode.Location != "/work/root/namelists" {
		t.Fatalf("RuntimeCode.Location = %q", bp.Components[0].RuntimeCode.Location)
	}
}

func TestDecodeRejectsUnknownField(t *testing.T) {
	bad := strings.Replace(modernYAML, "component_type: ROMS", "component_type: ROMS\n  bogus_field: 1", 1)
	if _, err := Decode([]byte(bad), "/work/root"); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestDecodeRejectsNeitherRoot(t *testing.T) {
	if _, err := Decode([]byte("registry_attrs:\n  name: x\n"), "/work"); err == nil {
		t.Fatal("expected error when neither components nor ROMSSimulation root present")
	}
}

func TestValidateRequiresHashForRemoteResource(t *testing.T) {
	bp, err := Decode([]byte(legacyYAML), "/work/root")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if err := bp.Validate(); err != nil {
		t.Fatalf("Validate: %v (initial_conditions already carries a hash)", err)
	}

	bp.Components[0].InitialConditions.FileHash = ""
	if err := bp.Validate(); err == nil {
		t.Fatal("expected validation error for remote resource missing file_hash")
	}
}

func TestValidateAllowsMissingHashForLocalResource(t *testing.T) {
	bp, err := Decode([]byte(legacyYAML), "/work/root")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	// model_grid resolved to a local path; no hash required.
	if bp.Components[0].ModelGrid.FileHash != "" {
		t.Fatal("test fixture assumption changed: model_grid now carries a hash")
	}
	if err := bp.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

// TestExportRoundTripsLegacySingleComponent covers a single-component
// blueprint that was itself read under the legacy components: root: Export
// keeps it on that root (the only one legacyComponent's "namelists" alias
// would have come from), rather than promoting it to ROMSSimulation.
func TestExportRoundTripsLegacySingleComponent(t *testing.T) {
	bp, err := Decode([]byte(legacyYAML), "/work/root")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	data, err := bp.Export()
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if !strings.Contains(string(data), "components:") {
		t.Fatalf("export of a legacy-rooted blueprint should keep the components: root:\n%s", data)
	}
	if strings.Contains(string(data), "namelists:") {
		t.Fatalf("export must always emit runtime_code, never namelists:\n%s", data)
	}

	reparsed, err := Decode(data, "/work/root")
	if err != nil {
		t.Fatalf("re-Decode of exported YAML: %v", err)
	}
	if len(reparsed.Components) != 1 {
		t.Fatalf("len(Components) = %d, want 1", len(reparsed.Components))
	}
	if reparsed.Components[0].BaseModel.SourceRepo != bp.Components[0].BaseModel.SourceRepo {
		t.Fatalf("round trip lost source_repo: got %q", reparsed.Components[0].BaseModel.SourceRepo)
	}
	if reparsed.Components[0].RuntimeCode.Location != bp.Components[0].RuntimeCode.Location {
		t.Fatalf("round trip lost runtime_code.location")
	}
}

// TestExportRoundTripsModernSingleComponent covers a blueprint read under
// the modern ROMSSimulation root: Export keeps it there, since it was
// never legacy and has exactly one component.
func TestExportRoundTripsModernSingleComponent(t *testing.T) {
	bp, err := Decode([]byte(modernYAML), "/work/root")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	data, err := bp.Export()
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if !strings.Contains(string(data), "ROMSSimulation:") {
		t.Fatalf("export of a modern-rooted single-component blueprint should use the ROMSSimulation root:\n%s", data)
	}

	reparsed, err := Decode(data, "/work/root")
	if err != nil {
		t.Fatalf("re-Decode of exported YAML: %v", err)
	}
	if reparsed.Components[0].BaseModel.SourceRepo != bp.Components[0].BaseModel.SourceRepo {
		t.Fatalf("round trip lost source_repo: got %q", reparsed.Components[0].BaseModel.SourceRepo)
	}
}

// TestExportRoundTripsTwoComponentBlueprint exercises scenario S1's
// round-trip requirement directly: a MARBL+ROMS blueprint, which the
// modern ROMSSimulation root cannot represent at all, must still survive
// Decode -> Export -> Decode with every component and field intact.
func TestExportRoundTripsTwoComponentBlueprint(t *testing.T) {
	bp, err := Decode([]byte(s1YAML), "/work/root")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(bp.Components) != 2 {
		t.Fatalf("len(Components) = %d, want 2", len(bp.Components))
	}

	data, err := bp.Export()
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if !strings.Contains(string(data), "components:") {
		t.Fatalf("export of a two-component blueprint must use the legacy components: root, ROMSSimulation cannot carry two:\n%s", data)
	}
	if strings.Contains(string(data), "ROMSSimulation:") {
		t.Fatalf("export of a two-component blueprint must not use the ROMSSimulation root:\n%s", data)
	}

	reparsed, err := Decode(data, "/work/root")
	if err != nil {
		t.Fatalf("re-Decode of exported YAML: %v", err)
	}
	if len(reparsed.Components) != 2 {
		t.Fatalf("round trip lost a component: len(Components) = %d, want 2", len(reparsed.Components))
	}
	if reparsed.Components[0].ComponentType != "MARBL" {
		t.Fatalf("round trip lost components[0] ordering: got %q, want MARBL", reparsed.Components[0].ComponentType)
	}
	if reparsed.Components[1].ComponentType != "ROMS" {
		t.Fatalf("round trip lost components[1] ordering: got %q, want ROMS", reparsed.Components[1].ComponentType)
	}
	if reparsed.Components[1].Discretization == nil || reparsed.Components[1].Discretization.NProcsX != 2 {
		t.Fatalf("round trip lost components[1].discretization.n_procs_x")
	}
	if reparsed.RegistryAttrs.ValidDateRange.StartDate != bp.RegistryAttrs.ValidDateRange.StartDate {
		t.Fatalf("round trip lost valid_date_range.start_date: got %q", reparsed.RegistryAttrs.ValidDateRange.StartDate)
	}
}

func TestComponentDatasetsCoversAllRoles(t *testing.T) {
	bp, err := Decode([]byte(legacyYAML), "/work/root")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	datasets, err := bp.Components[0].Datasets()
	if err != nil {
		t.Fatalf("Datasets: %v", err)
	}
	if len(datasets) != 6 { // grid, IC, tidal, boundary, surface, river (no forcing_corrections in fixture)
		t.Fatalf("len(datasets) = %d, want 6", len(datasets))
	}
}

func TestComponentDatasetsIncludesForcingCorrections(t *testing.T) {
	withCorrections := strings.Replace(legacyYAML, "river_forcing:\n      - location: <input_datasets_location>/river.nc",
		"river_forcing:\n      - location: <input_datasets_location>/river.nc\n    forcing_corrections:\n      - location: <input_datasets_location>/corr.nc", 1)
	bp, err := Decode([]byte(withCorrections), "/work/root")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	datasets, err := bp.Components[0].Datasets()
	if err != nil {
		t.Fatalf("Datasets: %v", err)
	}
	if len(datasets) != 7 {
		t.Fatalf("len(datasets) = %d, want 7 (including forcing_corrections)", len(datasets))
	}
	found := false
	for _, d := range datasets {
		if d.Role == "forcing-corrections" {
			found = true
			if d.Resource.WorkingPath != "/work/root/corr.nc" {
				t.Fatalf("forcing_corrections WorkingPath = %q, want placeholder-resolved local path", d.Resource.WorkingPath)
			}
		}
	}
	if !found {
		t.Fatal("expected a forcing-corrections dataset")
	}
}

func TestValidDateRangeParses(t *testing.T) {
	bp, err := Decode([]byte(legacyYAML), "/work/root")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	dr, err := bp.ValidDateRange()
	if err != nil {
		t.Fatalf("ValidDateRange: %v", err)
	}
	if dr.Start.Year() != 2010 || dr.End.Year() != 2015 {
		t.Fatalf("ValidDateRange = %+v", dr)
	}
}

// TestValidDateRangeParsesDatetime covers scenario S5's template, whose
// valid_date_range carries a time-of-day component
// ("2012-01-01 12:00:00"), not a bare date. Before DateLayout matched this
// format, every datetime-bearing blueprint failed ValidDateRange with
// "extra text", so the range check S5 depends on never even ran.
func TestValidDateRangeParsesDatetime(t *testing.T) {
	bp, err := Decode([]byte(s1YAML), "/work/root")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	dr, err := bp.ValidDateRange()
	if err != nil {
		t.Fatalf("ValidDateRange: %v", err)
	}
	if dr.Start.Hour() != 12 || dr.End.Hour() != 12 {
		t.Fatalf("ValidDateRange lost the time-of-day component: %+v", dr)
	}
	if dr.Start.Format(dateOnlyLayout) != "2012-01-01" {
		t.Fatalf("ValidDateRange.Start = %s, want 2012-01-01", dr.Start.Format(dateOnlyLayout))
	}
}

// TestParseDateAcceptsBothLayouts grounds ParseDate directly against both
// forms a blueprint's start_date/end_date fields arrive in.
func TestParseDateAcceptsBothLayouts(t *testing.T) {
	t.Run("datetime", func(t *testing.T) {
		got, err := ParseDate("2012-01-01 12:00:00")
		if err != nil {
			t.Fatalf("ParseDate: %v", err)
		}
		if got.Hour() != 12 {
			t.Fatalf("Hour() = %d, want 12", got.Hour())
		}
	})
	t.Run("date-only", func(t *testing.T) {
		got, err := ParseDate("2012-01-01")
		if err != nil {
			t.Fatalf("ParseDate: %v", err)
		}
		if got.Hour() != 0 {
			t.Fatalf("Hour() = %d, want 0", got.Hour())
		}
	})
	t.Run("malformed", func(t *testing.T) {
		if _, err := ParseDate("not-a-date"); err == nil {
			t.Fatal("expected an error for a malformed date")
		}
	})
}

// TestS1TwoComponentBlueprintNormalizes exercises scenario S1's literal
// assertions against the YAML-dataset template: components[0] is MARBL,
// components[1]'s discretization carries n_procs_x == 2, and the ROMS
// component resolves to six dataset entries.
func TestS1TwoComponentBlueprintNormalizes(t *testing.T) {
	bp, err := Decode([]byte(s1YAML), "/work/root")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(bp.Components) != 2 {
		t.Fatalf("len(Components) = %d, want 2", len(bp.Components))
	}
	if bp.Components[0].ComponentType != "MARBL" {
		t.Fatalf("components[0].component_type = %q, want MARBL", bp.Components[0].ComponentType)
	}
	if bp.Components[1].Discretization == nil || bp.Components[1].Discretization.NProcsX != 2 {
		t.Fatalf("components[1].discretization.n_procs_x != 2")
	}
	datasets, err := bp.Components[1].Datasets()
	if err != nil {
		t.Fatalf("Datasets: %v", err)
	}
	if len(datasets) != 6 {
		t.Fatalf("len(datasets) = %d, want 6", len(datasets))
	}
	if err := bp.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}
