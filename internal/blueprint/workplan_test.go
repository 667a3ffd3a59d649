package blueprint

import (
	"strings"
	"testing"
)

const workplanYAML = `
name: seasonal-hindcast
description: three chained monthly segments
state: validated
compute_environment: expanse
steps:
  - name: jan
    application: roms_marbl
    blueprint: blueprints/jan.yaml
  - name: feb
    application: roms_marbl
    blueprint: blueprints/feb.yaml
    depends_on: [jan]
    blueprint_overrides:
      initial_conditions.location: outputs/jan/restart.nc
  - name: mar
    application: roms_marbl
    blueprint: blueprints/mar.yaml
    depends_on: [feb]
runtime_vars:
  region: california_current
`

func TestDecodeWorkplanParsesSteps(t *testing.T) {
	wp, err := DecodeWorkplan([]byte(workplanYAML))
	if err != nil {
		t.Fatalf("DecodeWorkplan: %v", err)
	}
	if len(wp.Steps) != 3 {
		t.Fatalf("len(Steps) = %d, want 3", len(wp.Steps))
	}
	if wp.Steps[1].BlueprintOverrides["initial_conditions.location"] != "outputs/jan/restart.nc" {
		t.Fatalf("blueprint_overrides not parsed: %+v", wp.Steps[1].BlueprintOverrides)
	}
	if wp.RuntimeVars["region"] != "california_current" {
		t.Fatalf("runtime_vars not parsed: %+v", wp.RuntimeVars)
	}
}

func TestDecodeWorkplanRejectsUnknownField(t *testing.T) {
	bad := strings.Replace(workplanYAML, "state: validated", "state: validated\nbogus: true", 1)
	if _, err := DecodeWorkplan([]byte(bad)); err == nil {
		t.Fatal("expected error for unknown top-level field")
	}
}

func TestWorkplanValidateCatchesDuplicateStepNames(t *testing.T) {
	wp, err := DecodeWorkplan([]byte(workplanYAML))
	if err != nil {
		t.Fatalf("DecodeWorkplan: %v", err)
	}
	wp.Steps = append(wp.Steps, wp.Steps[0])
	if err := wp.Validate(); err == nil {
		t.Fatal("expected error for duplicate step name")
	}
}

func TestWorkplanValidateCatchesUnknownDependsOn(t *testing.T) {
	wp, err := DecodeWorkplan([]byte(workplanYAML))
	if err != nil {
		t.Fatalf("DecodeWorkplan: %v", err)
	}
	wp.Steps[0].DependsOn = []string{"does-not-exist"}
	if err := wp.Validate(); err == nil {
		t.Fatal("expected error for depends_on referencing unknown sibling")
	}
}

func TestWorkplanValidateCatchesSelfDependency(t *testing.T) {
	wp, err := DecodeWorkplan([]byte(workplanYAML))
	if err != nil {
		t.Fatalf("DecodeWorkplan: %v", err)
	}
	wp.Steps[0].DependsOn = []string{wp.Steps[0].Name}
	if err := wp.Validate(); err == nil {
		t.Fatal("expected error for step depending on itself")
	}
}

func TestWorkplanExportRoundTrips(t *testing.T) {
	wp, err := DecodeWorkplan([]byte(workplanYAML))
	if err != nil {
		t.Fatalf("DecodeWorkplan: %v", err)
	}
	data, err := wp.Export()
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	reparsed, err := DecodeWorkplan(data)
	if err != nil {
		t.Fatalf("re-DecodeWorkplan: %v", err)
	}
	if len(reparsed.Steps) != len(wp.Steps) {
		t.Fatalf("round trip lost steps: got %d, want %d", len(reparsed.Steps), len(wp.Steps))
	}
	if reparsed.Steps[1].DependsOn[0] != "jan" {
		t.Fatalf("round trip lost depends_on: %+v", reparsed.Steps[1].DependsOn)
	}
}

func TestStepLookupByName(t *testing.T) {
	wp, err := DecodeWorkplan([]byte(workplanYAML))
	if err != nil {
		t.Fatalf("DecodeWorkplan: %v", err)
	}
	if s := wp.Step("feb"); s == nil || s.Blueprint != "blueprints/feb.yaml" {
		t.Fatalf("Step(feb) = %+v", s)
	}
	if s := wp.Step("missing"); s != nil {
		t.Fatalf("Step(missing) = %+v, want nil", s)
	}
}
