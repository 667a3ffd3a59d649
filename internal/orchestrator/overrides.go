package orchestrator

import (
	"path/filepath"
	"strconv"
	"strings"

	"github.com/c-star-org/cstar"
	"github.com/c-star-org/cstar/internal/blueprint"
)

// outputsPrefix is the run-dir-agnostic convention Auto-Transform
// (internal/transform, spliced in by applyAutoTransform before the step
// DAG is built) and hand-authored chained Workplans both use for an
// initial_conditions override that points at a predecessor step's restart
// file: "outputs/<step>/restart.nc". resolveOutputPaths rewrites every such
// value in place to the concrete path the predecessor step actually wrote
// its restart output to, once runDir is known (Auto-Transform runs before
// any run-id/runDir is bound to the workplan, so it cannot resolve this
// itself).
const outputsPrefix = "outputs/"

// resolveOutputPaths rewrites any overrides value of the form
// "outputs/<step>/<file>" to runDir/<step>/output/<file>, matching
// Simulation.PostRun's outDir := filepath.Join(s.Directory, "output")
// convention.
func resolveOutputPaths(overrides map[string]string, runDir string) {
	for path, value := range overrides {
		if !strings.HasPrefix(value, outputsPrefix) {
			continue
		}
		rel := strings.TrimPrefix(value, outputsPrefix)
		step, file, ok := strings.Cut(rel, "/")
		if !ok {
			continue
		}
		overrides[path] = filepath.Join(runDir, step, "output", file)
	}
}

// applyBlueprintOverrides mutates bp's single component in place according
// to overrides, a dotted-path -> value map (SPEC_FULL §3: Step's optional
// "blueprint_overrides"). Only the paths a chained workplan step plausibly
// needs to override are supported — primarily initial_conditions, the
// field Auto-Transform (§4.13) rewrites on every sub-Simulation after the
// first to point at the previous segment's restart output — and an
// unsupported path is a ValidationError naming it, rather than silently
// ignored.
func applyBlueprintOverrides(bp *blueprint.Blueprint, overrides map[string]string) error {
	if len(overrides) == 0 {
		return nil
	}
	if len(bp.Components) != 1 {
		return cstar.New(cstar.KindValidation, "blueprint_overrides require a single-component blueprint, got %d components", len(bp.Components))
	}
	c := &bp.Components[0]

	for path, value := range overrides {
		if err := applyOneOverride(c, bp, path, value); err != nil {
			return err
		}
	}
	return nil
}

func applyOneOverride(c *blueprint.ComponentSpec, bp *blueprint.Blueprint, path, value string) error {
	switch path {
	case "initial_conditions.location":
		ensureResource(&c.InitialConditions).Location = value
	case "initial_conditions.file_hash":
		ensureResource(&c.InitialConditions).FileHash = value
	case "initial_conditions.start_date":
		ensureResource(&c.InitialConditions).StartDate = value
	case "initial_conditions.end_date":
		ensureResource(&c.InitialConditions).EndDate = value
	case "runtime_code.location":
		ensureResource(&c.RuntimeCode).Location = value
	case "discretization.n_procs_x":
		n, err := strconv.Atoi(value)
		if err != nil {
			return cstar.Wrap(cstar.KindValidation, err, "parsing discretization.n_procs_x override %q", value)
		}
		ensureDiscretization(&c.Discretization).NProcsX = n
	case "discretization.n_procs_y":
		n, err := strconv.Atoi(value)
		if err != nil {
			return cstar.Wrap(cstar.KindValidation, err, "parsing discretization.n_procs_y override %q", value)
		}
		ensureDiscretization(&c.Discretization).NProcsY = n
	case "discretization.time_step":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return cstar.Wrap(cstar.KindValidation, err, "parsing discretization.time_step override %q", value)
		}
		ensureDiscretization(&c.Discretization).TimeStep = f
	case "registry_attrs.valid_date_range.start_date":
		bp.RegistryAttrs.ValidDateRange.StartDate = value
	case "registry_attrs.valid_date_range.end_date":
		bp.RegistryAttrs.ValidDateRange.EndDate = value
	default:
		return cstar.New(cstar.KindValidation, "unsupported blueprint_overrides path %q", path)
	}
	return nil
}

func ensureResource(r **blueprint.ResourceSpec) *blueprint.ResourceSpec {
	if *r == nil {
		*r = &blueprint.ResourceSpec{}
	}
	return *r
}

func ensureDiscretization(d **blueprint.DiscretizationSpec) *blueprint.DiscretizationSpec {
	if *d == nil {
		*d = &blueprint.DiscretizationSpec{}
	}
	return *d
}

// computeOverride reads key from a step's compute_overrides map, or
// returns "".
func computeOverride(overrides map[string]string, key string) string {
	return strings.TrimSpace(overrides[key])
}
