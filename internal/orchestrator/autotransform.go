package orchestrator

import (
	"os"
	"strings"
	"time"

	"github.com/c-star-org/cstar"
	"github.com/c-star-org/cstar/internal/blueprint"
	"github.com/c-star-org/cstar/internal/transform"
)

// autoTransformFreqEnv is CSTAR_ORCH_TRX_FREQ (SPEC_FULL §4.13): its mere
// presence turns Auto-Transform on for the whole workplan, and its value
// selects the split granularity.
const autoTransformFreqEnv = "CSTAR_ORCH_TRX_FREQ"

// applyAutoTransform expands every step of wp whose blueprint's (possibly
// override-narrowed) valid_date_range spans more than one transform.Split
// segment into the linear restart-coupled chain transform.Expand produces,
// when CSTAR_ORCH_TRX_FREQ is set. Run calls this once, after wp.Validate
// and before the step DAG is built, so every downstream consumer (the
// graph builder, the digest, the ready-frontier scheduler) only ever sees
// the expanded workplan.
//
// Steps are expanded in their original declaration order, so a later
// step's depends_on rewiring (transform.Expand rewrites any sibling that
// depends_on the original step name to depend on the chain's last segment
// instead) always sees an already-expanded predecessor.
func applyAutoTransform(wp *blueprint.Workplan, cfg Config) error {
	raw := strings.TrimSpace(os.Getenv(autoTransformFreqEnv))
	if raw == "" {
		return nil
	}
	freq, err := transform.ParseFrequency(raw)
	if err != nil {
		return err
	}
	if cfg.LoadBlueprint == nil {
		return cstar.New(cstar.KindConfiguration, "%s is set but orchestrator Config has no LoadBlueprint collaborator", autoTransformFreqEnv)
	}

	names := make([]string, len(wp.Steps))
	for i, s := range wp.Steps {
		names[i] = s.Name
	}

	for _, name := range names {
		step := wp.Step(name)
		if step == nil {
			// Already folded into an earlier step's expansion (shouldn't
			// happen for a distinct declared name, but Expand only ever
			// removes the name it was given).
			continue
		}
		start, end, err := effectiveDateRange(step, cfg)
		if err != nil {
			return err
		}
		segments, err := transform.Split(start, end, freq)
		if err != nil {
			return err
		}
		if len(segments) <= 1 {
			continue
		}
		if err := transform.Expand(wp, name, start, end, freq); err != nil {
			return err
		}
	}
	return nil
}

// effectiveDateRange resolves the date range Auto-Transform should split
// step over: its blueprint's registry_attrs.valid_date_range, narrowed by
// any registry_attrs.valid_date_range.* the step's own blueprint_overrides
// already set.
func effectiveDateRange(step *blueprint.Step, cfg Config) (time.Time, time.Time, error) {
	raw, err := cfg.LoadBlueprint(step.Blueprint)
	if err != nil {
		return time.Time{}, time.Time{}, cstar.Wrap(cstar.KindConfiguration, err, "loading blueprint for step %s", step.Name)
	}
	bp, err := blueprint.Decode(raw, cfg.BlueprintBaseDir)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}

	startStr := bp.RegistryAttrs.ValidDateRange.StartDate
	endStr := bp.RegistryAttrs.ValidDateRange.EndDate
	if v, ok := step.BlueprintOverrides["registry_attrs.valid_date_range.start_date"]; ok {
		startStr = v
	}
	if v, ok := step.BlueprintOverrides["registry_attrs.valid_date_range.end_date"]; ok {
		endStr = v
	}

	start, err := blueprint.ParseDate(startStr)
	if err != nil {
		return time.Time{}, time.Time{}, cstar.Wrap(cstar.KindValidation, err, "parsing step %s effective start_date", step.Name)
	}
	end, err := blueprint.ParseDate(endStr)
	if err != nil {
		return time.Time{}, time.Time{}, cstar.Wrap(cstar.KindValidation, err, "parsing step %s effective end_date", step.Name)
	}
	return start, end, nil
}
