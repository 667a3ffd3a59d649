// Package transform implements Auto-Transform (SPEC_FULL §4.13): splitting
// a long-date-range workplan step into a linear chain of sub-steps, each
// covering one segment of the original range, each seeded from the
// previous segment's restart output. internal/orchestrator's
// applyAutoTransform calls Expand for every workplan step whose range
// splits into more than one segment when CSTAR_ORCH_TRX_FREQ is set, before
// the step DAG is built.
//
// Grounded on the linear-chain-of-steps shape implicit in dagu's
// Step.Depends-as-ordered-chain convention, narrowed here to a strictly
// linear sub-DAG: segment N always depends_on exactly segment N-1.
package transform

import (
	"fmt"
	"strings"
	"time"

	"github.com/c-star-org/cstar"
	"github.com/c-star-org/cstar/internal/blueprint"
)

// Frequency is a split granularity for Auto-Transform, selected by the
// CSTAR_ORCH_TRX_FREQ environment variable.
type Frequency string

const (
	Monthly Frequency = "monthly"
	Weekly  Frequency = "weekly"
	Daily   Frequency = "daily"
)

// ParseFrequency parses CSTAR_ORCH_TRX_FREQ's value, case-insensitively.
func ParseFrequency(s string) (Frequency, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "monthly":
		return Monthly, nil
	case "weekly":
		return Weekly, nil
	case "daily":
		return Daily, nil
	default:
		return "", cstar.New(cstar.KindConfiguration, "CSTAR_ORCH_TRX_FREQ %q must be monthly, weekly, or daily", s)
	}
}

const dateLayout = "2006-01-02"

// Segment is one sub-range of an Auto-Transform split, gapless and
// contiguous with its neighbors: Segment[i].End == Segment[i+1].Start.
type Segment struct {
	Start time.Time
	End   time.Time
	Label string
}

// Split partitions [start, end) into consecutive segments of the given
// frequency, clamping the final segment's End to end so the union of all
// segments exactly covers the original range. start must be strictly
// before end.
func Split(start, end time.Time, freq Frequency) ([]Segment, error) {
	if !start.Before(end) {
		return nil, cstar.New(cstar.KindValidation, "transform: start %s must be before end %s", start.Format(dateLayout), end.Format(dateLayout))
	}

	var segments []Segment
	cur := start
	for cur.Before(end) {
		next := nextBoundary(cur, freq)
		if next.After(end) {
			next = end
		}
		segments = append(segments, Segment{
			Start: cur,
			End:   next,
			Label: segmentLabel(cur, freq),
		})
		cur = next
	}
	return segments, nil
}

// nextBoundary returns the next split point strictly after cur, per freq.
func nextBoundary(cur time.Time, freq Frequency) time.Time {
	switch freq {
	case Monthly:
		return time.Date(cur.Year(), cur.Month()+1, 1, 0, 0, 0, 0, cur.Location())
	case Weekly:
		return cur.AddDate(0, 0, 7)
	case Daily:
		return cur.AddDate(0, 0, 1)
	default:
		return cur.AddDate(0, 0, 1)
	}
}

func segmentLabel(start time.Time, freq Frequency) string {
	switch freq {
	case Monthly:
		return start.Format("2006-01")
	default:
		return start.Format("2006-01-02")
	}
}

// restartPath is the relative, run-dir-agnostic override value Expand
// writes for a segment's initial_conditions: it names the predecessor
// step's restart output under the convention the Workplan Orchestrator's
// resolveOutputPaths turns into a concrete path at run time, before
// applyBlueprintOverrides sees it (outputs/<step>/restart.nc),
// the same convention a manually authored chained Workplan already uses.
func restartPath(predecessorStep string) string {
	return fmt.Sprintf("outputs/%s/restart.nc", predecessorStep)
}

// Expand splices stepName, an existing step of wp spanning [start, end),
// into a linear chain of len(Split(...)) new steps, one per segment: each
// new step references the same blueprint as the original and narrows it to
// its segment via a registry_attrs.valid_date_range.* override, and every
// segment after the first additionally overrides initial_conditions to the
// previous segment's restart output. Any sibling step that depends_on the
// original stepName is rewired to depend on the chain's last segment
// instead. Expand mutates wp in place.
func Expand(wp *blueprint.Workplan, stepName string, start, end time.Time, freq Frequency) error {
	orig := wp.Step(stepName)
	if orig == nil {
		return cstar.New(cstar.KindValidation, "transform: workplan has no step named %q", stepName)
	}
	segments, err := Split(start, end, freq)
	if err != nil {
		return err
	}
	if len(segments) == 0 {
		return cstar.New(cstar.KindValidation, "transform: split of step %q produced no segments", stepName)
	}

	chain := make([]blueprint.Step, len(segments))
	for i, seg := range segments {
		overrides := make(map[string]string, len(orig.BlueprintOverrides)+2)
		for k, v := range orig.BlueprintOverrides {
			overrides[k] = v
		}
		overrides["registry_attrs.valid_date_range.start_date"] = seg.Start.Format(dateLayout)
		overrides["registry_attrs.valid_date_range.end_date"] = seg.End.Format(dateLayout)

		name := fmt.Sprintf("%s-%s", stepName, seg.Label)
		var dependsOn []string
		if i == 0 {
			dependsOn = append(dependsOn, orig.DependsOn...)
		} else {
			dependsOn = []string{chain[i-1].Name}
			overrides["initial_conditions.location"] = restartPath(chain[i-1].Name)
		}

		chain[i] = blueprint.Step{
			Name:               name,
			Application:        orig.Application,
			Blueprint:          orig.Blueprint,
			DependsOn:          dependsOn,
			BlueprintOverrides: overrides,
			ComputeOverrides:   orig.ComputeOverrides,
			WorkflowOverrides:  orig.WorkflowOverrides,
		}
	}

	lastName := chain[len(chain)-1].Name
	var out []blueprint.Step
	for _, s := range wp.Steps {
		if s.Name == stepName {
			out = append(out, chain...)
			continue
		}
		for i, dep := range s.DependsOn {
			if dep == stepName {
				s.DependsOn[i] = lastName
			}
		}
		out = append(out, s)
	}
	wp.Steps = out
	return nil
}
