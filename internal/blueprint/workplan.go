package blueprint

import (
	"bytes"
	"fmt"

	"github.com/c-star-org/cstar"
	"gopkg.in/yaml.v3"
)

// WorkplanState is a Workplan's draft/validated lifecycle flag (SPEC_FULL
// §3).
type WorkplanState string

const (
	WorkplanDraft     WorkplanState = "draft"
	WorkplanValidated WorkplanState = "validated"
)

// Step is one Workplan step: a Blueprint reference plus the dependencies
// and overrides applied to it before the orchestrator materializes a
// Simulation from it.
type Step struct {
	Name               string            `yaml:"name"`
	Application        string            `yaml:"application"`
	Blueprint          string            `yaml:"blueprint"`
	DependsOn          []string          `yaml:"depends_on,omitempty"`
	BlueprintOverrides map[string]string `yaml:"blueprint_overrides,omitempty"`
	ComputeOverrides   map[string]string `yaml:"compute_overrides,omitempty"`
	WorkflowOverrides  map[string]string `yaml:"workflow_overrides,omitempty"`
}

// Workplan is the parsed form of a Workplan YAML document (SPEC_FULL §3,
// §6).
type Workplan struct {
	Name               string            `yaml:"name"`
	Description        string            `yaml:"description,omitempty"`
	State              WorkplanState     `yaml:"state"`
	ComputeEnvironment string            `yaml:"compute_environment,omitempty"`
	RuntimeVars        map[string]string `yaml:"runtime_vars,omitempty"`
	Steps              []Step            `yaml:"steps"`
}

// DecodeWorkplan parses a Workplan YAML document, rejecting unknown
// top-level and step-level fields (KnownFields), while *_overrides and
// runtime_vars — genuine map fields — accept arbitrary keys by
// construction, matching the same "unknown fields rejected unless under a
// runtime_vars map" rule Decode applies to Blueprints (SPEC_FULL §4.11).
func DecodeWorkplan(data []byte) (*Workplan, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var wp Workplan
	if err := dec.Decode(&wp); err != nil {
		return nil, cstar.Wrap(cstar.KindValidation, err, "parsing workplan YAML")
	}
	return &wp, nil
}

// Validate checks the schema-level invariants SPEC_FULL §3 places on a
// Workplan: step names unique, every depends_on resolves to a sibling, and
// state is one of the two declared values. DAG acyclicity is checked
// separately, by the orchestrator, via internal/dag (a structural property
// of the whole step set rather than a per-field schema rule).
func (w *Workplan) Validate() error {
	if w.Name == "" {
		return cstar.New(cstar.KindValidation, "workplan name is required")
	}
	if w.State != "" && w.State != WorkplanDraft && w.State != WorkplanValidated {
		return cstar.New(cstar.KindValidation, "workplan state %q must be draft or validated", w.State)
	}
	if len(w.Steps) == 0 {
		return cstar.New(cstar.KindValidation, "workplan declares no steps")
	}

	seen := make(map[string]bool, len(w.Steps))
	for _, s := range w.Steps {
		if s.Name == "" {
			return cstar.New(cstar.KindValidation, "workplan step missing name")
		}
		if seen[s.Name] {
			return cstar.New(cstar.KindValidation, "duplicate step name %q", s.Name)
		}
		seen[s.Name] = true
		if s.Blueprint == "" {
			return cstar.New(cstar.KindValidation, "step %q missing blueprint", s.Name)
		}
	}
	for _, s := range w.Steps {
		for _, dep := range s.DependsOn {
			if !seen[dep] {
				return cstar.New(cstar.KindValidation, "step %q depends_on unknown sibling %q", s.Name, dep)
			}
			if dep == s.Name {
				return cstar.New(cstar.KindValidation, "step %q depends_on itself", s.Name)
			}
		}
	}
	return nil
}

// Step looks up a step by name, or returns nil.
func (w *Workplan) Step(name string) *Step {
	for i := range w.Steps {
		if w.Steps[i].Name == name {
			return &w.Steps[i]
		}
	}
	return nil
}

// Export re-serializes w to YAML.
func (w *Workplan) Export() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(w); err != nil {
		return nil, cstar.Wrap(cstar.KindValidation, err, "exporting workplan")
	}
	if err := enc.Close(); err != nil {
		return nil, cstar.Wrap(cstar.KindValidation, err, "exporting workplan")
	}
	return buf.Bytes(), nil
}

func (s *Step) String() string {
	return fmt.Sprintf("%s (%s)", s.Name, s.Blueprint)
}
