// Package blueprint implements the Blueprint Codec (SPEC_FULL §4.11):
// schema-validated YAML (de)serialization of Simulations (Blueprints) and
// Workplans, placeholder resolution, and the legacy/modern schema dual
// acceptance SPEC_FULL §9 Open Question (a) resolves in favor of always
// exporting the modern field names, regardless of which root shape
// (legacy components list or modern ROMSSimulation) carries them.
//
// Grounded on gopkg.in/yaml.v3's strict decoding, the one domain concern
// distr1-distri itself never needed (it speaks protobuf text format for
// package metadata) but which the rest of the retrieved pack converges on
// hard for declarative config (SPEC_FULL §2.2). Unknown-field rejection
// uses yaml.Decoder.KnownFields(true), which rejects any struct field not
// declared on the target type while still accepting arbitrary keys inside
// a genuine map field — exactly the "unknown fields rejected unless under
// a runtime_vars map" rule, since runtime_vars is typed as a map rather
// than a struct.
package blueprint

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/c-star-org/cstar"
	"gopkg.in/yaml.v3"
)

// inputDatasetsPlaceholder and additionalCodePlaceholder are resolved
// against the blueprint's own directory or URL before any Resource is
// staged (SPEC_FULL §4.11).
const (
	inputDatasetsPlaceholder  = "<input_datasets_location>"
	additionalCodePlaceholder = "<additional_code_location>"
)

// DateLayout is the wire format for start_date/end_date fields throughout
// the Blueprint and Workplan YAML schemas: a full datetime, matching the
// layout internal/runtimesettings uses for the same fields once substituted
// into a ROMS control file.
const DateLayout = "2006-01-02 15:04:05"

// dateOnlyLayout is accepted as a fallback for a bare date with no
// time-of-day component, since some hand-authored blueprints omit it.
const dateOnlyLayout = "2006-01-02"

// ParseDate parses a start_date/end_date field, accepting either DateLayout
// or a bare date.
func ParseDate(s string) (time.Time, error) {
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(dateOnlyLayout, s)
}

// ResourceSpec is the YAML shape shared by every file/repo reference in a
// Blueprint: model_grid, initial_conditions, tidal_forcing, and the list
// fields boundary_forcing/surface_forcing/river_forcing.
type ResourceSpec struct {
	Location       string `yaml:"location"`
	CheckoutTarget string `yaml:"checkout_target,omitempty"`
	Subdir         string `yaml:"subdir,omitempty"`
	FileHash       string `yaml:"file_hash,omitempty"`
	StartDate      string `yaml:"start_date,omitempty"`
	EndDate        string `yaml:"end_date,omitempty"`
}

// DiscretizationSpec mirrors cstar.Discretization in YAML form.
type DiscretizationSpec struct {
	NProcsX  int     `yaml:"n_procs_x"`
	NProcsY  int     `yaml:"n_procs_y"`
	TimeStep float64 `yaml:"time_step"`
}

// ComponentSpec is one "component" of a Blueprint: one external model
// (ROMS, MARBL, ...) plus the resources it needs. The legacy schema lists
// these under a top-level components sequence; the modern schema carries
// exactly one, inlined under the ROMSSimulation root.
type ComponentSpec struct {
	ComponentType string `yaml:"component_type"`
	BaseModel     struct {
		SourceRepo     string `yaml:"source_repo"`
		CheckoutTarget string `yaml:"checkout_target"`
	} `yaml:"base_model"`

	Discretization       *DiscretizationSpec `yaml:"discretization,omitempty"`
	RuntimeCode          *ResourceSpec       `yaml:"runtime_code,omitempty"`
	AdditionalSourceCode *ResourceSpec       `yaml:"additional_source_code,omitempty"`
	ModelGrid            *ResourceSpec       `yaml:"model_grid,omitempty"`
	InitialConditions    *ResourceSpec       `yaml:"initial_conditions,omitempty"`
	TidalForcing         *ResourceSpec       `yaml:"tidal_forcing,omitempty"`
	BoundaryForcing      []ResourceSpec      `yaml:"boundary_forcing,omitempty"`
	SurfaceForcing       []ResourceSpec      `yaml:"surface_forcing,omitempty"`
	RiverForcing         []ResourceSpec      `yaml:"river_forcing,omitempty"`
	ForcingCorrections   []ResourceSpec      `yaml:"forcing_corrections,omitempty"`
}

// RegistryAttrs is the Blueprint's identity block.
type RegistryAttrs struct {
	Name           string `yaml:"name"`
	ValidDateRange struct {
		StartDate string `yaml:"start_date"`
		EndDate   string `yaml:"end_date"`
	} `yaml:"valid_date_range"`
}

// Blueprint is the normalized, in-memory form of a parsed Blueprint YAML
// document: whichever schema generation it was read as, always expressed
// with the modern field names (runtime_code, never namelists).
type Blueprint struct {
	RegistryAttrs RegistryAttrs
	Components    []ComponentSpec
	RuntimeVars   map[string]string

	// wasLegacy records which root key the source document used. Export
	// consults it to pick a root shape: a document that came in under the
	// legacy components list round-trips back out the same way, since
	// that's the only root shape that can carry more than one component
	// (SPEC_FULL §9 Open Question (a) governs field names only, not root
	// shape).
	wasLegacy bool
}

// legacyDoc is the `components: [...]` root schema.
type legacyDoc struct {
	RegistryAttrs RegistryAttrs     `yaml:"registry_attrs"`
	Components    []legacyComponent `yaml:"components"`
	RuntimeVars   map[string]string `yaml:"runtime_vars,omitempty"`
}

// legacyComponent is identical to ComponentSpec except it additionally
// accepts the pre-rename "namelists" field name alongside "runtime_code" —
// SPEC_FULL §9 Open Question (a): both are accepted on read (so a
// round-tripped legacy document, which Export now writes with
// "runtime_code", still decodes), but Export only ever writes the modern
// name.
type legacyComponent struct {
	ComponentType string `yaml:"component_type"`
	BaseModel     struct {
		SourceRepo     string `yaml:"source_repo"`
		CheckoutTarget string `yaml:"checkout_target"`
	} `yaml:"base_model"`

	Discretization       *DiscretizationSpec `yaml:"discretization,omitempty"`
	Namelists            *ResourceSpec       `yaml:"namelists,omitempty"`
	RuntimeCode          *ResourceSpec       `yaml:"runtime_code,omitempty"`
	AdditionalSourceCode *ResourceSpec       `yaml:"additional_source_code,omitempty"`
	ModelGrid            *ResourceSpec       `yaml:"model_grid,omitempty"`
	InitialConditions    *ResourceSpec       `yaml:"initial_conditions,omitempty"`
	TidalForcing         *ResourceSpec       `yaml:"tidal_forcing,omitempty"`
	BoundaryForcing      []ResourceSpec      `yaml:"boundary_forcing,omitempty"`
	SurfaceForcing       []ResourceSpec      `yaml:"surface_forcing,omitempty"`
	RiverForcing         []ResourceSpec      `yaml:"river_forcing,omitempty"`
	ForcingCorrections   []ResourceSpec      `yaml:"forcing_corrections,omitempty"`
}

// modernDoc is the single-`ROMSSimulation`-root schema.
type modernDoc struct {
	RegistryAttrs  RegistryAttrs     `yaml:"registry_attrs"`
	ROMSSimulation ComponentSpec     `yaml:"ROMSSimulation"`
	RuntimeVars    map[string]string `yaml:"runtime_vars,omitempty"`
}

// legacyExportDoc is the `components:` root schema Export writes for a
// multi-component (or originally-legacy) Blueprint: the legacy root shape,
// but with ComponentSpec's modern field names (runtime_code, never
// namelists), per SPEC_FULL §9 Open Question (a).
type legacyExportDoc struct {
	RegistryAttrs RegistryAttrs     `yaml:"registry_attrs"`
	Components    []ComponentSpec   `yaml:"components"`
	RuntimeVars   map[string]string `yaml:"runtime_vars,omitempty"`
}

// rootProbe is decoded loosely (no KnownFields) just to discover which of
// the two schema roots is present, before committing to a strict decode
// against the matching type.
type rootProbe struct {
	Components     yaml.Node `yaml:"components"`
	ROMSSimulation yaml.Node `yaml:"ROMSSimulation"`
}

// Decode parses a Blueprint YAML document. baseDir (a filesystem directory
// or a URL prefix) is substituted for the <input_datasets_location> and
// <additional_code_location> placeholders in every location field before
// the document is otherwise interpreted.
func Decode(data []byte, baseDir string) (*Blueprint, error) {
	var probe rootProbe
	if err := yaml.Unmarshal(data, &probe); err != nil {
		return nil, cstar.Wrap(cstar.KindValidation, err, "parsing blueprint YAML")
	}

	var bp *Blueprint
	var err error
	switch {
	case probe.Components.Kind != 0:
		bp, err = decodeLegacy(data)
	case probe.ROMSSimulation.Kind != 0:
		bp, err = decodeModern(data)
	default:
		return nil, cstar.New(cstar.KindValidation, "blueprint YAML has neither a components nor a ROMSSimulation root")
	}
	if err != nil {
		return nil, err
	}

	for i := range bp.Components {
		resolveComponentPlaceholders(&bp.Components[i], baseDir)
	}
	return bp, nil
}

func strictDecode(data []byte, out interface{}) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		return cstar.Wrap(cstar.KindValidation, err, "parsing blueprint YAML")
	}
	return nil
}

func decodeLegacy(data []byte) (*Blueprint, error) {
	var doc legacyDoc
	if err := strictDecode(data, &doc); err != nil {
		return nil, err
	}
	bp := &Blueprint{
		RegistryAttrs: doc.RegistryAttrs,
		RuntimeVars:   doc.RuntimeVars,
		wasLegacy:     true,
	}
	for _, lc := range doc.Components {
		runtimeCode := lc.RuntimeCode
		if runtimeCode == nil {
			runtimeCode = lc.Namelists
		}
		bp.Components = append(bp.Components, ComponentSpec{
			ComponentType:        lc.ComponentType,
			BaseModel:            lc.BaseModel,
			Discretization:       lc.Discretization,
			RuntimeCode:          runtimeCode,
			AdditionalSourceCode: lc.AdditionalSourceCode,
			ModelGrid:            lc.ModelGrid,
			InitialConditions:    lc.InitialConditions,
			TidalForcing:         lc.TidalForcing,
			BoundaryForcing:      lc.BoundaryForcing,
			SurfaceForcing:       lc.SurfaceForcing,
			RiverForcing:         lc.RiverForcing,
			ForcingCorrections:   lc.ForcingCorrections,
		})
	}
	return bp, nil
}

func decodeModern(data []byte) (*Blueprint, error) {
	var doc modernDoc
	if err := strictDecode(data, &doc); err != nil {
		return nil, err
	}
	return &Blueprint{
		RegistryAttrs: doc.RegistryAttrs,
		Components:    []ComponentSpec{doc.ROMSSimulation},
		RuntimeVars:   doc.RuntimeVars,
	}, nil
}

func resolvePlaceholder(location, baseDir string) string {
	location = strings.ReplaceAll(location, inputDatasetsPlaceholder, baseDir)
	location = strings.ReplaceAll(location, additionalCodePlaceholder, baseDir)
	return location
}

func resolveComponentPlaceholders(c *ComponentSpec, baseDir string) {
	resolve := func(r *ResourceSpec) {
		if r != nil {
			r.Location = resolvePlaceholder(r.Location, baseDir)
		}
	}
	resolve(c.RuntimeCode)
	resolve(c.AdditionalSourceCode)
	resolve(c.ModelGrid)
	resolve(c.InitialConditions)
	resolve(c.TidalForcing)
	for i := range c.BoundaryForcing {
		c.BoundaryForcing[i].Location = resolvePlaceholder(c.BoundaryForcing[i].Location, baseDir)
	}
	for i := range c.SurfaceForcing {
		c.SurfaceForcing[i].Location = resolvePlaceholder(c.SurfaceForcing[i].Location, baseDir)
	}
	for i := range c.RiverForcing {
		c.RiverForcing[i].Location = resolvePlaceholder(c.RiverForcing[i].Location, baseDir)
	}
	for i := range c.ForcingCorrections {
		c.ForcingCorrections[i].Location = resolvePlaceholder(c.ForcingCorrections[i].Location, baseDir)
	}
}

// isRemote reports whether location names a network resource rather than
// a local filesystem path; Validate requires a file_hash only on the
// former.
func isRemote(location string) bool {
	return strings.Contains(location, "://")
}

// Validate checks the structural invariants SPEC_FULL §3/§4.11 place on a
// Blueprint beyond what strict YAML decoding already enforces: a non-empty
// name, a valid date range, at least one component, and a file_hash on
// every remote resource reference. Local references need no file_hash.
// Validate only checks that the hash is present; dataset files are not
// staged, so no declared dataset hash is compared with file content, and
// the Stager's cstar.Resource.VerifyHash check on additional code fails on
// a mismatch rather than warning.
func (b *Blueprint) Validate() error {
	if b.RegistryAttrs.Name == "" {
		return cstar.New(cstar.KindValidation, "blueprint registry_attrs.name is required")
	}
	dr, err := b.ValidDateRange()
	if err != nil {
		return err
	}
	if dr.End.Before(dr.Start) {
		return cstar.New(cstar.KindValidation, "blueprint registry_attrs.valid_date_range ends before it starts")
	}
	if len(b.Components) == 0 {
		return cstar.New(cstar.KindValidation, "blueprint declares no components")
	}
	for _, c := range b.Components {
		if c.ComponentType == "" {
			return cstar.New(cstar.KindValidation, "component missing component_type")
		}
		if c.BaseModel.SourceRepo == "" {
			return cstar.New(cstar.KindValidation, "component %q missing base_model.source_repo", c.ComponentType)
		}
		if err := requireHashIfRemote(c.ComponentType, "model_grid", c.ModelGrid); err != nil {
			return err
		}
		if err := requireHashIfRemote(c.ComponentType, "initial_conditions", c.InitialConditions); err != nil {
			return err
		}
		if err := requireHashIfRemote(c.ComponentType, "tidal_forcing", c.TidalForcing); err != nil {
			return err
		}
		for i := range c.BoundaryForcing {
			if err := requireHashIfRemote(c.ComponentType, fmt.Sprintf("boundary_forcing[%d]", i), &c.BoundaryForcing[i]); err != nil {
				return err
			}
		}
		for i := range c.SurfaceForcing {
			if err := requireHashIfRemote(c.ComponentType, fmt.Sprintf("surface_forcing[%d]", i), &c.SurfaceForcing[i]); err != nil {
				return err
			}
		}
		for i := range c.RiverForcing {
			if err := requireHashIfRemote(c.ComponentType, fmt.Sprintf("river_forcing[%d]", i), &c.RiverForcing[i]); err != nil {
				return err
			}
		}
		for i := range c.ForcingCorrections {
			if err := requireHashIfRemote(c.ComponentType, fmt.Sprintf("forcing_corrections[%d]", i), &c.ForcingCorrections[i]); err != nil {
				return err
			}
		}
	}
	return nil
}

func requireHashIfRemote(component, field string, r *ResourceSpec) error {
	if r == nil || !isRemote(r.Location) {
		return nil
	}
	if r.FileHash == "" {
		return cstar.New(cstar.KindValidation, "component %q: remote resource %s (%s) requires file_hash", component, field, r.Location)
	}
	return nil
}

// Export re-serializes b to YAML using the modern runtime_code field name
// throughout (SPEC_FULL §9 Open Question (a)), and is round-trip stable:
// Decode(Export(b)) yields a semantically equal Blueprint, field order
// aside. The root shape depends on b's component count: a genuinely
// single-component Blueprint that wasn't itself read from a legacy
// `components:` document gets the modern `ROMSSimulation` root; everything
// else (multi-component, e.g. the MARBL+ROMS pairing scenario S1 exercises,
// or a document originally read under the legacy root) round-trips through
// the legacy `components:` list root instead, since ROMSSimulation has no
// way to carry more than one component.
func (b *Blueprint) Export() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)

	if len(b.Components) == 1 && !b.wasLegacy {
		doc := modernDoc{
			RegistryAttrs:  b.RegistryAttrs,
			ROMSSimulation: b.Components[0],
			RuntimeVars:    b.RuntimeVars,
		}
		if err := enc.Encode(doc); err != nil {
			return nil, cstar.Wrap(cstar.KindValidation, err, "exporting blueprint")
		}
	} else {
		doc := legacyExportDoc{
			RegistryAttrs: b.RegistryAttrs,
			Components:    b.Components,
			RuntimeVars:   b.RuntimeVars,
		}
		if err := enc.Encode(doc); err != nil {
			return nil, cstar.Wrap(cstar.KindValidation, err, "exporting blueprint")
		}
	}
	if err := enc.Close(); err != nil {
		return nil, cstar.Wrap(cstar.KindValidation, err, "exporting blueprint")
	}
	return buf.Bytes(), nil
}

// Component returns the component with the given component_type, or nil.
func (b *Blueprint) Component(componentType string) *ComponentSpec {
	for i := range b.Components {
		if b.Components[i].ComponentType == componentType {
			return &b.Components[i]
		}
	}
	return nil
}

// SortedRuntimeVarKeys returns RuntimeVars' keys in sorted order, for
// deterministic substitution-order logging.
func (b *Blueprint) SortedRuntimeVarKeys() []string {
	keys := make([]string, 0, len(b.RuntimeVars))
	for k := range b.RuntimeVars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
