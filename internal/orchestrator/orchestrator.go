// Package orchestrator implements the Workplan Orchestrator (SPEC_FULL
// §4.12): validates a workplan's step DAG, materializes a Simulation per
// step from its Blueprint (applying overrides), drives each through the
// Simulation lifecycle, submits it to an Execution Handler, and persists
// progress in a run-ID-keyed Job Record so a later invocation resumes
// rather than restarts.
//
// Grounded on distr1-distri/cmd/distri/batch.go's scheduler: a worklist of
// named units with dependencies, a ready-frontier loop, and
// persisted-after-every-transition state, generalized from build packages
// to workplan steps and from "state survives until the process exits" to
// "state survives across process invocations," since a workplan step's
// Execution Handler can easily outlive the process that submitted it.
package orchestrator

import (
	"context"
	"log"
	"os"
	"path/filepath"

	"github.com/c-star-org/cstar"
	"github.com/c-star-org/cstar/internal/blueprint"
	"github.com/c-star-org/cstar/internal/codebase"
	"github.com/c-star-org/cstar/internal/dag"
	"github.com/c-star-org/cstar/internal/envstore"
	"github.com/c-star-org/cstar/internal/retrieve"
	"github.com/c-star-org/cstar/internal/simulation"
)

// Config bundles the Workplan Orchestrator's injectable collaborators.
type Config struct {
	// OutDir is $CSTAR_OUTDIR; run state lives at OutDir/<run_id>/.
	OutDir string

	// BlueprintBaseDir resolves <input_datasets_location>/
	// <additional_code_location> placeholders inside every step's
	// blueprint (passed straight through to blueprint.Decode).
	BlueprintBaseDir string

	// Force allows Run to proceed despite a workplan_digest mismatch
	// against a previously persisted Job Record (SPEC_FULL §4.12 step 3).
	Force bool

	// LoadBlueprint fetches a step's blueprint document given its
	// `blueprint` field (a path or URL); required.
	LoadBlueprint func(path string) ([]byte, error)

	// EnvStore and Retriever back every component's External Codebase
	// install (SPEC_FULL §3, §4.2-4.3). Optional; a nil value leaves
	// BuildSimulation's codebases without a persisted install root or
	// clone collaborator. The CLI's "workplan run" sets both; this
	// package's tests leave them nil and drop sim.Codebases entirely in
	// WireSimulation instead of exercising this path.
	EnvStore  *envstore.Store
	Retriever *retrieve.Retriever

	// DefaultBuilder is the cstar.ModelBuilder passed to every codebase
	// constructed from a Blueprint component's base_model. Optional.
	DefaultBuilder cstar.ModelBuilder

	// ForceFreshCodebases mirrors CSTAR_FRESH_CODEBASES=1 (SPEC_FULL §3,
	// §4.3): every step's codebases re-fetch instead of reusing a clone
	// already recorded in EnvStore.
	ForceFreshCodebases bool

	// WireSimulation injects per-step collaborators (Stager, Retriever,
	// Generator, Builder, Partitioner, Joiner, SysManager, Log) into a
	// freshly materialized or Restore-d Simulation before the
	// orchestrator drives it further. Optional; a nil func leaves
	// Simulations with only their zero-value defaults, which is enough
	// for steps that need no codebase installs or dataset generation.
	WireSimulation func(step *blueprint.Step, sim *simulation.Simulation)

	Log *log.Logger
}

func (cfg Config) logf(format string, args ...interface{}) {
	if cfg.Log != nil {
		cfg.Log.Printf(format, args...)
	}
}

// Run performs one scheduling pass of workplan under runID (SPEC_FULL
// §4.12): validate, apply Auto-Transform (§4.13) if CSTAR_ORCH_TRX_FREQ is
// set, open-or-create the Job Record, refresh the status of any
// already-submitted step, propagate SKIPPED to the dependents of any
// failed step, and submit every newly-ready step. Run never blocks on a
// scheduler; callers re-invoke it with the same runID to make further
// progress, and it returns nil as long as no step this pass failed, even
// if others remain non-terminal.
func Run(ctx context.Context, wp *blueprint.Workplan, runID string, cfg Config) error {
	if runID == "" {
		return cstar.New(cstar.KindValidation, "run-id is required")
	}
	if err := wp.Validate(); err != nil {
		return err
	}
	if err := applyAutoTransform(wp, cfg); err != nil {
		return err
	}
	g, err := buildGraph(wp)
	if err != nil {
		return err
	}

	raw, err := wp.Export()
	if err != nil {
		return err
	}
	digest, err := WorkplanDigest(raw)
	if err != nil {
		return err
	}

	runDir := filepath.Join(cfg.OutDir, runID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return cstar.Wrap(cstar.KindIntegrity, err, "preparing run directory %s", runDir)
	}

	release, err := acquireLock(filepath.Join(runDir, "run.lock"))
	if err != nil {
		return err
	}
	defer release()

	recordPath := filepath.Join(runDir, "state.json")
	record, err := openOrCreateJobRecord(recordPath, runID, digest, cfg.Force)
	if err != nil {
		return err
	}

	refreshRunningSteps(ctx, wp, g, runDir, cfg, record)
	propagateFailures(g, record)
	submitReadySteps(ctx, wp, g, runDir, cfg, record)

	return saveJobRecord(recordPath, record)
}

func buildGraph(wp *blueprint.Workplan) (*dag.Graph, error) {
	g := dag.New()
	for _, s := range wp.Steps {
		if err := g.AddStep(s.Name); err != nil {
			return nil, err
		}
	}
	for _, s := range wp.Steps {
		for _, dep := range s.DependsOn {
			if err := g.AddDependency(s.Name, dep); err != nil {
				return nil, err
			}
		}
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// refreshRunningSteps re-attaches to every step currently RUNNING and
// advances its status from the latest handler observation.
func refreshRunningSteps(ctx context.Context, wp *blueprint.Workplan, g *dag.Graph, runDir string, cfg Config, record *jobRecord) {
	for _, name := range g.Steps() {
		r := record.Steps[name]
		if r == nil || r.Status != StepRunning {
			continue
		}
		step := wp.Step(name)
		stepDir := filepath.Join(runDir, name)
		sim, err := simulation.Restore(stepDir)
		if err != nil {
			cfg.logf("step %s: restoring simulation: %v", name, err)
			continue
		}
		if cfg.WireSimulation != nil {
			cfg.WireSimulation(step, sim)
		}
		st, err := sim.HandlerStatus(ctx)
		if err != nil {
			cfg.logf("step %s: querying handler status: %v", name, err)
			continue
		}
		advanceStepStatus(r, st)

		if r.Status == StepCompleted {
			postRunStep(ctx, name, sim, r, cfg)
		}
	}
}

// postRunStep joins any partitioned output the step's run produced
// (SPEC_FULL §4.10's PostRun) once the step's handler reports success. A
// single-rank step never partitions its output, so there is nothing to
// join; a multi-rank step with no Joiner wired is a configuration gap the
// step surfaces as a failure, since its output would otherwise sit
// unmerged.
func postRunStep(ctx context.Context, name string, sim *simulation.Simulation, r *stepRecord, cfg Config) {
	if sim.Discretization.RankCount() <= 1 {
		return
	}
	ranks, err := discoverPartitionedOutputs(filepath.Join(sim.Directory, "output"))
	if err != nil {
		cfg.logf("step %s: discovering partitioned output: %v", name, err)
		r.Status = StepFailed
		r.Error = "discovering partitioned output: " + err.Error()
		return
	}
	if len(ranks) == 0 {
		return
	}
	if err := sim.PostRun(ctx, ranks); err != nil {
		cfg.logf("step %s: post-run join: %v", name, err)
		r.Status = StepFailed
		r.Error = "post-run join: " + err.Error()
		return
	}
	if err := sim.Persist(); err != nil {
		cfg.logf("step %s: persisting post-run state: %v", name, err)
	}
}

// advanceStepStatus applies the "two consecutive consistent readings"
// eventual-consistency rule SPEC_FULL §5 requires before a terminal
// handler observation is trusted: COMPLETED/FAILED/CANCELLED must be seen
// twice in a row before the step record is finalized.
func advanceStepStatus(r *stepRecord, observed cstar.JobStatus) {
	if string(observed) == r.LastObservedStatus {
		r.ConsecutiveCount++
	} else {
		r.LastObservedStatus = string(observed)
		r.ConsecutiveCount = 1
	}
	if !observed.Terminal() || r.ConsecutiveCount < 2 {
		return
	}
	switch observed {
	case cstar.StatusCompleted:
		r.Status = StepCompleted
	case cstar.StatusFailed, cstar.StatusCancelled:
		r.Status = StepFailed
		r.Error = "execution handler reported " + string(observed)
	}
}

// propagateFailures marks every not-yet-terminal dependent of a FAILED
// step as SKIPPED (SPEC_FULL §4.12: "does not roll back already-terminal
// steps").
func propagateFailures(g *dag.Graph, record *jobRecord) {
	terminal := func(name string) bool {
		r := record.Steps[name]
		return r != nil && r.Status.Terminal()
	}
	for _, name := range g.Steps() {
		r := record.Steps[name]
		if r == nil || r.Status != StepFailed {
			continue
		}
		for _, dep := range g.PropagateSkip(name, terminal) {
			record.Steps[dep] = &stepRecord{Status: StepSkipped}
		}
	}
}

// submitReadySteps materializes and submits every step whose dependencies
// are COMPLETED and which has not already been attempted, in declaration
// order (SPEC_FULL §4.12: "within a ready frontier, steps are submitted in
// declaration order").
func submitReadySteps(ctx context.Context, wp *blueprint.Workplan, g *dag.Graph, runDir string, cfg Config, record *jobRecord) {
	completed := func(name string) bool {
		r := record.Steps[name]
		return r != nil && r.Status == StepCompleted
	}
	for _, name := range g.ReadyFrontier(completed) {
		if r := record.Steps[name]; r != nil && r.Status != StepPending {
			continue
		}
		step := wp.Step(name)
		if err := runStep(ctx, step, runDir, cfg, record); err != nil {
			record.Steps[name] = &stepRecord{Status: StepFailed, Error: err.Error()}
			cfg.logf("step %s failed: %v", name, err)
		}
	}
}

// runStep loads and decodes step's blueprint, applies overrides,
// materializes a Simulation, drives it through Setup/Build/PreRun/Run, and
// records it as RUNNING on success (SPEC_FULL §4.12 steps 5-6).
func runStep(ctx context.Context, step *blueprint.Step, runDir string, cfg Config, record *jobRecord) error {
	stepDir := filepath.Join(runDir, step.Name)
	if err := os.MkdirAll(stepDir, 0o755); err != nil {
		return cstar.Wrap(cstar.KindIntegrity, err, "preparing step directory %s", stepDir)
	}
	if cfg.LoadBlueprint == nil {
		return cstar.New(cstar.KindConfiguration, "orchestrator Config has no LoadBlueprint collaborator")
	}

	raw, err := cfg.LoadBlueprint(step.Blueprint)
	if err != nil {
		return cstar.Wrap(cstar.KindConfiguration, err, "loading blueprint for step %s", step.Name)
	}
	bp, err := blueprint.Decode(raw, cfg.BlueprintBaseDir)
	if err != nil {
		return err
	}
	resolveOutputPaths(step.BlueprintOverrides, runDir)
	if err := applyBlueprintOverrides(bp, step.BlueprintOverrides); err != nil {
		return err
	}
	if err := bp.Validate(); err != nil {
		return err
	}

	sim, err := BuildSimulation(step.Name, stepDir, bp, cfg.EnvStore, cfg.Retriever, cfg.DefaultBuilder, cfg.ForceFreshCodebases)
	if err != nil {
		return err
	}
	if cfg.WireSimulation != nil {
		cfg.WireSimulation(step, sim)
	}

	if err := sim.Setup(ctx); err != nil {
		return err
	}
	if err := sim.Persist(); err != nil {
		return err
	}
	if err := sim.Build(ctx); err != nil {
		return err
	}
	if err := sim.Persist(); err != nil {
		return err
	}
	if err := sim.PreRun(ctx); err != nil {
		return err
	}
	if err := sim.Persist(); err != nil {
		return err
	}

	account := computeOverride(step.ComputeOverrides, "account")
	walltime := computeOverride(step.ComputeOverrides, "walltime")
	queue := computeOverride(step.ComputeOverrides, "queue")
	jobName := computeOverride(step.WorkflowOverrides, "job_name")
	if _, err := sim.Run(ctx, account, walltime, queue, jobName); err != nil {
		return err
	}
	if err := sim.Persist(); err != nil {
		return err
	}

	record.Steps[step.Name] = &stepRecord{Status: StepRunning}
	return nil
}

// BuildSimulation converts a decoded Blueprint into a Simulation ready for
// Setup, merging every component's codebase, runtime/compile-time code,
// and datasets into the single Simulation aggregate (SPEC_FULL §3: one
// Simulation owns "an ExternalCodeBase per model"). store, retriever, and
// builder are threaded through to every constructed codebase.New call;
// any may be nil (codebase.Get degrades accordingly — see its own docs).
// forceFresh mirrors CSTAR_FRESH_CODEBASES=1, forcing every codebase to
// re-fetch rather than reuse a clone already recorded in store.
func BuildSimulation(name, directory string, bp *blueprint.Blueprint, store *envstore.Store, retriever *retrieve.Retriever, builder cstar.ModelBuilder, forceFresh bool) (*simulation.Simulation, error) {
	validRange, err := bp.ValidDateRange()
	if err != nil {
		return nil, err
	}

	sim := simulation.New(name, directory)
	sim.ValidDateRange = validRange
	// A step runs its blueprint's full valid_date_range unless narrowed by
	// a registry_attrs.valid_date_range.* override (SPEC_FULL names no
	// separate per-run start/end field on the Blueprint schema itself).
	sim.StartDate = validRange.Start
	sim.EndDate = validRange.End

	for i := range bp.Components {
		c := &bp.Components[i]
		cb := codebase.New(c.ComponentType, c.BaseModel.SourceRepo, c.BaseModel.CheckoutTarget, store, retriever, builder)
		cb.ForceFresh = forceFresh
		sim.Codebases[c.ComponentType] = cb

		if d := c.CstarDiscretization(); d.RankCount() > 0 {
			sim.Discretization = d
		}
		if c.RuntimeCode != nil && sim.RuntimeCode == nil {
			res := c.RuntimeCode.ToResource(cstar.ResourceKindFile)
			sim.RuntimeCode = &simulation.AdditionalCode{Resource: res}
		}
		if c.AdditionalSourceCode != nil && sim.CompileTimeCode == nil {
			res := c.AdditionalSourceCode.ToResource(cstar.ResourceKindFile)
			sim.CompileTimeCode = &simulation.AdditionalCode{Resource: res}
		}

		datasets, err := c.Datasets()
		if err != nil {
			return nil, err
		}
		sim.Datasets = append(sim.Datasets, datasets...)
	}

	return sim, nil
}
