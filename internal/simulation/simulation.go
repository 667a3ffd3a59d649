// Package simulation implements the Simulation aggregate (SPEC_FULL §4.10):
// the lifecycle state machine that owns every other component — External
// Codebases, Additional Code, Input Datasets, Runtime Settings, and an
// Execution Handler — and drives them through setup, build, pre-run, run,
// post-run, and cross-session persist/restore.
//
// Grounded on distr1-distri/cmd/distri/batch.go's scheduler struct: "one
// object that owns a graph (here: a handful) of work, reports status, and
// can be resumed", narrowed from a DAG of packages to a single aggregate
// root with a linear state machine. Persistence is grounded on
// distr1-distri/internal/install.go's renameio-atomic-write idiom,
// substituting encoding/json for the teacher's protobuf text format per
// SPEC_FULL §6's JSON-only file-format mandate.
package simulation

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/c-star-org/cstar"
	"github.com/c-star-org/cstar/internal/codebase"
	"github.com/c-star-org/cstar/internal/dataset"
	"github.com/c-star-org/cstar/internal/exec"
	"github.com/c-star-org/cstar/internal/retrieve"
	"github.com/c-star-org/cstar/internal/runtimesettings"
	"github.com/c-star-org/cstar/internal/stage"
	"github.com/c-star-org/cstar/internal/sysmanager"
	"github.com/google/renameio"
	"golang.org/x/sync/errgroup"
)

// State is a Simulation's position in the lifecycle state machine
// (SPEC_FULL §4.10): CONSTRUCTED → SETUP_OK → BUILT → READY → RUNNING →
// FINISHED. Clean returns BUILT to SETUP_OK; Restore can reinstate any
// persisted state.
type State string

const (
	StateConstructed State = "CONSTRUCTED"
	StateSetupOK     State = "SETUP_OK"
	StateBuilt       State = "BUILT"
	StateReady       State = "READY"
	StateRunning     State = "RUNNING"
	StateFinished    State = "FINISHED"
)

// persistedFileName is the well-known per-Simulation state file name
// (SPEC_FULL §6 persisted state layout).
const persistedFileName = ".cstar-simulation.json"

// Simulation is the aggregate root described in SPEC_FULL §3: identity,
// date range, one ExternalCodebase per model, runtime/compile-time
// Additional Code, InputDatasets covering every required role (several may
// share a role), a Discretization, and the
// current Execution Handler, if any.
type Simulation struct {
	Name           string
	Directory      string
	ValidDateRange cstar.DateRange
	StartDate      time.Time
	EndDate        time.Time
	Discretization cstar.Discretization

	Codebases       map[string]*codebase.Codebase // keyed by Codebase.Name, e.g. "ROMS", "MARBL"
	RuntimeCode     *AdditionalCode
	CompileTimeCode *AdditionalCode
	Datasets        []*dataset.Dataset

	// RuntimeSettingsTemplateFile names the file within RuntimeCode's staged
	// directory that PreRun parses as the ROMS-style control file template.
	RuntimeSettingsTemplateFile string

	State          State
	ExecutablePath string
	builtRankCount int // rank count the current ExecutablePath was compiled for; 0 if never built

	handler     exec.Handler
	handlerKind string // "local", "slurm", "pbs" — needed to reconstruct Handler on Restore

	// Collaborators, all injectable for tests.
	Stager      *stage.Stager
	Retriever   *retrieve.Retriever
	Generator   cstar.Generator
	Builder     cstar.ModelBuilder
	Partitioner cstar.Partitioner
	Joiner      cstar.Joiner
	SysManager  *sysmanager.Manager
	Log         *log.Logger
}

// New constructs a Simulation in the CONSTRUCTED state, the entrypoint
// Blueprint Codec decoding produces (SPEC_FULL §4.11).
func New(name, directory string) *Simulation {
	return &Simulation{
		Name:      name,
		Directory: directory,
		Codebases: map[string]*codebase.Codebase{},
		State:     StateConstructed,
		Stager:    stage.New(),
		Log:       log.New(os.Stderr, "cstar: simulation "+name+": ", 0),
	}
}

func (s *Simulation) logf(format string, args ...interface{}) {
	if s.Log != nil {
		s.Log.Printf(format, args...)
	}
}

// Setup ensures every ExternalCodebase is installed, stages runtime and
// compile-time code, and materializes every input dataset, per SPEC_FULL
// §4.10. Already-present files with matching hashes are not re-fetched
// (the idempotency each sub-component already provides).
func (s *Simulation) Setup(ctx context.Context) error {
	if err := s.ValidateDateRange(); err != nil {
		return err
	}

	compilerFamily := "gnu"
	if s.SysManager != nil {
		compilerFamily = s.SysManager.CompilerFamily
	}
	for name, cb := range s.Codebases {
		root := filepath.Join(s.Directory, "codebase_"+name)
		if err := cb.Get(ctx, root, compilerFamily); err != nil {
			return cstar.Wrap(cstar.KindBuild, err, "setting up codebase %s", name)
		}
	}

	cacheDir := filepath.Join(s.Directory, ".cache")
	if s.RuntimeCode != nil {
		if err := s.RuntimeCode.Get(ctx, s.Retriever, s.Stager, cacheDir, filepath.Join(s.Directory, "namelists")); err != nil {
			return cstar.Wrap(cstar.KindIntegrity, err, "staging runtime code")
		}
	}
	if s.CompileTimeCode != nil {
		if err := s.CompileTimeCode.Get(ctx, s.Retriever, s.Stager, cacheDir, filepath.Join(s.Directory, "additional_source_code")); err != nil {
			return cstar.Wrap(cstar.KindIntegrity, err, "staging compile-time code")
		}
	}

	eg, egCtx := errgroup.WithContext(ctx)
	for _, d := range s.Datasets {
		d := d
		eg.Go(func() error {
			return d.Materialize(egCtx, s.Generator)
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	want := cstar.DateRange{Start: s.StartDate, End: s.EndDate}
	if err := dataset.ValidateCoverage(s.Datasets, want); err != nil {
		return err
	}

	s.State = StateSetupOK
	return nil
}

// ValidateDateRange enforces the Simulation invariant from SPEC_FULL §3:
// start_date <= end_date, both inside valid_date_range.
func (s *Simulation) ValidateDateRange() error {
	if s.EndDate.Before(s.StartDate) {
		return cstar.New(cstar.KindValidation, "start_date %s is after end_date %s", s.StartDate, s.EndDate)
	}
	want := cstar.DateRange{Start: s.StartDate, End: s.EndDate}
	if !s.ValidDateRange.Contains(want) {
		return cstar.New(cstar.KindValidation, "requested range %s..%s is outside valid_date_range %s..%s",
			s.StartDate.Format("2006-01-02"), s.EndDate.Format("2006-01-02"),
			s.ValidDateRange.Start.Format("2006-01-02"), s.ValidDateRange.End.Format("2006-01-02"))
	}
	return nil
}

// Build compiles the model against the staged compile-time code, producing
// ExecutablePath. Refuses to rebuild for a different rank count without an
// explicit Clean() first (SPEC_FULL §4.10).
func (s *Simulation) Build(ctx context.Context) error {
	if s.State != StateSetupOK && s.State != StateBuilt {
		return cstar.New(cstar.KindConfiguration, "Build called in state %s, want SETUP_OK", s.State)
	}
	wantRanks := s.Discretization.RankCount()
	if s.builtRankCount != 0 && s.builtRankCount != wantRanks {
		return cstar.New(cstar.KindConfiguration,
			"rank layout changed from %d to %d ranks since last build; call Clean() first", s.builtRankCount, wantRanks)
	}
	if s.builtRankCount == wantRanks && s.ExecutablePath != "" {
		s.State = StateBuilt
		return nil
	}
	if s.Builder == nil {
		return cstar.New(cstar.KindConfiguration, "simulation %s has no ModelBuilder configured", s.Name)
	}

	sourceRoot := filepath.Join(s.Directory, "additional_source_code")
	if s.CompileTimeCode == nil {
		for _, cb := range s.Codebases {
			sourceRoot = cb.LocalRoot
			break
		}
	}
	compilerFamily := "gnu"
	if s.SysManager != nil {
		compilerFamily = s.SysManager.CompilerFamily
	}
	stdout, stderr, err := s.Builder.Build(ctx, sourceRoot, compilerFamily, nil)
	if err != nil {
		return &cstar.Error{
			Kind:    cstar.KindBuild,
			Message: fmt.Sprintf("building simulation %s failed", s.Name),
			Context: map[string]string{"stdout": string(stdout), "stderr": string(stderr)},
			Cause:   err,
		}
	}

	s.ExecutablePath = filepath.Join(s.Directory, "roms_exe")
	s.builtRankCount = wantRanks
	s.State = StateBuilt
	return nil
}

// Clean discards the current build, allowing a subsequent Build to target a
// different rank layout.
func (s *Simulation) Clean() {
	s.ExecutablePath = ""
	s.builtRankCount = 0
	if s.State == StateBuilt {
		s.State = StateSetupOK
	}
}

// PreRun renders the runtime-settings file into the working directory and
// partitions input datasets across ranks when the compiled executable
// requires partitioned inputs (SPEC_FULL §4.10).
func (s *Simulation) PreRun(ctx context.Context) error {
	if s.State != StateBuilt && s.State != StateReady {
		return cstar.New(cstar.KindConfiguration, "PreRun called in state %s, want BUILT", s.State)
	}
	if s.RuntimeCode == nil || s.RuntimeSettingsTemplateFile == "" {
		return cstar.New(cstar.KindConfiguration, "simulation %s has no runtime settings template configured", s.Name)
	}

	templatePath := filepath.Join(s.RuntimeCode.Resource.WorkingPath, s.RuntimeSettingsTemplateFile)
	f, err := os.Open(templatePath)
	if err != nil {
		return cstar.Wrap(cstar.KindValidation, err, "opening runtime settings template %s", templatePath)
	}
	rt, err := runtimesettings.Parse(f)
	f.Close()
	if err != nil {
		return err
	}

	inputDir := filepath.Join(s.Directory, "input_datasets")
	rankCount := s.Discretization.RankCount()
	for _, d := range s.Datasets {
		path := d.Resource.WorkingPath
		if len(d.MaterializedOut) > 0 {
			path = d.MaterializedOut[0]
		}
		if path == "" {
			continue
		}
		if rankCount > 1 && s.Partitioner != nil {
			parts, err := s.Partitioner.Partition(ctx, path, s.Discretization.NProcsX, s.Discretization.NProcsY, inputDir)
			if err != nil {
				return cstar.Wrap(cstar.KindDataset, err, "partitioning input dataset for role %s", d.Role)
			}
			if len(parts) > 0 {
				path = parts[0]
			}
		}
		_ = rt.SetPath(string(d.Role), path)
	}
	_ = rt.SetDateTime("start_date", s.StartDate)
	_ = rt.SetDateTime("end_date", s.EndDate)
	_ = rt.SetTiling("tiling", s.Discretization.NProcsX, s.Discretization.NProcsY)
	_ = rt.SetTimeStepSeconds("time_stepping", fmt.Sprintf("%g", s.Discretization.TimeStep))

	outPath := filepath.Join(s.Directory, s.Name+".in")
	if err := os.MkdirAll(s.Directory, 0o755); err != nil {
		return cstar.Wrap(cstar.KindIntegrity, err, "preparing simulation directory")
	}
	if err := renameio.WriteFile(outPath, []byte(rt.String()), 0o644); err != nil {
		return cstar.Wrap(cstar.KindIntegrity, err, "writing runtime settings file %s", outPath)
	}

	s.State = StateReady
	return nil
}

// Run submits the compiled executable to the appropriate Execution Handler
// variant for this host (SPEC_FULL §4.10). The returned handler has already
// been Submit()-ed.
func (s *Simulation) Run(ctx context.Context, accountKey, walltime, queueName, jobName string) (exec.Handler, error) {
	if s.State != StateReady {
		return nil, cstar.New(cstar.KindConfiguration, "Run called in state %s, want READY", s.State)
	}
	if s.SysManager == nil {
		return nil, cstar.New(cstar.KindConfiguration, "simulation %s has no SysManager configured", s.Name)
	}

	account, queue, err := s.SysManager.RequireAccountAndQueue(accountKey, queueName)
	if err != nil {
		return nil, err
	}
	if walltime == "" {
		walltime = s.SysManager.MaxWallTime()
	}
	if jobName == "" {
		jobName = exec.JobName(time.Now())
	}

	commandLine := fmt.Sprintf("%s %s.in", s.ExecutablePath, s.Name)
	rankCount := s.Discretization.RankCount()

	var h exec.Handler
	var kind string
	switch s.SysManager.Scheduler {
	case sysmanager.SchedulerSlurm:
		kind = "slurm"
		h = &exec.SlurmJob{
			JobName:     jobName,
			Account:     account,
			Queue:       queue,
			WallTime:    walltime,
			RankCount:   rankCount,
			CommandLine: "srun -n " + fmt.Sprint(rankCount) + " " + commandLine,
			Directory:   s.Directory,
		}
	case sysmanager.SchedulerPBS:
		kind = "pbs"
		h = &exec.PBSJob{
			JobName:     jobName,
			Account:     account,
			Queue:       queue,
			WallTime:    walltime,
			RankCount:   rankCount,
			CommandLine: "mpirun -np " + fmt.Sprint(rankCount) + " " + commandLine,
			Directory:   s.Directory,
		}
	default:
		kind = "local"
		argv := []string{"mpirun", "-np", fmt.Sprint(rankCount), s.ExecutablePath, s.Name + ".in"}
		if rankCount <= 1 {
			argv = []string{s.ExecutablePath, s.Name + ".in"}
		}
		h = &exec.LocalProcess{
			Argv:      argv,
			Directory: s.Directory,
			JobName:   jobName,
		}
	}

	if _, err := h.Submit(ctx); err != nil {
		return nil, err
	}
	s.handler = h
	s.handlerKind = kind
	s.State = StateRunning
	return h, nil
}

// PostRun joins partitioned output files back into per-variable globals
// using at most CSTAR_NPROCS_POST worker goroutines (SPEC_FULL §4.10),
// removing each variable's partitioned intermediates as soon as that
// variable's join succeeds.
func (s *Simulation) PostRun(ctx context.Context, ranksByVariable map[string][]string) error {
	if s.Joiner == nil {
		return cstar.New(cstar.KindConfiguration, "simulation %s has no Joiner configured", s.Name)
	}
	outDir := filepath.Join(s.Directory, "output")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return cstar.Wrap(cstar.KindIntegrity, err, "preparing output directory")
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(postRunWorkerLimit())
	for variable, rankFiles := range ranksByVariable {
		variable, rankFiles := variable, rankFiles
		eg.Go(func() error {
			dest := filepath.Join(outDir, variable+".nc")
			if err := s.Joiner.Join(egCtx, rankFiles, dest); err != nil {
				return cstar.Wrap(cstar.KindDataset, err, "joining partitioned output for %s", variable)
			}
			for _, f := range rankFiles {
				os.Remove(f)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	s.State = StateFinished
	return nil
}

// HandlerStatus reports the current Execution Handler's status, or
// StatusUnsubmitted if Run has not yet been called (or Restore found no
// live handler to reconnect to). Exposed so the Workplan Orchestrator
// (SPEC_FULL §4.12) can poll a step's progress without reaching past the
// Simulation aggregate boundary into the Handler itself.
func (s *Simulation) HandlerStatus(ctx context.Context) (cstar.JobStatus, error) {
	if s.handler == nil {
		return cstar.StatusUnsubmitted, nil
	}
	return s.handler.Status(ctx)
}

// Cancel cancels the current Execution Handler, if any, a no-op returning
// (false, nil) when nothing has been submitted yet.
func (s *Simulation) Cancel(ctx context.Context) (bool, error) {
	if s.handler == nil {
		return false, nil
	}
	return s.handler.Cancel(ctx)
}

// postRunWorkerLimit reads CSTAR_NPROCS_POST, defaulting to cpu_count/3 per
// SPEC_FULL §6, floored at 1.
func postRunWorkerLimit() int {
	if v := os.Getenv("CSTAR_NPROCS_POST"); v != "" {
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil && n > 0 {
			return n
		}
	}
	n := runtime.NumCPU() / 3
	if n < 1 {
		n = 1
	}
	return n
}

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
