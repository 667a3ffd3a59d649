package main

import (
	"log"
	"os"

	"github.com/c-star-org/cstar/internal/blueprint"
	"github.com/c-star-org/cstar/internal/buildcmd"
	"github.com/c-star-org/cstar/internal/orchestrator"
	"github.com/c-star-org/cstar/internal/retrieve"
	"github.com/c-star-org/cstar/internal/simulation"
	"github.com/c-star-org/cstar/internal/sysmanager"
)

// defaultBuildArgv is the make invocation every ROMS/MARBL component build
// shells out to; "${COMPILER_FAMILY}" is substituted by buildcmd.Command
// with the System Manager's selected compiler family.
var defaultBuildArgv = []string{"make", "COMPILER=${COMPILER_FAMILY}"}

// wireSimulation injects the process-wide collaborators every Simulation
// needs to run for real: the default ModelBuilder, the host's System
// Manager, and a component-prefixed logger. Generator/Partitioner/Joiner
// are left unset — SPEC_FULL §6.1 names them as external collaborators
// whose implementations live outside this module, and no Blueprint-sourced
// dataset ever needs generation (internal/blueprint/convert.go: every
// Dataset it produces is already KindNetCDFFile).
func wireSimulation(cfg cliConfig, lg *log.Logger) func(step *blueprint.Step, sim *simulation.Simulation) {
	return func(step *blueprint.Step, sim *simulation.Simulation) {
		sim.Builder = buildcmd.New(defaultBuildArgv)
		sim.SysManager = sysmanager.Default()
		sim.Log = lg
	}
}

// orchestratorConfig builds the orchestrator.Config for "workplan run". A
// single-step "blueprint run" does not use it: it calls
// orchestrator.BuildSimulation and wireSimulation directly.
func orchestratorConfig(cfg cliConfig, force bool, lg *log.Logger) orchestrator.Config {
	return orchestrator.Config{
		OutDir:              cfg.OutDir,
		Force:               force,
		LoadBlueprint:       func(path string) ([]byte, error) { return os.ReadFile(path) },
		WireSimulation:      wireSimulation(cfg, lg),
		EnvStore:            cfg.envStore(),
		Retriever:           retrieve.New(),
		DefaultBuilder:      buildcmd.New(defaultBuildArgv),
		ForceFreshCodebases: cfg.FreshCodebases,
		Log:                 lg,
	}
}
