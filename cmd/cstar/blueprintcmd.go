package main

import (
	"context"
	"flag"
	"log"
	"os"
	"path/filepath"

	"github.com/c-star-org/cstar"
	"github.com/c-star-org/cstar/internal/blueprint"
	"github.com/c-star-org/cstar/internal/buildcmd"
	"github.com/c-star-org/cstar/internal/orchestrator"
	"github.com/c-star-org/cstar/internal/retrieve"
)

func cmdBlueprint(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return cstar.New(cstar.KindValidation, "usage: cstar blueprint <check|run> <path>")
	}
	sub, args := args[0], args[1:]
	switch sub {
	case "check":
		return cmdBlueprintCheck(ctx, args)
	case "run":
		return cmdBlueprintRun(ctx, args)
	default:
		return cstar.New(cstar.KindValidation, "unknown blueprint subcommand %q", sub)
	}
}

func decodeBlueprintFile(path string) (*blueprint.Blueprint, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, cstar.Wrap(cstar.KindValidation, err, "reading blueprint %s", path)
	}
	bp, err := blueprint.Decode(raw, filepath.Dir(path))
	if err != nil {
		return nil, err
	}
	if err := bp.Validate(); err != nil {
		return nil, err
	}
	return bp, nil
}

// cmdBlueprintCheck implements `cstar blueprint check <path>` (SPEC_FULL
// §6): exit 0 valid, exit 2 invalid. Any decode/validate failure already
// carries KindValidation, which main's exitCodeFor maps to exit 2.
func cmdBlueprintCheck(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("blueprint check", flag.ExitOnError)
	fs.Parse(args)
	if fs.NArg() != 1 {
		return cstar.New(cstar.KindValidation, "usage: cstar blueprint check <path>")
	}
	_, err := decodeBlueprintFile(fs.Arg(0))
	return err
}

// cmdBlueprintRun implements `cstar blueprint run <path>`: materializes and
// drives a single Simulation from a Blueprint outside of any Workplan,
// directly through Setup/Build/PreRun/Run (SPEC_FULL §4.10). The
// Simulation's working directory is the blueprint file's own directory,
// under a "run" subdirectory, since there is no run-id/Job Record for a
// bare blueprint run.
func cmdBlueprintRun(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("blueprint run", flag.ExitOnError)
	account := fs.String("account", "", "scheduler account override")
	walltime := fs.String("walltime", "", "scheduler walltime override")
	queue := fs.String("queue", "", "scheduler queue override")
	fs.Parse(args)
	if fs.NArg() != 1 {
		return cstar.New(cstar.KindValidation, "usage: cstar blueprint run [-account=...] [-walltime=...] [-queue=...] <path>")
	}
	path := fs.Arg(0)

	bp, err := decodeBlueprintFile(path)
	if err != nil {
		return err
	}

	cfg := loadConfig()
	name := bp.RegistryAttrs.Name
	if name == "" {
		name = filepath.Base(path)
	}
	directory := filepath.Join(filepath.Dir(path), "run", name)
	if err := prepareWorkingDir(directory, cfg.ClobberWorkingDir); err != nil {
		return err
	}

	sim, err := orchestrator.BuildSimulation(name, directory, bp, cfg.envStore(), retrieve.New(), buildcmd.New(defaultBuildArgv), cfg.FreshCodebases)
	if err != nil {
		return err
	}
	lg := log.New(os.Stderr, "cstar: "+name+": ", 0)
	wireSimulation(cfg, lg)(nil, sim)

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

	handler, err := sim.Run(ctx, *account, *walltime, *queue, "")
	if err != nil {
		return err
	}
	if err := sim.Persist(); err != nil {
		return err
	}
	lg.Printf("submitted job %s", handler.ID())
	return nil
}
