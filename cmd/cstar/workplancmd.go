package main

import (
	"context"
	"flag"
	"log"
	"os"
	"path/filepath"

	"github.com/c-star-org/cstar"
	"github.com/c-star-org/cstar/internal/blueprint"
	"github.com/c-star-org/cstar/internal/orchestrator"
)

func cmdWorkplan(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return cstar.New(cstar.KindValidation, "usage: cstar workplan <check|run> <path>")
	}
	sub, args := args[0], args[1:]
	switch sub {
	case "check":
		return cmdWorkplanCheck(ctx, args)
	case "run":
		return cmdWorkplanRun(ctx, args)
	default:
		return cstar.New(cstar.KindValidation, "unknown workplan subcommand %q", sub)
	}
}

func decodeWorkplanFile(path string) (*blueprint.Workplan, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, cstar.Wrap(cstar.KindValidation, err, "reading workplan %s", path)
	}
	wp, err := blueprint.DecodeWorkplan(raw)
	if err != nil {
		return nil, err
	}
	if err := wp.Validate(); err != nil {
		return nil, err
	}
	return wp, nil
}

// cmdWorkplanCheck implements `cstar workplan check <path>` (SPEC_FULL §6):
// exit 0 valid, exit 2 invalid.
func cmdWorkplanCheck(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("workplan check", flag.ExitOnError)
	fs.Parse(args)
	if fs.NArg() != 1 {
		return cstar.New(cstar.KindValidation, "usage: cstar workplan check <path>")
	}
	_, err := decodeWorkplanFile(fs.Arg(0))
	return err
}

// cmdWorkplanRun implements `cstar workplan run <path> --run-id <id>
// [--force]` (SPEC_FULL §6, §4.12): idempotent per run-ID, relative
// blueprint paths inside the workplan resolve against the workplan file's
// own directory.
func cmdWorkplanRun(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("workplan run", flag.ExitOnError)
	runID := fs.String("run-id", "", "run identifier; required")
	force := fs.Bool("force", false, "proceed despite a workplan_digest mismatch against a prior run")
	fs.Parse(args)
	if fs.NArg() != 1 {
		return cstar.New(cstar.KindValidation, "usage: cstar workplan run [-run-id=<id>] [-force] <path>")
	}
	path := fs.Arg(0)
	if *runID == "" {
		*runID = loadConfig().RunID
	}
	if *runID == "" {
		return cstar.New(cstar.KindValidation, "-run-id is required (or set CSTAR_RUNID)")
	}

	wp, err := decodeWorkplanFile(path)
	if err != nil {
		return err
	}

	cfg := loadConfig()
	lg := log.New(os.Stderr, "cstar: workplan "+wp.Name+": ", 0)
	ocfg := orchestratorConfig(cfg, *force, lg)
	ocfg.BlueprintBaseDir = filepath.Dir(path)
	ocfg.LoadBlueprint = func(p string) ([]byte, error) {
		if !filepath.IsAbs(p) {
			p = filepath.Join(filepath.Dir(path), p)
		}
		return os.ReadFile(p)
	}

	return orchestrator.Run(ctx, wp, *runID, ocfg)
}
