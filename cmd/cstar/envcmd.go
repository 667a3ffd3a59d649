package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/c-star-org/cstar"
	"github.com/c-star-org/cstar/internal/sysmanager"
)

func cmdEnv(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return cstar.New(cstar.KindValidation, "usage: cstar env <show>")
	}
	sub, args := args[0], args[1:]
	switch sub {
	case "show":
		return cmdEnvShow(ctx, args)
	default:
		return cstar.New(cstar.KindValidation, "unknown env subcommand %q", sub)
	}
}

// cmdEnvShow implements `cstar env show`: prints the configuration this
// invocation would actually run with, after environment defaulting
// (SPEC_FULL §6), plus the host classification the System Manager derived.
func cmdEnvShow(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("env show", flag.ExitOnError)
	fs.Parse(args)

	cfg := loadConfig()
	sm := sysmanager.Default()

	fmt.Fprintf(os.Stdout, "CSTAR_HOME=%s\n", cfg.Home)
	fmt.Fprintf(os.Stdout, "CSTAR_OUTDIR=%s\n", cfg.OutDir)
	fmt.Fprintf(os.Stdout, "CSTAR_NPROCS_POST=%d\n", cfg.NProcsPost)
	fmt.Fprintf(os.Stdout, "CSTAR_FRESH_CODEBASES=%t\n", cfg.FreshCodebases)
	fmt.Fprintf(os.Stdout, "CSTAR_CLOBBER_WORKING_DIR=%t\n", cfg.ClobberWorkingDir)
	fmt.Fprintf(os.Stdout, "CSTAR_RUNID=%s\n", cfg.RunID)
	fmt.Fprintf(os.Stdout, "scheduler=%s\n", sm.Scheduler)
	if sm.ClusterName != "" {
		fmt.Fprintf(os.Stdout, "cluster=%s\n", sm.ClusterName)
	}
	fmt.Fprintf(os.Stdout, "compiler_family=%s\n", sm.CompilerFamily)
	return nil
}
