// Command cstar is the thin flag-based CLI dispatcher for C-Star (SPEC_FULL
// §6): blueprint check/run, workplan check/run, and env show.
//
// Grounded on distr1-distri/cmd/distri/distri.go's flag.Parse + verb-map +
// InterruptibleContext/RunAtExit dispatch shape.
package main

import (
	"os"
	"runtime"
	"strconv"

	"github.com/c-star-org/cstar/internal/envstore"
)

// cliConfig is the process-wide configuration SPEC_FULL §6 names as
// recognized environment variables, gathered once per invocation.
type cliConfig struct {
	Home              string
	OutDir            string
	NProcsPost        int
	FreshCodebases    bool
	ClobberWorkingDir bool
	RunID             string
}

func loadConfig() cliConfig {
	home := os.Getenv("CSTAR_HOME")
	if home == "" {
		hd, err := os.UserHomeDir()
		if err != nil {
			hd = "."
		}
		home = hd + "/.cstar"
	}
	outDir := os.Getenv("CSTAR_OUTDIR")
	if outDir == "" {
		outDir = home + "/assets"
	}
	nprocs := defaultNProcsPost()
	if v := os.Getenv("CSTAR_NPROCS_POST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			nprocs = n
		}
	}
	return cliConfig{
		Home:              home,
		OutDir:            outDir,
		NProcsPost:        nprocs,
		FreshCodebases:    os.Getenv("CSTAR_FRESH_CODEBASES") == "1",
		ClobberWorkingDir: os.Getenv("CSTAR_CLOBBER_WORKING_DIR") == "1",
		RunID:             os.Getenv("CSTAR_RUNID"),
	}
}

// defaultNProcsPost is cpu_count/3 (integer division), raised to 1 when that
// is zero, per SPEC_FULL §6's documented default for CSTAR_NPROCS_POST.
func defaultNProcsPost() int {
	n := runtime.NumCPU() / 3
	if n < 1 {
		n = 1
	}
	return n
}

func (c cliConfig) envStore() *envstore.Store {
	return envstore.Open(c.Home + "/.cstar.env")
}
