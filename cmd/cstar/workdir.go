package main

import (
	"os"

	"github.com/c-star-org/cstar"
	"github.com/c-star-org/cstar/internal/simulation"
)

// prepareWorkingDir creates directory for a fresh "blueprint run", refusing
// to overwrite an existing one unless clobber is set (CSTAR_CLOBBER_WORKING_DIR
// SPEC_FULL §6, Open Question (b)). A directory whose persisted Simulation
// (.cstar-simulation.json) is in the RUNNING state is never clobbered,
// regardless of the flag, since doing so would orphan a still-submitted job.
func prepareWorkingDir(directory string, clobber bool) error {
	entries, err := os.ReadDir(directory)
	if os.IsNotExist(err) {
		return os.MkdirAll(directory, 0o755)
	}
	if err != nil {
		return cstar.Wrap(cstar.KindIntegrity, err, "inspecting run directory %s", directory)
	}
	if len(entries) == 0 {
		return nil
	}

	if sim, err := simulation.Restore(directory); err == nil && sim.State == simulation.StateRunning {
		return cstar.New(cstar.KindConfiguration, "run directory %s holds a live simulation (state %s); refusing to clobber", directory, sim.State)
	}

	if !clobber {
		return cstar.New(cstar.KindConfiguration, "run directory %s already exists; set CSTAR_CLOBBER_WORKING_DIR=1 to overwrite", directory)
	}
	if err := os.RemoveAll(directory); err != nil {
		return cstar.Wrap(cstar.KindIntegrity, err, "clobbering run directory %s", directory)
	}
	return os.MkdirAll(directory, 0o755)
}
