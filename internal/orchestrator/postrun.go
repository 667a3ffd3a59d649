package orchestrator

import (
	"os"
	"path/filepath"
	"regexp"
)

// partitionedOutputPattern matches a per-rank output file the way ROMS's
// ncjoin tooling names them: <group>.<rank>.nc with a zero-padded rank
// suffix, e.g. "roms_his.20120101000000.0000.nc".
var partitionedOutputPattern = regexp.MustCompile(`^(.+)\.\d{4}\.nc$`)

// discoverPartitionedOutputs groups every per-rank output file in outDir by
// its group name (SPEC_FULL §4.10's "one global file per variable"), for
// feeding Simulation.PostRun. Returns an empty map, not an error, when
// outDir doesn't exist yet (a step that never produced partitioned output).
func discoverPartitionedOutputs(outDir string) (map[string][]string, error) {
	entries, err := os.ReadDir(outDir)
	if os.IsNotExist(err) {
		return map[string][]string{}, nil
	}
	if err != nil {
		return nil, err
	}

	groups := map[string][]string{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := partitionedOutputPattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		groups[m[1]] = append(groups[m[1]], filepath.Join(outDir, e.Name()))
	}
	return groups, nil
}
