package cstar

import (
	"context"
	"time"
)

// Generator is the roms-tools grid/forcing generator, invoked to
// materialize yaml-recipe input datasets (SPEC_FULL §4.6). Its
// implementation lives outside this module; callers inject a fake in
// tests.
type Generator interface {
	Generate(ctx context.Context, recipePath string, start, end time.Time) ([]string, error)
}

// ModelBuilder drives a model's own build system (make/cmake invocation),
// invoked by External Codebase.Get and Simulation.Build (SPEC_FULL §4.5,
// §4.10).
type ModelBuilder interface {
	Build(ctx context.Context, sourceRoot string, compilerFamily string, env []string) (stdout, stderr []byte, err error)
}

// Partitioner splits a single global input file into one file per rank,
// invoked by Simulation.PreRun when the compiled executable requires
// partitioned NetCDF inputs (SPEC_FULL §4.10: "partitions input datasets
// across ranks if the model requires partitioned inputs"). Its
// implementation (roms-tools' partit) lives outside this module, the same
// external-collaborator boundary as Generator and ModelBuilder.
type Partitioner interface {
	Partition(ctx context.Context, inputPath string, nProcsX, nProcsY int, destDir string) ([]string, error)
}

// Joiner reassembles per-rank partitioned output files into one global file
// per variable, invoked by Simulation.PostRun (SPEC_FULL §4.10: "joins
// partitioned output files (a per-rank → global merge)").
type Joiner interface {
	Join(ctx context.Context, rankFiles []string, destPath string) error
}
