// Package cstar contains the types shared across the C-Star orchestration
// engine: structured errors, the Resource/DateRange/Discretization value
// types that make up a Blueprint, and the JobStatus enum used by every
// Execution Handler variant.
//
// Subpackages under internal/ implement the components described in
// SPEC_FULL.md: internal/retrieve (Source Retriever), internal/stage
// (Stager), internal/codebase (External Codebase), internal/dataset (Input
// Dataset), internal/runtimesettings (Runtime Settings), internal/exec
// (Execution Handler), internal/simulation (Simulation), internal/blueprint
// (Blueprint Codec), internal/orchestrator (Workplan Orchestrator),
// internal/transform (Auto-Transform), internal/sysmanager (System Manager)
// and internal/envstore (Environment Store).
package cstar
