package orchestrator

import (
	"encoding/json"
	"os"

	"github.com/c-star-org/cstar"
	"github.com/google/renameio"
)

// jobRecordSchemaVersion is bumped whenever jobRecord's shape changes
// incompatibly, the same versioning discipline internal/simulation's
// persist.go applies to its own state file (SPEC_FULL §6: "Job Record.
// Single JSON file, schema-versioned.").
const jobRecordSchemaVersion = 1

// StepStatus is a workplan step's status as tracked by the Job Record,
// a superset of cstar.JobStatus: SKIPPED has no Execution Handler
// equivalent, it is purely an orchestrator-level bookkeeping state
// (SPEC_FULL §4.12: "Failure of any step marks dependents as SKIPPED").
type StepStatus string

const (
	StepPending   StepStatus = "PENDING"
	StepRunning   StepStatus = "RUNNING"
	StepCompleted StepStatus = "COMPLETED"
	StepFailed    StepStatus = "FAILED"
	StepSkipped   StepStatus = "SKIPPED"
)

// Terminal reports whether no further transition of this step is possible
// within the current run.
func (s StepStatus) Terminal() bool {
	switch s {
	case StepCompleted, StepFailed, StepSkipped:
		return true
	default:
		return false
	}
}

// stepRecord is one step's entry in the Job Record.
type stepRecord struct {
	Status             StepStatus `json:"status"`
	LastObservedStatus string     `json:"last_observed_status,omitempty"`
	ConsecutiveCount   int        `json:"consecutive_count,omitempty"`
	Error              string     `json:"error,omitempty"`
}

// jobRecord is the Job Record persisted at $CSTAR_OUTDIR/<run_id>/state.json
// (SPEC_FULL §6).
type jobRecord struct {
	SchemaVersion  int                    `json:"schema_version"`
	RunID          string                 `json:"run_id"`
	WorkplanDigest string                 `json:"workplan_digest"`
	Steps          map[string]*stepRecord `json:"steps"`
}

// openOrCreateJobRecord loads the Job Record at path, or creates a fresh
// one for digest if none exists. A digest mismatch against a pre-existing
// record fails RunIDConflict unless force is set, per SPEC_FULL §4.12
// step 3.
func openOrCreateJobRecord(path, runID, digest string, force bool) (*jobRecord, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &jobRecord{
			SchemaVersion:  jobRecordSchemaVersion,
			RunID:          runID,
			WorkplanDigest: digest,
			Steps:          map[string]*stepRecord{},
		}, nil
	}
	if err != nil {
		return nil, cstar.Wrap(cstar.KindIntegrity, err, "reading job record %s", path)
	}

	var rec jobRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, cstar.Wrap(cstar.KindIntegrity, err, "parsing job record %s", path)
	}
	if rec.Steps == nil {
		rec.Steps = map[string]*stepRecord{}
	}
	if rec.WorkplanDigest != digest && !force {
		return nil, &cstar.Error{
			Kind:    cstar.KindRunIDConflict,
			Message: "workplan content changed for an existing run-ID",
			Context: map[string]string{
				"run_id":        runID,
				"stored_digest": rec.WorkplanDigest,
				"new_digest":    digest,
			},
		}
	}
	rec.WorkplanDigest = digest
	return &rec, nil
}

// saveJobRecord writes rec atomically, the same renameio rename-on-write
// guarantee internal/simulation's Persist gives its own state file.
func saveJobRecord(path string, rec *jobRecord) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return cstar.Wrap(cstar.KindIntegrity, err, "marshaling job record")
	}
	if err := renameio.WriteFile(path, data, 0o644); err != nil {
		return cstar.Wrap(cstar.KindIntegrity, err, "writing job record %s", path)
	}
	return nil
}
