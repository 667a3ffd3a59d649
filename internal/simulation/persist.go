package simulation

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/c-star-org/cstar"
	"github.com/c-star-org/cstar/internal/exec"
	"github.com/google/renameio"
)

// schemaVersion is bumped whenever persistedState's shape changes
// incompatibly, the versioning SPEC_FULL §3.1 requires of the Job Record
// and, by the same consistency argument, of per-Simulation state.
const schemaVersion = 1

type persistedState struct {
	SchemaVersion  int                `json:"schema_version"`
	Name           string             `json:"name"`
	Directory      string             `json:"directory"`
	State          State              `json:"state"`
	ValidDateRange cstar.DateRange    `json:"valid_date_range"`
	StartDate      time.Time          `json:"start_date"`
	EndDate        time.Time          `json:"end_date"`
	Discretization cstar.Discretization `json:"discretization"`
	ExecutablePath string             `json:"executable_path"`
	BuiltRankCount int                `json:"built_rank_count"`

	HandlerKind string    `json:"handler_kind,omitempty"`
	HandlerID   string    `json:"handler_id,omitempty"`
	JobName     string    `json:"job_name,omitempty"`
	SubmittedAt time.Time `json:"submitted_at,omitempty"`
	LastStatus  string    `json:"last_status,omitempty"`
}

// Persist writes the full Simulation state, including the current
// Execution Handler's id, to <directory>/.cstar-simulation.json via an
// atomic rename-on-write, the same durability guarantee
// distr1-distri/internal/install.go gives its own state file.
func (s *Simulation) Persist() error {
	ps := persistedState{
		SchemaVersion:  schemaVersion,
		Name:           s.Name,
		Directory:      s.Directory,
		State:          s.State,
		ValidDateRange: s.ValidDateRange,
		StartDate:      s.StartDate,
		EndDate:        s.EndDate,
		Discretization: s.Discretization,
		ExecutablePath: s.ExecutablePath,
		BuiltRankCount: s.builtRankCount,
		HandlerKind:    s.handlerKind,
	}
	if s.handler != nil {
		ps.HandlerID = s.handler.ID()
		ps.JobName = strings.TrimSuffix(filepath.Base(s.handler.ScriptPath()), ".sh")
		ps.SubmittedAt = s.handler.SubmittedAt()
		if st, err := s.handler.Status(context.Background()); err == nil {
			ps.LastStatus = string(st)
		}
	}

	data, err := json.MarshalIndent(ps, "", "  ")
	if err != nil {
		return cstar.Wrap(cstar.KindIntegrity, err, "marshaling simulation state for %s", s.Name)
	}
	path := filepath.Join(s.Directory, persistedFileName)
	if err := os.MkdirAll(s.Directory, 0o755); err != nil {
		return cstar.Wrap(cstar.KindIntegrity, err, "preparing simulation directory %s", s.Directory)
	}
	if err := renameio.WriteFile(path, data, 0o644); err != nil {
		return cstar.Wrap(cstar.KindIntegrity, err, "writing simulation state file %s", path)
	}
	return nil
}

// Restore rehydrates a Simulation from <directory>/.cstar-simulation.json
// and reconnects to any still-live Execution Handler by re-querying
// scheduler state (SPEC_FULL §4.10). The returned Simulation has no
// collaborators configured (Stager, Retriever, Builder, ...) — callers
// wire those in before calling any lifecycle method beyond Status
// inspection.
func Restore(directory string) (*Simulation, error) {
	path := filepath.Join(directory, persistedFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, cstar.Wrap(cstar.KindConfiguration, err, "reading simulation state file %s", path)
	}
	var ps persistedState
	if err := json.Unmarshal(data, &ps); err != nil {
		return nil, cstar.Wrap(cstar.KindConfiguration, err, "parsing simulation state file %s", path)
	}

	s := New(ps.Name, ps.Directory)
	s.State = ps.State
	s.ValidDateRange = ps.ValidDateRange
	s.StartDate = ps.StartDate
	s.EndDate = ps.EndDate
	s.Discretization = ps.Discretization
	s.ExecutablePath = ps.ExecutablePath
	s.builtRankCount = ps.BuiltRankCount
	s.handlerKind = ps.HandlerKind

	if ps.HandlerID == "" {
		return s, nil
	}
	switch ps.HandlerKind {
	case "slurm":
		s.handler = exec.AttachSlurmJob(ps.HandlerID, ps.JobName, ps.Directory, ps.SubmittedAt)
	case "pbs":
		s.handler = exec.AttachPBSJob(ps.HandlerID, ps.JobName, ps.Directory, ps.SubmittedAt)
	case "local":
		s.handler = exec.AttachLocalProcess(ps.HandlerID, ps.JobName, ps.Directory, cstar.JobStatus(ps.LastStatus), ps.SubmittedAt)
	}
	if s.handler != nil {
		if st, err := s.handler.Status(context.Background()); err == nil && st.Terminal() {
			s.State = StateFinished
		}
	}
	return s, nil
}
