package exec

import (
	"context"
	goexec "os/exec"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/c-star-org/cstar"
)

// SlurmJob submits and polls a SLURM batch job via sbatch/squeue/sacct/
// scancel, the CLI-shelling convention AMD-AGI-Primus-SaFE's
// pkg/slurm/slurm.go uses for squeue/sinfo — there is no Go SLURM client in
// the retrieved pack.
type SlurmJob struct {
	JobName     string
	Account     string
	Queue       string
	WallTime    string
	RankCount   int
	Directives  []string // extra #SBATCH lines, e.g. partition constraints
	CommandLine string   // e.g. "srun -n 64 ./roms_exe roms.in"
	Directory   string

	run runner // injectable for tests; defaults to shelling out

	mu          sync.Mutex
	id          string
	status      cstar.JobStatus
	submittedAt time.Time
}

type runner func(ctx context.Context, name string, args ...string) (stdout, stderr string, err error)

func defaultRunner(ctx context.Context, name string, args ...string) (string, string, error) {
	cmd := goexec.CommandContext(ctx, name, args...)
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

// AttachSlurmJob reconstructs a SlurmJob handle for an already-submitted
// job, the reconnection Simulation.Restore performs from a persisted Job
// Record (SPEC_FULL §4.10: "reconnects to any still-live handler by
// re-querying scheduler state"). Callers should call Status immediately
// after to refresh the cached state.
func AttachSlurmJob(id, jobName, directory string, submittedAt time.Time) *SlurmJob {
	return &SlurmJob{
		JobName:     jobName,
		Directory:   directory,
		id:          id,
		status:      cstar.StatusUnknown,
		submittedAt: submittedAt,
	}
}

func (s *SlurmJob) runner() runner {
	if s.run != nil {
		return s.run
	}
	return defaultRunner
}

func (s *SlurmJob) Script() string {
	var sb strings.Builder
	sb.WriteString("#!/bin/bash\n")
	sb.WriteString("#SBATCH --job-name=" + s.JobName + "\n")
	sb.WriteString("#SBATCH --account=" + s.Account + "\n")
	sb.WriteString("#SBATCH --partition=" + s.Queue + "\n")
	sb.WriteString("#SBATCH --time=" + s.WallTime + "\n")
	sb.WriteString("#SBATCH --ntasks=" + itoa(s.RankCount) + "\n")
	sb.WriteString("#SBATCH --output=" + s.OutputFile() + "\n")
	for _, d := range s.Directives {
		sb.WriteString(d + "\n")
	}
	sb.WriteString("\n" + s.CommandLine + "\n")
	return sb.String()
}

func (s *SlurmJob) ScriptPath() string { return ScriptPath(s.Directory, s.JobName) }
func (s *SlurmJob) OutputFile() string { return OutputPath(s.Directory, s.JobName) }

func (s *SlurmJob) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

func (s *SlurmJob) SubmittedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submittedAt
}

var sbatchIDRe = regexp.MustCompile(`Submitted batch job (\d+)`)

// Submit writes the sbatch script and runs `sbatch`, retrying transient
// failures per SPEC_FULL §4.9. Idempotent once an id has been assigned.
func (s *SlurmJob) Submit(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.id != "" {
		return s.id, nil
	}
	if err := writeScript(s.ScriptPath(), s.Script()); err != nil {
		return "", err
	}
	if err := ensureOutputDir(s.OutputFile()); err != nil {
		return "", err
	}

	var stdout, stderr string
	err := retryBackoff(ctx, 3, func() error {
		var runErr error
		stdout, stderr, runErr = s.runner()(ctx, "sbatch", s.ScriptPath())
		return runErr
	})
	if err != nil {
		return "", schedulerError(err, stderr, "sbatch submission of %s failed", s.JobName)
	}
	m := sbatchIDRe.FindStringSubmatch(stdout)
	if m == nil {
		return "", schedulerError(nil, stdout, "could not parse job id from sbatch output for %s", s.JobName)
	}
	s.id = m[1]
	s.submittedAt = time.Now()
	s.status = cstar.StatusPending
	return s.id, nil
}

// Status queries squeue for the live job state, falling back to sacct for
// jobs that have already left the queue. On persistent query failure it
// reports UNKNOWN without discarding the last known good state (SPEC_FULL
// §4.8 state transitions).
func (s *SlurmJob) Status(ctx context.Context) (cstar.JobStatus, error) {
	s.mu.Lock()
	id := s.id
	cached := s.status
	s.mu.Unlock()
	if id == "" {
		return cstar.StatusUnsubmitted, nil
	}
	if cached.Terminal() {
		return cached, nil
	}

	var stdout string
	err := retryBackoff(ctx, 3, func() error {
		var runErr error
		stdout, _, runErr = s.runner()(ctx, "squeue", "-h", "-j", id, "-o", "%T")
		return runErr
	})
	if err == nil && strings.TrimSpace(stdout) != "" {
		st := mapSlurmState(strings.TrimSpace(strings.Split(stdout, "\n")[0]))
		s.mu.Lock()
		s.status = st
		s.mu.Unlock()
		return st, nil
	}

	// Job no longer queued or squeue failed: check accounting history.
	var sacctOut string
	err = retryBackoff(ctx, 3, func() error {
		var runErr error
		sacctOut, _, runErr = s.runner()(ctx, "sacct", "-j", id, "-n", "-o", "State", "--parsable2")
		return runErr
	})
	if err == nil && strings.TrimSpace(sacctOut) != "" {
		first := strings.TrimSpace(strings.Split(strings.TrimSpace(sacctOut), "\n")[0])
		st := mapSlurmState(first)
		s.mu.Lock()
		s.status = st
		s.mu.Unlock()
		return st, nil
	}

	return cstar.StatusUnknown, nil
}

func mapSlurmState(raw string) cstar.JobStatus {
	raw = strings.ToUpper(strings.TrimSpace(raw))
	switch {
	case strings.HasPrefix(raw, "PENDING"), raw == "CONFIGURING":
		return cstar.StatusPending
	case raw == "RUNNING":
		return cstar.StatusRunning
	case raw == "COMPLETING":
		return cstar.StatusEnding
	case raw == "COMPLETED":
		return cstar.StatusCompleted
	case raw == "CANCELLED", strings.HasPrefix(raw, "CANCELLED"):
		return cstar.StatusCancelled
	case raw == "FAILED", raw == "TIMEOUT", raw == "NODE_FAIL", raw == "OUT_OF_MEMORY":
		return cstar.StatusFailed
	case raw == "SUSPENDED", raw == "HELD":
		return cstar.StatusHeld
	default:
		return cstar.StatusUnknown
	}
}

// Updates tails the output file.
func (s *SlurmJob) Updates(ctx context.Context, seconds int) (<-chan string, error) {
	return tailFile(ctx, s.OutputFile(), seconds)
}

// Cancel issues scancel; a no-op once terminal or unsubmitted.
func (s *SlurmJob) Cancel(ctx context.Context) (bool, error) {
	s.mu.Lock()
	id := s.id
	terminal := s.status.Terminal()
	s.mu.Unlock()
	if id == "" || terminal {
		return false, nil
	}

	var stderr string
	err := retryBackoff(ctx, 3, func() error {
		var runErr error
		_, stderr, runErr = s.runner()(ctx, "scancel", id)
		return runErr
	})
	if err != nil {
		return false, schedulerError(err, stderr, "scancel %s failed", id)
	}
	s.mu.Lock()
	s.status = cstar.StatusCancelled
	s.mu.Unlock()
	return true, nil
}
