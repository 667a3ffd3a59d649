package exec

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/c-star-org/cstar"
)

// PBSJob submits and polls a PBS/Torque batch job via qsub/qstat/qdel,
// mirroring SlurmJob's CLI-shelling shape for the other scheduler flavor
// SPEC_FULL §4.1 names.
type PBSJob struct {
	JobName     string
	Account     string
	Queue       string
	WallTime    string
	RankCount   int
	Directives  []string // extra #PBS lines
	CommandLine string
	Directory   string

	run runner

	mu          sync.Mutex
	id          string
	status      cstar.JobStatus
	submittedAt time.Time
}

// AttachPBSJob reconstructs a PBSJob handle for an already-submitted job;
// see AttachSlurmJob.
func AttachPBSJob(id, jobName, directory string, submittedAt time.Time) *PBSJob {
	return &PBSJob{
		JobName:     jobName,
		Directory:   directory,
		id:          id,
		status:      cstar.StatusUnknown,
		submittedAt: submittedAt,
	}
}

func (j *PBSJob) runner() runner {
	if j.run != nil {
		return j.run
	}
	return defaultRunner
}

func (j *PBSJob) Script() string {
	var sb strings.Builder
	sb.WriteString("#!/bin/bash\n")
	sb.WriteString("#PBS -N " + j.JobName + "\n")
	sb.WriteString("#PBS -A " + j.Account + "\n")
	sb.WriteString("#PBS -q " + j.Queue + "\n")
	sb.WriteString("#PBS -l walltime=" + j.WallTime + "\n")
	sb.WriteString("#PBS -l select=1:ncpus=" + itoa(j.RankCount) + "\n")
	sb.WriteString("#PBS -o " + j.OutputFile() + "\n")
	sb.WriteString("#PBS -j oe\n")
	for _, d := range j.Directives {
		sb.WriteString(d + "\n")
	}
	sb.WriteString("\ncd $PBS_O_WORKDIR\n" + j.CommandLine + "\n")
	return sb.String()
}

func (j *PBSJob) ScriptPath() string { return ScriptPath(j.Directory, j.JobName) }
func (j *PBSJob) OutputFile() string { return OutputPath(j.Directory, j.JobName) }

func (j *PBSJob) ID() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.id
}

func (j *PBSJob) SubmittedAt() time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.submittedAt
}

// Submit runs `qsub`, whose stdout on success is exactly the new job id
// (e.g. "12345.pbs-server\n"), retrying transient failures per SPEC_FULL
// §4.9.
func (j *PBSJob) Submit(ctx context.Context) (string, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.id != "" {
		return j.id, nil
	}
	if err := writeScript(j.ScriptPath(), j.Script()); err != nil {
		return "", err
	}
	if err := ensureOutputDir(j.OutputFile()); err != nil {
		return "", err
	}

	var stdout, stderr string
	err := retryBackoff(ctx, 3, func() error {
		var runErr error
		stdout, stderr, runErr = j.runner()(ctx, "qsub", j.ScriptPath())
		return runErr
	})
	if err != nil {
		return "", schedulerError(err, stderr, "qsub submission of %s failed", j.JobName)
	}
	id := strings.TrimSpace(stdout)
	if id == "" {
		return "", schedulerError(nil, stdout, "qsub returned no job id for %s", j.JobName)
	}
	j.id = id
	j.submittedAt = time.Now()
	j.status = cstar.StatusPending
	return j.id, nil
}

var pbsStateRe = regexp.MustCompile(`job_state\s*=\s*(\S+)`)
var pbsExitRe = regexp.MustCompile(`Exit_status\s*=\s*(-?\d+)`)

// Status queries qstat -f -x (which includes recently-finished jobs) and
// maps the single-letter job_state plus, for finished jobs, Exit_status.
// Persistent query failure reports UNKNOWN without discarding the last
// known good state.
func (j *PBSJob) Status(ctx context.Context) (cstar.JobStatus, error) {
	j.mu.Lock()
	id := j.id
	cached := j.status
	j.mu.Unlock()
	if id == "" {
		return cstar.StatusUnsubmitted, nil
	}
	if cached.Terminal() {
		return cached, nil
	}

	var stdout string
	err := retryBackoff(ctx, 3, func() error {
		var runErr error
		stdout, _, runErr = j.runner()(ctx, "qstat", "-f", "-x", id)
		return runErr
	})
	if err != nil || strings.TrimSpace(stdout) == "" {
		return cstar.StatusUnknown, nil
	}

	m := pbsStateRe.FindStringSubmatch(stdout)
	if m == nil {
		return cstar.StatusUnknown, nil
	}
	st := mapPBSState(m[1], pbsExitRe.FindStringSubmatch(stdout))
	j.mu.Lock()
	j.status = st
	j.mu.Unlock()
	return st, nil
}

func mapPBSState(code string, exitMatch []string) cstar.JobStatus {
	switch code {
	case "Q":
		return cstar.StatusPending
	case "H":
		return cstar.StatusHeld
	case "R":
		return cstar.StatusRunning
	case "E":
		return cstar.StatusEnding
	case "F":
		if len(exitMatch) == 2 && exitMatch[1] != "0" {
			return cstar.StatusFailed
		}
		return cstar.StatusCompleted
	default:
		return cstar.StatusUnknown
	}
}

// Updates tails the output file.
func (j *PBSJob) Updates(ctx context.Context, seconds int) (<-chan string, error) {
	return tailFile(ctx, j.OutputFile(), seconds)
}

// Cancel issues qdel; a no-op once terminal or unsubmitted.
func (j *PBSJob) Cancel(ctx context.Context) (bool, error) {
	j.mu.Lock()
	id := j.id
	terminal := j.status.Terminal()
	j.mu.Unlock()
	if id == "" || terminal {
		return false, nil
	}

	var stderr string
	err := retryBackoff(ctx, 3, func() error {
		var runErr error
		_, stderr, runErr = j.runner()(ctx, "qdel", id)
		return runErr
	})
	if err != nil {
		return false, schedulerError(err, stderr, "qdel %s failed", id)
	}
	j.mu.Lock()
	j.status = cstar.StatusCancelled
	j.mu.Unlock()
	return true, nil
}
