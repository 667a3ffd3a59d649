package exec

import (
	"context"
	"os"
	goexec "os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/c-star-org/cstar"
	"golang.org/x/sys/unix"
)

// LocalProcess runs its command line as a detached background subprocess
// in its own process group, so Cancel can signal the whole group
// (SPEC_FULL §4.8 concurrency note).
type LocalProcess struct {
	Argv      []string
	Directory string
	JobName   string

	mu          sync.Mutex
	id          string
	status      cstar.JobStatus
	submittedAt time.Time
	waitErr     error
	cmd         *goexec.Cmd
}

// AttachLocalProcess reconstructs a LocalProcess handle across a process
// restart. There is no live *os.Process to reattach to (SPEC_FULL §4.10
// restore note applies fully only to scheduler-backed handlers); Status
// reports the last persisted state until the caller observes otherwise.
func AttachLocalProcess(id, jobName, directory string, lastStatus cstar.JobStatus, submittedAt time.Time) *LocalProcess {
	return &LocalProcess{
		Directory:   directory,
		JobName:     jobName,
		id:          id,
		status:      lastStatus,
		submittedAt: submittedAt,
	}
}

func (p *LocalProcess) Script() string {
	return "#!/bin/sh\nset -e\n" + strings.Join(p.Argv, " ") + "\n"
}

func (p *LocalProcess) ScriptPath() string { return ScriptPath(p.Directory, p.JobName) }
func (p *LocalProcess) OutputFile() string { return OutputPath(p.Directory, p.JobName) }

func (p *LocalProcess) ID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.id
}

func (p *LocalProcess) SubmittedAt() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.submittedAt
}

// Submit writes the composed script, launches it via `sh <script>` in a new
// process group, and returns immediately; idempotent once already
// submitted (SPEC_FULL §4.8).
func (p *LocalProcess) Submit(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.id != "" {
		return p.id, nil
	}

	scriptPath := p.ScriptPath()
	if err := os.MkdirAll(filepath.Dir(scriptPath), 0o755); err != nil {
		return "", cstar.Wrap(cstar.KindScheduler, err, "preparing script directory for %s", p.JobName)
	}
	if err := os.WriteFile(scriptPath, []byte(p.Script()), 0o755); err != nil {
		return "", cstar.Wrap(cstar.KindScheduler, err, "writing submission script %s", scriptPath)
	}

	outputPath := p.OutputFile()
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return "", cstar.Wrap(cstar.KindScheduler, err, "preparing output directory for %s", p.JobName)
	}
	outFile, err := os.Create(outputPath)
	if err != nil {
		return "", cstar.Wrap(cstar.KindScheduler, err, "creating output file %s", outputPath)
	}

	cmd := goexec.Command("sh", scriptPath)
	cmd.Stdout = outFile
	cmd.Stderr = outFile
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := cmd.Start(); err != nil {
		outFile.Close()
		return "", schedulerError(err, "", "starting local process for %s", p.JobName)
	}

	p.cmd = cmd
	p.id = strconv.Itoa(cmd.Process.Pid)
	p.submittedAt = time.Now()
	p.status = cstar.StatusRunning
	go p.wait(outFile)
	return p.id, nil
}

func (p *LocalProcess) wait(outFile *os.File) {
	err := p.cmd.Wait()
	outFile.Close()
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.status == cstar.StatusCancelled {
		return
	}
	if err != nil {
		p.status = cstar.StatusFailed
		p.waitErr = err
	} else {
		p.status = cstar.StatusCompleted
	}
}

// Status returns the last observed state; LocalProcess has no external
// scheduler to poll, so this never blocks or errors.
func (p *LocalProcess) Status(ctx context.Context) (cstar.JobStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.status == "" {
		return cstar.StatusUnsubmitted, nil
	}
	return p.status, nil
}

// Updates tails the output file.
func (p *LocalProcess) Updates(ctx context.Context, seconds int) (<-chan string, error) {
	return tailFile(ctx, p.OutputFile(), seconds)
}

// Cancel signals the process group with SIGTERM. A no-op on an already
// terminal or unsubmitted handler.
func (p *LocalProcess) Cancel(ctx context.Context) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.status == "" || p.status.Terminal() {
		return false, nil
	}
	pgid := p.cmd.Process.Pid
	if err := unix.Kill(-pgid, syscall.SIGTERM); err != nil && err != unix.ESRCH {
		return false, schedulerError(err, "", "cancelling local process group %d", pgid)
	}
	p.status = cstar.StatusCancelled
	return true, nil
}
