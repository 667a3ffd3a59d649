// Package exec implements the Execution Handler (SPEC_FULL §4.8–4.9):
// a uniform Handler interface over three variants — LocalProcess, SlurmJob,
// PBSJob — a closed sum per the Design Note in SPEC_FULL §9 rather than an
// open plugin registry.
//
// LocalProcess is grounded on distr1-distri/internal/install's
// exec.CommandContext + status-polling-ticker shape, adapted to a
// background-forked subprocess in its own process group. SlurmJob/PBSJob
// query their scheduler the way AMD-AGI-Primus-SaFE's
// pkg/slurm/slurm.go queries squeue/sinfo: shell out, split on a safe
// separator, no client library — there is no Go SLURM/PBS client in the
// retrieved pack.
package exec

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/c-star-org/cstar"
)

// Handler is the polymorphic Execution Handler contract (SPEC_FULL §4.8).
type Handler interface {
	Submit(ctx context.Context) (string, error)
	Status(ctx context.Context) (cstar.JobStatus, error)
	Updates(ctx context.Context, seconds int) (<-chan string, error)
	Cancel(ctx context.Context) (bool, error)

	ID() string
	Script() string
	ScriptPath() string
	OutputFile() string
	SubmittedAt() time.Time
}

var (
	_ Handler = (*LocalProcess)(nil)
	_ Handler = (*SlurmJob)(nil)
	_ Handler = (*PBSJob)(nil)
)

// JobName formats the deterministic job name SPEC_FULL §4.8 specifies:
// cstar_job_YYYYMMDD_HHMMSS.
func JobName(t time.Time) string {
	return "cstar_job_" + t.Format("20060102_150405")
}

// OutputPath formats the deterministic output file path SPEC_FULL §4.8
// specifies: <directory>/output/<job_name>.out.
func OutputPath(directory, jobName string) string {
	return filepath.Join(directory, "output", jobName+".out")
}

// ScriptPath formats the submission script path used by both scheduler
// variants, under the Job Record's submit_scripts/ directory (SPEC_FULL §6
// persisted state layout).
func ScriptPath(directory, jobName string) string {
	return filepath.Join(directory, "submit_scripts", jobName+".sh")
}

// retryBackoff runs fn once and, while it fails, retries it up to retries
// more times, sleeping 1s, 2s, 4s, ... before each retry, matching
// SPEC_FULL §4.9's "retried up to 3 times with exponential backoff
// (1s, 2s, 4s)".
func retryBackoff(ctx context.Context, retries int, fn func() error) error {
	var err error
	backoff := time.Second
	for i := 0; i <= retries; i++ {
		err = fn()
		if err == nil {
			return nil
		}
		if i == retries {
			break
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff *= 2
	}
	return err
}

// tailFile streams appended lines of path to the returned channel. If
// seconds is 0 it streams until ctx is cancelled; otherwise it stops after
// that many seconds (SPEC_FULL §4.8 Updates contract).
func tailFile(ctx context.Context, path string, seconds int) (<-chan string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, cstar.Wrap(cstar.KindScheduler, err, "opening output file %s", path)
	}
	ch := make(chan string, 64)
	go func() {
		defer f.Close()
		defer close(ch)

		deadline := ctx
		if seconds > 0 {
			var cancel context.CancelFunc
			deadline, cancel = context.WithTimeout(ctx, time.Duration(seconds)*time.Second)
			defer cancel()
		}

		r := bufio.NewReader(f)
		ticker := time.NewTicker(200 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-deadline.Done():
				return
			case <-ticker.C:
				for {
					line, err := r.ReadString('\n')
					if line != "" {
						select {
						case ch <- strings.TrimRight(line, "\n"):
						case <-deadline.Done():
							return
						}
					}
					if err != nil {
						break
					}
				}
			}
		}
	}()
	return ch, nil
}

func itoa(n int) string { return strconv.Itoa(n) }

// writeScript writes text to path, creating parent directories and marking
// it executable, the shape shared by every scheduler variant's Submit.
func writeScript(path, text string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return cstar.Wrap(cstar.KindScheduler, err, "preparing script directory for %s", path)
	}
	if err := os.WriteFile(path, []byte(text), 0o755); err != nil {
		return cstar.Wrap(cstar.KindScheduler, err, "writing submission script %s", path)
	}
	return nil
}

// ensureOutputDir creates the parent directory of an output file path.
func ensureOutputDir(outputFile string) error {
	if err := os.MkdirAll(filepath.Dir(outputFile), 0o755); err != nil {
		return cstar.Wrap(cstar.KindScheduler, err, "preparing output directory for %s", outputFile)
	}
	return nil
}

func schedulerError(cause error, stderr, format string, args ...interface{}) *cstar.Error {
	e := &cstar.Error{
		Kind:    cstar.KindScheduler,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
	if stderr != "" {
		e.Context = map[string]string{"stderr": stderr}
	}
	return e
}
