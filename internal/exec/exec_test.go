package exec

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/c-star-org/cstar"
)

func TestJobNameFormat(t *testing.T) {
	ts := time.Date(2012, 6, 15, 9, 30, 45, 0, time.UTC)
	if got, want := JobName(ts), "cstar_job_20120615_093045"; got != want {
		t.Fatalf("JobName() = %q, want %q", got, want)
	}
}

func TestLocalProcessSubmitAndStatus(t *testing.T) {
	dir := t.TempDir()
	p := &LocalProcess{
		Argv:      []string{"echo", "hello-from-roms"},
		Directory: dir,
		JobName:   "cstar_job_test",
	}
	id, err := p.Submit(context.Background())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if id == "" {
		t.Fatalf("expected non-empty id")
	}
	// Idempotent resubmission.
	id2, err := p.Submit(context.Background())
	if err != nil || id2 != id {
		t.Fatalf("second Submit = (%q, %v), want (%q, nil)", id2, err, id)
	}

	deadline := time.Now().Add(2 * time.Second)
	var status cstar.JobStatus
	for time.Now().Before(deadline) {
		status, err = p.Status(context.Background())
		if err != nil {
			t.Fatalf("Status: %v", err)
		}
		if status.Terminal() {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if status != cstar.StatusCompleted {
		t.Fatalf("final status = %v, want COMPLETED", status)
	}

	out, err := os.ReadFile(p.OutputFile())
	if err != nil {
		t.Fatalf("reading output file: %v", err)
	}
	if !strings.Contains(string(out), "hello-from-roms") {
		t.Fatalf("output file missing expected text: %q", out)
	}
}

func TestLocalProcessCancel(t *testing.T) {
	dir := t.TempDir()
	p := &LocalProcess{
		Argv:      []string{"sleep", "5"},
		Directory: dir,
		JobName:   "cstar_job_cancel",
	}
	if _, err := p.Submit(context.Background()); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	cancelled, err := p.Cancel(context.Background())
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if !cancelled {
		t.Fatalf("expected Cancel to report true")
	}
	status, _ := p.Status(context.Background())
	if status != cstar.StatusCancelled {
		t.Fatalf("status = %v, want CANCELLED", status)
	}
	// Cancel is a no-op once terminal.
	again, err := p.Cancel(context.Background())
	if err != nil || again {
		t.Fatalf("second Cancel = (%v, %v), want (false, nil)", again, err)
	}
}

func fakeRunner(script map[string]struct {
	stdout, stderr string
	err            error
}) runner {
	return func(ctx context.Context, name string, args ...string) (string, string, error) {
		r, ok := script[name]
		if !ok {
			return "", "", nil
		}
		return r.stdout, r.stderr, r.err
	}
}

func TestSlurmJobSubmitParsesID(t *testing.T) {
	dir := t.TempDir()
	s := &SlurmJob{
		JobName:     "cstar_job_slurm",
		Account:     "abc123",
		Queue:       "compute",
		WallTime:    "24:00:00",
		RankCount:   64,
		CommandLine: "srun -n 64 ./roms_exe roms.in",
		Directory:   dir,
		run: fakeRunner(map[string]struct {
			stdout, stderr string
			err            error
		}{
			"sbatch": {stdout: "Submitted batch job 98765\n"},
		}),
	}
	id, err := s.Submit(context.Background())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if id != "98765" {
		t.Fatalf("id = %q, want 98765", id)
	}
	if _, err := os.Stat(s.ScriptPath()); err != nil {
		t.Fatalf("script not written: %v", err)
	}
	script, _ := os.ReadFile(s.ScriptPath())
	if !strings.Contains(string(script), "#SBATCH --account=abc123") {
		t.Fatalf("script missing account directive:\n%s", script)
	}
}

func TestSlurmJobStatusMapsSqueueState(t *testing.T) {
	dir := t.TempDir()
	s := &SlurmJob{JobName: "j", Directory: dir, run: fakeRunner(map[string]struct {
		stdout, stderr string
		err            error
	}{
		"sbatch": {stdout: "Submitted batch job 1\n"},
		"squeue": {stdout: "RUNNING\n"},
	})}
	if _, err := s.Submit(context.Background()); err != nil {
		t.Fatal(err)
	}
	status, err := s.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status != cstar.StatusRunning {
		t.Fatalf("status = %v, want RUNNING", status)
	}
}

func TestSlurmJobStatusFallsBackToSacct(t *testing.T) {
	dir := t.TempDir()
	s := &SlurmJob{JobName: "j", Directory: dir, run: fakeRunner(map[string]struct {
		stdout, stderr string
		err            error
	}{
		"sbatch": {stdout: "Submitted batch job 1\n"},
		"squeue": {stdout: ""}, // job already left the queue
		"sacct":  {stdout: "COMPLETED\n"},
	})}
	if _, err := s.Submit(context.Background()); err != nil {
		t.Fatal(err)
	}
	status, err := s.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status != cstar.StatusCompleted {
		t.Fatalf("status = %v, want COMPLETED", status)
	}
}

func TestPBSJobSubmitAndStatus(t *testing.T) {
	dir := t.TempDir()
	j := &PBSJob{JobName: "j", Directory: dir, run: fakeRunner(map[string]struct {
		stdout, stderr string
		err            error
	}{
		"qsub":  {stdout: "12345.pbs-server\n"},
		"qstat": {stdout: "job_state = R\n"},
	})}
	id, err := j.Submit(context.Background())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if id != "12345.pbs-server" {
		t.Fatalf("id = %q", id)
	}
	status, err := j.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status != cstar.StatusRunning {
		t.Fatalf("status = %v, want RUNNING", status)
	}
}

func TestOutputAndScriptPathsNested(t *testing.T) {
	if got, want := OutputPath("/run/dir", "job1"), filepath.Join("/run/dir", "output", "job1.out"); got != want {
		t.Fatalf("OutputPath = %q, want %q", got, want)
	}
	if got, want := ScriptPath("/run/dir", "job1"), filepath.Join("/run/dir", "submit_scripts", "job1.sh"); got != want {
		t.Fatalf("ScriptPath = %q, want %q", got, want)
	}
}
