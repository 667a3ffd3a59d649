// Package sysmanager implements the System Manager (SPEC_FULL §4.1): host
// classification, scheduler flavor selection, queue/wall-time table, and
// the compiler family handed to model makefiles.
//
// Grounded on distr1-distri/internal/env's env-var-driven "where am I"
// singleton, generalized into a full host/scheduler classification, plus
// AMD-AGI-Primus-SaFE's convention (pkg/slurm/slurm.go) of treating the
// scheduler as a CLI to shell out to rather than a client library — there is
// no Go SLURM/PBS client in the retrieved pack.
package sysmanager

import (
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/c-star-org/cstar"
)

// Scheduler identifies the batch scheduler flavor selected for this host.
type Scheduler string

const (
	SchedulerNone  Scheduler = "none" // run locally
	SchedulerSlurm Scheduler = "slurm"
	SchedulerPBS   Scheduler = "pbs"
)

// Queue describes one scheduler queue/QoS and its caps.
type Queue struct {
	Name           string
	MaxWallTime    string // e.g. "48:00:00"
	MaxCPUsPerJob  int
	MaxMemPerJobGB int
}

// Manager is the System Manager singleton. Constructed once per process
// (see New / Default) but fully injectable for tests, per SPEC_FULL §9's
// Design Note that global state stay explicit and testable.
type Manager struct {
	Hostname       string
	Scheduler      Scheduler
	ClusterName    string // e.g. "SLURM-cluster-X"; empty on generic-unix/macos-arm
	CompilerFamily string
	Queues         map[string]Queue

	// Directives is the extensible per-system scheduler-directive registry
	// named in SPEC_FULL §9 Open Question (c): additional #SBATCH/#PBS lines
	// required on this host (e.g. partition constraints), keyed by queue
	// name, empty-string key meaning "applies regardless of queue".
	Directives map[string][]string

	lookPath func(string) (string, error)
	getenv   func(string) string
}

var (
	once    sync.Once
	shared  *Manager
	sharedM sync.Mutex
)

// Default returns the process-wide Manager, constructing it on first call
// by probing the environment (SPEC_FULL: "Single process-wide instance").
func Default() *Manager {
	once.Do(func() {
		shared = New(os.Getenv, exec.LookPath)
	})
	sharedM.Lock()
	defer sharedM.Unlock()
	return shared
}

// New constructs a Manager by probing getenv/lookPath, both injectable so
// tests never depend on the real host. This is the classification step
// SPEC_FULL describes as happening "at construction"; it never fails even
// on an unrecognized host — ConfigurationError is raised lazily, at
// submission time, per SPEC_FULL §4.1.
func New(getenv func(string) string, lookPath func(string) (string, error)) *Manager {
	m := &Manager{
		Queues:     map[string]Queue{},
		Directives: map[string][]string{},
		lookPath:   lookPath,
		getenv:     getenv,
	}
	hostname := getenv("HOSTNAME")
	if hostname == "" {
		if hn, err := os.Hostname(); err == nil {
			hostname = hn
		}
	}
	m.Hostname = hostname

	m.classify()
	return m
}

func (m *Manager) classify() {
	host := strings.ToLower(m.Hostname)
	switch {
	case m.getenv("SLURM_CLUSTER_NAME") != "" || strings.Contains(host, "slurm") || m.hasBinary("sbatch"):
		m.Scheduler = SchedulerSlurm
		m.ClusterName = firstNonEmpty(m.getenv("SLURM_CLUSTER_NAME"), "SLURM-cluster-X")
		m.CompilerFamily = "intel"
		m.seedSlurmQueues()
	case m.getenv("PBS_SERVER") != "" || strings.Contains(host, "pbs") || m.hasBinary("qsub"):
		m.Scheduler = SchedulerPBS
		m.ClusterName = firstNonEmpty(m.getenv("PBS_SERVER"), "PBS-cluster-Y")
		m.CompilerFamily = "intel"
		m.seedPBSQueues()
	case strings.Contains(host, ".local") || runtimeIsDarwinArm(m.getenv):
		m.Scheduler = SchedulerNone
		m.ClusterName = ""
		m.CompilerFamily = "gnu"
	default:
		m.Scheduler = SchedulerNone
		m.ClusterName = ""
		m.CompilerFamily = "gnu"
	}
}

func runtimeIsDarwinArm(getenv func(string) string) bool {
	return getenv("CSTAR_FORCE_MACOS_ARM") == "1"
}

func (m *Manager) hasBinary(name string) bool {
	if m.lookPath == nil {
		return false
	}
	_, err := m.lookPath(name)
	return err == nil
}

func (m *Manager) seedSlurmQueues() {
	m.Queues["default"] = Queue{Name: "default", MaxWallTime: "48:00:00", MaxCPUsPerJob: 512, MaxMemPerJobGB: 1024}
	m.Directives[""] = []string{"#SBATCH --export=ALL"}
}

func (m *Manager) seedPBSQueues() {
	m.Queues["default"] = Queue{Name: "default", MaxWallTime: "48:00:00", MaxCPUsPerJob: 512, MaxMemPerJobGB: 1024}
	m.Directives[""] = []string{"#PBS -V"}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// IsScheduled reports whether this host submits work to a batch scheduler
// rather than running locally.
func (m *Manager) IsScheduled() bool {
	return m.Scheduler == SchedulerSlurm || m.Scheduler == SchedulerPBS
}

// RequireAccountAndQueue validates that the scheduler-specific account/queue
// environment variables are set, failing with ConfigurationError if this
// host is a scheduler cluster and they are not — evaluated "at submission
// time, not at import time" as SPEC_FULL §4.1 requires.
func (m *Manager) RequireAccountAndQueue(accountOverride, queueOverride string) (account, queue string, err error) {
	if !m.IsScheduled() {
		return accountOverride, queueOverride, nil
	}
	switch m.Scheduler {
	case SchedulerSlurm:
		account = firstNonEmpty(accountOverride, m.getenv("CSTAR_SLURM_ACCOUNT"))
		queue = firstNonEmpty(queueOverride, m.getenv("CSTAR_SLURM_QUEUE"))
		if account == "" {
			return "", "", cstar.New(cstar.KindConfiguration, "CSTAR_SLURM_ACCOUNT is required on %s but unset", m.ClusterName)
		}
		if queue == "" {
			return "", "", cstar.New(cstar.KindConfiguration, "CSTAR_SLURM_QUEUE is required on %s but unset", m.ClusterName)
		}
	case SchedulerPBS:
		account = firstNonEmpty(accountOverride, m.getenv("CSTAR_PBS_ACCOUNT"))
		queue = firstNonEmpty(queueOverride, m.getenv("CSTAR_PBS_QUEUE"))
		if account == "" {
			return "", "", cstar.New(cstar.KindConfiguration, "CSTAR_PBS_ACCOUNT is required on %s but unset", m.ClusterName)
		}
		if queue == "" {
			return "", "", cstar.New(cstar.KindConfiguration, "CSTAR_PBS_QUEUE is required on %s but unset", m.ClusterName)
		}
	}
	return account, queue, nil
}

// MaxWallTime returns CSTAR_SLURM_MAX_WALLTIME (shared by both scheduler
// flavors per SPEC_FULL §6) or its documented default.
func (m *Manager) MaxWallTime() string {
	if v := m.getenv("CSTAR_SLURM_MAX_WALLTIME"); v != "" {
		return v
	}
	return "48:00:00"
}
