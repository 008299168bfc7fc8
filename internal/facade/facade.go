// Package facade abstracts spawning, signalling, and sampling operating
// system processes. It is the only package in the core that touches
// os/exec and gopsutil directly; every other component depends on the
// Facade interface so it can be faked in tests.
package facade

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	gopscpu "github.com/shirou/gopsutil/v3/cpu"
	gopshost "github.com/shirou/gopsutil/v3/host"
	gopsmem "github.com/shirou/gopsutil/v3/mem"
	gopsnet "github.com/shirou/gopsutil/v3/net"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/oarkflow/processguard/internal/model"
)

// SignalKind is a portable signal request understood by Signal.
type SignalKind int

const (
	SigTerm SignalKind = iota
	SigKill
	SigInterrupt
)

// ErrAlreadyExited names the already-exited case. No facade method returns
// it: Signal returns nil when the target process group has already gone
// away.
var ErrAlreadyExited = errors.New("process already exited")

// SpawnSpec describes a child to launch.
type SpawnSpec struct {
	Command string
	Dir string
	Env []string
	Stdout io.Writer
	Stderr io.Writer
}

// Handle is an opaque reference to a spawned child, carrying its PID and
// process-group id. wait_exit must be called exactly once per handle.
type Handle struct {
	PID int
	PGID int
	cmd *exec.Cmd
	waited chan struct{}
	exitCode int
	waitErr error
}

// ConnInfo is one open socket as reported by list_connections.
type ConnInfo struct {
	Port uint32
	PID int32
}

// HostMetrics is the thin system-wide metrics surface; specified at the
// interface level only per spec.md §1.
type HostMetrics struct {
	CPUPercent float64
	MemoryPercent float64
	MemoryTotal uint64
	MemoryAvailable uint64
	Uptime time.Duration
}

// Facade is the surface the rest of the core depends on.
type Facade interface {
	Spawn(ctx context.Context, spec SpawnSpec) (*Handle, error)
	Signal(h *Handle, kind SignalKind) error
	WaitExit(h *Handle) (int, error)
	Sample(pid int) (model.MetricSample, error)
	ListConnections() ([]ConnInfo, error)
	HostMetrics() (HostMetrics, error)
}

// OSFacade is the real Facade, backed by os/exec for process control and
// gopsutil for /proc-style sampling — the same library eliteGoblin-focusd
// uses for its process stats.
type OSFacade struct{}

// New constructs the real OS-backed facade.
func New() *OSFacade {
	return &OSFacade{}
}

// Spawn starts cmd in cwd with env in a new process group, exactly as the
// teacher's startChildStandalone does (Setpgid so signal can reliably
// reach shell-wrapper grandchildren).
func (f *OSFacade) Spawn(ctx context.Context, spec SpawnSpec) (*Handle, error) {
	if spec.Dir != "" {
		if st, err := os.Stat(spec.Dir); err != nil || !st.IsDir() {
			return nil, &model.SpawnError{Kind: model.SpawnWorkingDirMissing, Message: spec.Dir}
		}
	}
	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", spec.Command)
	cmd.Dir = spec.Dir
	cmd.Env = spec.Env
	cmd.Stdout = spec.Stdout
	cmd.Stderr = spec.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return nil, classifySpawnError(err)
	}

	h := &Handle{
		PID: cmd.Process.Pid,
		PGID: cmd.Process.Pid,
		cmd: cmd,
		waited: make(chan struct{}),
	}
	return h, nil
}

func classifySpawnError(err error) error {
	var perr *os.PathError
	msg := err.Error()
	switch {
	case errors.As(err, &perr) && os.IsNotExist(perr.Err):
		return &model.SpawnError{Kind: model.SpawnNotFound, Message: msg}
	case errors.As(err, &perr) && os.IsPermission(perr.Err):
		return &model.SpawnError{Kind: model.SpawnPermissionDenied, Message: msg}
	case strings.Contains(msg, "no such file"):
		return &model.SpawnError{Kind: model.SpawnNotFound, Message: msg}
	case strings.Contains(msg, "permission denied"):
		return &model.SpawnError{Kind: model.SpawnPermissionDenied, Message: msg}
	default:
		return &model.SpawnError{Kind: model.SpawnOther, Message: msg}
	}
}

// Signal sends kind to the child's process group. AlreadyExited is
// swallowed, not returned as an error, per spec.md §4.1.
func (f *OSFacade) Signal(h *Handle, kind SignalKind) error {
	if h == nil || h.PGID == 0 {
		return nil
	}
	var sig syscall.Signal
	switch kind {
	case SigTerm:
		sig = syscall.SIGTERM
	case SigKill:
		sig = syscall.SIGKILL
	case SigInterrupt:
		sig = syscall.SIGINT
	default:
		sig = syscall.SIGTERM
	}
	err := syscall.Kill(-h.PGID, sig)
	if err != nil && errors.Is(err, syscall.ESRCH) {
		return nil
	}
	return err
}

// WaitExit blocks until the child terminates and returns its exit code.
// Must be called exactly once per handle.
func (f *OSFacade) WaitExit(h *Handle) (int, error) {
	err := h.cmd.Wait()
	close(h.waited)
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return -1, err
}

// Sample reads CPU%, RSS, threads, open files, and connections for pid via
// gopsutil. Returns a NotFoundError-flavored error if the process is gone
// — it must never panic on an exited process.
func (f *OSFacade) Sample(pid int) (model.MetricSample, error) {
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return model.MetricSample{}, &model.NotFoundError{Kind: "pid", ID: fmt.Sprint(pid)}
	}
	cpuPct, err := proc.CPUPercent()
	if err != nil {
		return model.MetricSample{}, &model.NotFoundError{Kind: "pid", ID: fmt.Sprint(pid)}
	}
	memPct, _ := proc.MemoryPercent()
	meminfo, _ := proc.MemoryInfo()
	var rss uint64
	if meminfo != nil {
		rss = meminfo.RSS
	}
	threads, _ := proc.NumThreads()
	files, _ := proc.OpenFiles()
	conns, _ := proc.Connections()
	createdMs, _ := proc.CreateTime()
	uptime := time.Since(time.UnixMilli(createdMs)).Seconds()

	return model.MetricSample{
		Timestamp: time.Now(),
		CPUPercent: cpuPct,
		RSSBytes: rss,
		MemoryPercent: float64(memPct),
		Threads: int(threads),
		OpenFiles: len(files),
		Connections: len(conns),
		UptimeSeconds: uptime,
	}, nil
}

// ListConnections enumerates open sockets system-wide; used by the
// system-metrics collaborator, not by the core algorithms.
func (f *OSFacade) ListConnections() ([]ConnInfo, error) {
	conns, err := gopsnet.Connections("all")
	if err != nil {
		return nil, err
	}
	out := make([]ConnInfo, 0, len(conns))
	for _, c := range conns {
		out = append(out, ConnInfo{Port: c.Laddr.Port, PID: c.Pid})
	}
	return out, nil
}

// HostMetrics reports aggregate host CPU/memory/uptime; a thin wrapper,
// per spec.md §1's explicit "specified only at the interface level".
func (f *OSFacade) HostMetrics() (HostMetrics, error) {
	var hm HostMetrics
	if pcts, err := gopscpu.Percent(0, false); err == nil && len(pcts) > 0 {
		hm.CPUPercent = pcts[0]
	}
	if vm, err := gopsmem.VirtualMemory(); err == nil {
		hm.MemoryPercent = vm.UsedPercent
		hm.MemoryTotal = vm.Total
		hm.MemoryAvailable = vm.Available
	}
	if secs, err := gopshost.Uptime(); err == nil {
		hm.Uptime = time.Duration(secs) * time.Second
	}
	return hm, nil
}
