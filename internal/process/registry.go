// Package process tracks child processes by owner tag and guarantees they
// are killed when the host process goes away.
//
// The registry is a process-wide singleton (see Default): it is created on
// first use, its shutdown hooks are installed once at startup, and it is torn
// down exactly once, either by Close on normal exit or by a signal handler.
// KillAll and KillEverything are safe to call from any goroutine, including
// the signal handler, and are idempotent.
package process

import (
	"errors"
	"fmt"
	"os/exec"
	"sync"

	"github.com/google/uuid"

	"github.com/turtacn/lspbridge/internal/monitor"
	"github.com/turtacn/lspbridge/pkg/logger"
)

// Handle is an opaque reference to a spawned child process.
type Handle struct {
	id   string
	tag  string
	cmd  *exec.Cmd
	done chan struct{}

	waitOnce sync.Once
	exitCode int
	exitErr  error
}

// ID returns the registry-unique identifier of the handle.
func (h *Handle) ID() string { return h.id }

// Tag returns the owner tag the process was spawned under.
func (h *Handle) Tag() string { return h.tag }

// PID returns the operating system process id.
func (h *Handle) PID() int {
	if h.cmd.Process == nil {
		return -1
	}
	return h.cmd.Process.Pid
}

// Wait blocks until the process exits and returns its exit code.
// The registry never calls Wait itself; whoever spawned the process
// decides whether to observe its exit. Safe to call more than once.
func (h *Handle) Wait() (int, error) {
	h.waitOnce.Do(func() {
		err := h.cmd.Wait()
		h.exitErr = err
		h.exitCode = 0
		if err != nil {
			if exitErr, ok := err.(*exec.ExitError); ok {
				h.exitCode = exitErr.ExitCode()
			} else {
				h.exitCode = -1
			}
		}
		close(h.done)
	})
	return h.exitCode, h.exitErr
}

// Exited reports whether Wait has observed the process exit.
func (h *Handle) Exited() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Registry maps owner tags to the processes spawned under them,
// in spawn order.
type Registry struct {
	mu       sync.Mutex
	children map[string][]*Handle

	// killTree and killGroup are swapped in tests to observe termination
	// attempts.
	killTree  func(pid int) error
	killGroup func(pgid int) error

	closeOnce sync.Once
	hooksOnce sync.Once
	log       logger.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		children:  make(map[string][]*Handle),
		killTree:  killProcessTree,
		killGroup: killOrphanedGroup,
		log:       logger.Named("process.registry"),
	}
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns the process-wide registry.
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// Spawn starts cmd in its own process group and records it under tag.
// It returns as soon as the process has started.
func (r *Registry) Spawn(tag string, cmd *exec.Cmd) (*Handle, error) {
	if cmd == nil || cmd.Path == "" {
		return nil, fmt.Errorf("spawn %s: empty command", tag)
	}
	setProcessGroup(cmd)

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("spawn %s: %w", tag, err)
	}

	h := &Handle{
		id:   uuid.New().String(),
		tag:  tag,
		cmd:  cmd,
		done: make(chan struct{}),
	}

	r.mu.Lock()
	r.children[tag] = append(r.children[tag], h)
	count := len(r.children[tag])
	r.mu.Unlock()

	r.log.Info("Registry: Spawned process", "tag", tag, "pid", h.PID(), "id", h.id, "tracked", count)
	return h, nil
}

// KillAll force-kills every process (and its children) recorded under tag
// and forgets them. Termination errors are swallowed: the process may
// already be gone.
func (r *Registry) KillAll(tag string) {
	r.mu.Lock()
	handles := r.children[tag]
	delete(r.children, tag)
	r.mu.Unlock()

	for _, h := range handles {
		r.kill(h)
	}
}

// KillEverything runs KillAll for every known tag.
func (r *Registry) KillEverything() {
	r.mu.Lock()
	tags := make([]string, 0, len(r.children))
	for tag := range r.children {
		tags = append(tags, tag)
	}
	r.mu.Unlock()

	for _, tag := range tags {
		r.KillAll(tag)
	}
}

// Count returns the number of handles currently recorded under tag,
// including stale ones that have already exited.
func (r *Registry) Count(tag string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.children[tag])
}

// Close kills everything exactly once. It is the normal-exit teardown.
func (r *Registry) Close() {
	r.closeOnce.Do(r.KillEverything)
}

// errNoProcess reports that nothing was left to kill.
var errNoProcess = errors.New("no such process")

func (r *Registry) kill(h *Handle) {
	pid := h.PID()
	if pid <= 0 {
		return
	}
	if h.Exited() {
		// The leader is gone but its descendants may still hold the group.
		if err := r.killGroup(pid); err != nil {
			if !errors.Is(err, errNoProcess) {
				r.log.Debug("Registry: group kill ignored", "tag", h.tag, "pgid", pid, "err", err)
			}
			return
		}
		monitor.ProcessKills.Inc()
		r.log.Info("Registry: Killed orphaned process group", "tag", h.tag, "pgid", pid)
		return
	}
	if err := r.killTree(pid); err != nil {
		r.log.Debug("Registry: kill ignored", "tag", h.tag, "pid", pid, "err", err)
		return
	}
	monitor.ProcessKills.Inc()
	r.log.Info("Registry: Killed process tree", "tag", h.tag, "pid", pid)
}

// Personal.AI order the ending
