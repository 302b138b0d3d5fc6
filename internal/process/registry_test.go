//go:build !windows

package process

import (
	"bufio"
	"errors"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"
)

// countingKiller records kill attempts and delegates to the real killer.
type countingKiller struct {
	mu    sync.Mutex
	pids  []int
	err   error
	inner func(int) error
}

func (k *countingKiller) kill(pid int) error {
	k.mu.Lock()
	k.pids = append(k.pids, pid)
	k.mu.Unlock()
	if k.err != nil {
		return k.err
	}
	if k.inner != nil {
		return k.inner(pid)
	}
	return nil
}

func (k *countingKiller) count() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.pids)
}

func waitExit(t *testing.T, h *Handle) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		_, _ = h.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("process %d did not exit", h.PID())
	}
}

func TestRegistry_KillAllEmptyTag(t *testing.T) {
	r := NewRegistry()
	r.KillAll("LSP")
	if r.Count("LSP") != 0 {
		t.Errorf("Count = %d, want 0", r.Count("LSP"))
	}
}

func TestRegistry_SpawnAndKillAll(t *testing.T) {
	r := NewRegistry()

	h, err := r.Spawn("LSP", exec.Command("sleep", "10"))
	if err != nil {
		t.Fatalf("Spawn failed: %v", err)
	}
	if h.PID() <= 0 {
		t.Fatalf("PID = %d", h.PID())
	}
	if h.Tag() != "LSP" || h.ID() == "" {
		t.Errorf("handle tag=%q id=%q", h.Tag(), h.ID())
	}
	if r.Count("LSP") != 1 {
		t.Errorf("Count = %d, want 1", r.Count("LSP"))
	}

	r.KillAll("LSP")
	waitExit(t, h)

	if !h.Exited() {
		t.Error("handle should report exit after Wait")
	}
	code, err := h.Wait()
	if err == nil {
		t.Error("Wait should return an error for a killed process")
	}
	if code == 0 {
		t.Errorf("exit code = %d, want non-zero", code)
	}
	if r.Count("LSP") != 0 {
		t.Errorf("Count after KillAll = %d, want 0", r.Count("LSP"))
	}
}

func TestRegistry_KillAllIsIdempotent(t *testing.T) {
	r := NewRegistry()
	k := &countingKiller{inner: killProcessTree}
	r.killTree = k.kill

	h, err := r.Spawn("LSP", exec.Command("sleep", "10"))
	if err != nil {
		t.Fatalf("Spawn failed: %v", err)
	}

	r.KillAll("LSP")
	r.KillAll("LSP")
	waitExit(t, h)

	if k.count() != 1 {
		t.Errorf("kill attempts = %d, want 1", k.count())
	}
}

func TestRegistry_ExitedLeaderSweepsGroupOnly(t *testing.T) {
	r := NewRegistry()
	k := &countingKiller{}
	g := &countingKiller{err: errNoProcess}
	r.killTree = k.kill
	r.killGroup = g.kill

	h, err := r.Spawn("LSP", exec.Command("true"))
	if err != nil {
		t.Fatalf("Spawn failed: %v", err)
	}
	waitExit(t, h)

	// Stale handle stays recorded until the next sweep
	if r.Count("LSP") != 1 {
		t.Errorf("Count = %d, want 1", r.Count("LSP"))
	}
	r.KillAll("LSP")
	if k.count() != 0 {
		t.Errorf("dead leader should not be signalled directly, got %d attempts", k.count())
	}
	if g.count() != 1 {
		t.Errorf("group sweep attempts = %d, want 1", g.count())
	}
	if r.Count("LSP") != 0 {
		t.Errorf("Count after sweep = %d, want 0", r.Count("LSP"))
	}
}

// alive reports whether pid exists and is not a zombie.
func alive(pid int) bool {
	if err := syscall.Kill(pid, 0); errors.Is(err, syscall.ESRCH) {
		return false
	}
	data, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/stat")
	if err != nil {
		return !os.IsNotExist(err)
	}
	fields := strings.Fields(string(data[strings.LastIndexByte(string(data), ')')+1:]))
	return len(fields) == 0 || fields[0] != "Z"
}

func TestRegistry_KillsDescendantsOfExitedLeader(t *testing.T) {
	r := NewRegistry()

	cmd := exec.Command("sh", "-c", "sleep 30 >/dev/null 2>&1 & echo $!")
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		t.Fatal(err)
	}
	h, err := r.Spawn("LSP", cmd)
	if err != nil {
		t.Fatalf("Spawn failed: %v", err)
	}
	line, err := bufio.NewReader(stdout).ReadString('\n')
	if err != nil {
		t.Fatalf("read child pid: %v", err)
	}
	child, err := strconv.Atoi(strings.TrimSpace(line))
	if err != nil {
		t.Fatalf("child pid %q: %v", line, err)
	}
	waitExit(t, h)
	defer syscall.Kill(child, syscall.SIGKILL)

	if !alive(child) {
		t.Fatal("background child should outlive the leader")
	}

	r.KillAll("LSP")

	deadline := time.Now().Add(3 * time.Second)
	for alive(child) {
		if time.Now().After(deadline) {
			t.Fatalf("descendant %d survived KillAll", child)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestRegistry_KillErrorsAreSwallowed(t *testing.T) {
	r := NewRegistry()
	k := &countingKiller{err: errors.New("no such process")}
	r.killTree = k.kill

	h, err := r.Spawn("LSP", exec.Command("sleep", "10"))
	if err != nil {
		t.Fatalf("Spawn failed: %v", err)
	}
	defer func() {
		_ = killProcessTree(h.PID())
		waitExit(t, h)
	}()

	r.KillAll("LSP") // must not panic or surface the error
	if k.count() != 1 {
		t.Errorf("kill attempts = %d, want 1", k.count())
	}
}

func TestRegistry_KillEverythingAndClose(t *testing.T) {
	r := NewRegistry()
	k := &countingKiller{inner: killProcessTree}
	r.killTree = k.kill

	a, err := r.Spawn("LSP", exec.Command("sleep", "10"))
	if err != nil {
		t.Fatalf("Spawn failed: %v", err)
	}
	b, err := r.Spawn("DEBUG", exec.Command("sleep", "10"))
	if err != nil {
		t.Fatalf("Spawn failed: %v", err)
	}

	r.Close()
	r.Close()
	waitExit(t, a)
	waitExit(t, b)

	if k.count() != 2 {
		t.Errorf("kill attempts = %d, want 2", k.count())
	}
	if r.Count("LSP")+r.Count("DEBUG") != 0 {
		t.Error("registry should be empty after Close")
	}
}

func TestRegistry_KillsProcessGroup(t *testing.T) {
	r := NewRegistry()

	h, err := r.Spawn("LSP", exec.Command("sleep", "10"))
	if err != nil {
		t.Fatalf("Spawn failed: %v", err)
	}
	pgid, err := syscall.Getpgid(h.PID())
	if err != nil {
		t.Fatalf("Getpgid: %v", err)
	}
	if pgid != h.PID() {
		t.Errorf("child should lead its own process group: pgid=%d pid=%d", pgid, h.PID())
	}

	r.KillAll("LSP")
	waitExit(t, h)
}

func TestRegistry_SpawnErrors(t *testing.T) {
	r := NewRegistry()

	if _, err := r.Spawn("LSP", nil); err == nil {
		t.Error("Spawn(nil) should fail")
	}
	if _, err := r.Spawn("LSP", exec.Command("/nonexistent/godot-binary")); err == nil {
		t.Error("Spawn of a missing binary should fail")
	}
	if r.Count("LSP") != 0 {
		t.Errorf("failed spawns must not be tracked, Count = %d", r.Count("LSP"))
	}
}

func TestDefault_IsSingleton(t *testing.T) {
	if Default() != Default() {
		t.Error("Default should return the same registry")
	}
}

func TestInstallShutdownHooks(t *testing.T) {
	var captured chan<- os.Signal
	exited := make(chan int, 1)

	origNotify, origStop, origExit := notifySignals, stopSignals, exitProcess
	notifySignals = func(c chan<- os.Signal, sig ...os.Signal) {
		captured = c
		if len(sig) != 3 {
			t.Errorf("expected 3 signals, got %v", sig)
		}
	}
	stopSignals = func(c chan<- os.Signal) {}
	exitProcess = func(code int) { exited <- code }
	defer func() { notifySignals, stopSignals, exitProcess = origNotify, origStop, origExit }()

	r := NewRegistry()
	k := &countingKiller{inner: killProcessTree}
	r.killTree = k.kill

	h, err := r.Spawn("LSP", exec.Command("sleep", "10"))
	if err != nil {
		t.Fatalf("Spawn failed: %v", err)
	}

	uninstall := r.InstallShutdownHooks()
	defer uninstall()
	if captured == nil {
		t.Fatal("hooks did not subscribe to signals")
	}
	// Installing twice is a no-op
	r.InstallShutdownHooks()

	captured <- syscall.SIGTERM

	select {
	case code := <-exited:
		if code != 0 {
			t.Errorf("exit code = %d, want 0", code)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("signal handler did not exit")
	}
	waitExit(t, h)
	if k.count() != 1 {
		t.Errorf("kill attempts = %d, want 1", k.count())
	}
}
