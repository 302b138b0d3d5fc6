// Package headless launches a windowless Godot editor that serves the
// GDScript language server on a private port.
package headless

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"

	"github.com/turtacn/lspbridge/internal/config"
	"github.com/turtacn/lspbridge/internal/godot"
	"github.com/turtacn/lspbridge/internal/monitor"
	"github.com/turtacn/lspbridge/internal/process"
	"github.com/turtacn/lspbridge/internal/resource"
	"github.com/turtacn/lspbridge/pkg/consts"
	lberrors "github.com/turtacn/lspbridge/pkg/errors"
	"github.com/turtacn/lspbridge/pkg/logger"
)

// Actions offered when a launch is rejected.
const (
	ActionSelectExecutable = "Select Godot executable"
	ActionDisableHeadless  = "Disable Headless LSP"
	ActionIgnore           = "Ignore"
)

// Spawner is the slice of the process registry the launcher needs.
type Spawner interface {
	Spawn(tag string, cmd *exec.Cmd) (*process.Handle, error)
	KillAll(tag string)
	Count(tag string) int
}

// CommandRunner abstracts short-lived command execution for dependency injection.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner executes real commands using os/exec.
type ExecRunner struct{}

// Run executes a command and returns its standard output.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// ProjectResolver locates the Godot project in the workspace.
type ProjectResolver interface {
	ProjectDir(ctx context.Context) (string, error)
	ProjectVersion(ctx context.Context) (string, error)
}

// Settings exposes the configured Godot executables.
type Settings interface {
	EditorPath(major int) string
}

// PortAllocator hands out a free TCP port on host.
type PortAllocator func(host string) (int, error)

// LaunchError is a rejected or failed launch, carrying what the user can do about it.
type LaunchError struct {
	Err     error
	Setting string // Executable setting the user may change
	Major   int
	Actions []string
}

func (e *LaunchError) Error() string { return e.Err.Error() }
func (e *LaunchError) Unwrap() error { return e.Err }

// Message is the user-facing text of the error.
func (e *LaunchError) Message() string { return lberrors.MessageOf(e.Err) }

// Result describes a running headless language server.
type Result struct {
	Port    int
	Version godot.Version
}

// Option configures a Launcher.
type Option func(*Launcher)

// WithRunner replaces the command runner used for version probes.
func WithRunner(r CommandRunner) Option {
	return func(l *Launcher) { l.runner = r }
}

// WithPortAllocator replaces the free port allocator.
func WithPortAllocator(p PortAllocator) Option {
	return func(l *Launcher) { l.allocPort = p }
}

// WithHost sets the interface the port is allocated on.
func WithHost(host string) Option {
	return func(l *Launcher) { l.host = host }
}

type Launcher struct {
	spawner   Spawner
	project   ProjectResolver
	settings  Settings
	runner    CommandRunner
	allocPort PortAllocator
	host      string

	log    logger.Logger
	stdout logger.Logger
}

func New(spawner Spawner, project ProjectResolver, settings Settings, opts ...Option) *Launcher {
	l := &Launcher{
		spawner:   spawner,
		project:   project,
		settings:  settings,
		runner:    ExecRunner{},
		allocPort: resource.FreePort,
		host:      consts.DefaultServerHost,
		log:       logger.Named("lsp.headless"),
		stdout:    logger.Named("lsp.stdout"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Probe runs `exe --version` and parses the result.
func (l *Launcher) Probe(ctx context.Context, exe string) (godot.Version, error) {
	out, err := l.runner.Run(ctx, exe, "--version")
	if err != nil {
		return godot.Version{}, fmt.Errorf("run %s --version: %w", exe, err)
	}
	return godot.ParseVersion(string(out))
}

// Launch replaces any running headless server with a fresh one.
// Nothing is allocated or spawned unless the configured executable matches
// the project's engine line.
func (l *Launcher) Launch(ctx context.Context) (Result, error) {
	l.Stop()

	dir, err := l.project.ProjectDir(ctx)
	if err != nil {
		monitor.HeadlessLaunches.WithLabelValues(monitor.LaunchRejected).Inc()
		return Result{}, &LaunchError{
			Err: lberrors.New(lberrors.ErrCodeProjectNotFound, "Launch",
				"Current workspace is not a Godot project", err),
		}
	}

	projectVersion, err := l.project.ProjectVersion(ctx)
	if err != nil {
		l.log.Warn("Headless: cannot read project version, assuming default", "err", err)
	}
	line := godot.RequirementFor(projectVersion)
	setting := config.EditorPathKey(line.Major)
	exe := l.settings.EditorPath(line.Major)

	version, err := l.Probe(ctx, exe)
	if err != nil {
		return Result{}, l.reject(lberrors.ErrCodeExecutableInvalid, line, setting,
			fmt.Sprintf("Invalid Godot executable path for LSP: %s. Please check the %s setting.", exe, setting),
			err, ActionSelectExecutable, ActionIgnore)
	}
	if version.Major != line.Major {
		return Result{}, l.reject(lberrors.ErrCodeVersionMismatch, line, setting,
			fmt.Sprintf("The specified Godot executable, %s, has the wrong version. Expected %d.x, found %d.%d.",
				exe, line.Major, version.Major, version.Minor),
			nil, ActionSelectExecutable, ActionIgnore)
	}
	if version.Minor < line.MinMinor {
		return Result{}, l.reject(lberrors.ErrCodeHeadlessUnsupported, line, setting,
			fmt.Sprintf("Headless LSP is only supported on Godot v%s or newer, found %d.%d.",
				line.Target, version.Major, version.Minor),
			nil, ActionSelectExecutable, ActionDisableHeadless, ActionIgnore)
	}

	port, err := l.allocPort(l.host)
	if err != nil {
		monitor.HeadlessLaunches.WithLabelValues(monitor.LaunchFailed).Inc()
		return Result{}, &LaunchError{
			Err:   lberrors.New(lberrors.ErrCodePortAllocFail, "Launch", "Cannot allocate a port for the headless LSP", err),
			Major: line.Major,
		}
	}

	if err := l.spawn(exe, dir, port); err != nil {
		monitor.HeadlessLaunches.WithLabelValues(monitor.LaunchFailed).Inc()
		return Result{}, &LaunchError{
			Err:     lberrors.New(lberrors.ErrCodeProcessStartFail, "Launch", "Cannot start the headless LSP", err),
			Setting: setting,
			Major:   line.Major,
			Actions: []string{ActionSelectExecutable, ActionIgnore},
		}
	}

	monitor.HeadlessLaunches.WithLabelValues(monitor.LaunchOK).Inc()
	l.log.Info("Headless: LSP launched", "exe", exe, "project", dir, "port", port, "version", version.Raw, "output", version.Output)
	return Result{Port: port, Version: version}, nil
}

// Running returns how many launched servers the registry still tracks,
// including ones that exited since the last Stop.
func (l *Launcher) Running() int {
	return l.spawner.Count(consts.OwnerLSP)
}

// Stop kills every headless server this process launched.
func (l *Launcher) Stop() {
	l.spawner.KillAll(consts.OwnerLSP)
}

func (l *Launcher) reject(code lberrors.ErrorCode, line godot.Line, setting, msg string, cause error, actions ...string) error {
	monitor.HeadlessLaunches.WithLabelValues(monitor.LaunchRejected).Inc()
	l.log.Warn("Headless: launch rejected", "code", code, "msg", msg, "err", cause)
	return &LaunchError{
		Err:     lberrors.New(code, "Launch", msg, cause),
		Setting: setting,
		Major:   line.Major,
		Actions: actions,
	}
}

func (l *Launcher) spawn(exe, dir string, port int) error {
	cmd := exec.Command(exe,
		"--path", dir,
		"--editor",
		"--headless",
		"--no-window",
		"--lsp-port", strconv.Itoa(port),
	)
	// Stderr stays nil and goes to the null device
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}

	h, err := l.spawner.Spawn(consts.OwnerLSP, cmd)
	if err != nil {
		return err
	}

	go func() {
		l.pumpStdout(stdout, h.PID())
		code, err := h.Wait()
		l.log.Info("Headless: LSP exited", "pid", h.PID(), "code", code, "err", err)
	}()
	return nil
}

const maxStdoutLine = 1 << 20

// pumpStdout logs the server's output line by line until EOF. Output that
// cannot be split into lines is drained so the server never blocks on a
// full pipe.
func (l *Launcher) pumpStdout(r io.Reader, pid int) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxStdoutLine)
	for scanner.Scan() {
		l.stdout.Debug(scanner.Text(), "pid", pid)
	}
	if err := scanner.Err(); err != nil {
		l.log.Warn("Headless: LSP output no longer logged", "pid", pid, "err", err)
		_, _ = io.Copy(io.Discard, r)
	}
}

// Personal.AI order the ending
