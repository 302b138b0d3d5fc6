// Package connection supervises the link between the editor and the GDScript
// language server: it picks the target, launches a headless server when
// configured to, reacts to client status changes and retries with a bounded
// budget.
//
// All state is owned by a single event loop (Manager.Run). Client status
// callbacks, retry ticks, commands and prompt answers are queued onto it, so
// no two handlers ever run concurrently.
package connection

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/turtacn/lspbridge/internal/headless"
	"github.com/turtacn/lspbridge/internal/monitor"
	"github.com/turtacn/lspbridge/pkg/consts"
	lberrors "github.com/turtacn/lspbridge/pkg/errors"
	"github.com/turtacn/lspbridge/pkg/fsm"
	"github.com/turtacn/lspbridge/pkg/logger"
)

// ErrStopped is returned by commands issued after the event loop has exited.
var ErrStopped = errors.New("connection manager stopped")

// Prompt actions
const (
	ActionRetry   = "Retry"
	ActionIgnore  = "Ignore"
	ActionRestart = "Restart LSP"
	ActionOk      = "Ok"
	ActionReload  = "Reload"
)

// RetryPhase tracks where the manager is in an automatic reconnection cycle.
type RetryPhase int

const (
	// PhaseFresh: no disconnect seen since the last connect or full cycle.
	PhaseFresh RetryPhase = iota
	// PhaseRetrying: retry ticks reconnect until the budget runs out.
	PhaseRetrying
	// PhaseExhausted: the budget ran out; only the user can restart.
	PhaseExhausted
)

func (p RetryPhase) String() string {
	switch p {
	case PhaseFresh:
		return "fresh"
	case PhaseRetrying:
		return "retrying"
	case PhaseExhausted:
		return "exhausted"
	}
	return fmt.Sprintf("RetryPhase(%d)", int(p))
}

// RetryBudget bounds automatic reconnection.
type RetryBudget struct {
	Attempts    int
	MaxAttempts int
	Cooldown    time.Duration
}

// Exhausted reports whether no further attempt is allowed.
func (b RetryBudget) Exhausted() bool {
	return b.Attempts > b.MaxAttempts-1
}

// State machine events
const (
	evPending   fsm.Event = "pending"
	evConnected fsm.Event = "connected"
	evLost      fsm.Event = "lost"
	evRetrying  fsm.Event = "retrying"
	evRelaunch  fsm.Event = "relaunching"
	evGiveUp    fsm.Event = "give_up"
)

const eventQueueSize = 64

type Manager struct {
	client   Client
	launcher Launcher
	settings Settings
	ui       UI

	fsm     *fsm.StateMachine
	target  consts.Target
	budget  RetryBudget
	phase   RetryPhase
	version string
	session io.Closer

	ctx    context.Context
	events chan func()
	done   chan struct{}
	log    logger.Logger
}

// New wires a manager. It subscribes to client status immediately; nothing
// else happens until Run.
func New(client Client, launcher Launcher, settings Settings, ui UI) *Manager {
	if ui == nil {
		ui = NopUI{}
	}
	m := &Manager{
		client:   client,
		launcher: launcher,
		settings: settings,
		ui:       ui,
		fsm:      fsm.New(fsm.State(consts.StateInitializing)),
		target:   consts.TargetEmbedded,
		budget: RetryBudget{
			MaxAttempts: settings.MaxAttempts(),
			Cooldown:    settings.Cooldown(),
		},
		ctx:    context.Background(),
		events: make(chan func(), eventQueueSize),
		done:   make(chan struct{}),
		log:    logger.Named("lsp.manager"),
	}
	m.setupFSM()
	client.WatchStatus(func(s consts.ClientStatus) {
		m.post(func() { m.onClientStatus(s) })
	})
	return m
}

func (m *Manager) setupFSM() {
	states := func(ss ...consts.ManagerState) []fsm.State {
		out := make([]fsm.State, 0, len(ss))
		for _, s := range ss {
			out = append(out, fsm.State(s))
		}
		return out
	}
	all := states(consts.AllStates...)
	// Only reachable while an automatic reconnection cycle is running: a
	// dial is pending, has just failed, or the budget is being spent.
	retrying := states(
		consts.StatePending,
		consts.StatePendingAfterRetry,
		consts.StateInitializingTarget,
		consts.StateRetrying,
		consts.StateDisconnected,
	)

	m.fsm.AddTransitions(all, fsm.State(consts.StatePending), evPending, m.onEnter)
	m.fsm.AddTransitions(all, fsm.State(consts.StateConnected), evConnected, m.onEnter)
	m.fsm.AddTransitions(all, fsm.State(consts.StateDisconnected), evLost, m.onEnter)
	m.fsm.AddTransitions(retrying, fsm.State(consts.StateRetrying), evRetrying, m.onEnter)
	m.fsm.AddTransitions(retrying, fsm.State(consts.StateInitializingTarget), evRelaunch, m.onEnter)
	m.fsm.AddTransitions(retrying, fsm.State(consts.StateDisconnected), evGiveUp, m.onEnter)
}

// Run performs the initial connection cycle and then serves events until
// ctx is cancelled. It must be called once.
func (m *Manager) Run(ctx context.Context) error {
	m.ctx = ctx
	defer close(m.done)

	monitor.SetState(m.State())
	m.ui.SetContext(consts.ContextConnected, false)
	m.render()
	m.fullCycle()

	cooldown := m.settings.Cooldown()
	ticker := time.NewTicker(cooldown)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.shutdown()
			return nil
		case fn := <-m.events:
			fn()
		case <-ticker.C:
			m.onTick()
			if c := m.settings.Cooldown(); c != cooldown {
				cooldown = c
				ticker.Reset(c)
				m.log.Info("Manager: retry cooldown changed", "cooldown", c)
			}
		}
	}
}

// State returns the current manager state. Safe from any goroutine.
func (m *Manager) State() consts.ManagerState {
	return consts.ManagerState(m.fsm.Current())
}

// StartLanguageServer forces the headless target: launch, reset the budget
// and connect.
func (m *Manager) StartLanguageServer(ctx context.Context) error {
	return m.call(ctx, m.startServer)
}

// StopLanguageServer kills every headless server this process launched.
func (m *Manager) StopLanguageServer(ctx context.Context) error {
	return m.call(ctx, m.launcher.Stop)
}

// CheckStatus acts like a click on the status item.
func (m *Manager) CheckStatus(ctx context.Context) error {
	return m.call(ctx, m.onStatusClick)
}

// Restart runs a full reconnection cycle.
func (m *Manager) Restart(ctx context.Context) error {
	return m.call(ctx, m.fullCycle)
}

// Status returns the current status view.
func (m *Manager) Status(ctx context.Context) (StatusView, error) {
	var v StatusView
	err := m.call(ctx, func() { v = m.view() })
	return v, err
}

// post queues fn on the event loop. It reports false once the loop is gone.
func (m *Manager) post(fn func()) bool {
	select {
	case m.events <- fn:
		return true
	case <-m.done:
		return false
	}
}

// call runs fn on the event loop and waits for it.
func (m *Manager) call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !m.post(func() { fn(); close(finished) }) {
		return ErrStopped
	}
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-m.done:
		return ErrStopped
	}
}

// fullCycle re-resolves the target and connects with a fresh budget.
func (m *Manager) fullCycle() {
	m.client.SetPort(consts.NoPort)
	m.target = consts.TargetEmbedded
	m.version = ""

	if m.settings.Headless() {
		m.target = consts.TargetHeadless
		m.launch()
	}

	m.budget.Attempts = 0
	m.phase = PhaseFresh
	m.log.Info("Manager: connecting", "target", m.target, "endpoint", m.endpoint())
	m.client.ConnectToServer(m.target)
}

func (m *Manager) startServer() {
	m.target = consts.TargetHeadless
	m.launch()
	m.budget.Attempts = 0
	m.phase = PhaseFresh
	m.client.ConnectToServer(m.target)
}

// launch runs the headless launcher. Failures are reported to the user and
// the manager still connects, so an already running server is picked up.
func (m *Manager) launch() {
	res, err := m.launcher.Launch(m.ctx)
	if err != nil {
		m.log.Warn("Manager: headless launch failed", "err", err, "code", lberrors.CodeOf(err))
		m.handleLaunchError(err)
		return
	}
	m.client.SetPort(res.Port)
	m.version = res.Version.String()
}

func (m *Manager) onClientStatus(status consts.ClientStatus) {
	m.log.Debug("Manager: client status", "status", status, "phase", m.phase)

	switch status {
	case consts.ClientPending:
		m.fire(evPending)

	case consts.ClientConnected:
		m.phase = PhaseFresh
		m.ui.SetContext(consts.ContextConnected, true)
		m.fire(evConnected)
		if !m.client.Started() {
			session, err := m.client.Start()
			if err != nil {
				m.log.Error("Manager: client start failed", "err", err)
				return
			}
			m.session = session
		}

	case consts.ClientDisconnected:
		m.ui.SetContext(consts.ContextConnected, false)
		switch m.phase {
		case PhaseRetrying:
			if m.client.Port() != consts.NoPort {
				m.fire(evRelaunch)
			} else {
				m.fire(evRetrying)
			}
		case PhaseFresh:
			m.phase = PhaseRetrying
			m.fire(evLost)
		case PhaseExhausted:
			m.fire(evLost)
		}
	}
}

func (m *Manager) onTick() {
	if m.phase == PhaseRetrying {
		m.retry()
	}
}

// retry reconnects while the budget allows and gives up otherwise.
func (m *Manager) retry() {
	m.budget.MaxAttempts = m.settings.MaxAttempts()
	if m.settings.AutoReconnectEnabled() && !m.budget.Exhausted() {
		m.budget.Attempts++
		m.phase = PhaseRetrying
		monitor.ReconnectAttempts.Inc()
		m.log.Info("Manager: reconnecting", "attempt", m.budget.Attempts, "max", m.budget.MaxAttempts, "target", m.target)
		m.render()
		m.client.ConnectToServer(m.target)
		return
	}

	m.phase = PhaseExhausted
	m.fire(evGiveUp)

	err := lberrors.New(lberrors.ErrCodeRetryExhausted, "Retry",
		fmt.Sprintf("Couldn't connect to the GDScript language server at %s. Is the Godot editor or language server running?", m.endpoint()), nil)
	m.log.Warn("Manager: giving up", "err", err, "attempts", m.budget.Attempts)
	m.ui.ShowError(lberrors.MessageOf(err), []string{ActionRetry, ActionIgnore}, m.reply(func(action string) {
		if action == ActionRetry {
			m.fullCycle()
		}
	}))
}

func (m *Manager) onStatusClick() {
	switch m.State() {
	case consts.StateConnected:
		msg := fmt.Sprintf("Connected to the GDScript language server at %s.", m.endpoint())
		if m.version != "" {
			msg += " " + m.version
		}
		m.ui.ShowInfo(msg, []string{ActionRestart, ActionOk}, m.reply(func(action string) {
			if action == ActionRestart {
				m.fullCycle()
			}
		}))
	case consts.StateDisconnected:
		m.retry()
	default:
		m.log.Info("Manager: status checked", "state", m.State(), "endpoint", m.endpoint())
	}
}

func (m *Manager) handleLaunchError(err error) {
	var le *headless.LaunchError
	if !errors.As(err, &le) {
		m.ui.ShowError(lberrors.MessageOf(err), nil, nil)
		return
	}

	m.ui.ShowError("Cannot launch headless LSP: "+le.Message(), le.Actions, m.reply(func(action string) {
		switch action {
		case headless.ActionSelectExecutable:
			m.ui.SelectExecutable(le.Setting, m.reply(func(path string) {
				if path == "" {
					return
				}
				if err := m.settings.SetEditorPath(le.Major, path); err != nil {
					m.ui.ShowError(lberrors.MessageOf(err), nil, nil)
					return
				}
				m.promptReload()
			}))
		case headless.ActionDisableHeadless:
			if err := m.settings.SetHeadless(false); err != nil {
				m.ui.ShowError(lberrors.MessageOf(err), nil, nil)
				return
			}
			m.promptReload()
		}
	}))
}

func (m *Manager) promptReload() {
	m.ui.ShowError("Reload to apply settings", []string{ActionReload}, m.reply(func(action string) {
		if action == ActionReload {
			m.fullCycle()
		}
	}))
}

// reply routes a UI answer back onto the event loop.
func (m *Manager) reply(fn func(string)) func(string) {
	return func(answer string) {
		m.post(func() { fn(answer) })
	}
}

// fire applies ev. Events the table does not allow from the current state
// are logged and dropped.
func (m *Manager) fire(ev fsm.Event) {
	if !m.fsm.Can(ev) {
		m.log.Warn("Manager: transition rejected", "event", ev, "state", m.State(), "phase", m.phase)
		return
	}
	if err := m.fsm.Fire(ev); err != nil {
		m.log.Error("Manager: transition failed", "event", ev, "err", err)
	}
}

// onEnter runs after every transition.
func (m *Manager) onEnter(from, to fsm.State, ev fsm.Event) error {
	if from != to {
		m.log.Info("Manager: state changed", "from", from, "to", to, "event", ev)
	}
	monitor.SetState(consts.ManagerState(to))
	m.render()
	return nil
}

func (m *Manager) endpoint() string {
	return m.client.Endpoint(m.target)
}

func (m *Manager) view() StatusView {
	return render(StatusView{
		State:       m.State(),
		Target:      m.target,
		Attempts:    m.budget.Attempts,
		MaxAttempts: m.settings.MaxAttempts(),
		Endpoint:    m.endpoint(),
		Version:     m.version,
		Phase:       m.phase.String(),
		Processes:   m.launcher.Running(),
	})
}

func (m *Manager) render() {
	m.ui.SetStatus(m.view())
}

func (m *Manager) shutdown() {
	if m.session != nil {
		if err := m.session.Close(); err != nil {
			m.log.Debug("Manager: session close", "err", err)
		}
		m.session = nil
	}
	m.log.Info("Manager: stopped", "state", m.State())
}

// Personal.AI order the ending
