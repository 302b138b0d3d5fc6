package connection

import (
	"context"
	"io"
	"time"

	"github.com/turtacn/lspbridge/internal/headless"
	"github.com/turtacn/lspbridge/internal/lspclient"
	"github.com/turtacn/lspbridge/pkg/consts"
)

// Client is the language server connection the manager drives.
type Client interface {
	ConnectToServer(target consts.Target)
	Port() int
	SetPort(port int)
	Started() bool
	Start() (io.Closer, error)
	WatchStatus(h lspclient.StatusHandler)
	// Endpoint is the address ConnectToServer dials for target.
	Endpoint(target consts.Target) string
}

// Launcher starts and stops the headless language server.
type Launcher interface {
	Launch(ctx context.Context) (headless.Result, error)
	Stop()
	Running() int
}

// Settings is the configuration the manager reads and writes.
type Settings interface {
	Headless() bool
	AutoReconnectEnabled() bool
	MaxAttempts() int
	Cooldown() time.Duration
	SetHeadless(enabled bool) error
	SetEditorPath(major int, path string) error
}

// UI is the user-facing surface: a status item, context flags and prompts.
// Reply callbacks may be invoked from any goroutine, at most once, with the
// chosen action or an empty string when the prompt is dismissed.
type UI interface {
	SetStatus(view StatusView)
	SetContext(key string, value bool)
	ShowInfo(msg string, actions []string, reply func(action string))
	ShowError(msg string, actions []string, reply func(action string))
	SelectExecutable(setting string, reply func(path string))
}

// NopUI discards everything. Prompts are dismissed immediately.
type NopUI struct{}

func (NopUI) SetStatus(StatusView)     {}
func (NopUI) SetContext(string, bool) {}
func (NopUI) ShowInfo(_ string, _ []string, reply func(string)) {
	if reply != nil {
		reply("")
	}
}
func (NopUI) ShowError(_ string, _ []string, reply func(string)) {
	if reply != nil {
		reply("")
	}
}
func (NopUI) SelectExecutable(_ string, reply func(string)) {
	if reply != nil {
		reply("")
	}
}

// Personal.AI order the ending
