package connection

import (
	"fmt"

	"github.com/turtacn/lspbridge/pkg/consts"
)

// StatusView is what the status item shows.
type StatusView struct {
	State       consts.ManagerState `json:"state"`
	Target      consts.Target       `json:"target"`
	Text        string              `json:"text"`
	Tooltip     string              `json:"tooltip"`
	Attempts    int                 `json:"attempts"`
	MaxAttempts int                 `json:"max_attempts"`
	Endpoint    string              `json:"endpoint"`
	Version     string              `json:"version,omitempty"`
	Phase       string              `json:"phase"`
	Processes   int                 `json:"headless_processes"`
}

func render(v StatusView) StatusView {
	withVersion := func(s string) string {
		if v.Version != "" {
			return s + "\n" + v.Version
		}
		return s
	}

	switch v.State {
	case consts.StateInitializing:
		v.Text = "Initializing"
		v.Tooltip = "Initializing extension..."
	case consts.StateInitializingTarget:
		v.Text = fmt.Sprintf("Initializing LSP %d/%d", v.Attempts, v.MaxAttempts)
		v.Tooltip = withVersion("Connecting to headless GDScript language server.\n" + v.Endpoint)
	case consts.StatePending:
		v.Text = "Connecting"
		v.Tooltip = "Connecting to the GDScript language server at " + v.Endpoint
	case consts.StatePendingAfterRetry, consts.StateRetrying:
		v.Text = fmt.Sprintf("Connecting %d/%d", v.Attempts, v.MaxAttempts)
		v.Tooltip = withVersion("Connecting to the GDScript language server.\n" + v.Endpoint)
	case consts.StateConnected:
		v.Text = "Connected"
		v.Tooltip = withVersion("Connected to the GDScript language server.\n" + v.Endpoint)
	case consts.StateDisconnected:
		v.Text = "Disconnected"
		v.Tooltip = "Disconnected from the GDScript language server."
	}
	return v
}

// Personal.AI order the ending
