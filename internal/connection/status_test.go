package connection

import (
	"strings"
	"testing"

	"github.com/turtacn/lspbridge/pkg/consts"
)

func TestRender(t *testing.T) {
	base := StatusView{Attempts: 2, MaxAttempts: 10, Endpoint: "127.0.0.1:6008"}

	tests := []struct {
		state consts.ManagerState
		text  string
	}{
		{consts.StateInitializing, "Initializing"},
		{consts.StateInitializingTarget, "Initializing LSP 2/10"},
		{consts.StatePending, "Connecting"},
		{consts.StatePendingAfterRetry, "Connecting 2/10"},
		{consts.StateConnected, "Connected"},
		{consts.StateDisconnected, "Disconnected"},
		{consts.StateRetrying, "Connecting 2/10"},
	}
	for _, tt := range tests {
		v := base
		v.State = tt.state
		got := render(v)
		if got.Text != tt.text {
			t.Errorf("%s: text = %q, want %q", tt.state, got.Text, tt.text)
		}
		if got.Tooltip == "" {
			t.Errorf("%s: empty tooltip", tt.state)
		}
	}
}

func TestRender_VersionInTooltip(t *testing.T) {
	v := render(StatusView{
		State:    consts.StateConnected,
		Endpoint: "127.0.0.1:45000",
		Version:  "4.2.stable.official.46dc27791",
	})
	if !strings.HasSuffix(v.Tooltip, "127.0.0.1:45000\n4.2.stable.official.46dc27791") {
		t.Errorf("tooltip = %q", v.Tooltip)
	}

	v = render(StatusView{State: consts.StateDisconnected, Version: "4.2.stable.official.46dc27791"})
	if strings.Contains(v.Tooltip, "4.2") {
		t.Errorf("disconnected tooltip should not carry the version: %q", v.Tooltip)
	}
}
