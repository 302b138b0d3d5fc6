package consts

import "time"

// Target selects which language server endpoint the client dials.
type Target string

const (
	TargetEmbedded Target = "EMBEDDED" // LSP served by a running Godot editor
	TargetHeadless Target = "HEADLESS" // LSP served by a Godot instance we launched
)

// ManagerState is the connection state shown to the user.
type ManagerState string

const (
	StateInitializing       ManagerState = "INITIALIZING"
	StateInitializingTarget ManagerState = "INITIALIZING_TARGET" // Dialing a freshly launched headless server
	StatePending            ManagerState = "PENDING"
	StatePendingAfterRetry  ManagerState = "PENDING_AFTER_RETRY" // Reserved
	StateDisconnected       ManagerState = "DISCONNECTED"
	StateConnected          ManagerState = "CONNECTED"
	StateRetrying           ManagerState = "RETRYING"
)

// AllStates lists every ManagerState in display order.
var AllStates = []ManagerState{
	StateInitializing,
	StateInitializingTarget,
	StatePending,
	StatePendingAfterRetry,
	StateDisconnected,
	StateConnected,
	StateRetrying,
}

// ClientStatus is reported by the language server client connection.
type ClientStatus string

const (
	ClientPending      ClientStatus = "PENDING"
	ClientConnected    ClientStatus = "CONNECTED"
	ClientDisconnected ClientStatus = "DISCONNECTED"
)

// Process registry owner tags
const (
	OwnerLSP = "LSP"
)

// NoPort marks a client without a dynamically assigned headless port.
const NoPort = -1

// Editor context flags
const (
	ContextConnected = "connectedToLSP"
)

// Command names exposed to the editor.
const (
	CommandStartServer = "startLanguageServer"
	CommandStopServer  = "stopLanguageServer"
	CommandCheckStatus = "checkStatus"
	CommandStatus      = "status"
)

// Setting keys, as addressed in the config store.
const (
	KeyHeadless             = "lsp.headless"
	KeyServerHost           = "lsp.server_host"
	KeyServerPort           = "lsp.server_port"
	KeyAutoReconnectEnabled = "lsp.auto_reconnect.enabled"
	KeyAutoReconnectTries   = "lsp.auto_reconnect.attempts"
	KeyAutoReconnectCool    = "lsp.auto_reconnect.cooldown"
	KeyEditorPathGodot3     = "editor_path.godot3"
	KeyEditorPathGodot4     = "editor_path.godot4"
)

// Defaults
const (
	DefaultServerHost     = "127.0.0.1"
	DefaultServerPort     = 6008
	DefaultMaxAttempts    = 10
	DefaultCooldown       = 3 * time.Second
	DefaultDialTimeout    = 2 * time.Second
	DefaultControlSocket  = ".lspbridge/lspbridge.sock"
	DefaultStatusFeedAddr = "127.0.0.1:6070"
	DefaultMetricsAddr    = "127.0.0.1:9470"
	ProjectFileName       = "project.godot"
)

// Personal.AI order the ending
