package protocol

import "time"

// Config represents the root configuration of the bridge.
type Config struct {
	LSP           LSPConfig           `yaml:"lsp" mapstructure:"lsp"`
	EditorPath    EditorPathConfig    `yaml:"editor_path" mapstructure:"editor_path"`
	Workspace     WorkspaceConfig     `yaml:"workspace" mapstructure:"workspace"`
	Control       ControlConfig       `yaml:"control" mapstructure:"control"`
	StatusFeed    StatusFeedConfig    `yaml:"status_feed" mapstructure:"status_feed"`
	Observability ObservabilityConfig `yaml:"observability" mapstructure:"observability"`
}

type LSPConfig struct {
	Headless      bool                `yaml:"headless" mapstructure:"headless"` // Launch and supervise a headless Godot
	ServerHost    string              `yaml:"server_host" mapstructure:"server_host"`
	ServerPort    int                 `yaml:"server_port" mapstructure:"server_port"` // Embedded editor LSP port
	AutoReconnect AutoReconnectConfig `yaml:"auto_reconnect" mapstructure:"auto_reconnect"`
}

type AutoReconnectConfig struct {
	Enabled  bool          `yaml:"enabled" mapstructure:"enabled"`
	Attempts int           `yaml:"attempts" mapstructure:"attempts"`
	Cooldown time.Duration `yaml:"cooldown" mapstructure:"cooldown"` // Retry tick interval
}

// EditorPathConfig holds the Godot executable per major version.
type EditorPathConfig struct {
	Godot3 string `yaml:"godot3" mapstructure:"godot3"`
	Godot4 string `yaml:"godot4" mapstructure:"godot4"`
}

type WorkspaceConfig struct {
	Root string `yaml:"root" mapstructure:"root"` // Searched for project.godot
}

type ControlConfig struct {
	SocketPath string `yaml:"socket_path" mapstructure:"socket_path"`
}

type StatusFeedConfig struct {
	Enabled        bool     `yaml:"enabled" mapstructure:"enabled"`
	Addr           string   `yaml:"addr" mapstructure:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"` // Besides loopback pages
}

type ObservabilityConfig struct {
	MetricsAddr string            `yaml:"metrics_addr" mapstructure:"metrics_addr"` // Empty disables metrics
	LogLevel    string            `yaml:"log_level" mapstructure:"log_level"`
	LogFile     string            `yaml:"log_file" mapstructure:"log_file"` // Empty logs to stdout
	LogRotation LogRotationConfig `yaml:"log_rotation" mapstructure:"log_rotation"`
}

type LogRotationConfig struct {
	MaxSizeMB  int  `yaml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int  `yaml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int  `yaml:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool `yaml:"compress" mapstructure:"compress"`
}

// Personal.AI order the ending
