// Package config loads and persists lspbridge settings.
package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/turtacn/lspbridge/pkg/consts"
	"github.com/turtacn/lspbridge/pkg/protocol"
)

// ConfigPaths defines the search locations for config files.
const (
	// GlobalConfigDir is the XDG config directory name
	GlobalConfigDir = "lspbridge"
	// GlobalConfigFile is the global config file name
	GlobalConfigFile = "config.yaml"
	// ProjectConfigDir is the project-local config directory
	ProjectConfigDir = ".lspbridge"
	// ProjectConfigFile is the project-local config file name
	ProjectConfigFile = "config.yaml"
	// EnvPrefix prefixes environment overrides, e.g. LSPBRIDGE_LSP_HEADLESS.
	EnvPrefix = "LSPBRIDGE"
)

// Default returns a Config with the stock settings.
func Default() *protocol.Config {
	return &protocol.Config{
		LSP: protocol.LSPConfig{
			Headless:   false,
			ServerHost: consts.DefaultServerHost,
			ServerPort: consts.DefaultServerPort,
			AutoReconnect: protocol.AutoReconnectConfig{
				Enabled:  true,
				Attempts: consts.DefaultMaxAttempts,
				Cooldown: consts.DefaultCooldown,
			},
		},
		EditorPath: protocol.EditorPathConfig{
			Godot3: "godot3",
			Godot4: "godot",
		},
		Workspace: protocol.WorkspaceConfig{
			Root: ".",
		},
		Control: protocol.ControlConfig{
			SocketPath: consts.DefaultControlSocket,
		},
		StatusFeed: protocol.StatusFeedConfig{
			Enabled: true,
			Addr:    consts.DefaultStatusFeedAddr,
		},
		Observability: protocol.ObservabilityConfig{
			MetricsAddr: "",
			LogLevel:    "info",
			LogRotation: protocol.LogRotationConfig{
				MaxSizeMB:  20,
				MaxBackups: 3,
				MaxAgeDays: 14,
				Compress:   false,
			},
		},
	}
}

// LoadConfig loads configuration from files and viper settings.
// Precedence (later overrides earlier):
//  1. Default() values
//  2. ~/.config/lspbridge/config.yaml (global)
//  3. .lspbridge/config.yaml (project)
//  4. Explicit --config file
//  5. Environment variables (LSPBRIDGE_*)
//  6. CLI flags (already bound to viper)
//
// Missing config files are silently ignored, except an explicit one.
func LoadConfig(v *viper.Viper) (*protocol.Config, error) {
	cfg := Default()

	defaultMap, err := structToMap(cfg)
	if err != nil {
		return nil, err
	}
	if err := v.MergeConfigMap(defaultMap); err != nil {
		return nil, err
	}

	if globalPath := globalConfigPath(); globalPath != "" {
		if err := loadConfigFile(v, globalPath); err != nil {
			return nil, err
		}
	}

	if projectPath := projectConfigPath(); projectPath != "" {
		if err := loadConfigFile(v, projectPath); err != nil {
			return nil, err
		}
	}

	if explicitPath := v.GetString("config"); explicitPath != "" {
		if _, err := os.Stat(explicitPath); err != nil {
			return nil, err
		}
		if err := loadConfigFile(v, explicitPath); err != nil {
			return nil, err
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.Unmarshal(cfg, viperDecodeHook()); err != nil {
		return nil, err
	}

	return cfg, nil
}

// WritablePath returns the file that setting changes are persisted to:
// the explicit --config file when given, the project file otherwise.
func WritablePath(v *viper.Viper) string {
	if explicitPath := v.GetString("config"); explicitPath != "" {
		return explicitPath
	}
	return filepath.Join(ProjectConfigDir, ProjectConfigFile)
}

// globalConfigPath returns the global config file path if it exists.
func globalConfigPath() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configDir = filepath.Join(home, ".config")
	}

	path := filepath.Join(configDir, GlobalConfigDir, GlobalConfigFile)
	if _, err := os.Stat(path); err == nil {
		return path
	}
	return ""
}

// projectConfigPath returns the project config file path if it exists.
func projectConfigPath() string {
	path := filepath.Join(ProjectConfigDir, ProjectConfigFile)
	if _, err := os.Stat(path); err == nil {
		return path
	}
	return ""
}

// loadConfigFile loads a YAML config file and merges it into viper.
// Returns nil if the file doesn't exist.
func loadConfigFile(v *viper.Viper, path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()

	fileViper := viper.New()
	fileViper.SetConfigType("yaml")
	if err := fileViper.ReadConfig(file); err != nil {
		return err
	}

	return v.MergeConfigMap(fileViper.AllSettings())
}

// viperDecodeHook returns the decoder config with duration hook.
func viperDecodeHook() viper.DecoderConfigOption {
	return viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
}

// structToMap converts a struct to a map for viper.MergeConfigMap.
func structToMap(cfg *protocol.Config) (map[string]interface{}, error) {
	result := make(map[string]interface{})

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: "mapstructure",
		Result:  &result,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			durationToStringHook(),
		),
	})
	if err != nil {
		return nil, err
	}

	if err := decoder.Decode(cfg); err != nil {
		return nil, err
	}

	return result, nil
}

// durationToStringHook converts time.Duration to string for YAML compatibility.
func durationToStringHook() mapstructure.DecodeHookFunc {
	return func(from, to reflect.Type, data interface{}) (interface{}, error) {
		if from != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		return data.(time.Duration).String(), nil
	}
}

// Personal.AI order the ending
