package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"

	"github.com/turtacn/lspbridge/pkg/consts"
	"github.com/turtacn/lspbridge/pkg/protocol"
)

// inTempProject chdirs into a fresh directory and isolates the global config.
func inTempProject(t *testing.T) string {
	t.Helper()
	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmpDir, "xdg"))

	oldWd, _ := os.Getwd()
	if err := os.Chdir(tmpDir); err != nil {
		t.Fatalf("chdir failed: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(oldWd) })
	return tmpDir
}

func writeProjectConfig(t *testing.T, content string) {
	t.Helper()
	if err := os.MkdirAll(ProjectConfigDir, 0755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	path := filepath.Join(ProjectConfigDir, ProjectConfigFile)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config failed: %v", err)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	inTempProject(t)

	cfg, err := LoadConfig(viper.New())
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.LSP.Headless {
		t.Error("Headless should default to false")
	}
	if cfg.LSP.ServerHost != consts.DefaultServerHost {
		t.Errorf("ServerHost = %q, want %q", cfg.LSP.ServerHost, consts.DefaultServerHost)
	}
	if cfg.LSP.ServerPort != consts.DefaultServerPort {
		t.Errorf("ServerPort = %d, want %d", cfg.LSP.ServerPort, consts.DefaultServerPort)
	}
	if !cfg.LSP.AutoReconnect.Enabled {
		t.Error("AutoReconnect.Enabled should default to true")
	}
	if cfg.LSP.AutoReconnect.Attempts != consts.DefaultMaxAttempts {
		t.Errorf("Attempts = %d, want %d", cfg.LSP.AutoReconnect.Attempts, consts.DefaultMaxAttempts)
	}
	if cfg.LSP.AutoReconnect.Cooldown != consts.DefaultCooldown {
		t.Errorf("Cooldown = %v, want %v", cfg.LSP.AutoReconnect.Cooldown, consts.DefaultCooldown)
	}
}

func TestLoadConfig_ProjectFile(t *testing.T) {
	inTempProject(t)
	writeProjectConfig(t, `
lsp:
  headless: true
  server_port: 6005
  auto_reconnect:
    attempts: 3
    cooldown: 500ms
editor_path:
  godot4: /opt/godot/godot4
`)

	cfg, err := LoadConfig(viper.New())
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if !cfg.LSP.Headless {
		t.Error("Headless should be true from project file")
	}
	if cfg.LSP.ServerPort != 6005 {
		t.Errorf("ServerPort = %d, want 6005", cfg.LSP.ServerPort)
	}
	if cfg.LSP.AutoReconnect.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", cfg.LSP.AutoReconnect.Attempts)
	}
	if cfg.LSP.AutoReconnect.Cooldown != 500*time.Millisecond {
		t.Errorf("Cooldown = %v, want 500ms", cfg.LSP.AutoReconnect.Cooldown)
	}
	if cfg.EditorPath.Godot4 != "/opt/godot/godot4" {
		t.Errorf("Godot4 = %q", cfg.EditorPath.Godot4)
	}
	// Untouched keys keep their defaults
	if !cfg.LSP.AutoReconnect.Enabled {
		t.Error("AutoReconnect.Enabled should keep default true")
	}
}

func TestLoadConfig_ExplicitFileMustExist(t *testing.T) {
	inTempProject(t)

	v := viper.New()
	v.Set("config", "does-not-exist.yaml")
	if _, err := LoadConfig(v); err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	inTempProject(t)
	t.Setenv("LSPBRIDGE_LSP_SERVER_PORT", "7000")

	cfg, err := LoadConfig(viper.New())
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.LSP.ServerPort != 7000 {
		t.Errorf("ServerPort = %d, want 7000 from env", cfg.LSP.ServerPort)
	}
}

func TestStore_SetPersistsAndReloads(t *testing.T) {
	inTempProject(t)
	writeProjectConfig(t, "lsp:\n  headless: true\n")

	s, err := NewStore(viper.New())
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	if !s.Headless() {
		t.Fatal("Headless should start true")
	}

	if err := s.SetHeadless(false); err != nil {
		t.Fatalf("SetHeadless failed: %v", err)
	}
	if s.Headless() {
		t.Error("Headless should be false after SetHeadless(false)")
	}

	if err := s.SetEditorPath(3, "/usr/local/bin/godot3"); err != nil {
		t.Fatalf("SetEditorPath failed: %v", err)
	}
	if got := s.EditorPath(3); got != "/usr/local/bin/godot3" {
		t.Errorf("EditorPath(3) = %q", got)
	}

	data, err := os.ReadFile(s.Path())
	if err != nil {
		t.Fatalf("read persisted file: %v", err)
	}
	if !strings.Contains(string(data), "godot3: /usr/local/bin/godot3") {
		t.Errorf("persisted file missing editor path:\n%s", data)
	}
	if !strings.Contains(string(data), "headless: false") {
		t.Errorf("persisted file missing headless flag:\n%s", data)
	}
}

func TestStore_CooldownFallsBackToDefault(t *testing.T) {
	inTempProject(t)
	writeProjectConfig(t, "lsp:\n  auto_reconnect:\n    cooldown: 0s\n")

	s, err := NewStore(viper.New())
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	if s.Cooldown() != consts.DefaultCooldown {
		t.Errorf("Cooldown = %v, want default %v", s.Cooldown(), consts.DefaultCooldown)
	}
}

func TestEditorPathKey(t *testing.T) {
	if EditorPathKey(4) != consts.KeyEditorPathGodot4 {
		t.Errorf("EditorPathKey(4) = %q", EditorPathKey(4))
	}
	if EditorPathKey(3) != consts.KeyEditorPathGodot3 {
		t.Errorf("EditorPathKey(3) = %q", EditorPathKey(3))
	}
}

func TestWriteDefaults(t *testing.T) {
	dir := inTempProject(t)
	path := filepath.Join(dir, "out", "config.yaml")

	if err := WriteDefaults(path, false); err != nil {
		t.Fatalf("WriteDefaults failed: %v", err)
	}
	if err := WriteDefaults(path, false); err == nil {
		t.Error("second WriteDefaults without force should fail")
	}
	if err := WriteDefaults(path, true); err != nil {
		t.Errorf("WriteDefaults with force failed: %v", err)
	}

	v := viper.New()
	v.Set("config", path)
	cfg, err := LoadConfig(v)
	if err != nil {
		t.Fatalf("LoadConfig of written defaults failed: %v", err)
	}
	if cfg.LSP.AutoReconnect.Cooldown != consts.DefaultCooldown {
		t.Errorf("round-tripped cooldown = %v", cfg.LSP.AutoReconnect.Cooldown)
	}
}

func TestStore_WatchReloadsOnChange(t *testing.T) {
	inTempProject(t)
	writeProjectConfig(t, "lsp:\n  headless: false\n")

	s, err := NewStore(viper.New())
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan protocol.Config, 1)
	go func() {
		_ = s.Watch(ctx, func(cfg protocol.Config) {
			select {
			case changed <- cfg:
			default:
			}
		})
	}()

	// Give the watcher a moment to register
	time.Sleep(100 * time.Millisecond)
	writeProjectConfig(t, "lsp:\n  headless: true\n")

	select {
	case cfg := <-changed:
		if !cfg.LSP.Headless {
			t.Error("reloaded config should have headless=true")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("watcher did not report change")
	}
}
