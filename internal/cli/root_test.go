package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func TestCommands(t *testing.T) {
	if rootCmd.Name() != "lspbridge" {
		t.Errorf("Expected root command name lspbridge, got %s", rootCmd.Name())
	}

	want := []string{"run", "start", "stop", "check", "status", "probe", "config"}
	for _, name := range want {
		found := false
		for _, c := range rootCmd.Commands() {
			if c.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("missing subcommand %q", name)
		}
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lspbridge", "config.yaml")

	out, err := execute(t, "config", "init", path)
	if err != nil {
		t.Fatalf("config init failed: %v", err)
	}
	if !strings.Contains(out, path) {
		t.Errorf("output should name the file, got %q", out)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("config file not written: %v", err)
	}
	if !strings.Contains(string(data), "auto_reconnect") {
		t.Errorf("defaults missing auto_reconnect:\n%s", data)
	}

	if _, err := execute(t, "config", "init", path); err == nil {
		t.Error("second init without --force should fail")
	}
	if _, err := execute(t, "config", "init", "--force", path); err != nil {
		t.Errorf("init with --force failed: %v", err)
	}
}

func TestProbe(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script executable")
	}
	exe := filepath.Join(t.TempDir(), "godot")
	script := "#!/bin/sh\necho 4.2.1.stable.official.b09f793f5\n"
	if err := os.WriteFile(exe, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "probe", exe)
	if err != nil {
		t.Fatalf("probe failed: %v", err)
	}
	if !strings.Contains(out, "Major:   4") || !strings.Contains(out, "b09f793f5") {
		t.Errorf("unexpected probe output:\n%s", out)
	}
	if !strings.Contains(out, "Headless LSP: supported for 4.x projects") {
		t.Errorf("4.2 should support headless LSP:\n%s", out)
	}

	out, err = execute(t, "probe", "--project-version", "3.x", exe)
	if err != nil {
		t.Fatalf("probe failed: %v", err)
	}
	if !strings.Contains(out, "Minor:   2") {
		t.Errorf("unexpected probe output:\n%s", out)
	}
}

func TestProbeRejectsGarbage(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script executable")
	}
	exe := filepath.Join(t.TempDir(), "notgodot")
	if err := os.WriteFile(exe, []byte("#!/bin/sh\necho hello\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	if _, err := execute(t, "probe", exe); err == nil {
		t.Error("probe of a non-Godot executable should fail")
	}
}

func TestStatusWithoutBridge(t *testing.T) {
	dir := t.TempDir()
	oldWd, _ := os.Getwd()
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.Chdir(oldWd) }()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))

	if _, err := execute(t, "status", "--socket", filepath.Join(dir, "none.sock")); err == nil {
		t.Error("status should fail when no bridge is running")
	}
}
