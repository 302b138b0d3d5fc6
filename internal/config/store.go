package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/turtacn/lspbridge/pkg/consts"
	lberrors "github.com/turtacn/lspbridge/pkg/errors"
	"github.com/turtacn/lspbridge/pkg/logger"
	"github.com/turtacn/lspbridge/pkg/protocol"
)

// Store is the typed settings store consumed by the connection manager.
// Reads come from the last loaded snapshot; writes are persisted to the
// writable config file and then reloaded through the normal precedence chain.
//
// Store is safe for concurrent use.
type Store struct {
	mu   sync.RWMutex
	v    *viper.Viper
	cfg  *protocol.Config
	path string
	log  logger.Logger
}

// NewStore loads the configuration bound to v.
func NewStore(v *viper.Viper) (*Store, error) {
	cfg, err := LoadConfig(v)
	if err != nil {
		return nil, lberrors.New(lberrors.ErrCodeConfigInvalid, "LoadConfig", "cannot load configuration", err)
	}
	return &Store{
		v:    v,
		cfg:  cfg,
		path: WritablePath(v),
		log:  logger.Named("config"),
	}, nil
}

// Config returns a copy of the current configuration.
func (s *Store) Config() protocol.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return *s.cfg
}

// Path returns the file that Set writes to.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) Headless() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.LSP.Headless
}

func (s *Store) AutoReconnectEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.LSP.AutoReconnect.Enabled
}

func (s *Store) MaxAttempts() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.LSP.AutoReconnect.Attempts
}

func (s *Store) Cooldown() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cfg.LSP.AutoReconnect.Cooldown <= 0 {
		return consts.DefaultCooldown
	}
	return s.cfg.LSP.AutoReconnect.Cooldown
}

func (s *Store) ServerHost() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.LSP.ServerHost
}

func (s *Store) ServerPort() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.LSP.ServerPort
}

func (s *Store) WorkspaceRoot() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Workspace.Root
}

// EditorPath returns the Godot executable configured for a major version.
func (s *Store) EditorPath(major int) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if major == 4 {
		return s.cfg.EditorPath.Godot4
	}
	return s.cfg.EditorPath.Godot3
}

// EditorPathKey returns the setting key for a major version's executable.
func EditorPathKey(major int) string {
	if major == 4 {
		return consts.KeyEditorPathGodot4
	}
	return consts.KeyEditorPathGodot3
}

func (s *Store) SetHeadless(enabled bool) error {
	return s.Set(consts.KeyHeadless, enabled)
}

func (s *Store) SetEditorPath(major int, path string) error {
	return s.Set(EditorPathKey(major), path)
}

// Set persists a single dotted key to the writable config file and reloads.
func (s *Store) Set(key string, value any) error {
	if d, ok := value.(time.Duration); ok {
		value = d.String()
	}

	s.mu.Lock()
	err := writeKey(s.path, key, value)
	s.mu.Unlock()
	if err != nil {
		return lberrors.New(lberrors.ErrCodeConfigInvalid, "SetConfiguration", fmt.Sprintf("cannot persist %s", key), err)
	}

	s.log.Info("setting updated", "key", key, "file", s.path)
	return s.Reload()
}

// Reload re-runs the loader and swaps the snapshot.
func (s *Store) Reload() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, err := LoadConfig(s.v)
	if err != nil {
		return lberrors.New(lberrors.ErrCodeConfigInvalid, "ReloadConfig", "cannot reload configuration", err)
	}
	s.cfg = cfg
	return nil
}

// writeKey sets a dotted key inside a yaml document, creating the file and
// intermediate maps as needed.
func writeKey(path, key string, value any) error {
	doc := make(map[string]any)

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		if doc == nil {
			doc = make(map[string]any)
		}
	case os.IsNotExist(err):
	default:
		return err
	}

	parts := strings.Split(key, ".")
	node := doc
	for _, part := range parts[:len(parts)-1] {
		child, ok := node[part].(map[string]any)
		if !ok {
			child = make(map[string]any)
			node[part] = child
		}
		node = child
	}
	node[parts[len(parts)-1]] = value

	out, err := yaml.Marshal(doc)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, out, 0o644)
}

// WriteDefaults writes the stock configuration to path, refusing to
// overwrite an existing file unless force is set.
func WriteDefaults(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists", path)
		}
	}
	out, err := yaml.Marshal(Default())
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, out, 0o644)
}

// Personal.AI order the ending
