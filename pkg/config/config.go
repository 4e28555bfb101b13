// Package config persists the name → ServerConfig map that survives
// disconnects. The file format is YAML; saves are atomic and guarded by a
// cross-process file lock so concurrent mcphub processes cannot shred each
// other's edits.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"gopkg.in/yaml.v3"
)

// ErrLockTimeout is returned when the config file lock cannot be acquired.
var ErrLockTimeout = errors.New("timed out waiting for config file lock")

const lockTimeout = 5 * time.Second

// ServerConfig describes one MCP server. Exactly one of Command or URL must
// be set: Command spawns a stdio subprocess, URL connects over WebSocket
// (ws/wss schemes) or streamable HTTP (everything else).
type ServerConfig struct {
	Enabled bool              `yaml:"enabled" json:"enabled"`
	Command string            `yaml:"command,omitempty" json:"command,omitempty"`
	Args    []string          `yaml:"args,omitempty" json:"args,omitempty"`
	Env     map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
	URL     string            `yaml:"url,omitempty" json:"url,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`

	// AllowTools/DenyTools are doublestar patterns filtering which of the
	// server's tools get registered for the agent. Empty allow = allow all.
	AllowTools []string `yaml:"allow_tools,omitempty" json:"allow_tools,omitempty"`
	DenyTools  []string `yaml:"deny_tools,omitempty" json:"deny_tools,omitempty"`
}

// Validate checks the command/url exclusivity rule.
func (c ServerConfig) Validate() error {
	switch {
	case c.Command == "" && c.URL == "":
		return errors.New("server config needs either command or url")
	case c.Command != "" && c.URL != "":
		return errors.New("server config cannot set both command and url")
	}
	return nil
}

// fileFormat is the on-disk shape of the config file.
type fileFormat struct {
	Servers map[string]ServerConfig `yaml:"servers"`
}

// File is a handle on the shared config file.
type File struct {
	path string

	mu      sync.RWMutex
	servers map[string]ServerConfig
}

// Load reads the config file at path. A missing file yields an empty config,
// not an error — first run is not a failure.
func Load(path string) (*File, error) {
	f := &File{path: path, servers: map[string]ServerConfig{}}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return f, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var raw fileFormat
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if raw.Servers != nil {
		f.servers = raw.Servers
	}
	return f, nil
}

// Path returns the file path this handle reads and writes.
func (f *File) Path() string { return f.path }

// Servers returns a copy of the persisted server map.
func (f *File) Servers() map[string]ServerConfig {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make(map[string]ServerConfig, len(f.servers))
	for k, v := range f.servers {
		out[k] = v
	}
	return out
}

// SaveServers replaces the server map and writes it through to disk
// immediately. The write is atomic (temp file + rename) under a cross-process
// lock.
func (f *File) SaveServers(servers map[string]ServerConfig) error {
	f.mu.Lock()
	f.servers = make(map[string]ServerConfig, len(servers))
	for k, v := range servers {
		f.servers[k] = v
	}
	out := fileFormat{Servers: f.servers}
	f.mu.Unlock()

	data, err := yaml.Marshal(out)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if dir := filepath.Dir(f.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}

	fl := flock.New(f.path + ".lock")
	ctx, cancel := context.WithTimeout(context.Background(), lockTimeout)
	defer cancel()

	locked, err := fl.TryLockContext(ctx, 50*time.Millisecond)
	if err != nil || !locked {
		return ErrLockTimeout
	}
	defer fl.Unlock()

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("replace config: %w", err)
	}
	return nil
}

// Reload re-reads the file from disk and returns the fresh server map.
func (f *File) Reload() (map[string]ServerConfig, error) {
	fresh, err := Load(f.path)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.servers = fresh.servers
	f.mu.Unlock()
	return f.Servers(), nil
}
