// Package manifest handles tape.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// FileName is the manifest file looked up in project directories.
const FileName = "tape.toml"

// Manifest represents a tape.toml project configuration.
type Manifest struct {
	Project Project `toml:"project" json:"project"`
	Machine Machine `toml:"machine" json:"machine"`
	Store   Store   `toml:"store" json:"store"`
	Server  Server  `toml:"server" json:"server"`
	Log     Log     `toml:"log" json:"log"`

	// Dir is the directory containing the tape.toml file (set at load time).
	Dir string `toml:"-" json:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name" json:"name"`
	Version string `toml:"version" json:"version"`
}

// Machine configures the tape machine.
type Machine struct {
	TapeSize int   `toml:"tape-size" json:"tape-size"`
	MaxSteps int64 `toml:"max-steps" json:"max-steps"`
}

// Store configures the run history database.
type Store struct {
	Driver string `toml:"driver" json:"driver"`
	Path   string `toml:"path" json:"path"`
}

// Server configures the language server and the run service.
type Server struct {
	Addr       string `toml:"addr" json:"addr"`
	RunTimeout string `toml:"run-timeout" json:"run-timeout"`
}

// Log configures commonlog output.
type Log struct {
	Verbosity int    `toml:"verbosity" json:"verbosity"`
	File      string `toml:"file" json:"file"`
}

// Default returns the configuration used when no tape.toml exists.
func Default() *Manifest {
	return &Manifest{
		Machine: Machine{TapeSize: 256},
		Store:   Store{Driver: "sqlite", Path: filepath.Join(".tape", "history.db")},
		Server:  Server{Addr: ":4567", RunTimeout: "5s"},
	}
}

// Load parses a tape.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	m, err := LoadFile(filepath.Join(dir, FileName))
	if err != nil {
		return nil, err
	}
	return m, nil
}

// LoadFile parses the manifest at path. Keys missing from the file keep
// their defaults; the result is validated before it is returned.
func LoadFile(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	m := Default()
	if err := toml.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", path, err)
	}

	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", path, err)
	}
	return m, nil
}

// FindAndLoad walks up from startDir to find a tape.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, nil
		}
		dir = parent
	}
}

// StorePath returns the absolute path of the history database.
func (m *Manifest) StorePath() string {
	if filepath.IsAbs(m.Store.Path) || m.Dir == "" {
		return m.Store.Path
	}
	return filepath.Join(m.Dir, m.Store.Path)
}

// RunTimeout returns the server's per-run timeout.
func (m *Manifest) RunTimeout() (time.Duration, error) {
	d, err := time.ParseDuration(m.Server.RunTimeout)
	if err != nil {
		return 0, fmt.Errorf("server run-timeout: %w", err)
	}
	return d, nil
}
