// Package manifest handles sophia.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/juno-r1/sophia-sub000/fault"
)

// FileName is the manifest file looked up by Load and FindAndLoad.
const FileName = "sophia.toml"

// Manifest represents a sophia.toml project configuration.
type Manifest struct {
	Project    Project          `toml:"project"`
	Run        RunConfig        `toml:"run"`
	Supervisor SupervisorConfig `toml:"supervisor"`
	Errors     ErrorConfig      `toml:"errors"`

	// Dir is the directory containing the sophia.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// RunConfig configures the run command.
type RunConfig struct {
	Entry     string `toml:"entry"`
	Verbosity int    `toml:"verbosity"`
}

// SupervisorConfig configures module linking and streams.
type SupervisorConfig struct {
	Store string   `toml:"store"`
	Paths []string `toml:"paths"`
}

// ErrorConfig selects the error kinds that abort a task instead of
// unwinding the current frame.
type ErrorConfig struct {
	Fatal []string `toml:"fatal"`
}

// Load parses a sophia.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	// Defaults
	if len(m.Supervisor.Paths) == 0 {
		m.Supervisor.Paths = []string{"."}
	}

	if _, unknown := fault.ParseKinds(m.Errors.Fatal); len(unknown) > 0 {
		return nil, fmt.Errorf("%s: unknown error kinds %v", path, unknown)
	}

	return &m, nil
}

// FindAndLoad walks up from startDir to find a sophia.toml file,
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
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// SearchPaths returns absolute paths for the configured module directories.
func (m *Manifest) SearchPaths() []string {
	var paths []string
	for _, d := range m.Supervisor.Paths {
		paths = append(paths, m.resolve(d))
	}
	return paths
}

// StorePath returns the configured module store, or "" for the default.
func (m *Manifest) StorePath() string {
	if m.Supervisor.Store == "" {
		return ""
	}
	return m.resolve(m.Supervisor.Store)
}

// EntryPath returns the program run when the CLI is given no file.
func (m *Manifest) EntryPath() string {
	if m.Run.Entry == "" {
		return ""
	}
	return m.resolve(m.Run.Entry)
}

// FatalKinds returns the configured fatal error kinds.
func (m *Manifest) FatalKinds() []fault.Kind {
	kinds, _ := fault.ParseKinds(m.Errors.Fatal)
	return kinds
}

func (m *Manifest) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(m.Dir, p)
}
