// Package manifest handles octvm.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/chbinousamy/octave/pkg/vm"
)

// FileName is the manifest file looked up in project directories.
const FileName = "octvm.toml"

// Manifest represents an octvm.toml project configuration.
type Manifest struct {
	Project   Project            `toml:"project"`
	Source    Source             `toml:"source"`
	VM        VMConfig           `toml:"vm"`
	Log       LogConfig          `toml:"log"`
	Cache     CacheConfig        `toml:"cache"`
	Libraries map[string]Library `toml:"libraries"`

	// Dir is the directory containing the octvm.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// Source configures where assembled units live.
type Source struct {
	Dirs []string `toml:"dirs"`
	// Entry is the unit "octvm run" calls when none is named.
	Entry string `toml:"entry"`
}

// VMConfig holds the engine settings.
type VMConfig struct {
	// Enabled is the VM/tree-walker switch; unset means enabled.
	Enabled      *bool `toml:"enabled"`
	MaxStack     int   `toml:"max-stack"`
	MaxDepth     int   `toml:"max-depth"`
	PollInterval int   `toml:"poll-interval"`
	Trace        bool  `toml:"trace"`
}

// LogConfig configures logging.
type LogConfig struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// CacheConfig configures the unit cache.
type CacheConfig struct {
	Path     string `toml:"path"`
	Disabled bool   `toml:"disabled"`
}

// Library is a directory of units the project uses.
type Library struct {
	Path string `toml:"path"`
}

// Load parses an octvm.toml file from the given directory.
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
	if len(m.Source.Dirs) == 0 {
		m.Source.Dirs = []string{"units"}
	}
	if m.Cache.Path == "" {
		m.Cache.Path = filepath.Join(".octvm", "units.db")
	}
	if err := m.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return &m, nil
}

func (m *Manifest) validate() error {
	for name, v := range map[string]int{
		"vm.max-stack":     m.VM.MaxStack,
		"vm.max-depth":     m.VM.MaxDepth,
		"vm.poll-interval": m.VM.PollInterval,
	} {
		if v < 0 {
			return fmt.Errorf("%s must not be negative, got %d", name, v)
		}
	}
	for name, lib := range m.Libraries {
		if lib.Path == "" {
			return fmt.Errorf("library %q has no path", name)
		}
	}
	return nil
}

// FindAndLoad walks up from startDir to find an octvm.toml file,
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

// SourceDirPaths returns absolute paths for the configured source directories.
func (m *Manifest) SourceDirPaths() []string {
	var paths []string
	for _, d := range m.Source.Dirs {
		paths = append(paths, m.resolve(d))
	}
	return paths
}

// CachePath returns the absolute path of the unit cache.
func (m *Manifest) CachePath() string {
	return m.resolve(m.Cache.Path)
}

// LogFile returns the absolute path of the log file, or "" for stderr.
func (m *Manifest) LogFile() string {
	if m.Log.File == "" {
		return ""
	}
	return m.resolve(m.Log.File)
}

// UseVM reports whether compiled units run on the VM.
func (m *Manifest) UseVM() bool {
	return m.VM.Enabled == nil || *m.VM.Enabled
}

// VMOptions converts the [vm] section to engine options. Resolver,
// storage and output are left for the caller.
func (m *Manifest) VMOptions() vm.Options {
	return vm.Options{
		UseVM:        m.UseVM(),
		MaxStack:     m.VM.MaxStack,
		MaxDepth:     m.VM.MaxDepth,
		PollInterval: m.VM.PollInterval,
		Trace:        m.VM.Trace,
	}
}

func (m *Manifest) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(m.Dir, p)
}
