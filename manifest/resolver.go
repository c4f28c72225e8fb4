package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// ResolvedLibrary is a library that has been resolved to a local path.
type ResolvedLibrary struct {
	Name      string    // library name
	LocalPath string    // local filesystem path
	Manifest  *Manifest // the library's own manifest (may be nil)
}

// SourceDirs returns the unit directories of the library: its manifest's
// source directories, or the library directory itself.
func (rl ResolvedLibrary) SourceDirs() []string {
	if rl.Manifest != nil {
		return rl.Manifest.SourceDirPaths()
	}
	return []string{rl.LocalPath}
}

// Resolver manages library resolution.
type Resolver struct {
	manifest *Manifest
}

// NewResolver creates a new library resolver.
func NewResolver(m *Manifest) *Resolver {
	return &Resolver{manifest: m}
}

// Resolve resolves all libraries and returns them in load order
// (topologically sorted: libraries before the ones that use them).
func (r *Resolver) Resolve() ([]ResolvedLibrary, error) {
	resolved := make(map[string]*ResolvedLibrary)
	visiting := make(map[string]bool)
	return r.resolveAll(r.manifest, resolved, visiting)
}

// resolveAll resolves the libraries of m recursively, in name order so
// the result is stable.
func (r *Resolver) resolveAll(m *Manifest, resolved map[string]*ResolvedLibrary, visiting map[string]bool) ([]ResolvedLibrary, error) {
	var order []ResolvedLibrary

	names := make([]string, 0, len(m.Libraries))
	for name := range m.Libraries {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if _, ok := resolved[name]; ok {
			continue // already resolved
		}
		if visiting[name] {
			return nil, fmt.Errorf("library cycle through %s", name)
		}

		rl, err := resolveOne(m, name, m.Libraries[name])
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", name, err)
		}

		// Transitive libraries load first
		if rl.Manifest != nil && len(rl.Manifest.Libraries) > 0 {
			visiting[name] = true
			transitive, err := r.resolveAll(rl.Manifest, resolved, visiting)
			delete(visiting, name)
			if err != nil {
				return nil, err
			}
			order = append(order, transitive...)
		}

		resolved[name] = rl
		order = append(order, *rl)
	}

	return order, nil
}

// resolveOne resolves a single library relative to the manifest naming it.
func resolveOne(m *Manifest, name string, lib Library) (*ResolvedLibrary, error) {
	localPath := lib.Path
	if !filepath.IsAbs(localPath) {
		localPath = filepath.Join(m.Dir, localPath)
	}

	localPath, err := filepath.Abs(localPath)
	if err != nil {
		return nil, fmt.Errorf("invalid path %q: %w", lib.Path, err)
	}

	// Verify it exists
	if _, err := os.Stat(localPath); err != nil {
		return nil, fmt.Errorf("library %q not found at %s: %w", name, localPath, err)
	}

	// Try to load its manifest
	var libManifest *Manifest
	if _, err := os.Stat(filepath.Join(localPath, FileName)); err == nil {
		libManifest, err = Load(localPath)
		if err != nil {
			return nil, err
		}
	}

	return &ResolvedLibrary{
		Name:      name,
		LocalPath: localPath,
		Manifest:  libManifest,
	}, nil
}

// UnitDirs returns every directory units are loaded from: resolved
// libraries first, then the project's own source directories.
func (m *Manifest) UnitDirs() ([]string, error) {
	libs, err := NewResolver(m).Resolve()
	if err != nil {
		return nil, err
	}
	var dirs []string
	for _, lib := range libs {
		dirs = append(dirs, lib.SourceDirs()...)
	}
	return append(dirs, m.SourceDirPaths()...), nil
}
