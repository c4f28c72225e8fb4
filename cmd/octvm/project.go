package main

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/chbinousamy/octave/manifest"
	"github.com/chbinousamy/octave/pkg/asm"
	"github.com/chbinousamy/octave/pkg/bytecode"
	"github.com/chbinousamy/octave/pkg/unitstore"
	"github.com/chbinousamy/octave/pkg/vm"
)

// Unit source file extensions.
const (
	extText = ".oasm"
	extYAML = ".yaml"
	extYML  = ".yml"
)

func isUnitFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case extText, extYAML, extYML:
		return true
	}
	return false
}

// assembleFile reads and assembles every unit in one source file.
func assembleFile(path string) ([]*bytecode.Unit, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var srcs []*asm.Source
	switch strings.ToLower(filepath.Ext(path)) {
	case extYAML, extYML:
		srcs, err = asm.ParseYAML(data)
	default:
		srcs, err = asm.ParseString(string(data))
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	for _, s := range srcs {
		if s.File == "" {
			s.File = path
		}
	}
	units, err := asm.AssembleAll(srcs)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return units, nil
}

// unitFiles lists the unit source files under dirs, sorted within each
// directory. Missing directories are skipped.
func unitFiles(dirs []string) ([]string, error) {
	var files []string
	for _, dir := range dirs {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			log.Debugf("unit directory %s does not exist", dir)
			continue
		}
		var found []string
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if path != dir && strings.HasPrefix(d.Name(), ".") {
					return filepath.SkipDir
				}
				return nil
			}
			if isUnitFile(path) {
				found = append(found, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		sort.Strings(found)
		files = append(files, found...)
	}
	return files, nil
}

// unitDirs returns the directories the project loads units from. Without
// a manifest the project directory itself is used.
func (c *cli) unitDirs() ([]string, error) {
	if c.manifest == nil {
		return []string{c.dir}, nil
	}
	return c.manifest.UnitDirs()
}

// loadProject assembles every unit of the project into a fresh registry.
// Cached units are registered first so sources always win.
func (c *cli) loadProject(useCache bool) (*vm.Registry, error) {
	reg := vm.NewRegistry()
	if useCache {
		store, err := c.openCache()
		if err != nil {
			return nil, err
		}
		if store != nil {
			names, err := store.LoadInto(reg)
			store.Close()
			if err != nil {
				return nil, err
			}
			log.Debugf("loaded %d cached units", len(names))
		}
	}

	dirs, err := c.unitDirs()
	if err != nil {
		return nil, err
	}
	files, err := unitFiles(dirs)
	if err != nil {
		return nil, err
	}
	n := 0
	for _, f := range files {
		units, err := assembleFile(f)
		if err != nil {
			return nil, err
		}
		for _, u := range units {
			reg.RegisterUnit(u)
			n++
		}
	}
	log.Infof("assembled %d units from %d files", n, len(files))
	return reg, nil
}

// openCache opens the unit cache, or returns nil when the manifest
// disables it.
func (c *cli) openCache() (*unitstore.Store, error) {
	var path string
	switch {
	case c.manifest != nil && c.manifest.Cache.Disabled:
		return nil, nil
	case c.manifest != nil:
		path = c.manifest.CachePath()
	default:
		p, err := unitstore.DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	return unitstore.Open(path)
}

// mustOpenCache is openCache for commands that cannot work without one.
func (c *cli) mustOpenCache() (*unitstore.Store, error) {
	store, err := c.openCache()
	if err != nil {
		return nil, err
	}
	if store == nil {
		return nil, fmt.Errorf("the unit cache is disabled in %s", filepath.Join(c.manifest.Dir, manifest.FileName))
	}
	return store, nil
}

// vmOptions builds engine options from the manifest.
func (c *cli) vmOptions() vm.Options {
	if c.manifest == nil {
		return vm.Options{UseVM: true}
	}
	return c.manifest.VMOptions()
}
