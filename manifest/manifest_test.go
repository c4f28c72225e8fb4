package manifest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeManifest(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[project]
name = "test-app"
version = "0.1.0"

[source]
dirs = ["units", "extra"]
entry = "main"

[vm]
enabled = false
max-stack = 4096
max-depth = 64
poll-interval = 100
trace = true

[log]
verbosity = 2
file = "logs/octvm.log"

[cache]
path = "/var/cache/units.db"

[libraries]
helper = { path = "../helper" }
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if m.Project.Name != "test-app" {
		t.Errorf("project name = %q, want test-app", m.Project.Name)
	}
	if m.Project.Version != "0.1.0" {
		t.Errorf("project version = %q, want 0.1.0", m.Project.Version)
	}
	if len(m.Source.Dirs) != 2 {
		t.Errorf("source dirs count = %d, want 2", len(m.Source.Dirs))
	}
	if m.Source.Entry != "main" {
		t.Errorf("source entry = %q, want main", m.Source.Entry)
	}
	if m.UseVM() {
		t.Error("UseVM() = true, want false")
	}
	if m.Log.Verbosity != 2 {
		t.Errorf("log verbosity = %d, want 2", m.Log.Verbosity)
	}
	if got, want := m.LogFile(), filepath.Join(m.Dir, "logs", "octvm.log"); got != want {
		t.Errorf("log file = %q, want %q", got, want)
	}
	if m.CachePath() != "/var/cache/units.db" {
		t.Errorf("cache path = %q, want /var/cache/units.db", m.CachePath())
	}
	if lib, ok := m.Libraries["helper"]; !ok || lib.Path != "../helper" {
		t.Errorf("helper library = %v, want path ../helper", m.Libraries["helper"])
	}

	opts := m.VMOptions()
	if opts.UseVM || opts.MaxStack != 4096 || opts.MaxDepth != 64 || opts.PollInterval != 100 || !opts.Trace {
		t.Errorf("VMOptions() = %+v, want the [vm] section", opts)
	}
}

func TestLoadManifestDefaults(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[project]
name = "minimal"
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(m.Source.Dirs) != 1 || m.Source.Dirs[0] != "units" {
		t.Errorf("default source dirs = %v, want [units]", m.Source.Dirs)
	}
	if !m.UseVM() {
		t.Error("UseVM() = false, want true by default")
	}
	if got, want := m.CachePath(), filepath.Join(m.Dir, ".octvm", "units.db"); got != want {
		t.Errorf("cache path = %q, want %q", got, want)
	}
	if m.LogFile() != "" {
		t.Errorf("log file = %q, want empty", m.LogFile())
	}
	opts := m.VMOptions()
	if opts.MaxStack != 0 || opts.MaxDepth != 0 {
		t.Errorf("VMOptions() = %+v, want zero limits so the engine applies its defaults", opts)
	}
}

func TestLoadManifestErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"syntax", "[vm\n", "parse error"},
		{"negative", "[vm]\nmax-depth = -1\n", "vm.max-depth must not be negative"},
		{"library without path", "[libraries]\nx = {}\n", `library "x" has no path`},
		{"wrong type", "[vm]\ntrace = \"yes\"\n", "parse error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeManifest(t, dir, tt.content)
			_, err := Load(dir)
			if err == nil {
				t.Fatalf("expected an error containing %q", tt.want)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want it to contain %q", err, tt.want)
			}
		})
	}
	if _, err := Load(t.TempDir()); err == nil || !strings.Contains(err.Error(), "cannot read") {
		t.Errorf("missing file error = %v, want cannot read", err)
	}
}

func TestFindAndLoad(t *testing.T) {
	// Create nested directory structure
	dir := t.TempDir()
	subDir := filepath.Join(dir, "a", "b", "c")
	if err := os.MkdirAll(subDir, 0755); err != nil {
		t.Fatal(err)
	}
	writeManifest(t, dir, `[project]
name = "found-project"
`)

	// Should find manifest when starting from a deep subdirectory
	m, err := FindAndLoad(subDir)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if m == nil {
		t.Fatal("FindAndLoad returned nil")
	}
	if m.Project.Name != "found-project" {
		t.Errorf("project name = %q, want found-project", m.Project.Name)
	}
}

func TestFindAndLoadNotFound(t *testing.T) {
	dir := t.TempDir()
	m, err := FindAndLoad(dir)
	if err != nil {
		t.Fatalf("FindAndLoad error: %v", err)
	}
	if m != nil {
		t.Error("expected nil manifest when no octvm.toml exists")
	}
}

func TestSourceDirPaths(t *testing.T) {
	m := &Manifest{
		Dir: "/app",
		Source: Source{
			Dirs: []string{"units", "/opt/shared"},
		},
	}

	paths := m.SourceDirPaths()
	if len(paths) != 2 {
		t.Fatalf("expected 2 paths, got %d", len(paths))
	}
	if paths[0] != "/app/units" {
		t.Errorf("paths[0] = %q, want /app/units", paths[0])
	}
	if paths[1] != "/opt/shared" {
		t.Errorf("paths[1] = %q, want /opt/shared", paths[1])
	}
}
