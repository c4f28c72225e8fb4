package manifest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestResolveLibraries(t *testing.T) {
	root := t.TempDir()
	app := filepath.Join(root, "app")
	writeManifest(t, app, `
[libraries]
util = { path = "../util" }
plain = { path = "../plain" }
`)
	// util has its own manifest and depends on base.
	writeManifest(t, filepath.Join(root, "util"), `
[source]
dirs = ["src"]

[libraries]
base = { path = "../base" }
`)
	// base and plain are bare directories of units.
	for _, d := range []string{"base", "plain"} {
		if err := os.MkdirAll(filepath.Join(root, d), 0755); err != nil {
			t.Fatal(err)
		}
	}

	m, err := Load(app)
	if err != nil {
		t.Fatal(err)
	}
	libs, err := NewResolver(m).Resolve()
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	var names []string
	for _, l := range libs {
		names = append(names, l.Name)
	}
	if got := strings.Join(names, ","); got != "plain,base,util" {
		t.Errorf("load order = %s, want plain,base,util", got)
	}
	if libs[2].Manifest == nil {
		t.Fatal("util manifest not loaded")
	}
	if got, want := libs[2].SourceDirs()[0], filepath.Join(root, "util", "src"); got != want {
		t.Errorf("util source dir = %q, want %q", got, want)
	}
	if got, want := libs[0].SourceDirs()[0], filepath.Join(root, "plain"); got != want {
		t.Errorf("plain source dir = %q, want %q", got, want)
	}

	dirs, err := m.UnitDirs()
	if err != nil {
		t.Fatal(err)
	}
	if len(dirs) != 4 || dirs[3] != filepath.Join(app, "units") {
		t.Errorf("unit dirs = %v, want three library dirs then %s", dirs, filepath.Join(app, "units"))
	}
}

func TestResolveMissingLibrary(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[libraries]
ghost = { path = "nowhere" }
`)
	m, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	_, err = NewResolver(m).Resolve()
	if err == nil || !strings.Contains(err.Error(), `library "ghost" not found`) {
		t.Errorf("error = %v, want library not found", err)
	}
}

func TestResolveCycle(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, filepath.Join(root, "a"), "[libraries]\nb = { path = \"../b\" }\n")
	writeManifest(t, filepath.Join(root, "b"), "[libraries]\na = { path = \"../a\" }\n")
	writeManifest(t, filepath.Join(root, "app"), "[libraries]\na = { path = \"../a\" }\n")

	m, err := Load(filepath.Join(root, "app"))
	if err != nil {
		t.Fatal(err)
	}
	_, err = NewResolver(m).Resolve()
	if err == nil || !strings.Contains(err.Error(), "library cycle") {
		t.Errorf("error = %v, want a library cycle", err)
	}
}
