package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chbinousamy/octave/pkg/value"
)

const projectUnits = `
.unit add
.inputs a b
.outputs s
    PUSH_SLOT_NARGOUT1 a
    PUSH_SLOT_NARGOUT1 b
    ADD
    ASSIGN s
    RET

.unit main
.locals greeting
    LOAD_CST ="hello"
    DISP greeting
    RET

.unit bye
.locals exit
    LOAD_CST =3
    INDEX_ID_NARGOUT0 exit 1
    POP
    RET
`

const yamlUnit = `
name: seven
outputs: [r]
constants: [7]
code: |
  LOAD_CST 0
  ASSIGN r
  RET
`

// newProject writes a project with an entry unit and a private cache.
func newProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	write(t, filepath.Join(dir, "octvm.toml"), `
[project]
name = "cli-test"

[source]
entry = "main"

[cache]
path = "cache/units.db"
`)
	write(t, filepath.Join(dir, "units", "arith.oasm"), projectUnits)
	write(t, filepath.Join(dir, "units", "seven.yaml"), yamlUnit)
	return dir
}

func write(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func octvm(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	status := run(args, &stdout, &stderr)
	return status, stdout.String(), stderr.String()
}

func TestRunUnitWithArguments(t *testing.T) {
	dir := newProject(t)
	status, out, errOut := octvm(t, "-C", dir, "run", "add", "1", "2")
	if status != 0 {
		t.Fatalf("status = %d, stderr = %s", status, errOut)
	}
	if out != "s = 3\n" {
		t.Errorf("stdout = %q, want %q", out, "s = 3\n")
	}
}

func TestRunEntryFromManifest(t *testing.T) {
	dir := newProject(t)
	status, out, errOut := octvm(t, "-C", dir, "run")
	if status != 0 {
		t.Fatalf("status = %d, stderr = %s", status, errOut)
	}
	if out != "greeting = hello\n" {
		t.Errorf("stdout = %q, want the DISP output", out)
	}
}

func TestRunYAMLUnit(t *testing.T) {
	dir := newProject(t)
	status, out, errOut := octvm(t, "-C", dir, "run", "seven")
	if status != 0 {
		t.Fatalf("status = %d, stderr = %s", status, errOut)
	}
	if out != "r = 7\n" {
		t.Errorf("stdout = %q, want %q", out, "r = 7\n")
	}
}

func TestRunExitStatus(t *testing.T) {
	dir := newProject(t)
	status, _, errOut := octvm(t, "-C", dir, "run", "-nargout", "0", "bye")
	if status != 3 {
		t.Errorf("status = %d, want 3 (stderr %q)", status, errOut)
	}
}

func TestRunErrors(t *testing.T) {
	dir := newProject(t)
	status, _, errOut := octvm(t, "-C", dir, "run", "nosuch")
	if status != 1 {
		t.Errorf("status = %d, want 1", status)
	}
	if !strings.Contains(errOut, "nosuch") {
		t.Errorf("stderr = %q, want it to name the function", errOut)
	}

	if status, _, _ := octvm(t, "-C", dir, "frobnicate"); status != 2 {
		t.Errorf("unknown command status = %d, want 2", status)
	}
	if status, _, _ := octvm(t); status != 2 {
		t.Errorf("no command status = %d, want 2", status)
	}
}

func TestDisFileAndUnit(t *testing.T) {
	dir := newProject(t)
	file := filepath.Join(dir, "units", "arith.oasm")
	status, out, errOut := octvm(t, "-C", dir, "-color", "never", "dis", file)
	if status != 0 {
		t.Fatalf("status = %d, stderr = %s", status, errOut)
	}
	for _, want := range []string{"; === add ===", "; === main ===", "; === bye ===", "ADD"} {
		if !strings.Contains(out, want) {
			t.Errorf("listing lacks %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "\x1b[") {
		t.Error("listing is coloured with -color never")
	}

	status, out, errOut = octvm(t, "-C", dir, "-color", "always", "dis", "add")
	if status != 0 {
		t.Fatalf("status = %d, stderr = %s", status, errOut)
	}
	if !strings.Contains(out, ansiBold+"ADD"+ansiReset) {
		t.Errorf("listing is not coloured with -color always:\n%q", out)
	}
}

func TestDisSourceRoundTrip(t *testing.T) {
	dir := newProject(t)
	status, out, errOut := octvm(t, "-C", dir, "dis", "-source", "add")
	if status != 0 {
		t.Fatalf("status = %d, stderr = %s", status, errOut)
	}
	// The printed source must assemble to a unit that still adds.
	write(t, filepath.Join(dir, "units", "arith.oasm"), strings.Replace(out, ".unit add", ".unit add2", 1))
	status, got, errOut := octvm(t, "-C", dir, "run", "add2", "4", "5")
	if status != 0 {
		t.Fatalf("status = %d, stderr = %s", status, errOut)
	}
	if got != "s = 9\n" {
		t.Errorf("stdout = %q, want %q", got, "s = 9\n")
	}
}

func TestAsmYAML(t *testing.T) {
	dir := newProject(t)
	status, out, errOut := octvm(t, "-C", dir, "asm", "-yaml", filepath.Join(dir, "units", "seven.yaml"))
	if status != 0 {
		t.Fatalf("status = %d, stderr = %s", status, errOut)
	}
	if !strings.Contains(out, "name: seven") {
		t.Errorf("YAML output lacks the unit name:\n%s", out)
	}
}

func TestAsmCacheAndCacheCommands(t *testing.T) {
	dir := newProject(t)
	status, out, errOut := octvm(t, "-C", dir, "asm", "-cache")
	if status != 0 {
		t.Fatalf("status = %d, stderr = %s", status, errOut)
	}
	if lines := strings.Split(strings.TrimSpace(out), "\n"); len(lines) != 4 {
		t.Errorf("cached %d units, want 4:\n%s", len(lines), out)
	}
	hash := strings.Fields(strings.Split(out, "\n")[0])[1]

	status, out, errOut = octvm(t, "-C", dir, "cache", "list")
	if status != 0 {
		t.Fatalf("status = %d, stderr = %s", status, errOut)
	}
	for _, name := range []string{"add", "bye", "main", "seven"} {
		if !strings.Contains(out, name) {
			t.Errorf("cache list lacks %s:\n%s", name, out)
		}
	}

	status, out, _ = octvm(t, "-C", dir, "-color", "never", "dis", "#"+hash)
	if status != 0 || !strings.Contains(out, "; === add ===") {
		t.Errorf("dis #%s = %d:\n%s", hash, status, out)
	}

	// With the sources gone, run falls back to the cached units.
	if err := os.RemoveAll(filepath.Join(dir, "units")); err != nil {
		t.Fatal(err)
	}
	status, out, errOut = octvm(t, "-C", dir, "run", "add", "2", "2")
	if status != 0 || out != "s = 4\n" {
		t.Errorf("cached run = %d %q (stderr %q), want s = 4", status, out, errOut)
	}
	if status, _, _ := octvm(t, "-C", dir, "run", "-no-cache", "add", "2", "2"); status != 1 {
		t.Errorf("run -no-cache status = %d, want 1", status)
	}

	status, out, _ = octvm(t, "-C", dir, "cache", "delete", "add")
	if status != 0 || !strings.Contains(out, "Deleted 1 versions of add") {
		t.Errorf("cache delete = %d %q", status, out)
	}
	if status, _, _ := octvm(t, "-C", dir, "cache", "get", "add"); status != 1 {
		t.Errorf("cache get after delete status = %d, want 1", status)
	}
	status, out, _ = octvm(t, "-C", dir, "cache", "prune", "-keep", "1")
	if status != 0 || !strings.Contains(out, "Pruned 0 unit versions") {
		t.Errorf("cache prune = %d %q", status, out)
	}
}

func TestCacheDisabled(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "octvm.toml"), "[cache]\ndisabled = true\n")
	status, _, errOut := octvm(t, "-C", dir, "cache", "list")
	if status != 1 || !strings.Contains(errOut, "disabled") {
		t.Errorf("status = %d stderr = %q, want the cache to be reported disabled", status, errOut)
	}
}

func TestRunWithoutManifest(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("OCTVM_CACHE", filepath.Join(dir, "cache.db"))
	write(t, filepath.Join(dir, "add.oasm"), projectUnits)
	status, out, errOut := octvm(t, "-C", dir, "run", "add", "[1 2]", "1")
	if status != 0 {
		t.Fatalf("status = %d, stderr = %s", status, errOut)
	}
	if !strings.Contains(out, "s =") || !strings.Contains(out, "2   3") {
		t.Errorf("stdout = %q, want the row [2 3]", out)
	}
}

func TestColorize(t *testing.T) {
	pad := strings.Repeat(" ", 10)
	in := "; === f ===\n0000  LOAD_CST 0" + pad + "; 1\nnot code"
	got := colorize(in)
	want := ansiDim + "; === f ===" + ansiReset + "\n" +
		ansiYellow + "0000" + ansiReset + "  " + ansiBold + "LOAD_CST" + ansiReset +
		" 0" + pad[1:] + ansiCyan + " ; 1" + ansiReset + "\nnot code"
	if got != want {
		t.Errorf("colorize =\n%q\nwant\n%q", got, want)
	}
}

func TestParseArgs(t *testing.T) {
	vals := parseArgs([]string{"3", "'x'", "hello world"})
	if len(vals) != 3 {
		t.Fatalf("got %d values, want 3", len(vals))
	}
	for i, want := range []string{"3", "'x'", "'hello world'"} {
		if got := value.Format(vals[i]); got != want {
			t.Errorf("arg %d = %s, want %s", i, got, want)
		}
	}
}
