// octvm CLI - runs, disassembles, assembles and caches compiled units
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chbinousamy/octave/manifest"
)

var log = commonlog.GetLogger("octvm.cli")

// exitError carries a process exit status out of a command.
type exitError struct {
	status int
}

func (e *exitError) Error() string { return fmt.Sprintf("exit status %d", e.status) }

// cli holds what every subcommand needs.
type cli struct {
	stdout io.Writer
	stderr io.Writer
	// dir is where the manifest search starts.
	dir string
	// manifest is nil when no octvm.toml was found.
	manifest *manifest.Manifest
	// color selects ANSI colouring of listings: auto, always or never.
	color string
	isTerminal func() bool
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes one CLI invocation and returns the process exit status.
func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("octvm", flag.ContinueOnError)
	fs.SetOutput(stderr)
	dir := fs.String("C", ".", "Project directory (octvm.toml is searched upward from here)")
	verbosity := fs.Int("v", -1, "Log verbosity: -1 warnings, 0 notices, 1 info, 2 debug")
	logFile := fs.String("log", "", "Log file (default: the manifest's [log] file, else stderr)")
	color := fs.String("color", "auto", "Colour listings: auto, always or never")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: octvm [options] <command> [arguments]\n\n")
		fmt.Fprintf(stderr, "Commands:\n")
		fmt.Fprintf(stderr, "  run [unit] [args...]       Call a unit (default: [source].entry)\n")
		fmt.Fprintf(stderr, "  dis <file|unit|#hash>...   Disassemble units\n")
		fmt.Fprintf(stderr, "  asm [-yaml] [-cache] <file>...  Assemble and print or cache units\n")
		fmt.Fprintf(stderr, "  cache list|get|prune|delete     Manage the unit cache\n\n")
		fmt.Fprintf(stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\nExamples:\n")
		fmt.Fprintf(stderr, "  octvm run                  # Call the project's entry unit\n")
		fmt.Fprintf(stderr, "  octvm run add 1 2          # Call add(1, 2)\n")
		fmt.Fprintf(stderr, "  octvm dis units/add.oasm   # Disassemble a source file\n")
		fmt.Fprintf(stderr, "  octvm cache prune -keep 2  # Keep two versions of each unit\n")
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	m, err := manifest.FindAndLoad(*dir)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	configureLogging(m, *verbosity, *logFile)

	c := &cli{
		stdout:     stdout,
		stderr:     stderr,
		dir:        *dir,
		manifest:   m,
		color:      *color,
		isTerminal: stdoutIsTerminal(stdout),
	}
	if m != nil {
		log.Debugf("using manifest %s", m.Dir)
	}

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	switch cmd {
	case "run":
		err = c.handleRunCommand(rest)
	case "dis":
		err = c.handleDisCommand(rest)
	case "asm":
		err = c.handleAsmCommand(rest)
	case "cache":
		err = c.handleCacheCommand(rest)
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", cmd)
		fs.Usage()
		return 2
	}

	var exit *exitError
	switch {
	case err == nil:
		return 0
	case errors.As(err, &exit):
		return exit.status
	case errors.Is(err, flag.ErrHelp):
		return 0
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return 1
}

// configureLogging applies the verbosity and log file, with explicit flags
// taking precedence over the manifest's [log] section.
func configureLogging(m *manifest.Manifest, verbosity int, file string) {
	if m != nil {
		if verbosity == -1 && m.Log.Verbosity != 0 {
			verbosity = m.Log.Verbosity
		}
		if file == "" {
			file = m.LogFile()
		}
	}
	if file == "" {
		commonlog.Configure(verbosity, nil)
		return
	}
	commonlog.Configure(verbosity, &file)
}
