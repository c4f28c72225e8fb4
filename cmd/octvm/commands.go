package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/tliron/commonlog"

	"github.com/chbinousamy/octave/pkg/asm"
	"github.com/chbinousamy/octave/pkg/bytecode"
	"github.com/chbinousamy/octave/pkg/unitstore"
	"github.com/chbinousamy/octave/pkg/value"
	"github.com/chbinousamy/octave/pkg/vm"
)

// handleRunCommand processes the `octvm run` subcommand.
// Usage:
//
//	octvm run [-nargout N] [-trace] [-no-cache] [unit] [args...]
//
// Arguments are parsed as literals (numbers, 'strings', [matrices],
// {cells}); anything else is passed as a string.
func (c *cli) handleRunCommand(args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	nargout := fs.Int("nargout", 1, "Number of outputs to request")
	trace := fs.Bool("trace", false, "Log every executed instruction")
	noCache := fs.Bool("no-cache", false, "Do not load units from the cache")
	if err := fs.Parse(args); err != nil {
		return err
	}

	rest := fs.Args()
	var name string
	switch {
	case len(rest) > 0:
		name, rest = rest[0], rest[1:]
	case c.manifest != nil && c.manifest.Source.Entry != "":
		name = c.manifest.Source.Entry
	default:
		return errors.New("no unit named and no [source].entry in the manifest")
	}
	if *nargout < 0 {
		return fmt.Errorf("nargout must not be negative, got %d", *nargout)
	}

	reg, err := c.loadProject(!*noCache)
	if err != nil {
		return err
	}
	opts := c.vmOptions()
	opts.Resolver = reg
	opts.Output = c.stdout
	if *trace {
		opts.Trace = true
	}
	if opts.Trace {
		commonlog.SetMaxLevel(commonlog.Debug, "octvm", "vm")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	machine := vm.New(opts)
	log.Infof("run %s: calling %s", machine.RunID, name)
	outs, err := machine.CallFunction(ctx, name, parseArgs(rest), *nargout)
	if err != nil {
		var verr *vm.Error
		if errors.As(err, &verr) && verr.Kind == vm.ErrExit {
			return &exitError{status: verr.ExitStatus}
		}
		return err
	}

	names := outputNames(reg, name, len(outs))
	for i, o := range outs {
		if o == nil {
			continue
		}
		fmt.Fprint(c.stdout, value.Display(names[i], o))
	}
	return nil
}

// parseArgs converts command-line arguments to values.
func parseArgs(args []string) []value.Value {
	vals := make([]value.Value, len(args))
	for i, a := range args {
		v, err := asm.ParseLiteral(a)
		if err != nil {
			v = value.String(a)
		}
		vals[i] = v
	}
	return vals
}

// outputNames labels n results of a call to name: declared output names
// where the unit has them, "ans" otherwise.
func outputNames(r vm.Resolver, name string, n int) []string {
	names := make([]string, n)
	fn, _ := r.Resolve(name)
	for i := range names {
		names[i] = "ans"
		if fn != nil && fn.Unit != nil && i < fn.Unit.NumOutputs {
			names[i] = fn.Unit.SlotName(i)
		}
	}
	return names
}

// handleDisCommand processes the `octvm dis` subcommand.
// Usage:
//
//	octvm dis [-source] <file.oasm|file.yaml|unit|#hash>...
func (c *cli) handleDisCommand(args []string) error {
	fs := flag.NewFlagSet("dis", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	source := fs.Bool("source", false, "Print assembler source instead of a listing")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("usage: octvm dis [-source] <file|unit|#hash>...")
	}

	var (
		reg   *vm.Registry
		store *unitstore.Store
	)
	defer func() {
		if store != nil {
			store.Close()
		}
	}()

	for _, arg := range fs.Args() {
		var units []*bytecode.Unit
		switch {
		case isUnitFile(arg):
			us, err := assembleFile(arg)
			if err != nil {
				return err
			}
			units = us
		case strings.HasPrefix(arg, "#"):
			if store == nil {
				s, err := c.mustOpenCache()
				if err != nil {
					return err
				}
				store = s
			}
			u, _, err := store.GetByHash(arg[1:])
			if err != nil {
				return fmt.Errorf("%s: %w", arg, err)
			}
			units = []*bytecode.Unit{u}
		default:
			if reg == nil {
				r, err := c.loadProject(true)
				if err != nil {
					return err
				}
				reg = r
			}
			fn, ok := reg.Resolve(arg)
			if !ok {
				return fmt.Errorf("%s: %w", arg, unitstore.ErrNotFound)
			}
			if fn.Unit == nil {
				return fmt.Errorf("%s is a builtin", arg)
			}
			units = []*bytecode.Unit{fn.Unit}
		}
		for _, u := range units {
			if err := c.printUnit(u, *source); err != nil {
				return err
			}
		}
	}
	return nil
}

// printUnit writes a listing or the assembler source of u.
func (c *cli) printUnit(u *bytecode.Unit, source bool) error {
	if source {
		text, err := asm.Print(u)
		if err != nil {
			return fmt.Errorf("%s: %w", u.Name, err)
		}
		fmt.Fprintln(c.stdout, text)
		return nil
	}
	listing := u.Disassemble()
	if c.useColor() {
		listing = colorize(listing)
	}
	fmt.Fprintln(c.stdout, listing)
	return nil
}

// handleAsmCommand processes the `octvm asm` subcommand.
// Usage:
//
//	octvm asm [-yaml] <file>...     Print the assembled units
//	octvm asm -cache <file>...      Store the assembled units in the cache
func (c *cli) handleAsmCommand(args []string) error {
	fs := flag.NewFlagSet("asm", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	asYAML := fs.Bool("yaml", false, "Print YAML instead of assembler text")
	toCache := fs.Bool("cache", false, "Store units in the unit cache")
	if err := fs.Parse(args); err != nil {
		return err
	}
	files := fs.Args()
	if len(files) == 0 {
		dirs, err := c.unitDirs()
		if err != nil {
			return err
		}
		if files, err = unitFiles(dirs); err != nil {
			return err
		}
		if len(files) == 0 {
			return errors.New("no unit files found")
		}
	}

	var store *unitstore.Store
	if *toCache {
		s, err := c.mustOpenCache()
		if err != nil {
			return err
		}
		defer s.Close()
		store = s
	}

	first := true
	for _, f := range files {
		units, err := assembleFile(f)
		if err != nil {
			return err
		}
		for _, u := range units {
			switch {
			case store != nil:
				e, err := store.Put(u)
				if err != nil {
					return fmt.Errorf("caching %s: %w", u.Name, err)
				}
				fmt.Fprintf(c.stdout, "%-20s %s\n", u.Name, e.Hash[:12])
			case *asYAML:
				src, err := asm.Decompile(u)
				if err != nil {
					return fmt.Errorf("%s: %w", u.Name, err)
				}
				data, err := asm.MarshalYAML(src)
				if err != nil {
					return fmt.Errorf("%s: %w", u.Name, err)
				}
				if !first {
					fmt.Fprintln(c.stdout, "---")
				}
				c.stdout.Write(data)
			default:
				if err := c.printUnit(u, true); err != nil {
					return err
				}
			}
			first = false
		}
	}
	return nil
}

// handleCacheCommand processes the `octvm cache` subcommand.
// Usage:
//
//	octvm cache list                 List cached unit versions
//	octvm cache get <unit|#hash>     Disassemble a cached unit
//	octvm cache prune [-keep N]      Drop all but the newest N versions
//	octvm cache delete <unit>        Drop every version of a unit
func (c *cli) handleCacheCommand(args []string) error {
	if len(args) == 0 {
		fmt.Fprintln(c.stderr, "Usage: octvm cache [list|get|prune|delete] ...")
		fmt.Fprintln(c.stderr, "  list                 List cached unit versions")
		fmt.Fprintln(c.stderr, "  get <unit|#hash>     Disassemble a cached unit")
		fmt.Fprintln(c.stderr, "  prune [-keep N]      Drop all but the newest N versions of each unit")
		fmt.Fprintln(c.stderr, "  delete <unit>        Drop every version of a unit")
		return &exitError{status: 2}
	}

	store, err := c.mustOpenCache()
	if err != nil {
		return err
	}
	defer store.Close()

	switch args[0] {
	case "list":
		return c.cacheList(store)
	case "get":
		if len(args) != 2 {
			return errors.New("usage: octvm cache get <unit|#hash>")
		}
		var u *bytecode.Unit
		if strings.HasPrefix(args[1], "#") {
			u, _, err = store.GetByHash(args[1][1:])
		} else {
			u, _, err = store.Get(args[1])
		}
		if err != nil {
			return fmt.Errorf("%s: %w", args[1], err)
		}
		return c.printUnit(u, false)
	case "prune":
		fs := flag.NewFlagSet("prune", flag.ContinueOnError)
		fs.SetOutput(c.stderr)
		keep := fs.Int("keep", 1, "Versions to keep per unit")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		n, err := store.Prune(*keep)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.stdout, "Pruned %d unit versions\n", n)
	case "delete":
		if len(args) != 2 {
			return errors.New("usage: octvm cache delete <unit>")
		}
		n, err := store.Delete(args[1])
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%s: %w", args[1], unitstore.ErrNotFound)
		}
		fmt.Fprintf(c.stdout, "Deleted %d versions of %s\n", n, args[1])
	default:
		return fmt.Errorf("unknown cache subcommand: %s", args[0])
	}
	return nil
}

func (c *cli) cacheList(store *unitstore.Store) error {
	entries, err := store.List()
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintf(c.stdout, "Cache %s is empty\n", store.Path())
		return nil
	}
	tw := tabwriter.NewWriter(c.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tHASH\tSIZE\tCREATED\tFILE")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			e.Name, e.Hash[:12], humanize.Bytes(uint64(e.Size)), humanize.Time(e.Created), e.File)
	}
	return tw.Flush()
}
