package main

import (
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

const (
	ansiReset  = "\x1b[0m"
	ansiBold   = "\x1b[1m"
	ansiDim    = "\x1b[2m"
	ansiYellow = "\x1b[33m"
	ansiCyan   = "\x1b[36m"
)

// stdoutIsTerminal reports whether w is a terminal.
func stdoutIsTerminal(w io.Writer) func() bool {
	return func() bool {
		f, ok := w.(*os.File)
		if !ok {
			return false
		}
		return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
}

func (c *cli) useColor() bool {
	switch c.color {
	case "always":
		return true
	case "never":
		return false
	}
	return os.Getenv("NO_COLOR") == "" && c.isTerminal()
}

// colorize highlights a disassembly listing: header comments dimmed,
// offsets yellow, opcodes bold, operand notes cyan.
func colorize(listing string) string {
	lines := strings.Split(listing, "\n")
	for i, l := range lines {
		switch {
		case strings.HasPrefix(l, ";"):
			lines[i] = ansiDim + l + ansiReset
		case isListingLine(l):
			lines[i] = colorizeInstruction(l)
		}
	}
	return strings.Join(lines, "\n")
}

// isListingLine matches "XXXX  OPCODE ..." code lines.
func isListingLine(l string) bool {
	if len(l) < 7 || l[4:6] != "  " {
		return false
	}
	for _, r := range l[:4] {
		if !strings.ContainsRune("0123456789ABCDEF", r) {
			return false
		}
	}
	return true
}

func colorizeInstruction(l string) string {
	ip, rest := l[:4], l[6:]
	code, notes := rest, ""
	if k := strings.Index(rest, " ; "); k >= 0 {
		code, notes = rest[:k], rest[k:]
	}
	op, operands, _ := strings.Cut(code, " ")
	var sb strings.Builder
	sb.WriteString(ansiYellow + ip + ansiReset + "  ")
	sb.WriteString(ansiBold + op + ansiReset)
	if operands != "" {
		sb.WriteString(" " + operands)
	}
	if notes != "" {
		sb.WriteString(ansiCyan + notes + ansiReset)
	}
	return sb.String()
}
