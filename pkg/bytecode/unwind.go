package bytecode

import (
	"fmt"
	"slices"
	"sort"
)

// UnwindKind is the kind of region an unwind entry describes.
type UnwindKind uint8

const (
	UnwindLoop UnwindKind = iota + 1
	UnwindTryCatch
	UnwindProtect
)

func (k UnwindKind) String() string {
	switch k {
	case UnwindLoop:
		return "loop"
	case UnwindTryCatch:
		return "try"
	case UnwindProtect:
		return "unwind_protect"
	}
	return fmt.Sprintf("UnwindKind(%d)", uint8(k))
}

// UnwindEntry covers the instructions in [Start, End). Target is the
// loop exit, catch body or cleanup body; Depth is the operand stack depth
// (relative to the frame's operand base) to restore before jumping there.
type UnwindEntry struct {
	Start, End int
	Target     int
	Depth      int
	Kind       UnwindKind
}

// Covers reports whether ip lies in the entry's range.
func (e UnwindEntry) Covers(ip int) bool { return ip >= e.Start && ip < e.End }

func (e UnwindEntry) String() string {
	return fmt.Sprintf("%s [%04X,%04X) -> %04X depth=%d", e.Kind, e.Start, e.End, e.Target, e.Depth)
}

// LocEntry maps the instructions in [Start, End) to a source position.
type LocEntry struct {
	Start, End int
	Line, Col  int
}

// ArgNameEntry records, for the call instruction(s) in [Start, End), the
// source text of each argument expression and the name of the callee
// binding, for inputname.
type ArgNameEntry struct {
	Start, End int
	ArgNames   []string
	Callee     string
}

// SortUnwind orders entries so that an outer region precedes the regions
// nested inside it: by start ascending, then end descending.
func SortUnwind(entries []UnwindEntry) {
	slices.SortStableFunc(entries, func(a, b UnwindEntry) int {
		if a.Start != b.Start {
			return a.Start - b.Start
		}
		return b.End - a.End
	})
}

// Enclosing returns the unwind entries covering ip, innermost first.
// Entries must be sorted with SortUnwind.
func (u *Unit) Enclosing(ip int) []UnwindEntry {
	// Candidates are entries starting at or before ip.
	n := sort.Search(len(u.Unwind), func(i int) bool { return u.Unwind[i].Start > ip })
	var out []UnwindEntry
	for i := n - 1; i >= 0; i-- {
		if u.Unwind[i].Covers(ip) {
			out = append(out, u.Unwind[i])
		}
	}
	return out
}

// Innermost returns the innermost entry covering ip.
func (u *Unit) Innermost(ip int) (UnwindEntry, bool) {
	n := sort.Search(len(u.Unwind), func(i int) bool { return u.Unwind[i].Start > ip })
	for i := n - 1; i >= 0; i-- {
		if u.Unwind[i].Covers(ip) {
			return u.Unwind[i], true
		}
	}
	return UnwindEntry{}, false
}

// InnermostLoop returns the innermost loop entry covering ip.
func (u *Unit) InnermostLoop(ip int) (UnwindEntry, bool) {
	for _, e := range u.Enclosing(ip) {
		if e.Kind == UnwindLoop {
			return e, true
		}
	}
	return UnwindEntry{}, false
}

// Exited returns the entries covering from but not to, innermost first:
// the regions a jump from -> to leaves.
func (u *Unit) Exited(from, to int) []UnwindEntry {
	var out []UnwindEntry
	for _, e := range u.Enclosing(from) {
		if !e.Covers(to) {
			out = append(out, e)
		}
	}
	return out
}

// Location returns the source position of ip.
func (u *Unit) Location(ip int) (line, col int, ok bool) {
	i := sort.Search(len(u.Locs), func(i int) bool { return u.Locs[i].End > ip })
	if i < len(u.Locs) && u.Locs[i].Start <= ip {
		return u.Locs[i].Line, u.Locs[i].Col, true
	}
	return 0, 0, false
}

// SortArgNames orders entries by end ascending, then start descending,
// so a nested call range precedes the range enclosing it.
func SortArgNames(entries []ArgNameEntry) {
	slices.SortStableFunc(entries, func(a, b ArgNameEntry) int {
		if a.End != b.End {
			return a.End - b.End
		}
		return b.Start - a.Start
	})
}

// ArgNamesAt returns the innermost argument-name entry covering a call
// at ip. Entries must be sorted with SortArgNames.
func (u *Unit) ArgNamesAt(ip int) (ArgNameEntry, bool) {
	i := sort.Search(len(u.ArgNames), func(i int) bool { return u.ArgNames[i].End > ip })
	for ; i < len(u.ArgNames); i++ {
		if e := u.ArgNames[i]; e.Start <= ip {
			return e, true
		}
	}
	return ArgNameEntry{}, false
}
