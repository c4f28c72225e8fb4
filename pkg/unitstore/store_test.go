package unitstore

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"path/filepath"
	"testing"

	"github.com/chbinousamy/octave/pkg/bytecode"
	"github.com/chbinousamy/octave/pkg/value"
	"github.com/chbinousamy/octave/pkg/vm"
)

func openMemory(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Memory)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// constUnit returns a unit named name whose single output is k.
func constUnit(name string, k float64) *bytecode.Unit {
	b := bytecode.NewBuilder(name, bytecode.Layout{Outputs: []string{"r"}})
	b.EmitConstant(value.Scalar(k))
	b.Emit(bytecode.OpAssign, 0)
	b.Emit(bytecode.OpRet)
	return b.MustBuild()
}

func mustPut(t *testing.T, s *Store, u *bytecode.Unit) Entry {
	t.Helper()
	e, err := s.Put(u)
	if err != nil {
		t.Fatalf("Put(%s) failed: %v", u.Name, err)
	}
	return e
}

func TestPutAndGet(t *testing.T) {
	s := openMemory(t)
	u := constUnit("answer", 42)
	e := mustPut(t, s, u)

	sum, err := bytecode.ContentHash(u)
	if err != nil {
		t.Fatal(err)
	}
	if e.Hash != hex.EncodeToString(sum[:]) {
		t.Errorf("hash = %s, want the content hash", e.Hash)
	}

	got, ge, err := s.Get("answer")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !bytes.Equal(got.Code, u.Code) {
		t.Errorf("code differs after round trip")
	}
	if ge.ID != e.ID || ge.Size != e.Size {
		t.Errorf("entry = %+v, want %+v", ge, e)
	}
}

func TestPutPromotesExistingVersion(t *testing.T) {
	s := openMemory(t)
	first := mustPut(t, s, constUnit("f", 1))
	mustPut(t, s, constUnit("f", 2))

	u, _, err := s.Get("f")
	if err != nil {
		t.Fatal(err)
	}
	if k, _ := u.Const(0); value.Format(k) != "2" {
		t.Errorf("latest constant = %s, want 2", value.Format(k))
	}

	again := mustPut(t, s, constUnit("f", 1))
	if again.ID != first.ID {
		t.Errorf("re-put id = %s, want the original %s", again.ID, first.ID)
	}
	u, _, err = s.Get("f")
	if err != nil {
		t.Fatal(err)
	}
	if k, _ := u.Const(0); value.Format(k) != "1" {
		t.Errorf("latest constant = %s, want 1", value.Format(k))
	}

	entries, err := s.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].ID != first.ID {
		t.Errorf("newest entry = %s, want %s", entries[0].ID, first.ID)
	}
}

func TestGetByHash(t *testing.T) {
	s := openMemory(t)
	e := mustPut(t, s, constUnit("g", 7))

	u, ge, err := s.GetByHash(e.Hash[:10])
	if err != nil {
		t.Fatalf("GetByHash failed: %v", err)
	}
	if u.Name != "g" || ge.Hash != e.Hash {
		t.Errorf("got %s %s, want g %s", u.Name, ge.Hash, e.Hash)
	}
	if _, _, err := s.GetByHash("ab"); err == nil {
		t.Error("expected an error for a short prefix")
	}
	if _, _, err := s.GetByHash("zzzz"); err == nil {
		t.Error("expected an error for a non-hex prefix")
	}
	missing := "0000"
	if e.Hash[:4] == missing {
		missing = "ffff"
	}
	if _, _, err := s.GetByHash(missing); !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
	if _, _, err := s.Get("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestPruneAndDelete(t *testing.T) {
	s := openMemory(t)
	for k := 1; k <= 3; k++ {
		mustPut(t, s, constUnit("f", float64(k)))
	}
	mustPut(t, s, constUnit("g", 1))

	n, err := s.Prune(1)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("pruned %d, want 2", n)
	}
	u, _, err := s.Get("f")
	if err != nil {
		t.Fatal(err)
	}
	if k, _ := u.Const(0); value.Format(k) != "3" {
		t.Errorf("kept constant = %s, want 3", value.Format(k))
	}

	n, err = s.Delete("g")
	if err != nil || n != 1 {
		t.Errorf("Delete = %d, %v, want 1, nil", n, err)
	}
	entries, _ := s.List()
	if len(entries) != 1 || entries[0].Name != "f" {
		t.Errorf("entries = %v, want only f", entries)
	}
	if _, err := s.Prune(0); err == nil {
		t.Error("expected an error for keep 0")
	}
}

func TestLoadInto(t *testing.T) {
	s := openMemory(t)
	mustPut(t, s, constUnit("five", 4))
	mustPut(t, s, constUnit("five", 5))
	mustPut(t, s, constUnit("six", 6))

	reg := vm.NewRegistry()
	names, err := s.LoadInto(reg)
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 2 || names[0] != "five" || names[1] != "six" {
		t.Fatalf("loaded %v, want [five six]", names)
	}
	v := vm.New(vm.Options{UseVM: true, Resolver: reg})
	outs, err := v.CallFunction(context.Background(), "five", nil, 1)
	if err != nil {
		t.Fatal(err)
	}
	if d, _ := value.ScalarValue(outs[0]); d != 5 {
		t.Errorf("five() = %v, want 5", d)
	}
}

func TestOpenFilePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "units.db")
	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	e := mustPut(t, s, constUnit("kept", 1))
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s, err = Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	_, got, err := s.Get("kept")
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != e.ID {
		t.Errorf("id = %s, want %s", got.ID, e.ID)
	}
	if s.Path() != path {
		t.Errorf("Path() = %q, want %q", s.Path(), path)
	}
}

func TestDefaultPathFromEnv(t *testing.T) {
	t.Setenv("OCTVM_CACHE", "/tmp/x.db")
	p, err := DefaultPath()
	if err != nil || p != "/tmp/x.db" {
		t.Errorf("DefaultPath() = %q, %v, want /tmp/x.db", p, err)
	}
}
