package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/juno-r1/sophia-sub000/code"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "modules.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPutGet(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	prog, err := code.Parse(".const &1 1\nTASK ; lib\nx := .bind &1\n")
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Put(ctx, "lib", prog); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := s.Get(ctx, "lib")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Name() != "lib" || len(got.Instructions) != 2 || len(got.Namespace) != 1 {
		t.Errorf("Get returned %s", code.Format(got))
	}
}

func TestGetMissing(t *testing.T) {
	s := openTemp(t)
	if _, err := s.Get(context.Background(), "nope"); !errors.Is(err, ErrModuleNotFound) {
		t.Fatalf("Get(nope) = %v, want ErrModuleNotFound", err)
	}
}

func TestListAndDelete(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	prog := &code.Program{Instructions: []code.Instruction{{Name: code.Head, Labels: []string{"m"}}}}
	for _, name := range []string{"b", "a"} {
		if err := s.Put(ctx, name, prog); err != nil {
			t.Fatal(err)
		}
	}
	// replacing keeps one row
	if err := s.Put(ctx, "a", prog); err != nil {
		t.Fatal(err)
	}
	entries, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 2 || entries[0].Name != "a" || entries[1].Name != "b" {
		t.Fatalf("List = %+v", entries)
	}
	if entries[0].Size == 0 {
		t.Error("entry size is zero")
	}
	if err := s.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(ctx, "a"); !errors.Is(err, ErrModuleNotFound) {
		t.Errorf("second Delete = %v, want ErrModuleNotFound", err)
	}
}
