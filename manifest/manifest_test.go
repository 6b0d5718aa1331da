package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/juno-r1/sophia-sub000/fault"
)

func writeManifest(t *testing.T, dir, content string) {
	t.Helper()
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

[run]
entry = "main.sasm"
verbosity = 2

[supervisor]
store = "build/modules.db"
paths = ["lib", "/opt/sophia"]

[errors]
fatal = ["CAST", "SUPV"]
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
	if m.Run.Verbosity != 2 {
		t.Errorf("verbosity = %d, want 2", m.Run.Verbosity)
	}
	if got, want := m.EntryPath(), filepath.Join(m.Dir, "main.sasm"); got != want {
		t.Errorf("entry = %q, want %q", got, want)
	}
	if got, want := m.StorePath(), filepath.Join(m.Dir, "build", "modules.db"); got != want {
		t.Errorf("store = %q, want %q", got, want)
	}
	paths := m.SearchPaths()
	if len(paths) != 2 || paths[0] != filepath.Join(m.Dir, "lib") || paths[1] != "/opt/sophia" {
		t.Errorf("search paths = %v", paths)
	}
	kinds := m.FatalKinds()
	if len(kinds) != 2 || kinds[0] != fault.Cast || kinds[1] != fault.Super {
		t.Errorf("fatal kinds = %v, want [CAST SUPV]", kinds)
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

	// Default search path is the project directory
	if paths := m.SearchPaths(); len(paths) != 1 || paths[0] != m.Dir {
		t.Errorf("default search paths = %v, want [%s]", paths, m.Dir)
	}
	if m.StorePath() != "" || m.EntryPath() != "" {
		t.Errorf("store = %q, entry = %q, want empty", m.StorePath(), m.EntryPath())
	}
	if len(m.FatalKinds()) != 0 {
		t.Errorf("fatal kinds = %v, want none", m.FatalKinds())
	}
}

func TestLoadManifestErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"syntax", "[project\nname = 1"},
		{"unknown kind", "[errors]\nfatal = [\"OOPS\"]\n"},
	}
	for _, tt := range tests {
		dir := t.TempDir()
		writeManifest(t, dir, tt.content)
		if _, err := Load(dir); err == nil {
			t.Errorf("%s: Load succeeded", tt.name)
		}
	}
}

func TestFindAndLoad(t *testing.T) {
	// Create nested directory structure
	dir := t.TempDir()
	subDir := filepath.Join(dir, "a", "b", "c")
	if err := os.MkdirAll(subDir, 0755); err != nil {
		t.Fatal(err)
	}
	writeManifest(t, dir, "[project]\nname = \"found-project\"\n")

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
		t.Error("expected nil manifest when no sophia.toml exists")
	}
}
