package storage

import (
	"os"
	"path/filepath"
	"sort"
	"testing"
)

func tempVault(t *testing.T, opts ...FSOption) *FS {
	t.Helper()
	fs, err := NewFS(t.TempDir(), opts...)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return fs
}

func TestWriteAndRead(t *testing.T) {
	s := tempVault(t)
	content := []byte("Met [Jane](https://getdex.com/contacts/c1) %%dex:contact-id=c1%%\n")
	if err := s.Write("daily/2026-01-01.md", content); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := s.Read("daily/2026-01-01.md")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("content mismatch: got %q", got)
	}
}

func TestWriteKeepsMode(t *testing.T) {
	s := tempVault(t)
	abs := filepath.Join(s.Root(), "note.md")
	if err := os.WriteFile(abs, []byte("a"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := s.Write("note.md", []byte("b")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("mode = %v, want 0600", info.Mode().Perm())
	}
}

func TestList_SkipsHiddenAndIgnored(t *testing.T) {
	s := tempVault(t, WithIgnore("templates/"))
	_ = s.Write("a.md", []byte("a"))
	_ = s.Write("sub/b.md", []byte("b"))
	_ = s.Write("readme.txt", []byte("not md"))
	_ = s.Write(".obsidian/workspace.md", []byte("hidden"))
	_ = s.Write("templates/person.md", []byte("tpl"))

	items, err := s.List("")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	var paths []string
	for _, it := range items {
		paths = append(paths, it.Path)
		if len(it.Checksum) != 64 {
			t.Errorf("%s: checksum %q", it.Path, it.Checksum)
		}
	}
	sort.Strings(paths)
	if len(paths) != 2 || paths[0] != "a.md" || paths[1] != "sub/b.md" {
		t.Errorf("paths = %v", paths)
	}
}

func TestIgnored(t *testing.T) {
	s := tempVault(t, WithIgnore("archive"))
	cases := map[string]bool{
		"note.md":            false,
		"archive/old.md":     true,
		"archived/new.md":    false,
		".trash/x.md":        true,
		"people/.hidden.md":  true,
		"people/jane-doe.md": false,
	}
	for p, want := range cases {
		if got := s.Ignored(p); got != want {
			t.Errorf("Ignored(%q) = %v, want %v", p, got, want)
		}
	}
}

func TestTraversalBlocked(t *testing.T) {
	s := tempVault(t)
	for _, p := range []string{"../../etc/passwd", "../outside.md", "/etc/shadow"} {
		if _, err := s.Read(p); err == nil {
			t.Errorf("expected error for path %q", p)
		}
		if err := s.Write(p, []byte("x")); err == nil {
			t.Errorf("expected error for write to %q", p)
		}
	}
}

func TestAtomicWriteLeavesNoTemp(t *testing.T) {
	s := tempVault(t)
	_ = s.Write("atomic.md", []byte("original"))
	if err := s.Write("atomic.md", []byte("updated")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, _ := s.Read("atomic.md")
	if string(got) != "updated" {
		t.Errorf("expected updated content, got %q", got)
	}
	matches, _ := filepath.Glob(filepath.Join(s.Root(), tmpPattern))
	if len(matches) != 0 {
		t.Errorf("leftover temp files: %v", matches)
	}
}

func TestNewFS_Errors(t *testing.T) {
	if _, err := NewFS(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("expected error for non-existent dir")
	}
	f, _ := os.CreateTemp(t.TempDir(), "vault-*")
	_ = f.Close()
	if _, err := NewFS(f.Name()); err == nil {
		t.Error("expected error when root is a file")
	}
}

func TestName(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "Personal")
	if err := os.Mkdir(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	s, err := NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	if s.Name() != "Personal" {
		t.Errorf("Name = %q", s.Name())
	}
}
