package state

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultPrefsPath(t *testing.T) {
	path := DefaultPrefsPath()
	if !strings.Contains(path, "esginsight") {
		t.Errorf("expected path to contain 'esginsight', got %s", path)
	}
	if !strings.HasSuffix(path, ".yaml") {
		t.Errorf("expected path to end with .yaml, got %s", path)
	}
}

func TestLoadPreferences_Missing(t *testing.T) {
	p, err := LoadPreferences(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Version != PrefsVersion {
		t.Errorf("expected version %d, got %d", PrefsVersion, p.Version)
	}
	if _, ok := p.LastReport("http://localhost:8000"); ok {
		t.Error("expected no remembered report")
	}
}

func TestSavePreferences_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.yaml")

	p := NewPreferences()
	p.RememberReport("http://localhost:8000", "rep_1")
	p.AppendRecentExport("a.pdf")
	if err := SavePreferences(p, path); err != nil {
		t.Fatalf("failed to save: %v", err)
	}
	if p.SavedAt.IsZero() {
		t.Error("expected SavedAt to be set")
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat failed: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("expected mode 0600, got %v", info.Mode().Perm())
	}

	loaded, err := LoadPreferences(path)
	if err != nil {
		t.Fatalf("failed to load: %v", err)
	}
	id, ok := loaded.LastReport("http://localhost:8000")
	if !ok || id != "rep_1" {
		t.Errorf("expected rep_1, got %q (ok=%v)", id, ok)
	}
	if _, ok := loaded.LastReport("http://other:8000"); ok {
		t.Error("expected remembered report to be scoped to its backend")
	}
	if len(loaded.RecentExports) != 1 || loaded.RecentExports[0] != "a.pdf" {
		t.Errorf("unexpected recent exports %v", loaded.RecentExports)
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".state.tmp-") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestLoadPreferences_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.yaml")
	if err := os.WriteFile(path, []byte("version: [oops"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadPreferences(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestSavePreferences_Nil(t *testing.T) {
	if err := SavePreferences(nil, filepath.Join(t.TempDir(), "x.yaml")); err == nil {
		t.Error("expected error for nil preferences")
	}
}

func TestAppendRecentExport(t *testing.T) {
	p := NewPreferences()
	p.AppendRecentExport("")
	if len(p.RecentExports) != 0 {
		t.Fatalf("empty path should be ignored")
	}
	for i := 0; i < maxRecentExports+3; i++ {
		p.AppendRecentExport(filepath.Join("out", string(rune('a'+i))+".pdf"))
	}
	if len(p.RecentExports) != maxRecentExports {
		t.Errorf("expected %d entries, got %d", maxRecentExports, len(p.RecentExports))
	}
	p.AppendRecentExport(p.RecentExports[3])
	if p.RecentExports[0] != filepath.Join("out", string(rune('a'+maxRecentExports+2-3))+".pdf") {
		t.Errorf("expected re-added path at front, got %v", p.RecentExports)
	}
	seen := map[string]bool{}
	for _, e := range p.RecentExports {
		if seen[e] {
			t.Errorf("duplicate entry %s", e)
		}
		seen[e] = true
	}
}
