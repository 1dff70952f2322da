package manifest

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWalkOrdersDirectoriesBeforeDescendants(t *testing.T) {
	root := t.TempDir()

	if err := os.MkdirAll(filepath.Join(root, "a", "b"), 0o755); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "a", "b", "file.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "top.txt"), []byte("top"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}

	m, err := Walk(root, nil)
	if err != nil {
		t.Fatalf("Walk failed: %v", err)
	}

	var sawA, sawAB, sawABFile, sawTop bool
	positions := map[string]int{}
	for i, e := range m.Entries {
		positions[e.Path] = i
		switch e.Path {
		case "a":
			sawA = true
			if e.Kind != KindDirectory {
				t.Errorf("expected a to be a directory")
			}
		case "a/b":
			sawAB = true
		case "a/b/file.txt":
			sawABFile = true
		case "top.txt":
			sawTop = true
		}
	}
	if !sawA || !sawAB || !sawABFile || !sawTop {
		t.Fatalf("missing expected entries: %+v", m.Entries)
	}
	if positions["a"] >= positions["a/b"] {
		t.Errorf("expected a before a/b")
	}
	if positions["a/b"] >= positions["a/b/file.txt"] {
		t.Errorf("expected a/b before a/b/file.txt")
	}
}

func TestWalkAppliesExcludeMatcher(t *testing.T) {
	root := t.TempDir()

	if err := os.MkdirAll(filepath.Join(root, "node_modules", "pkg"), 0o755); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "node_modules", "pkg", "index.js"), []byte("x"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "main.go"), []byte("x"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}

	matcher, err := NewExcludeMatcher([]string{"node_modules"})
	if err != nil {
		t.Fatalf("NewExcludeMatcher failed: %v", err)
	}

	m, err := Walk(root, matcher)
	if err != nil {
		t.Fatalf("Walk failed: %v", err)
	}

	for _, e := range m.Entries {
		if e.Path == "node_modules" || e.Path == "node_modules/pkg" || e.Path == "node_modules/pkg/index.js" {
			t.Fatalf("excluded path present in manifest: %s", e.Path)
		}
	}
	if len(m.Entries) != 1 || m.Entries[0].Path != "main.go" {
		t.Fatalf("expected only main.go, got %+v", m.Entries)
	}
}

func TestWalkRecordsSymlinkTarget(t *testing.T) {
	root := t.TempDir()

	if err := os.WriteFile(filepath.Join(root, "real.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := os.Symlink("real.txt", filepath.Join(root, "link.txt")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	m, err := Walk(root, nil)
	if err != nil {
		t.Fatalf("Walk failed: %v", err)
	}

	var found bool
	for _, e := range m.Entries {
		if e.Path == "link.txt" {
			found = true
			if e.Kind != KindSymlink {
				t.Errorf("expected symlink kind, got %v", e.Kind)
			}
			if e.SymlinkTarget != "real.txt" {
				t.Errorf("expected target real.txt, got %q", e.SymlinkTarget)
			}
		}
	}
	if !found {
		t.Fatalf("link.txt not found in manifest")
	}
}
