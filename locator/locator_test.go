package locator

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/marcut/runtime-bridge/errors"
)

// buildBundle lays out a runtime bundle under dir and returns the
// candidate root (the Frameworks directory).
func buildBundle(t *testing.T, dir, version string) string {
	t.Helper()

	home := filepath.Join(dir, "Contents", "Frameworks", "Python.framework", "Versions", version)
	mkdir(t, filepath.Join(home, "lib", "python"+version))
	writeFile(t, filepath.Join(home, "Python"))
	mkdir(t, filepath.Join(dir, "Contents", "Resources", "python_site"))

	return filepath.Join(dir, "Contents", "Frameworks")
}

func mkdir(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", path, err)
	}
}

func writeFile(t *testing.T, path string) {
	t.Helper()
	mkdir(t, filepath.Dir(path))
	if err := os.WriteFile(path, []byte("stub"), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestLocate_FullBundle(t *testing.T) {
	dir := t.TempDir()
	root := buildBundle(t, dir, "3.10")

	cfg, err := Locate(DefaultLayout(), Options{Roots: []string{root}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	home := filepath.Join(root, "Python.framework", "Versions", "3.10")
	if cfg.Home != home {
		t.Errorf("expected home %s, got %s", home, cfg.Home)
	}
	if cfg.Version != "3.10" {
		t.Errorf("expected version 3.10, got %s", cfg.Version)
	}
	if cfg.LibraryPath != filepath.Join(home, "Python") {
		t.Errorf("unexpected library path %s", cfg.LibraryPath)
	}
}

func TestLocate_CurrentSymlinkWinsOverScan(t *testing.T) {
	dir := t.TempDir()
	root := buildBundle(t, dir, "3.9")
	buildBundle(t, dir, "3.11")

	versions := filepath.Join(root, "Python.framework", "Versions")
	if err := os.Symlink("3.9", filepath.Join(versions, "Current")); err != nil {
		t.Fatalf("symlink: %v", err)
	}

	cfg, err := Locate(DefaultLayout(), Options{Roots: []string{root}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Version != "3.9" {
		t.Errorf("expected Current symlink to pin version 3.9, got %s", cfg.Version)
	}
}

func TestLocate_ScanPicksHighestVersion(t *testing.T) {
	dir := t.TempDir()
	root := buildBundle(t, dir, "3.9")
	buildBundle(t, dir, "3.10")

	cfg, err := Locate(DefaultLayout(), Options{Roots: []string{root}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Numeric ordering: 3.10 above 3.9, unlike a string sort.
	if cfg.Version != "3.10" {
		t.Errorf("expected version 3.10, got %s", cfg.Version)
	}
}

func TestLocate_DefaultVersionFallback(t *testing.T) {
	dir := t.TempDir()
	root := buildBundle(t, dir, "3.10")

	// Hide the version directory from the scan by renaming it to
	// something the pattern rejects, then point the default at it.
	versions := filepath.Join(root, "Python.framework", "Versions")
	if err := os.Rename(filepath.Join(versions, "3.10"), filepath.Join(versions, "stable")); err != nil {
		t.Fatalf("rename: %v", err)
	}
	home := filepath.Join(versions, "stable")
	if err := os.Rename(filepath.Join(home, "lib", "python3.10"), filepath.Join(home, "lib", "pythonstable")); err != nil {
		t.Fatalf("rename: %v", err)
	}

	layout := DefaultLayout()
	layout.DefaultVersion = "stable"
	cfg, err := Locate(layout, Options{Roots: []string{root}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Version != "stable" {
		t.Errorf("expected default version fallback, got %s", cfg.Version)
	}
	if cfg.LibraryPath != filepath.Join(versions, "stable", "Python") {
		t.Errorf("unexpected library path %s", cfg.LibraryPath)
	}
}

func TestLocate_SearchPathOrder(t *testing.T) {
	dir := t.TempDir()
	root := buildBundle(t, dir, "3.10")

	home := filepath.Join(root, "Python.framework", "Versions", "3.10")
	stdlib := filepath.Join(home, "lib", "python3.10")
	mkdir(t, filepath.Join(stdlib, "site-packages"))
	mkdir(t, filepath.Join(stdlib, "lib-dynload"))

	cfg, err := Locate(DefaultLayout(), Options{Roots: []string{root}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{
		filepath.Join(dir, "Contents", "Resources", "python_site"),
		filepath.Join(stdlib, "site-packages"),
		stdlib,
		filepath.Join(stdlib, "lib-dynload"),
	}
	if !reflect.DeepEqual(cfg.SearchPaths, want) {
		t.Errorf("expected search paths %v, got %v", want, cfg.SearchPaths)
	}
}

func TestLocate_LibraryNameFallback(t *testing.T) {
	dir := t.TempDir()
	root := buildBundle(t, dir, "3.10")

	home := filepath.Join(root, "Python.framework", "Versions", "3.10")
	if err := os.Remove(filepath.Join(home, "Python")); err != nil {
		t.Fatalf("remove: %v", err)
	}
	writeFile(t, filepath.Join(home, "lib", "libpython3.10.dylib"))

	cfg, err := Locate(DefaultLayout(), Options{Roots: []string{root}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LibraryPath != filepath.Join(home, "lib", "libpython3.10.dylib") {
		t.Errorf("expected dylib fallback, got %s", cfg.LibraryPath)
	}
}

func TestLocate_SecondRootWins(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty")
	mkdir(t, empty)
	root := buildBundle(t, filepath.Join(dir, "bundle"), "3.10")

	cfg, err := Locate(DefaultLayout(), Options{Roots: []string{empty, root}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(cfg.Home, root) {
		t.Errorf("expected home under %s, got %s", root, cfg.Home)
	}
}

func TestLocate_NotFoundErrors(t *testing.T) {
	tests := []struct {
		name   string
		root   func(t *testing.T, dir string) string
		detail string
	}{
		{
			name: "no framework anywhere",
			root: func(t *testing.T, dir string) string {
				mkdir(t, dir)
				return dir
			},
			detail: "no runtime framework under",
		},
		{
			name: "stdlib missing",
			root: func(t *testing.T, dir string) string {
				root := buildBundle(t, dir, "3.10")
				home := filepath.Join(root, "Python.framework", "Versions", "3.10")
				if err := os.RemoveAll(filepath.Join(home, "lib")); err != nil {
					t.Fatalf("remove: %v", err)
				}
				return root
			},
			detail: "stdlib missing",
		},
		{
			name: "library missing",
			root: func(t *testing.T, dir string) string {
				root := buildBundle(t, dir, "3.10")
				home := filepath.Join(root, "Python.framework", "Versions", "3.10")
				if err := os.Remove(filepath.Join(home, "Python")); err != nil {
					t.Fatalf("remove: %v", err)
				}
				return root
			},
			detail: "no runtime library",
		},
		{
			name: "app site missing",
			root: func(t *testing.T, dir string) string {
				root := buildBundle(t, dir, "3.10")
				if err := os.RemoveAll(filepath.Join(dir, "Contents", "Resources")); err != nil {
					t.Fatalf("remove: %v", err)
				}
				return root
			},
			detail: "application site directory missing",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := tt.root(t, t.TempDir())

			_, err := Locate(DefaultLayout(), Options{Roots: []string{root}})
			if err == nil {
				t.Fatal("expected error")
			}
			if !stderrors.Is(err, errors.RuntimeNotFound("")) {
				t.Errorf("expected runtime-not-found, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.detail) {
				t.Errorf("expected error to mention %q, got %q", tt.detail, err.Error())
			}
		})
	}
}

func TestLocate_DerivedRootsFromExecutable(t *testing.T) {
	dir := t.TempDir()
	buildBundle(t, dir, "3.10")
	exe := filepath.Join(dir, "Contents", "MacOS", "marcut")
	writeFile(t, exe)

	cfg, err := Locate(DefaultLayout(), Options{Executable: exe})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wantHome := filepath.Join(dir, "Contents", "Frameworks", "Python.framework", "Versions", "3.10")
	if cfg.Home != wantHome {
		t.Errorf("expected home %s, got %s", wantHome, cfg.Home)
	}
}
