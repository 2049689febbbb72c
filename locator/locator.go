package locator

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/marcut/runtime-bridge/errors"
)

// versionPattern matches framework version directory names such as "3.10".
var versionPattern = regexp.MustCompile(`^(\d+)\.(\d+)$`)

// Layout describes the on-disk shape of a relocatable runtime bundle.
// The zero value is not usable; start from DefaultLayout.
type Layout struct {
	// FrameworkDir is the framework directory name under a candidate root,
	// e.g. "Python.framework".
	FrameworkDir string

	// LibraryNames are candidate shared-library paths relative to the
	// resolved version directory, tried in order. The literal "{version}"
	// is replaced with the resolved version.
	LibraryNames []string

	// AppSiteDirs are candidate application site directories relative to
	// the bundle contents directory, tried in order. Packages vendored
	// here shadow everything the runtime bundles.
	AppSiteDirs []string

	// DefaultVersion is used when the framework carries no Current symlink
	// and no scannable version directories.
	DefaultVersion string
}

// DefaultLayout returns the layout of the stock runtime bundle.
func DefaultLayout() Layout {
	return Layout{
		FrameworkDir: "Python.framework",
		LibraryNames: []string{
			"Python",
			filepath.Join("lib", "libpython{version}.dylib"),
			filepath.Join("lib", "libpython{version}.so"),
		},
		AppSiteDirs: []string{
			filepath.Join("Resources", "python_site"),
			filepath.Join("Resources", "site"),
		},
		DefaultVersion: "3.10",
	}
}

// Options control where Locate searches.
type Options struct {
	// Executable overrides the host executable path the candidate roots
	// are derived from. Defaults to os.Executable().
	Executable string

	// Roots replaces the derived candidate roots entirely when non-empty.
	// Each root is a directory expected to contain Layout.FrameworkDir.
	Roots []string
}

// Config is the result of a successful location pass. It is immutable;
// callers turn it into process environment before loading the runtime.
type Config struct {
	// LibraryPath is the shared library to load.
	LibraryPath string

	// Home is the runtime's resolved version directory, the value its
	// home environment variable must point at.
	Home string

	// Version is the resolved runtime version, e.g. "3.10".
	Version string

	// SearchPaths are the module search paths in priority order: the
	// application site first, then the runtime's own site directory,
	// then the standard library and its native extensions.
	SearchPaths []string
}

// Locate finds the runtime bundle described by layout and derives its
// load configuration. It fails with a not-found error listing every
// candidate tried when no complete bundle exists.
func Locate(layout Layout, opts Options) (*Config, error) {
	roots := opts.Roots
	if len(roots) == 0 {
		derived, err := deriveRoots(opts.Executable)
		if err != nil {
			return nil, err
		}
		roots = derived
	}

	var tried []string
	for _, root := range roots {
		frameworkDir := filepath.Join(root, layout.FrameworkDir)
		if !dirExists(frameworkDir) {
			tried = append(tried, frameworkDir)
			continue
		}
		cfg, err := resolve(layout, root, frameworkDir)
		if err != nil {
			return nil, err
		}
		return cfg, nil
	}
	return nil, errors.RuntimeNotFound(
		"no runtime framework under: " + strings.Join(tried, ", "))
}

// resolve builds the Config for one framework directory. The framework
// exists at this point; everything else must too, or resolution fails
// rather than falling through to another root.
func resolve(layout Layout, root, frameworkDir string) (*Config, error) {
	version, home := resolveVersion(layout, frameworkDir)
	if !dirExists(home) {
		return nil, errors.RuntimeNotFound(
			fmt.Sprintf("runtime home missing at %s", home))
	}

	library, ok := resolveLibrary(layout, home, version)
	if !ok {
		return nil, errors.RuntimeNotFound(
			fmt.Sprintf("no runtime library under %s (version %s)", home, version))
	}

	stdlib := filepath.Join(home, "lib", "python"+version)
	if !dirExists(stdlib) {
		return nil, errors.RuntimeNotFound(
			fmt.Sprintf("runtime stdlib missing at %s", stdlib))
	}

	appSite, ok := resolveAppSite(layout, filepath.Dir(root), home)
	if !ok {
		return nil, errors.RuntimeNotFound(
			fmt.Sprintf("application site directory missing under %s", filepath.Dir(root)))
	}

	paths := []string{appSite}
	if runtimeSite := filepath.Join(stdlib, "site-packages"); dirExists(runtimeSite) {
		paths = append(paths, runtimeSite)
	}
	paths = append(paths, stdlib)
	if dynload := filepath.Join(stdlib, "lib-dynload"); dirExists(dynload) {
		paths = append(paths, dynload)
	}

	return &Config{
		LibraryPath: library,
		Home:        home,
		Version:     version,
		SearchPaths: paths,
	}, nil
}

// resolveVersion picks the framework version: the Current symlink when it
// resolves, else the highest directory matching the version pattern, else
// the layout default.
func resolveVersion(layout Layout, frameworkDir string) (version, home string) {
	versionsDir := filepath.Join(frameworkDir, "Versions")

	current := filepath.Join(versionsDir, "Current")
	if resolved, err := filepath.EvalSymlinks(current); err == nil {
		if v := filepath.Base(resolved); versionPattern.MatchString(v) {
			return v, resolved
		}
	}

	if versions := scanVersions(versionsDir); len(versions) > 0 {
		v := versions[0]
		return v, filepath.Join(versionsDir, v)
	}

	v := layout.DefaultVersion
	return v, filepath.Join(versionsDir, v)
}

// scanVersions returns version directory names sorted highest first.
func scanVersions(versionsDir string) []string {
	entries, err := os.ReadDir(versionsDir)
	if err != nil {
		return nil
	}
	var versions []string
	for _, entry := range entries {
		if entry.IsDir() && versionPattern.MatchString(entry.Name()) {
			versions = append(versions, entry.Name())
		}
	}
	sort.Slice(versions, func(i, j int) bool {
		return compareVersions(versions[i], versions[j]) > 0
	})
	return versions
}

// compareVersions orders "major.minor" strings numerically, so "3.10"
// sorts above "3.9".
func compareVersions(a, b string) int {
	am, an := splitVersion(a)
	bm, bn := splitVersion(b)
	if am != bm {
		return am - bm
	}
	return an - bn
}

func splitVersion(v string) (major, minor int) {
	m := versionPattern.FindStringSubmatch(v)
	if m == nil {
		return 0, 0
	}
	major, _ = strconv.Atoi(m[1])
	minor, _ = strconv.Atoi(m[2])
	return major, minor
}

// resolveLibrary returns the first existing library candidate under home.
func resolveLibrary(layout Layout, home, version string) (string, bool) {
	for _, name := range layout.LibraryNames {
		candidate := filepath.Join(home, strings.ReplaceAll(name, "{version}", version))
		if fileExists(candidate) {
			return candidate, true
		}
	}
	return "", false
}

// resolveAppSite returns the first existing application site candidate.
// Layout entries are relative to the bundle contents directory; the
// runtime home is tried last for flat layouts that vendor beside it.
func resolveAppSite(layout Layout, contentsDir, home string) (string, bool) {
	for _, dir := range layout.AppSiteDirs {
		candidate := filepath.Join(contentsDir, dir)
		if dirExists(candidate) {
			return candidate, true
		}
	}
	if candidate := filepath.Join(home, "site-packages-app"); dirExists(candidate) {
		return candidate, true
	}
	return "", false
}

// deriveRoots computes the default candidate roots relative to the host
// executable: the bundle Frameworks directory, a directory beside the
// executable, and a Frameworks directory nested under Resources.
func deriveRoots(executable string) ([]string, error) {
	exe := executable
	if exe == "" {
		resolved, err := os.Executable()
		if err != nil {
			return nil, errors.RuntimeNotFound("cannot determine executable path: " + err.Error())
		}
		exe = resolved
	}
	exeDir := filepath.Dir(exe)
	contentsDir := filepath.Dir(exeDir)
	return []string{
		filepath.Join(contentsDir, "Frameworks"),
		filepath.Join(exeDir, "Frameworks"),
		filepath.Join(contentsDir, "Resources", "Frameworks"),
	}, nil
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
