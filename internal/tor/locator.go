package tor

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

// ExecutableEnv is the environment variable that overrides tor discovery.
const ExecutableEnv = "TOR_EXE"

// Locator produces an ordered list of tor executable candidates.
// The zero value is not usable; construct with NewLocator.
type Locator struct {
	goos     string
	override string
	getenv   func(string) string
	lookPath func(string) (string, error)
	exists   func(string) bool
}

// LocatorOption configures a Locator.
type LocatorOption func(*Locator)

// WithOverride sets an explicit executable path that is tried first,
// ahead of the TOR_EXE environment variable.
func WithOverride(path string) LocatorOption {
	return func(l *Locator) {
		l.override = path
	}
}

// WithGOOS sets the operating system whose installer paths are searched.
func WithGOOS(goos string) LocatorOption {
	return func(l *Locator) {
		l.goos = goos
	}
}

// WithGetenv replaces the environment lookup.
func WithGetenv(getenv func(string) string) LocatorOption {
	return func(l *Locator) {
		l.getenv = getenv
	}
}

// WithLookPath replaces the PATH search.
func WithLookPath(lookPath func(string) (string, error)) LocatorOption {
	return func(l *Locator) {
		l.lookPath = lookPath
	}
}

// WithFileExists replaces the filesystem existence check.
func WithFileExists(exists func(string) bool) LocatorOption {
	return func(l *Locator) {
		l.exists = exists
	}
}

// NewLocator creates a Locator that reads the real environment and filesystem.
func NewLocator(opts ...LocatorOption) *Locator {
	l := &Locator{
		goos:     runtime.GOOS,
		getenv:   os.Getenv,
		lookPath: exec.LookPath,
		exists:   fileExists,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Candidates returns tor executable paths in priority order:
// explicit override, TOR_EXE, "tor" on PATH, then known installer locations
// that exist on disk. Duplicates are removed keeping the first occurrence.
// An empty result is not an error.
func (l *Locator) Candidates() []string {
	var out []string
	seen := make(map[string]bool)
	add := func(p string) {
		if p == "" || seen[p] {
			return
		}
		seen[p] = true
		out = append(out, p)
	}

	add(l.override)
	add(l.getenv(ExecutableEnv))

	if p, err := l.lookPath("tor"); err == nil {
		add(p)
	}

	for _, p := range l.installerPaths() {
		if l.exists(p) {
			add(p)
		}
	}
	return out
}

// installerPaths lists well-known locations per OS.
func (l *Locator) installerPaths() []string {
	switch l.goos {
	case "windows":
		var paths []string
		for _, base := range []string{l.getenv("USERPROFILE"), l.getenv("LOCALAPPDATA")} {
			if base == "" {
				continue
			}
			paths = append(paths,
				filepath.Join(base, "Desktop", "Tor Browser", "Browser", "TorBrowser", "Tor", "tor.exe"),
				filepath.Join(base, "Tor Browser", "Browser", "TorBrowser", "Tor", "tor.exe"),
			)
		}
		for _, base := range []string{l.getenv("ProgramFiles"), l.getenv("ProgramFiles(x86)")} {
			if base == "" {
				continue
			}
			paths = append(paths, filepath.Join(base, "Tor Browser", "Browser", "TorBrowser", "Tor", "tor.exe"))
		}
		return append(paths, `C:\Tor\tor.exe`)
	case "darwin":
		return []string{
			"/opt/homebrew/bin/tor",
			"/usr/local/bin/tor",
			"/Applications/Tor Browser.app/Contents/MacOS/Tor/tor",
		}
	default:
		return []string{
			"/usr/bin/tor",
			"/usr/local/bin/tor",
			"/usr/sbin/tor",
		}
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
