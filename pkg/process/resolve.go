package process

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
)

// FallbackDirs are searched after PATH, in order.
var FallbackDirs = []string{"/opt/homebrew/bin", "/usr/local/bin", "/usr/bin"}

// Resolver locates executables. The zero value uses the real environment.
type Resolver struct {
	// LookupEnv defaults to os.LookupEnv.
	LookupEnv func(string) (string, bool)
	// LookPath defaults to exec.LookPath.
	LookPath func(string) (string, error)
	// HomeDir defaults to os.UserHomeDir.
	HomeDir string
	// Fallbacks defaults to FallbackDirs.
	Fallbacks []string
}

func (r Resolver) lookupEnv(key string) (string, bool) {
	if r.LookupEnv != nil {
		return r.LookupEnv(key)
	}
	return os.LookupEnv(key)
}

func (r Resolver) lookPath(name string) (string, error) {
	if r.LookPath != nil {
		return r.LookPath(name)
	}
	return exec.LookPath(name)
}

func (r Resolver) home() string {
	if r.HomeDir != "" {
		return r.HomeDir
	}
	home, _ := os.UserHomeDir()
	return home
}

func (r Resolver) fallbacks() []string {
	if r.Fallbacks != nil {
		return r.Fallbacks
	}
	return FallbackDirs
}

// Resolve finds binary by checking, in order: the overrideEnv variable, PATH,
// the fallback directories and every nvm-managed node version (newest first).
func (r Resolver) Resolve(binary, overrideEnv string) (string, error) {
	if overrideEnv != "" {
		// An override that is not executable falls through to the search.
		if v, ok := r.lookupEnv(overrideEnv); ok && IsExecutable(strings.TrimSpace(v)) {
			return strings.TrimSpace(v), nil
		}
	}

	if filepath.IsAbs(binary) {
		if IsExecutable(binary) {
			return binary, nil
		}
	} else if p, err := r.lookPath(binary); err == nil {
		return p, nil
	}

	for _, dir := range r.fallbacks() {
		if p := filepath.Join(dir, binary); IsExecutable(p) {
			return p, nil
		}
	}
	for _, dir := range r.NVMBinDirs() {
		if p := filepath.Join(dir, binary); IsExecutable(p) {
			return p, nil
		}
	}

	hint := "set it to an absolute path"
	if overrideEnv != "" {
		hint = fmt.Sprintf("set %s to an absolute path", overrideEnv)
	}
	return "", &SpawnError{Op: "resolve", Binary: binary,
		Err: fmt.Errorf("failed to resolve executable `%s`; %s", binary, hint)}
}

// NVMBinDirs lists ~/.nvm/versions/node/*/bin, newest version first.
func (r Resolver) NVMBinDirs() []string {
	home := r.home()
	if home == "" {
		return nil
	}
	matches, err := filepath.Glob(filepath.Join(home, ".nvm", "versions", "node", "*", "bin"))
	if err != nil {
		return nil
	}
	sort.Slice(matches, func(i, j int) bool {
		return compareVersions(nodeVersion(matches[i]), nodeVersion(matches[j])) > 0
	})
	return matches
}

func nodeVersion(binDir string) string {
	return strings.TrimPrefix(filepath.Base(filepath.Dir(binDir)), "v")
}

// compareVersions orders dotted numeric versions; non-numeric parts compare
// as strings.
func compareVersions(a, b string) int {
	pa, pb := strings.Split(a, "."), strings.Split(b, ".")
	for i := 0; i < len(pa) || i < len(pb); i++ {
		var sa, sb string
		if i < len(pa) {
			sa = pa[i]
		}
		if i < len(pb) {
			sb = pb[i]
		}
		var na, nb int
		_, errA := fmt.Sscanf(sa, "%d", &na)
		_, errB := fmt.Sscanf(sb, "%d", &nb)
		if errA == nil && errB == nil {
			if na != nb {
				if na < nb {
					return -1
				}
				return 1
			}
			continue
		}
		if c := strings.Compare(sa, sb); c != 0 {
			return c
		}
	}
	return 0
}

// IsExecutable reports whether path is a regular file with an execute bit.
func IsExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode().Perm()&0o111 != 0
}

// BuildPath returns a PATH value with dirs first, then the inherited PATH,
// then the fallback directories. Only existing directories are kept and
// duplicates are removed.
func (r Resolver) BuildPath(dirs ...string) string {
	var candidates []string
	candidates = append(candidates, dirs...)
	if current, ok := r.lookupEnv("PATH"); ok {
		candidates = append(candidates, filepath.SplitList(current)...)
	}
	candidates = append(candidates, r.fallbacks()...)

	seen := make(map[string]bool)
	var out []string
	for _, dir := range candidates {
		dir = strings.TrimSpace(dir)
		if dir == "" || seen[dir] {
			continue
		}
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			continue
		}
		seen[dir] = true
		out = append(out, dir)
	}
	return strings.Join(out, string(os.PathListSeparator))
}
