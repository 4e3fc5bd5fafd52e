package binpath

import (
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"whisprd/internal/gpu"
)

// Tool names of the bundled native binaries.
const (
	ToolWhisper     = "whisper-cli"
	ToolLlamaServer = "llama-server"
)

// NotFoundError indicates that no candidate binary exists on disk.
type NotFoundError struct {
	Tool    string
	Variant gpu.Variant
}

func (e NotFoundError) Error() string {
	return "binary not found: " + e.Tool + " (" + string(e.Variant) + ")"
}

// IsNotFound reports whether err indicates a missing binary.
func IsNotFound(err error) bool {
	_, ok := err.(NotFoundError)
	return ok
}

// Resolver locates platform/arch-qualified binaries under the packaged
// resources directory, then the development-tree resources directory.
// Resolutions are cached; installed binaries do not change mid-session, so
// the cache is only dropped on an explicit preference change.
type Resolver struct {
	mu    sync.Mutex
	dirs  []string
	cache map[string]string

	// Injectable for tests.
	goos   string
	goarch string
}

// New constructs a Resolver searching resourcesDir then devResourcesDir.
// Empty directories are skipped.
func New(resourcesDir, devResourcesDir string) *Resolver {
	var dirs []string
	if resourcesDir != "" {
		dirs = append(dirs, resourcesDir)
	}
	if devResourcesDir != "" {
		dirs = append(dirs, devResourcesDir)
	}
	return &Resolver{
		dirs:   dirs,
		cache:  make(map[string]string),
		goos:   runtime.GOOS,
		goarch: runtime.GOARCH,
	}
}

// Resolve returns the path of the first existing candidate for tool and
// variant. Accelerated variants fall back to the unqualified name so a
// CPU-only install still launches under FORCE_GPU-less variants.
func (r *Resolver) Resolve(tool string, variant gpu.Variant) (string, error) {
	key := tool + "/" + string(variant)
	r.mu.Lock()
	if p, ok := r.cache[key]; ok {
		r.mu.Unlock()
		return p, nil
	}
	r.mu.Unlock()

	for _, name := range r.candidates(tool, variant) {
		for _, dir := range r.dirs {
			p := filepath.Join(dir, name)
			fi, err := os.Stat(p)
			if err != nil || !fi.Mode().IsRegular() {
				continue
			}
			r.mu.Lock()
			r.cache[key] = p
			r.mu.Unlock()
			return p, nil
		}
	}
	return "", NotFoundError{Tool: tool, Variant: variant}
}

// Invalidate drops the resolution cache. Called when the acceleration
// preference changes, since the preferred variant may differ.
func (r *Resolver) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache = make(map[string]string)
}

// candidates lists binary names most-specific first:
// <tool>-<platform>-<arch>-<variant>[.exe], then <tool>-<platform>-<arch>[.exe].
func (r *Resolver) candidates(tool string, variant gpu.Variant) []string {
	base := tool + "-" + platformName(r.goos) + "-" + archName(r.goarch)
	ext := ""
	if r.goos == "windows" {
		ext = ".exe"
	}
	var names []string
	if variant != gpu.VariantCPU {
		names = append(names, base+"-"+string(variant)+ext)
	}
	names = append(names, base+ext)
	return names
}

func platformName(goos string) string {
	switch goos {
	case "windows":
		return "win32"
	default:
		return goos
	}
}

func archName(goarch string) string {
	switch goarch {
	case "amd64":
		return "x64"
	default:
		return goarch
	}
}

// LibPathEnv returns the environment entry that points the dynamic loader at
// dir, where a resolved binary's bundled shared libraries live.
func LibPathEnv(dir string) string {
	sep := string(os.PathListSeparator)
	switch runtime.GOOS {
	case "darwin":
		return "DYLD_LIBRARY_PATH=" + dir + sep + os.Getenv("DYLD_LIBRARY_PATH")
	case "windows":
		return "PATH=" + dir + sep + os.Getenv("PATH")
	default:
		return "LD_LIBRARY_PATH=" + dir + sep + os.Getenv("LD_LIBRARY_PATH")
	}
}
