package gpu

import (
	"context"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"whisprd/pkg/types"
)

// Variant is the binary build that should be launched.
type Variant string

const (
	VariantCPU    Variant = "cpu"
	VariantVulkan Variant = "vulkan"
	VariantCUDA   Variant = "cuda"
)

// Preference is the user's acceleration preference.
type Preference string

const (
	PreferenceAuto     Preference = "auto"
	PreferenceForceCPU Preference = "force_cpu"
	PreferenceForceGPU Preference = "force_gpu"
)

// ParsePreference maps a config string to a Preference, defaulting to auto.
func ParsePreference(s string) Preference {
	switch Preference(strings.ToLower(strings.TrimSpace(s))) {
	case PreferenceForceCPU:
		return PreferenceForceCPU
	case PreferenceForceGPU:
		return PreferenceForceGPU
	default:
		return PreferenceAuto
	}
}

const (
	defaultProbeTTL     = 60 * time.Second
	defaultProbeTimeout = 3 * time.Second
)

// Detector resolves the usable acceleration variant. Probe results are
// cached for a TTL; the cache is dropped when the preference changes.
// Resolution never fails: absence of acceleration is a normal outcome.
type Detector struct {
	mu       sync.Mutex
	pref     Preference
	cached   Variant
	cachedAt time.Time
	probed   bool

	// Injectable seams for tests.
	probe func(ctx context.Context) Variant
	goos  string
	ttl   time.Duration
	now   func() time.Time

	log zerolog.Logger
}

// New constructs a Detector with the platform probe and an AUTO preference.
func New(log zerolog.Logger) *Detector {
	d := &Detector{
		pref: PreferenceAuto,
		goos: runtime.GOOS,
		ttl:  defaultProbeTTL,
		now:  time.Now,
		log:  log,
	}
	d.probe = d.systemProbe
	return d
}

// SetPreference updates the user preference and invalidates the probe cache.
func (d *Detector) SetPreference(p Preference) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pref == p {
		return
	}
	d.pref = p
	d.cachedAt = time.Time{}
	d.probed = false
	d.log.Debug().Str("preference", string(p)).Msg("gpu preference changed, cache dropped")
}

// Preference returns the current preference.
func (d *Detector) Preference() Preference {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pref
}

// Resolve returns the variant to launch. FORCE_CPU and FORCE_GPU never
// probe; AUTO probes at most once per TTL window. The mutex is held across
// the probe, so concurrent callers serialize and the second one reads the
// fresh cache instead of probing again. The probe itself is bounded by
// defaultProbeTimeout.
func (d *Detector) Resolve(ctx context.Context) Variant {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch {
	case d.pref == PreferenceForceCPU:
		return VariantCPU
	case d.goos == "darwin":
		// The accelerated path is Windows/Linux only.
		return VariantCPU
	case d.pref == PreferenceForceGPU:
		// Optimistic: a missing GPU surfaces later as a launch failure.
		return VariantVulkan
	}

	if !d.cachedAt.IsZero() && d.now().Sub(d.cachedAt) < d.ttl {
		return d.cached
	}

	probeCtx, cancel := context.WithTimeout(ctx, defaultProbeTimeout)
	v := d.probe(probeCtx)
	cancel()

	d.cached = v
	d.cachedAt = d.now()
	d.probed = true
	d.log.Debug().Str("variant", string(v)).Msg("gpu probe resolved")
	return v
}

// Status reports the current resolution for the status API.
func (d *Detector) Status(ctx context.Context) types.GpuStatus {
	v := d.Resolve(ctx)
	d.mu.Lock()
	defer d.mu.Unlock()
	st := types.GpuStatus{
		Variant:    string(v),
		Preference: string(d.pref),
		Probed:     d.probed,
	}
	if d.probed && !d.cachedAt.IsZero() {
		st.CachedAtUnix = d.cachedAt.Unix()
	}
	return st
}

// systemProbe checks for a usable GPU. NVIDIA takes priority (CUDA build),
// then a generic Vulkan check. Any failure or timeout yields CPU.
func (d *Detector) systemProbe(ctx context.Context) Variant {
	if hasNvidiaGPU() {
		if err := runProbe(ctx, "nvidia-smi", "-L"); err == nil {
			return VariantCUDA
		}
	}
	if err := runProbe(ctx, "vulkaninfo", "--summary"); err == nil {
		return VariantVulkan
	}
	return VariantCPU
}

func runProbe(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = nil
	cmd.Stderr = nil
	return cmd.Run()
}

func hasNvidiaGPU() bool {
	if _, err := os.Stat("/dev/nvidia0"); err == nil {
		return true
	}
	env := strings.ToLower(strings.TrimSpace(os.Getenv("NVIDIA_VISIBLE_DEVICES")))
	if env != "" && env != "none" {
		return true
	}
	env = strings.ToLower(strings.TrimSpace(os.Getenv("CUDA_VISIBLE_DEVICES")))
	return env != "" && env != "none"
}
