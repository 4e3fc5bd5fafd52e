package gpu

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestDetector(goos string, probe func(context.Context) Variant) (*Detector, *int) {
	calls := 0
	d := New(zerolog.Nop())
	d.goos = goos
	d.probe = func(ctx context.Context) Variant {
		calls++
		return probe(ctx)
	}
	return d, &calls
}

func TestForceCPUNeverProbes(t *testing.T) {
	d, calls := newTestDetector("linux", func(context.Context) Variant { return VariantVulkan })
	d.SetPreference(PreferenceForceCPU)
	for i := 0; i < 3; i++ {
		if v := d.Resolve(context.Background()); v != VariantCPU {
			t.Fatalf("got %s, want cpu", v)
		}
	}
	if *calls != 0 {
		t.Fatalf("probe ran %d times under FORCE_CPU", *calls)
	}
}

func TestForceGPUSkipsProbe(t *testing.T) {
	d, calls := newTestDetector("linux", func(context.Context) Variant { return VariantCPU })
	d.SetPreference(PreferenceForceGPU)
	if v := d.Resolve(context.Background()); v != VariantVulkan {
		t.Fatalf("got %s, want vulkan", v)
	}
	if *calls != 0 {
		t.Fatalf("probe ran %d times under FORCE_GPU", *calls)
	}
}

func TestDarwinAlwaysCPU(t *testing.T) {
	d, calls := newTestDetector("darwin", func(context.Context) Variant { return VariantVulkan })
	if v := d.Resolve(context.Background()); v != VariantCPU {
		t.Fatalf("got %s, want cpu on darwin", v)
	}
	d.SetPreference(PreferenceForceGPU)
	if v := d.Resolve(context.Background()); v != VariantCPU {
		t.Fatalf("FORCE_GPU on darwin got %s, want cpu", v)
	}
	if *calls != 0 {
		t.Fatalf("probe ran on darwin")
	}
}

func TestAutoProbeCachedWithinTTL(t *testing.T) {
	d, calls := newTestDetector("linux", func(context.Context) Variant { return VariantVulkan })
	if v := d.Resolve(context.Background()); v != VariantVulkan {
		t.Fatalf("got %s", v)
	}
	if v := d.Resolve(context.Background()); v != VariantVulkan {
		t.Fatalf("got %s", v)
	}
	if *calls != 1 {
		t.Fatalf("probe ran %d times within TTL, want 1", *calls)
	}
}

func TestConcurrentAutoResolveProbesOnce(t *testing.T) {
	var probes int32
	d := New(zerolog.Nop())
	d.goos = "linux"
	d.probe = func(context.Context) Variant {
		atomic.AddInt32(&probes, 1)
		time.Sleep(20 * time.Millisecond)
		return VariantVulkan
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if v := d.Resolve(context.Background()); v != VariantVulkan {
				t.Errorf("got %s, want vulkan", v)
			}
		}()
	}
	wg.Wait()
	if n := atomic.LoadInt32(&probes); n != 1 {
		t.Fatalf("probe ran %d times under concurrent resolution, want 1", n)
	}
}

func TestFailedProbeAlsoCached(t *testing.T) {
	d, calls := newTestDetector("linux", func(context.Context) Variant { return VariantCPU })
	if v := d.Resolve(context.Background()); v != VariantCPU {
		t.Fatalf("got %s", v)
	}
	_ = d.Resolve(context.Background())
	if *calls != 1 {
		t.Fatalf("failed probe not cached: ran %d times", *calls)
	}
}

func TestCacheExpiresAfterTTL(t *testing.T) {
	d, calls := newTestDetector("linux", func(context.Context) Variant { return VariantCUDA })
	base := time.Now()
	d.now = func() time.Time { return base }
	_ = d.Resolve(context.Background())
	d.now = func() time.Time { return base.Add(61 * time.Second) }
	_ = d.Resolve(context.Background())
	if *calls != 2 {
		t.Fatalf("probe ran %d times across TTL expiry, want 2", *calls)
	}
}

func TestPreferenceChangeInvalidatesCache(t *testing.T) {
	d, calls := newTestDetector("linux", func(context.Context) Variant { return VariantVulkan })
	_ = d.Resolve(context.Background())
	d.SetPreference(PreferenceForceCPU)
	d.SetPreference(PreferenceAuto)
	_ = d.Resolve(context.Background())
	if *calls != 2 {
		t.Fatalf("probe ran %d times after preference change, want 2", *calls)
	}
}

func TestParsePreference(t *testing.T) {
	cases := map[string]Preference{
		"auto":      PreferenceAuto,
		"FORCE_CPU": PreferenceForceCPU,
		"force_gpu": PreferenceForceGPU,
		"":          PreferenceAuto,
		"bogus":     PreferenceAuto,
	}
	for in, want := range cases {
		if got := ParsePreference(in); got != want {
			t.Fatalf("ParsePreference(%q)=%s want %s", in, got, want)
		}
	}
}

func TestStatusReportsProbeState(t *testing.T) {
	d, _ := newTestDetector("linux", func(context.Context) Variant { return VariantVulkan })
	st := d.Status(context.Background())
	if st.Variant != "vulkan" || !st.Probed || st.CachedAtUnix == 0 {
		t.Fatalf("unexpected status: %+v", st)
	}
	d.SetPreference(PreferenceForceCPU)
	st = d.Status(context.Background())
	if st.Variant != "cpu" || st.Probed {
		t.Fatalf("unexpected forced status: %+v", st)
	}
}
