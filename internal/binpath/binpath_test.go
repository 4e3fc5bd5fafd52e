package binpath

import (
	"os"
	"path/filepath"
	"testing"

	"whisprd/internal/gpu"
)

func touch(t *testing.T, dir, name string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte("#!"), 0o755); err != nil {
		t.Fatalf("touch %s: %v", name, err)
	}
	return p
}

func linuxResolver(resources, dev string) *Resolver {
	r := New(resources, dev)
	r.goos = "linux"
	r.goarch = "amd64"
	return r
}

func TestResolvePrefersVariantQualifiedName(t *testing.T) {
	dir := t.TempDir()
	plain := touch(t, dir, "llama-server-linux-x64")
	vulkan := touch(t, dir, "llama-server-linux-x64-vulkan")
	r := linuxResolver(dir, "")

	got, err := r.Resolve(ToolLlamaServer, gpu.VariantVulkan)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != vulkan {
		t.Fatalf("got %s, want variant-qualified %s", got, vulkan)
	}
	got, err = r.Resolve(ToolLlamaServer, gpu.VariantCPU)
	if err != nil {
		t.Fatalf("resolve cpu: %v", err)
	}
	if got != plain {
		t.Fatalf("got %s, want %s", got, plain)
	}
}

func TestResolveAcceleratedFallsBackToPlain(t *testing.T) {
	dir := t.TempDir()
	plain := touch(t, dir, "whisper-cli-linux-x64")
	r := linuxResolver(dir, "")
	got, err := r.Resolve(ToolWhisper, gpu.VariantCUDA)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != plain {
		t.Fatalf("got %s, want fallback %s", got, plain)
	}
}

func TestResolvePackagedDirWinsOverDevDir(t *testing.T) {
	packaged := t.TempDir()
	dev := t.TempDir()
	want := touch(t, packaged, "whisper-cli-linux-x64")
	touch(t, dev, "whisper-cli-linux-x64")
	r := linuxResolver(packaged, dev)
	got, err := r.Resolve(ToolWhisper, gpu.VariantCPU)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != want {
		t.Fatalf("got %s, want packaged %s", got, want)
	}
}

func TestResolveDevDirFallback(t *testing.T) {
	packaged := t.TempDir()
	dev := t.TempDir()
	want := touch(t, dev, "whisper-cli-linux-x64")
	r := linuxResolver(packaged, dev)
	got, err := r.Resolve(ToolWhisper, gpu.VariantCPU)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != want {
		t.Fatalf("got %s, want dev %s", got, want)
	}
}

func TestResolveNotFound(t *testing.T) {
	r := linuxResolver(t.TempDir(), "")
	_, err := r.Resolve(ToolWhisper, gpu.VariantCPU)
	if err == nil || !IsNotFound(err) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestResolveIgnoresDirectories(t *testing.T) {
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "whisper-cli-linux-x64"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	r := linuxResolver(dir, "")
	if _, err := r.Resolve(ToolWhisper, gpu.VariantCPU); !IsNotFound(err) {
		t.Fatalf("directory accepted as binary: %v", err)
	}
}

func TestCacheAndInvalidate(t *testing.T) {
	dir := t.TempDir()
	p := touch(t, dir, "whisper-cli-linux-x64")
	r := linuxResolver(dir, "")
	if got, _ := r.Resolve(ToolWhisper, gpu.VariantCPU); got != p {
		t.Fatalf("got %s", got)
	}
	// remove the file: cached resolution still answers
	if err := os.Remove(p); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if got, _ := r.Resolve(ToolWhisper, gpu.VariantCPU); got != p {
		t.Fatalf("cache miss after remove: %s", got)
	}
	r.Invalidate()
	if _, err := r.Resolve(ToolWhisper, gpu.VariantCPU); !IsNotFound(err) {
		t.Fatalf("expected NotFound after invalidate, got %v", err)
	}
}

func TestWindowsNaming(t *testing.T) {
	dir := t.TempDir()
	want := touch(t, dir, "llama-server-win32-x64-vulkan.exe")
	r := New(dir, "")
	r.goos = "windows"
	r.goarch = "amd64"
	got, err := r.Resolve(ToolLlamaServer, gpu.VariantVulkan)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != want {
		t.Fatalf("got %s, want %s", got, want)
	}
}
