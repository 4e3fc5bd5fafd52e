package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestLoadTOML(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "whisprd.toml", `
addr = "127.0.0.1:8090"
cache_dir = "~/.cache/whisprd"
gpu_preference = "force_cpu"
port_start = 8100
port_end = 8120
ctx_size = 4096
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != "127.0.0.1:8090" || cfg.CacheDir != "~/.cache/whisprd" {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
	if cfg.GPUPreference != "force_cpu" || cfg.PortStart != 8100 || cfg.PortEnd != 8120 || cfg.CtxSize != 4096 {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "whisprd.yaml", "addr: :8090\nserver_host: 127.0.0.1\nstartup_timeout_sec: 300\n")
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":8090" || cfg.ServerHost != "127.0.0.1" || cfg.StartupTimeoutSec != 300 {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
}

func TestLoadJSON(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "whisprd.json", `{"addr": ":1234", "converter_bin": "/usr/bin/ffmpeg"}`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":1234" || cfg.ConverterBin != "/usr/bin/ffmpeg" {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
	dir := t.TempDir()
	p := writeFile(t, dir, "cfg.ini", "addr=:1")
	if _, err := Load(p); err == nil {
		t.Fatalf("expected error for unsupported extension")
	}
}
