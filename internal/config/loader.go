package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds runtime parameters for the daemon.
// Zero values mean "unspecified" and are replaced by defaults in the manager.
type Config struct {
	Addr            string `json:"addr" yaml:"addr" toml:"addr"`
	CacheDir        string `json:"cache_dir" yaml:"cache_dir" toml:"cache_dir"`
	ResourcesDir    string `json:"resources_dir" yaml:"resources_dir" toml:"resources_dir"`
	DevResourcesDir string `json:"dev_resources_dir" yaml:"dev_resources_dir" toml:"dev_resources_dir"`
	RegistryFile    string `json:"registry_file" yaml:"registry_file" toml:"registry_file"`

	// GPU preference: auto, force_cpu, force_gpu.
	GPUPreference string `json:"gpu_preference" yaml:"gpu_preference" toml:"gpu_preference"`

	// Inference server tunables.
	ServerHost    string `json:"server_host" yaml:"server_host" toml:"server_host"`
	PortStart     int    `json:"port_start" yaml:"port_start" toml:"port_start"`
	PortEnd       int    `json:"port_end" yaml:"port_end" toml:"port_end"`
	CtxSize       int    `json:"ctx_size" yaml:"ctx_size" toml:"ctx_size"`
	ServerThreads int    `json:"server_threads" yaml:"server_threads" toml:"server_threads"`

	// Timeouts in seconds; 0 means use the built-in default.
	StartupTimeoutSec    int `json:"startup_timeout_sec" yaml:"startup_timeout_sec" toml:"startup_timeout_sec"`
	HealthIntervalSec    int `json:"health_interval_sec" yaml:"health_interval_sec" toml:"health_interval_sec"`
	TranscribeTimeoutSec int `json:"transcribe_timeout_sec" yaml:"transcribe_timeout_sec" toml:"transcribe_timeout_sec"`

	// Audio converter binary (ffmpeg) override.
	ConverterBin string `json:"converter_bin" yaml:"converter_bin" toml:"converter_bin"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}
