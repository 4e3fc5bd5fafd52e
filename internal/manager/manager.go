// Package manager is the facade over the model registry, artifact
// downloads, capability detection and the two inference runtimes. The HTTP
// API and the CLI both drive this type.
package manager

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"whisprd/internal/binpath"
	"whisprd/internal/common/fsutil"
	"whisprd/internal/config"
	"whisprd/internal/download"
	"whisprd/internal/gpu"
	"whisprd/internal/oneshot"
	"whisprd/internal/registry"
	"whisprd/internal/server"
	"whisprd/pkg/types"
)

const defaultCacheDir = "~/.whisprd"

// TextServer is the supervised completion server.
type TextServer interface {
	Start(ctx context.Context, m types.Model, modelPath string, gpuLayers int) error
	Stop()
	Status() types.ServerStatus
	Completion(ctx context.Context, prompt string, temperature float64, maxTokens int) (string, error)
}

// SpeechRunner is the per-invocation transcriber.
type SpeechRunner interface {
	Transcribe(ctx context.Context, m types.Model, modelPath, audioPath, lang string) (types.TranscribeResponse, error)
}

// Downloader fetches model artifacts.
type Downloader interface {
	Download(ctx context.Context, m types.Model, dest string, onProgress download.ProgressFunc) error
	Cancel(modelID string) bool
	Progress(modelID string) (types.DownloadProgress, bool)
}

// Manager owns the model cache directory and routes operations to the right
// runtime by model kind.
type Manager struct {
	reg      *registry.Registry
	dl       Downloader
	det      *gpu.Detector
	bin      *binpath.Resolver
	sup      TextServer
	runner   SpeechRunner
	conv     oneshot.Converter
	cacheDir string
	minBytes int64
	log      zerolog.Logger
}

// New wires a Manager from configuration. The cache directory is created if
// missing.
func New(log zerolog.Logger, cfg config.Config) (*Manager, error) {
	cacheDir := cfg.CacheDir
	if cacheDir == "" {
		cacheDir = defaultCacheDir
	}
	cacheDir, err := fsutil.ExpandHome(cacheDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Join(cacheDir, "models"), 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}

	reg := registry.Default()
	if cfg.RegistryFile != "" {
		reg, err = registry.LoadFile(cfg.RegistryFile)
		if err != nil {
			return nil, err
		}
	}

	det := gpu.New(log)
	det.SetPreference(gpu.ParsePreference(cfg.GPUPreference))
	bin := binpath.New(cfg.ResourcesDir, cfg.DevResourcesDir)

	dl := download.New(log, download.Options{
		LockPath: filepath.Join(cacheDir, ".whisprd.lock"),
	})

	sup := server.NewSupervisor(log, server.Config{
		Host:           cfg.ServerHost,
		PortStart:      cfg.PortStart,
		PortEnd:        cfg.PortEnd,
		CtxSize:        cfg.CtxSize,
		Threads:        cfg.ServerThreads,
		StartupTimeout: time.Duration(cfg.StartupTimeoutSec) * time.Second,
		HealthInterval: time.Duration(cfg.HealthIntervalSec) * time.Second,
	}, bin, det)

	conv := oneshot.NewFFmpeg(log, cfg.ConverterBin)
	runner := oneshot.New(log, bin, det, conv,
		time.Duration(cfg.TranscribeTimeoutSec)*time.Second, 0)

	return &Manager{
		reg:      reg,
		dl:       dl,
		det:      det,
		bin:      bin,
		sup:      sup,
		runner:   runner,
		conv:     conv,
		cacheDir: cacheDir,
		minBytes: download.DefaultMinArtifactBytes,
		log:      log,
	}, nil
}

// Close stops the supervised server. Safe to call more than once.
func (m *Manager) Close() {
	m.sup.Stop()
}

// Lookup resolves a registry id.
func (m *Manager) Lookup(id string) (types.Model, error) {
	md, ok := m.reg.Lookup(id)
	if !ok {
		return types.Model{}, NotFoundError{ID: id}
	}
	return md, nil
}

// SetGPUPreference updates the acceleration preference at runtime. The probe
// cache and the binary resolution cache are both dropped.
func (m *Manager) SetGPUPreference(pref string) {
	m.det.SetPreference(gpu.ParsePreference(pref))
	m.bin.Invalidate()
}
