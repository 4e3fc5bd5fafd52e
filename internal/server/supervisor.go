// Package server supervises the persistent llama-server child process: one
// text model served at a time over a loopback HTTP port. Readiness is
// observed by polling the child's models endpoint; a failed start surfaces
// the child's stderr tail.
package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"whisprd/internal/binpath"
	"whisprd/internal/gpu"
	"whisprd/pkg/types"
)

// Seam for tests.
var commandContext = exec.CommandContext

const (
	// GPU backends can spend a long time loading layers before the first
	// health response.
	defaultStartupTimeout = 3 * time.Minute
	defaultHealthInterval = 5 * time.Second
	healthFailThreshold   = 3
	stopGrace             = 2 * time.Second
	readyPollInterval     = 100 * time.Millisecond
	stderrTailMax         = 4096
)

// Lifecycle states reported by Status.
const (
	StateStopped  = "stopped"
	StateStarting = "starting"
	StateReady    = "ready"
	StateDegraded = "degraded"
)

// Config holds launch parameters for the supervised server.
type Config struct {
	Host               string
	PortStart, PortEnd int
	CtxSize            int
	Threads            int
	StartupTimeout     time.Duration
	HealthInterval     time.Duration
}

// Supervisor owns at most one server child. Start is single-flight per
// model: concurrent starts for the same model share one attempt, and a start
// for a different model stops the current child first.
type Supervisor struct {
	cfg    Config
	bin    *binpath.Resolver
	det    *gpu.Detector
	client *http.Client
	log    zerolog.Logger

	mu       sync.Mutex
	cur      *instance
	starting *startAttempt
}

type startAttempt struct {
	modelID string
	done    chan struct{}
	err     error
}

type instance struct {
	model   types.Model
	cmd     *exec.Cmd
	baseURL string
	port    int
	pid     int
	stderr  *tailBuffer

	mu      sync.Mutex
	state   string
	fails   int
	exited  bool
	exitErr error

	exitCh     chan struct{}
	stopHealth chan struct{}
	stopOnce   sync.Once
}

// NewSupervisor constructs a Supervisor. Zero durations in cfg pick
// defaults. The HTTP client carries no timeout; every request runs under a
// context deadline.
func NewSupervisor(log zerolog.Logger, cfg Config, bin *binpath.Resolver, det *gpu.Detector) *Supervisor {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.StartupTimeout <= 0 {
		cfg.StartupTimeout = defaultStartupTimeout
	}
	if cfg.HealthInterval <= 0 {
		cfg.HealthInterval = defaultHealthInterval
	}
	return &Supervisor{
		cfg:    cfg,
		bin:    bin,
		det:    det,
		client: &http.Client{Timeout: 0},
		log:    log,
	}
}

// Start brings up a server for m, reusing a Ready one serving the same
// model. A Degraded child is replaced, not reused. gpuLayers < 0 lets the
// resolved variant decide the offload count.
func (s *Supervisor) Start(ctx context.Context, m types.Model, modelPath string, gpuLayers int) error {
	var att *startAttempt
	for {
		s.mu.Lock()
		if s.cur != nil && s.cur.model.ID == m.ID && s.cur.currentState() == StateReady {
			s.mu.Unlock()
			return nil
		}
		if s.starting == nil {
			att = &startAttempt{modelID: m.ID, done: make(chan struct{})}
			s.starting = att
			break
		}
		waiting := s.starting
		s.mu.Unlock()
		<-waiting.done
		if waiting.modelID == m.ID {
			return waiting.err
		}
		// a different model finished its attempt; take our turn
	}
	old := s.cur
	s.cur = nil
	s.mu.Unlock()

	if old != nil {
		s.stopInstance(old)
	}

	inst, err := s.launch(ctx, m, modelPath, gpuLayers)

	s.mu.Lock()
	if err == nil {
		s.cur = inst
	}
	s.starting = nil
	s.mu.Unlock()
	att.err = err
	close(att.done)

	if err != nil {
		startsTotal.WithLabelValues("error").Inc()
		return err
	}
	startsTotal.WithLabelValues("ok").Inc()
	go s.healthLoop(inst)
	return nil
}

// Stop terminates the current child, if any.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	inst := s.cur
	s.cur = nil
	s.mu.Unlock()
	if inst != nil {
		s.stopInstance(inst)
	}
}

// Status reports the supervised server's state. A child that exited on its
// own reads as stopped even before the supervisor reaps the instance.
func (s *Supervisor) Status() types.ServerStatus {
	s.mu.Lock()
	inst := s.cur
	starting := s.starting != nil
	s.mu.Unlock()
	if inst == nil {
		st := types.ServerStatus{State: StateStopped}
		if starting {
			st.State = StateStarting
		}
		return st
	}
	inst.mu.Lock()
	defer inst.mu.Unlock()
	if inst.exited {
		return types.ServerStatus{State: StateStopped, ModelName: inst.model.Name}
	}
	return types.ServerStatus{
		Available: inst.state == StateReady,
		Running:   true,
		State:     inst.state,
		Port:      inst.port,
		PID:       inst.pid,
		ModelName: inst.model.Name,
	}
}

func (s *Supervisor) launch(ctx context.Context, m types.Model, modelPath string, gpuLayers int) (*instance, error) {
	variant := s.det.Resolve(ctx)
	bin, err := s.bin.Resolve(binpath.ToolLlamaServer, variant)
	if err != nil {
		return nil, err
	}

	var port int
	if s.cfg.PortStart > 0 && s.cfg.PortEnd >= s.cfg.PortStart {
		port, err = pickPortInRange(s.cfg.Host, s.cfg.PortStart, s.cfg.PortEnd)
	} else {
		port, err = pickFreePort(s.cfg.Host)
	}
	if err != nil {
		return nil, StartError{Err: err}
	}
	baseURL := fmt.Sprintf("http://%s:%d", s.cfg.Host, port)

	ngl := gpuLayers
	if ngl < 0 {
		if variant == gpu.VariantCPU {
			ngl = 0
		} else {
			ngl = 99
		}
	}

	args := []string{"-m", modelPath, "--host", s.cfg.Host, "--port", strconv.Itoa(port)}
	if s.cfg.CtxSize > 0 {
		args = append(args, "-c", strconv.Itoa(s.cfg.CtxSize))
	}
	if s.cfg.Threads > 0 {
		args = append(args, "-t", strconv.Itoa(s.cfg.Threads))
	}
	if ngl > 0 {
		args = append(args, "-ngl", strconv.Itoa(ngl))
	}

	// The child outlives the Start call's context.
	cmd := commandContext(context.Background(), bin, args...)
	if cmd.Env == nil {
		cmd.Env = os.Environ()
	}
	cmd.Env = append(cmd.Env, binpath.LibPathEnv(filepath.Dir(bin)))
	tb := &tailBuffer{}
	cmd.Stderr = tb
	if err := cmd.Start(); err != nil {
		return nil, StartError{Err: err}
	}

	inst := &instance{
		model:      m,
		cmd:        cmd,
		baseURL:    baseURL,
		port:       port,
		pid:        cmd.Process.Pid,
		stderr:     tb,
		state:      StateStarting,
		exitCh:     make(chan struct{}),
		stopHealth: make(chan struct{}),
	}
	go func() {
		werr := cmd.Wait()
		inst.markExited(werr)
	}()
	s.log.Info().Str("model", m.ID).Int("pid", inst.pid).Int("port", port).
		Str("variant", string(variant)).Msg("server starting")

	deadline := time.Now().Add(s.cfg.StartupTimeout)
	for {
		select {
		case <-inst.exitCh:
			werr := inst.exitError()
			code := -1
			if cmd.ProcessState != nil {
				code = cmd.ProcessState.ExitCode()
			}
			if werr == nil {
				werr = errors.New("exited before ready")
			}
			s.log.Warn().Str("model", m.ID).Int("pid", inst.pid).Err(werr).Msg("server exited early")
			return nil, StartError{ExitCode: code, Stderr: tb.Tail(stderrTailMax), Err: werr}
		default:
		}
		if time.Now().After(deadline) {
			s.killInstance(inst)
			return nil, StartError{
				Stderr: tb.Tail(stderrTailMax),
				Err:    fmt.Errorf("not ready within %s", s.cfg.StartupTimeout),
			}
		}
		if s.isHealthy(inst.baseURL, time.Second) {
			inst.setState(StateReady)
			s.log.Info().Str("model", m.ID).Int("pid", inst.pid).Str("url", baseURL).Msg("server ready")
			return inst, nil
		}
		time.Sleep(readyPollInterval)
	}
}

// isHealthy checks whether the server at baseURL answers its health endpoint.
func (s *Supervisor) isHealthy(baseURL string, timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// healthLoop watches a running child. Failures past the threshold mark the
// instance degraded; the process is never killed for failing health checks,
// a later success clears the state.
func (s *Supervisor) healthLoop(inst *instance) {
	t := time.NewTicker(s.cfg.HealthInterval)
	defer t.Stop()
	for {
		select {
		case <-inst.stopHealth:
			return
		case <-inst.exitCh:
			s.log.Warn().Str("model", inst.model.ID).Int("pid", inst.pid).
				Err(inst.exitError()).Msg("server process exited")
			return
		case <-t.C:
			s.recordHealth(inst, s.isHealthy(inst.baseURL, time.Second))
		}
	}
}

func (s *Supervisor) recordHealth(inst *instance, ok bool) {
	inst.mu.Lock()
	if ok {
		recovered := inst.state == StateDegraded
		inst.fails = 0
		if recovered {
			inst.state = StateReady
		}
		inst.mu.Unlock()
		if recovered {
			s.log.Info().Str("model", inst.model.ID).Msg("server recovered")
		}
		return
	}
	inst.fails++
	healthFailuresTotal.Inc()
	degradedNow := inst.fails >= healthFailThreshold && inst.state != StateDegraded
	if degradedNow {
		inst.state = StateDegraded
	}
	fails := inst.fails
	inst.mu.Unlock()
	if degradedNow {
		s.log.Warn().Str("model", inst.model.ID).Int("consecutive_failures", fails).
			Msg("server degraded, keeping process")
	}
}

// stopInstance terminates gracefully: SIGTERM, a short grace window, then
// kill.
func (s *Supervisor) stopInstance(inst *instance) {
	inst.stopOnce.Do(func() { close(inst.stopHealth) })
	if inst.cmd == nil || inst.cmd.Process == nil {
		return
	}
	_ = inst.cmd.Process.Signal(syscall.SIGTERM)
	select {
	case <-inst.exitCh:
	case <-time.After(stopGrace):
		s.killInstance(inst)
	}
	s.log.Info().Str("model", inst.model.ID).Int("pid", inst.pid).Msg("server stopped")
}

func (s *Supervisor) killInstance(inst *instance) {
	if inst.cmd == nil || inst.cmd.Process == nil {
		return
	}
	_ = inst.cmd.Process.Kill()
	<-inst.exitCh
}

func (i *instance) markExited(err error) {
	i.mu.Lock()
	i.exited = true
	i.exitErr = err
	i.mu.Unlock()
	close(i.exitCh)
}

// currentState folds the exit flag into the lifecycle state: an exited child
// reads as stopped no matter what state it held before.
func (i *instance) currentState() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.exited {
		return StateStopped
	}
	return i.state
}

func (i *instance) exitError() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.exitErr
}

func (i *instance) setState(st string) {
	i.mu.Lock()
	i.state = st
	i.mu.Unlock()
}

// tailBuffer is a concurrency-safe stderr sink; the child writes from its
// own goroutine while failure paths read the tail.
type tailBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *tailBuffer) Tail(n int) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.buf.String()
	if len(s) > n {
		return s[len(s)-n:]
	}
	return s
}
