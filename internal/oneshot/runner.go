// Package oneshot runs the speech transcriber CLI: one process per request,
// no persistent daemon. The process gets a wall-clock budget and is killed
// when it exceeds it.
package oneshot

import (
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"

	"whisprd/internal/binpath"
	"whisprd/internal/gpu"
	"whisprd/pkg/types"
)

// Seam for tests.
var commandContext = exec.CommandContext

const (
	defaultTimeout = 5 * time.Minute
	stderrTailMax  = 4096
)

// NoAudioText is returned when the transcriber produced no recognizable
// speech for the input.
const NoAudioText = "no audio detected"

// Runner invokes the transcriber CLI.
type Runner struct {
	bin     *binpath.Resolver
	det     *gpu.Detector
	conv    Converter
	timeout time.Duration
	threads int
	log     zerolog.Logger
}

// New constructs a Runner. timeout <= 0 picks the default budget; threads <= 0
// uses half the logical cores.
func New(log zerolog.Logger, bin *binpath.Resolver, det *gpu.Detector, conv Converter, timeout time.Duration, threads int) *Runner {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if threads <= 0 {
		threads = autoThreads()
	}
	return &Runner{bin: bin, det: det, conv: conv, timeout: timeout, threads: threads, log: log}
}

func autoThreads() int {
	n, err := cpu.Counts(true)
	if err != nil || n <= 0 {
		return 1
	}
	if n /= 2; n < 1 {
		n = 1
	}
	return n
}

// Transcribe runs the CLI against audioPath using the model artifact at
// modelPath. Non-wav input is converted first. lang may be empty for
// autodetection.
func (r *Runner) Transcribe(ctx context.Context, m types.Model, modelPath, audioPath, lang string) (types.TranscribeResponse, error) {
	wav := audioPath
	if !strings.EqualFold(filepath.Ext(audioPath), ".wav") {
		dir, err := os.MkdirTemp("", "whisprd-audio-")
		if err != nil {
			return types.TranscribeResponse{}, ConvertError{Err: err}
		}
		defer os.RemoveAll(dir)
		wav = filepath.Join(dir, "input.wav")
		if err := r.conv.ToWav(ctx, audioPath, wav); err != nil {
			return types.TranscribeResponse{}, err
		}
	}

	variant := r.det.Resolve(ctx)
	bin, err := r.bin.Resolve(binpath.ToolWhisper, variant)
	if err != nil {
		return types.TranscribeResponse{}, err
	}

	args := []string{"-m", modelPath, "-f", wav, "-t", strconv.Itoa(r.threads)}
	if lang != "" {
		args = append(args, "-l", lang)
	}

	tctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := commandContext(tctx, bin, args...)
	if cmd.Env == nil {
		cmd.Env = os.Environ()
	}
	cmd.Env = append(cmd.Env, binpath.LibPathEnv(filepath.Dir(bin)))
	// The transcript line may land on either stream, so parsing works off
	// the interleaved output; stderr is also kept apart for failure detail.
	var combined syncBuffer
	var stderr bytes.Buffer
	cmd.Stdout = &combined
	cmd.Stderr = io.MultiWriter(&combined, &stderr)

	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start)

	if tctx.Err() == context.DeadlineExceeded {
		r.log.Warn().Str("model", m.ID).Dur("elapsed", elapsed).Msg("transcriber killed on timeout")
		return types.TranscribeResponse{}, TimeoutError{Elapsed: r.timeout.String()}
	}
	if runErr != nil {
		code := -1
		if cmd.ProcessState != nil {
			code = cmd.ProcessState.ExitCode()
		}
		return types.TranscribeResponse{}, RunError{
			ExitCode: code,
			Stderr:   tail(stderr.String(), stderrTailMax),
			Err:      runErr,
		}
	}

	r.log.Info().Str("model", m.ID).Dur("elapsed", elapsed).Msg("transcription done")

	text := ParseTranscript(combined.String())
	if text == "" {
		return types.TranscribeResponse{Text: NoAudioText, NoAudio: true}, nil
	}
	return types.TranscribeResponse{Text: text, Language: lang}, nil
}

// syncBuffer collects both output streams; the two pipe readers write
// concurrently.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
