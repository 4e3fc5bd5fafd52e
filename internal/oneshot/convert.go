package oneshot

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"

	"whisprd/pkg/types"
)

// Converter turns arbitrary audio containers into the 16 kHz mono wav the
// transcriber consumes.
type Converter interface {
	ToWav(ctx context.Context, src, dst string) error
	Status(ctx context.Context) types.ConverterStatus
}

// ffmpegCandidates are checked when ffmpeg is not on PATH and no explicit
// path is configured.
var ffmpegCandidates = []string{
	"/usr/bin/ffmpeg",
	"/usr/local/bin/ffmpeg",
	"/opt/homebrew/bin/ffmpeg",
}

// FFmpeg is the default Converter.
type FFmpeg struct {
	configured string
	log        zerolog.Logger
}

// NewFFmpeg constructs a Converter. configuredPath overrides discovery when
// non-empty.
func NewFFmpeg(log zerolog.Logger, configuredPath string) *FFmpeg {
	return &FFmpeg{configured: configuredPath, log: log}
}

func (f *FFmpeg) resolve() (string, error) {
	if f.configured != "" {
		if fi, err := os.Stat(f.configured); err == nil && fi.Mode().IsRegular() {
			return f.configured, nil
		}
		return "", errors.New("configured converter missing: " + f.configured)
	}
	if p, err := exec.LookPath("ffmpeg"); err == nil {
		return p, nil
	}
	for _, c := range ffmpegCandidates {
		if fi, err := os.Stat(c); err == nil && fi.Mode().IsRegular() {
			return c, nil
		}
	}
	return "", errors.New("ffmpeg not found")
}

// ToWav converts src into a 16 kHz mono pcm_s16le wav at dst.
func (f *FFmpeg) ToWav(ctx context.Context, src, dst string) error {
	bin, err := f.resolve()
	if err != nil {
		return ConvertError{Err: err}
	}
	cmd := commandContext(ctx, bin,
		"-y", "-i", src,
		"-ar", "16000", "-ac", "1", "-c:a", "pcm_s16le",
		dst,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		f.log.Warn().Err(err).Str("src", src).Msg("conversion failed")
		return ConvertError{Err: errors.New(tail(stderr.String(), 512))}
	}
	return nil
}

// Status reports converter availability for the diagnostics API.
func (f *FFmpeg) Status(ctx context.Context) types.ConverterStatus {
	bin, err := f.resolve()
	if err != nil {
		return types.ConverterStatus{Available: false, Error: err.Error()}
	}
	st := types.ConverterStatus{Available: true, Path: bin}
	out, err := commandContext(ctx, bin, "-version").Output()
	if err == nil {
		if i := strings.IndexByte(string(out), '\n'); i > 0 {
			st.Version = strings.TrimSpace(string(out[:i]))
		}
	}
	return st
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
