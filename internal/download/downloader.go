// Package download fetches model artifacts over HTTP with single-flight
// deduplication per model id, staged temp files, bounded manual redirect
// following and throttled progress reporting.
package download

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"whisprd/internal/common/fsutil"
	"whisprd/pkg/types"
)

// DefaultMinArtifactBytes is the floor below which a completed artifact is
// treated as truncated. The install check shares it so a short file never
// reads as installed.
const DefaultMinArtifactBytes = 1 << 20

const (
	maxRedirects            = 5
	defaultProgressInterval = 100 * time.Millisecond
	copyBufSize             = 128 << 10
)

// ProgressFunc receives throttled progress snapshots. The final snapshot of a
// successful transfer always fires regardless of the throttle window.
type ProgressFunc func(p types.DownloadProgress)

// Options configures a Downloader. Zero values pick sensible defaults.
type Options struct {
	// HTTP client for transfers. Redirect handling is always overridden:
	// the downloader walks redirects manually with a bound.
	Client *http.Client
	// Completed artifacts smaller than this are rejected as corrupted.
	MinArtifactBytes int64
	// Cross-process lock file guarding finalization into the cache dir.
	// Empty disables locking.
	LockPath string
	// Minimum interval between progress callbacks.
	ProgressInterval time.Duration
}

// Downloader performs model artifact transfers. At most one transfer per
// model id is in flight; a duplicate request is rejected, not queued.
type Downloader struct {
	mu       sync.Mutex
	inflight map[string]*transfer

	client    *http.Client
	minBytes  int64
	lockPath  string
	emitEvery time.Duration
	log       zerolog.Logger
}

type transfer struct {
	cancel    context.CancelFunc
	cancelled bool
	snap      types.DownloadProgress
	lastAt    time.Time
	lastBytes int64
}

// New constructs a Downloader.
func New(log zerolog.Logger, opts Options) *Downloader {
	base := opts.Client
	if base == nil {
		base = &http.Client{}
	}
	client := *base
	client.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	min := opts.MinArtifactBytes
	if min <= 0 {
		min = DefaultMinArtifactBytes
	}
	interval := opts.ProgressInterval
	if interval <= 0 {
		interval = defaultProgressInterval
	}
	return &Downloader{
		inflight:  make(map[string]*transfer),
		client:    &client,
		minBytes:  min,
		lockPath:  opts.LockPath,
		emitEvery: interval,
		log:       log,
	}
}

// Download fetches the artifact for m into dest. It is idempotent: when dest
// already holds a viable artifact it returns immediately without touching the
// network. dest never holds partial content; the stream stages through a
// sibling temp file and is renamed into place only after the size check.
func (d *Downloader) Download(ctx context.Context, m types.Model, dest string, onProgress ProgressFunc) error {
	if fsutil.FileSize(dest) >= d.minBytes {
		d.log.Debug().Str("model", m.ID).Str("path", dest).Msg("artifact already present")
		return nil
	}

	tctx, tr, err := d.begin(ctx, m)
	if err != nil {
		return err
	}
	d.log.Info().Str("model", m.ID).Str("url", m.URL).Msg("download starting")

	err = d.run(tctx, m, dest, tr, onProgress)
	d.finish(m.ID, tr, err)
	return err
}

// Cancel aborts the in-flight transfer for modelID. It returns false when no
// transfer is in flight. The transfer goroutine removes the temp file and the
// tracking state before its Download call returns a cancellation error.
func (d *Downloader) Cancel(modelID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	tr, ok := d.inflight[modelID]
	if !ok {
		return false
	}
	tr.cancelled = true
	tr.cancel()
	return true
}

// Progress returns a snapshot of the in-flight transfer for modelID.
func (d *Downloader) Progress(modelID string) (types.DownloadProgress, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	tr, ok := d.inflight[modelID]
	if !ok {
		return types.DownloadProgress{}, false
	}
	return tr.snap, true
}

func (d *Downloader) begin(ctx context.Context, m types.Model) (context.Context, *transfer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.inflight[m.ID]; ok {
		return nil, nil, ErrInProgress(m.ID)
	}
	tctx, cancel := context.WithCancel(ctx)
	tr := &transfer{
		cancel: cancel,
		snap: types.DownloadProgress{
			ModelID: m.ID,
			OpID:    uuid.NewString(),
			Status:  types.DownloadDownloading,
			Total:   m.ApproxBytes,
		},
	}
	d.inflight[m.ID] = tr
	return tctx, tr, nil
}

func (d *Downloader) finish(modelID string, tr *transfer, err error) {
	d.mu.Lock()
	delete(d.inflight, modelID)
	d.mu.Unlock()
	tr.cancel()
	outcomesTotal.WithLabelValues(outcomeLabel(err)).Inc()
	if err != nil {
		d.log.Warn().Str("model", modelID).Err(err).Msg("download finished with error")
		return
	}
	d.log.Info().Str("model", modelID).Int64("bytes", tr.snap.Downloaded).Msg("download complete")
}

func (d *Downloader) run(ctx context.Context, m types.Model, dest string, tr *transfer, onProgress ProgressFunc) error {
	resp, err := d.fetch(ctx, m.URL)
	if err != nil {
		if d.wasCancelled(tr) {
			return cancelledError{modelID: m.ID}
		}
		if IsRedirectError(err) || IsFailed(err) {
			return err
		}
		return FailedError{Err: err}
	}
	defer resp.Body.Close()

	total := resp.ContentLength
	if total <= 0 {
		total = m.ApproxBytes
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return FailedError{Err: err}
	}
	tmp := dest + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return FailedError{Err: err}
	}

	buf := make([]byte, copyBufSize)
	var written int64
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := f.Write(buf[:n]); werr != nil {
				_ = f.Close()
				_ = os.Remove(tmp)
				return FailedError{Err: werr}
			}
			written += int64(n)
			bytesTotal.Add(float64(n))
			d.update(tr, written, total, onProgress, false)
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			_ = f.Close()
			_ = os.Remove(tmp)
			if d.wasCancelled(tr) {
				return cancelledError{modelID: m.ID}
			}
			return FailedError{Err: rerr}
		}
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return FailedError{Err: err}
	}

	if written < d.minBytes {
		_ = os.Remove(tmp)
		return CorruptedError{Size: written, Min: d.minBytes}
	}

	d.update(tr, written, total, onProgress, true)

	if err := d.finalize(tmp, dest); err != nil {
		_ = os.Remove(tmp)
		return FailedError{Err: err}
	}
	return nil
}

// fetch performs the GET, walking up to maxRedirects redirect hops manually.
// A redirect response without a Location header is an error, not a retry.
func (d *Downloader) fetch(ctx context.Context, rawURL string) (*http.Response, error) {
	u := rawURL
	for hop := 0; ; hop++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, FailedError{Err: err}
		}
		resp, err := d.client.Do(req)
		if err != nil {
			return nil, err
		}
		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return resp, nil
		case resp.StatusCode >= 300 && resp.StatusCode < 400:
			loc := resp.Header.Get("Location")
			_ = resp.Body.Close()
			if loc == "" {
				return nil, redirectError{msg: "redirect without Location header"}
			}
			if hop == maxRedirects {
				return nil, redirectError{msg: fmt.Sprintf("more than %d redirects", maxRedirects)}
			}
			next, perr := resp.Request.URL.Parse(loc)
			if perr != nil {
				return nil, redirectError{msg: "unparseable Location: " + perr.Error()}
			}
			u = next.String()
		default:
			code := resp.StatusCode
			_ = resp.Body.Close()
			return nil, FailedError{Status: code}
		}
	}
}

func (d *Downloader) update(tr *transfer, written, total int64, onProgress ProgressFunc, force bool) {
	now := time.Now()
	d.mu.Lock()
	tr.snap.Downloaded = written
	tr.snap.Total = total
	if total > 0 {
		tr.snap.Percent = float64(written) / float64(total) * 100
	}
	if !force && now.Sub(tr.lastAt) < d.emitEvery {
		d.mu.Unlock()
		return
	}
	if dt := now.Sub(tr.lastAt).Seconds(); dt > 0 && !tr.lastAt.IsZero() {
		tr.snap.SpeedMBps = float64(written-tr.lastBytes) / dt / (1 << 20)
	}
	tr.lastAt = now
	tr.lastBytes = written
	snap := tr.snap
	d.mu.Unlock()
	if onProgress != nil {
		onProgress(snap)
	}
}

func (d *Downloader) wasCancelled(tr *transfer) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return tr.cancelled
}

// finalize moves the staged file into place under a cross-process file lock,
// so two daemon instances sharing a cache dir do not race the rename.
func (d *Downloader) finalize(tmp, dest string) error {
	if d.lockPath != "" {
		fl := flock.New(d.lockPath)
		if err := fl.Lock(); err != nil {
			return err
		}
		defer func() { _ = fl.Unlock() }()
	}
	return fsutil.MoveFile(tmp, dest)
}
