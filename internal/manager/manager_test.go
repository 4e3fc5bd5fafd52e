package manager

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"whisprd/internal/binpath"
	"whisprd/internal/download"
	"whisprd/internal/gpu"
	"whisprd/internal/oneshot"
	"whisprd/internal/registry"
	"whisprd/internal/server"
	"whisprd/pkg/types"
)

type fakeServer struct {
	startCalls int
	startModel string
	startPath  string
	startNGL   int
	startErr   error
	stopCalls  int
	status     types.ServerStatus
	completion string
	complErr   error
}

func (f *fakeServer) Start(_ context.Context, m types.Model, path string, ngl int) error {
	f.startCalls++
	f.startModel = m.ID
	f.startPath = path
	f.startNGL = ngl
	return f.startErr
}

func (f *fakeServer) Stop() { f.stopCalls++ }

func (f *fakeServer) Status() types.ServerStatus { return f.status }

func (f *fakeServer) Completion(context.Context, string, float64, int) (string, error) {
	return f.completion, f.complErr
}

type fakeRunner struct {
	modelPath string
	audioPath string
	lang      string
	resp      types.TranscribeResponse
	err       error
}

func (f *fakeRunner) Transcribe(_ context.Context, _ types.Model, modelPath, audioPath, lang string) (types.TranscribeResponse, error) {
	f.modelPath = modelPath
	f.audioPath = audioPath
	f.lang = lang
	return f.resp, f.err
}

type fakeDownloader struct {
	calls   int
	content []byte
	err     error
}

func (f *fakeDownloader) Download(_ context.Context, _ types.Model, dest string, _ download.ProgressFunc) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	return os.WriteFile(dest, f.content, 0o644)
}

func (f *fakeDownloader) Cancel(string) bool { return false }

func (f *fakeDownloader) Progress(string) (types.DownloadProgress, bool) {
	return types.DownloadProgress{}, false
}

var testModels = []types.Model{
	{ID: "whisper-base", Name: "Whisper Base", Kind: types.KindSpeech, URL: "https://models.test/ggml-base.bin", FileName: "ggml-base.bin"},
	{ID: "llama-1b", Name: "Llama 1B", Kind: types.KindText, URL: "https://models.test/llama.gguf", FileName: "llama.gguf"},
	{ID: "parakeet", Name: "Parakeet", Kind: types.KindSpeech, URL: "https://models.test/parakeet.zip", FileName: "parakeet.zip",
		Archive: &types.ArchiveLayout{DirName: "parakeet-v2", Files: []string{"encoder.onnx", "tokens.txt"}}},
}

func newTestManager(t *testing.T, sup TextServer, runner SpeechRunner, dl Downloader) *Manager {
	t.Helper()
	return &Manager{
		reg:      registry.New(testModels),
		dl:       dl,
		det:      gpu.New(zerolog.Nop()),
		bin:      binpath.New(t.TempDir(), ""),
		sup:      sup,
		runner:   runner,
		conv:     oneshot.NewFFmpeg(zerolog.Nop(), ""),
		cacheDir: t.TempDir(),
		minBytes: 4, // keep test artifacts small
		log:      zerolog.Nop(),
	}
}

func installFile(t *testing.T, m *Manager, id string) string {
	t.Helper()
	md, err := m.Lookup(id)
	if err != nil {
		t.Fatal(err)
	}
	p := m.installPath(md)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte("model-bytes"), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLookupUnknown(t *testing.T) {
	m := newTestManager(t, &fakeServer{}, &fakeRunner{}, &fakeDownloader{})
	if _, err := m.Lookup("nope"); !IsNotFound(err) {
		t.Fatalf("got %v, want not found", err)
	}
}

func TestDownloadInstallsSingleFile(t *testing.T) {
	dl := &fakeDownloader{content: []byte("weights")}
	m := newTestManager(t, &fakeServer{}, &fakeRunner{}, dl)

	path, err := m.Download(context.Background(), "whisper-base", nil)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if got, _ := os.ReadFile(path); string(got) != "weights" {
		t.Fatalf("artifact content: %q", got)
	}
	var st types.ModelStatus
	for _, s := range m.Models(context.Background()).Models {
		if s.ID == "whisper-base" {
			st = s
		}
	}
	if !st.Downloaded || st.LocalPath != path || st.SizeBytes != int64(len("weights")) {
		t.Fatalf("status not joined with disk state: %+v", st)
	}
}

func TestDownloadIdempotentWhenInstalled(t *testing.T) {
	dl := &fakeDownloader{content: []byte("weights")}
	m := newTestManager(t, &fakeServer{}, &fakeRunner{}, dl)
	want := installFile(t, m, "whisper-base")

	path, err := m.Download(context.Background(), "whisper-base", nil)
	if err != nil || path != want {
		t.Fatalf("download: %v path=%s", err, path)
	}
	if dl.calls != 0 {
		t.Fatalf("transfer ran %d times for an installed model", dl.calls)
	}
}

func TestDownloadBundleExtractsAndRemovesArchive(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range map[string]string{
		"parakeet-v2/encoder.onnx": "enc",
		"parakeet-v2/tokens.txt":   "tok",
	} {
		w, _ := zw.Create(name)
		_, _ = w.Write([]byte(content))
	}
	_ = zw.Close()

	dl := &fakeDownloader{content: buf.Bytes()}
	m := newTestManager(t, &fakeServer{}, &fakeRunner{}, dl)

	path, err := m.Download(context.Background(), "parakeet", nil)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if got, _ := os.ReadFile(filepath.Join(path, "encoder.onnx")); string(got) != "enc" {
		t.Fatalf("component missing: %q", got)
	}
	md, _ := m.Lookup("parakeet")
	if _, statErr := os.Stat(m.artifactPath(md)); !os.IsNotExist(statErr) {
		t.Fatal("archive file not removed after install")
	}
	if !m.isInstalled(md) {
		t.Fatal("bundle not installed")
	}
}

func TestInferAutoStartsServer(t *testing.T) {
	sup := &fakeServer{completion: "the answer"}
	m := newTestManager(t, sup, &fakeRunner{}, &fakeDownloader{})
	path := installFile(t, m, "llama-1b")

	resp, err := m.Infer(context.Background(), types.InferRequest{Model: "llama-1b", Prompt: "q"})
	if err != nil {
		t.Fatalf("infer: %v", err)
	}
	if resp.Text != "the answer" {
		t.Fatalf("got %q", resp.Text)
	}
	if sup.startCalls != 1 || sup.startModel != "llama-1b" || sup.startPath != path {
		t.Fatalf("server start wiring: %+v", sup)
	}
	if sup.startNGL != -1 {
		t.Fatalf("default gpu layers %d, want -1", sup.startNGL)
	}
}

func TestInferGPULayersOverride(t *testing.T) {
	sup := &fakeServer{completion: "ok"}
	m := newTestManager(t, sup, &fakeRunner{}, &fakeDownloader{})
	installFile(t, m, "llama-1b")

	layers := 20
	if _, err := m.Infer(context.Background(), types.InferRequest{Model: "llama-1b", Prompt: "q", GPULayers: &layers}); err != nil {
		t.Fatal(err)
	}
	if sup.startNGL != 20 {
		t.Fatalf("gpu layers %d, want 20", sup.startNGL)
	}
}

func TestInferDownloadsMissingArtifact(t *testing.T) {
	sup := &fakeServer{completion: "served after install"}
	dl := &fakeDownloader{content: []byte("weights")}
	m := newTestManager(t, sup, &fakeRunner{}, dl)

	resp, err := m.Infer(context.Background(), types.InferRequest{Model: "llama-1b", Prompt: "q"})
	if err != nil {
		t.Fatalf("infer on a not-yet-downloaded model: %v", err)
	}
	if resp.Text != "served after install" {
		t.Fatalf("got %q", resp.Text)
	}
	if dl.calls != 1 {
		t.Fatalf("transfer ran %d times, want 1", dl.calls)
	}
	md, _ := m.Lookup("llama-1b")
	if sup.startCalls != 1 || sup.startPath != m.installPath(md) {
		t.Fatalf("server start wiring: %+v", sup)
	}
}

func TestInferDownloadFailureSkipsStart(t *testing.T) {
	sup := &fakeServer{}
	dl := &fakeDownloader{err: download.FailedError{Status: 503}}
	m := newTestManager(t, sup, &fakeRunner{}, dl)

	_, err := m.Infer(context.Background(), types.InferRequest{Model: "llama-1b", Prompt: "q"})
	if !download.IsFailed(err) {
		t.Fatalf("got %v, want download failure", err)
	}
	if sup.startCalls != 0 {
		t.Fatal("server started although the artifact never arrived")
	}
}

func TestTruncatedArtifactNotInstalled(t *testing.T) {
	m := newTestManager(t, &fakeServer{}, &fakeRunner{}, &fakeDownloader{})
	md, _ := m.Lookup("whisper-base")
	p := m.installPath(md)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte("xy"), 0o644); err != nil {
		t.Fatal(err)
	}

	if m.isInstalled(md) {
		t.Fatal("short artifact counts as installed")
	}
	for _, st := range m.Models(context.Background()).Models {
		if st.ID == "whisper-base" && st.Downloaded {
			t.Fatalf("truncated artifact reported downloaded: %+v", st)
		}
	}
	if _, err := m.Transcribe(context.Background(), "whisper-base", "/audio/clip.wav", ""); !IsNotDownloaded(err) {
		t.Fatalf("got %v, want not downloaded for a truncated artifact", err)
	}
}

func TestDownloadReplacesTruncatedArtifact(t *testing.T) {
	dl := &fakeDownloader{content: []byte("full-weights")}
	m := newTestManager(t, &fakeServer{}, &fakeRunner{}, dl)
	md, _ := m.Lookup("whisper-base")
	p := m.installPath(md)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte("xy"), 0o644); err != nil {
		t.Fatal(err)
	}

	path, err := m.Download(context.Background(), "whisper-base", nil)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if dl.calls != 1 {
		t.Fatalf("transfer ran %d times for a truncated artifact, want 1", dl.calls)
	}
	if got, _ := os.ReadFile(path); string(got) != "full-weights" {
		t.Fatalf("artifact not replaced: %q", got)
	}
}

func TestInferWrongKind(t *testing.T) {
	m := newTestManager(t, &fakeServer{}, &fakeRunner{}, &fakeDownloader{})
	installFile(t, m, "whisper-base")
	_, err := m.Infer(context.Background(), types.InferRequest{Model: "whisper-base", Prompt: "q"})
	if !IsWrongKind(err) {
		t.Fatalf("got %v, want wrong kind", err)
	}
}

func TestTranscribeRoutesToRunner(t *testing.T) {
	runner := &fakeRunner{resp: types.TranscribeResponse{Text: "hello"}}
	m := newTestManager(t, &fakeServer{}, runner, &fakeDownloader{})
	path := installFile(t, m, "whisper-base")

	resp, err := m.Transcribe(context.Background(), "whisper-base", "/audio/clip.wav", "en")
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if resp.Text != "hello" {
		t.Fatalf("got %q", resp.Text)
	}
	if runner.modelPath != path || runner.audioPath != "/audio/clip.wav" || runner.lang != "en" {
		t.Fatalf("runner wiring: %+v", runner)
	}
}

func TestTranscribeNotDownloadedFailsFast(t *testing.T) {
	m := newTestManager(t, &fakeServer{}, &fakeRunner{}, &fakeDownloader{})
	if _, err := m.Transcribe(context.Background(), "whisper-base", "/audio/clip.wav", ""); !IsNotDownloaded(err) {
		t.Fatalf("got %v, want not downloaded", err)
	}
}

func TestDeleteStopsServingModelAndReportsFreedBytes(t *testing.T) {
	sup := &fakeServer{status: types.ServerStatus{Running: true, ModelName: "Llama 1B"}}
	m := newTestManager(t, sup, &fakeRunner{}, &fakeDownloader{})
	path := installFile(t, m, "llama-1b")

	resp, err := m.Delete("llama-1b")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !resp.Deleted || resp.FreedBytes != int64(len("model-bytes")) {
		t.Fatalf("delete response: %+v", resp)
	}
	if sup.stopCalls != 1 {
		t.Fatal("server not stopped before delete")
	}
	if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
		t.Fatal("artifact still on disk")
	}
}

func TestDeleteNotInstalled(t *testing.T) {
	sup := &fakeServer{}
	m := newTestManager(t, sup, &fakeRunner{}, &fakeDownloader{})
	resp, err := m.Delete("llama-1b")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if resp.Deleted || resp.FreedBytes != 0 {
		t.Fatalf("delete response: %+v", resp)
	}
	if sup.stopCalls != 0 {
		t.Fatal("server stopped although it serves a different model")
	}
}

func TestDeleteAllAggregates(t *testing.T) {
	m := newTestManager(t, &fakeServer{}, &fakeRunner{}, &fakeDownloader{})
	installFile(t, m, "llama-1b")
	installFile(t, m, "whisper-base")

	resp, err := m.DeleteAll()
	if err != nil {
		t.Fatalf("delete all: %v", err)
	}
	if !resp.Deleted || resp.FreedBytes != 2*int64(len("model-bytes")) {
		t.Fatalf("aggregate response: %+v", resp)
	}
}

func TestKindMapping(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{NotFoundError{ID: "x"}, KindModelNotFound},
		{NotDownloadedError{ID: "x"}, KindModelNotDownloaded},
		{wrongKindError{id: "x", want: "text"}, KindInferenceFailed},
		{download.ErrInProgress("x"), KindDownloadInProgress},
		{download.FailedError{Status: 500}, KindDownloadFailed},
		{download.CorruptedError{Size: 1, Min: 2}, KindDownloadCorrupted},
		{binpath.NotFoundError{Tool: "whisper-cli"}, KindBinaryNotFound},
		{server.StartError{Err: errors.New("boom")}, KindServerStartFailed},
		{server.ErrNotRunning(), KindServerNotRunning},
		{server.ErrTimeout(), KindInferenceTimeout},
		{oneshot.TimeoutError{Elapsed: "5m"}, KindInferenceTimeout},
		{oneshot.RunError{ExitCode: 1}, KindInferenceFailed},
		{errors.New("anything else"), KindInternal},
	}
	for _, c := range cases {
		if got := Kind(c.err); got != c.want {
			t.Fatalf("Kind(%v)=%s want %s", c.err, got, c.want)
		}
	}
}
