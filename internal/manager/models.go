package manager

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"whisprd/internal/archive"
	"whisprd/internal/common/fsutil"
	"whisprd/internal/download"
	"whisprd/pkg/types"
)

func (m *Manager) modelsDir() string { return filepath.Join(m.cacheDir, "models") }

// artifactPath is where the download lands: the model file itself, or the
// archive file for bundles.
func (m *Manager) artifactPath(md types.Model) string {
	return filepath.Join(m.modelsDir(), md.FileName)
}

// installPath is what the runtimes consume: the model file, or the extracted
// bundle directory.
func (m *Manager) installPath(md types.Model) string {
	if md.IsBundle() {
		return filepath.Join(m.modelsDir(), md.Archive.DirName)
	}
	return m.artifactPath(md)
}

// isInstalled checks artifact presence. A single-file artifact must meet the
// same minimum-size floor the downloader enforces, so a truncated file never
// reads as installed. Bundle components can be legitimately tiny (token
// lists), so each only has to exist non-empty; their integrity was verified
// at extraction time.
func (m *Manager) isInstalled(md types.Model) bool {
	if !md.IsBundle() {
		return fsutil.FileSize(m.installPath(md)) >= m.minArtifactBytes()
	}
	dir := m.installPath(md)
	for _, f := range md.Archive.Files {
		if fsutil.FileSize(filepath.Join(dir, f)) == 0 {
			return false
		}
	}
	return true
}

func (m *Manager) minArtifactBytes() int64 {
	if m.minBytes > 0 {
		return m.minBytes
	}
	return download.DefaultMinArtifactBytes
}

func (m *Manager) installedSize(md types.Model) int64 {
	if !md.IsBundle() {
		return fsutil.FileSize(m.installPath(md))
	}
	var total int64
	_ = filepath.WalkDir(m.installPath(md), func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, ierr := d.Info(); ierr == nil {
			total += info.Size()
		}
		return nil
	})
	return total
}

// Models lists every registry entry joined with its on-disk state.
func (m *Manager) Models(ctx context.Context) types.ModelsResponse {
	all := m.reg.List()
	out := types.ModelsResponse{Models: make([]types.ModelStatus, 0, len(all))}
	for _, md := range all {
		st := types.ModelStatus{Model: md}
		if m.isInstalled(md) {
			st.Downloaded = true
			st.LocalPath = m.installPath(md)
			st.SizeBytes = m.installedSize(md)
		}
		out.Models = append(out.Models, st)
	}
	return out
}

// Download fetches and installs a model, returning its install path. Already
// installed models return immediately. Bundles are extracted after the
// transfer and the archive file is removed.
func (m *Manager) Download(ctx context.Context, id string, onProgress download.ProgressFunc) (string, error) {
	md, err := m.Lookup(id)
	if err != nil {
		return "", err
	}
	path := m.installPath(md)
	if m.isInstalled(md) {
		return path, nil
	}

	dest := m.artifactPath(md)
	if err := m.dl.Download(ctx, md, dest, onProgress); err != nil {
		return "", err
	}
	if md.IsBundle() {
		if err := archive.Install(m.log, md.Archive, dest, path); err != nil {
			return "", err
		}
		_ = os.Remove(dest)
	}
	return path, nil
}

// CancelDownload aborts an in-flight download.
func (m *Manager) CancelDownload(id string) bool { return m.dl.Cancel(id) }

// DownloadProgress snapshots an in-flight download for polling clients.
func (m *Manager) DownloadProgress(id string) (types.DownloadProgress, bool) {
	return m.dl.Progress(id)
}

// Delete removes a model's local artifact and reports the bytes freed.
// When the supervised server is serving this model it is stopped first.
func (m *Manager) Delete(id string) (types.DeleteResponse, error) {
	md, err := m.Lookup(id)
	if err != nil {
		return types.DeleteResponse{}, err
	}
	if st := m.sup.Status(); st.Running && st.ModelName == md.Name {
		m.log.Info().Str("model", id).Msg("stopping server before delete")
		m.sup.Stop()
	}

	resp := types.DeleteResponse{ModelID: id}
	if !m.isInstalled(md) {
		// clean up any stale partial artifact
		_ = os.Remove(m.artifactPath(md) + ".tmp")
		return resp, nil
	}
	resp.FreedBytes = m.installedSize(md)

	var rmErr error
	if md.IsBundle() {
		rmErr = os.RemoveAll(m.installPath(md))
	} else {
		rmErr = os.Remove(m.installPath(md))
	}
	if rmErr != nil {
		return types.DeleteResponse{ModelID: id}, fmt.Errorf("delete %s: %w", id, rmErr)
	}
	resp.Deleted = true
	m.log.Info().Str("model", id).Int64("freed_bytes", resp.FreedBytes).Msg("model deleted")
	return resp, nil
}

// DeleteAll removes every installed model and aggregates the bytes freed.
func (m *Manager) DeleteAll() (types.DeleteResponse, error) {
	var resp types.DeleteResponse
	for _, md := range m.reg.List() {
		r, err := m.Delete(md.ID)
		if err != nil {
			return resp, err
		}
		if r.Deleted {
			resp.Deleted = true
			resp.FreedBytes += r.FreedBytes
		}
	}
	return resp, nil
}
