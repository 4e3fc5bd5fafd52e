// Package archive installs multi-file model bundles shipped as zip or
// tar.gz archives. Extraction stages into a sibling directory of the final
// location; the final directory either holds the complete previous install
// or the complete new one, never a mix.
package archive

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"whisprd/pkg/types"
)

// BadArchiveError covers unsupported formats, unsafe entries, extraction
// failures and bundles missing their component files.
type BadArchiveError struct {
	Reason string
	Err    error
}

func (e BadArchiveError) Error() string {
	if e.Err != nil {
		return "bad archive: " + e.Reason + ": " + e.Err.Error()
	}
	return "bad archive: " + e.Reason
}

func (e BadArchiveError) Unwrap() error { return e.Err }

// IsBadArchive reports whether err indicates an unusable archive.
func IsBadArchive(err error) bool {
	_, ok := err.(BadArchiveError)
	return ok
}

// Install extracts archivePath and moves the bundle directory it describes
// into finalDir, replacing any previous install. The archive file itself is
// left in place; the caller decides when to remove it.
func Install(log zerolog.Logger, layout *types.ArchiveLayout, archivePath, finalDir string) error {
	staging := finalDir + ".extract"
	_ = os.RemoveAll(staging)
	if err := os.MkdirAll(staging, 0o755); err != nil {
		return BadArchiveError{Reason: "staging dir", Err: err}
	}
	defer os.RemoveAll(staging)

	if err := extract(archivePath, staging); err != nil {
		return err
	}

	bundle, err := locateBundle(staging, layout)
	if err != nil {
		return err
	}
	if err := verifyComponents(bundle, layout); err != nil {
		return err
	}

	if err := os.RemoveAll(finalDir); err != nil {
		return BadArchiveError{Reason: "remove previous install", Err: err}
	}
	if err := os.Rename(bundle, finalDir); err != nil {
		return BadArchiveError{Reason: "move bundle into place", Err: err}
	}
	log.Info().Str("dir", finalDir).Msg("bundle installed")
	return nil
}

func extract(archivePath, dst string) error {
	name := strings.ToLower(archivePath)
	switch {
	case strings.HasSuffix(name, ".zip"):
		return extractZip(archivePath, dst)
	case strings.HasSuffix(name, ".tar.gz"), strings.HasSuffix(name, ".tgz"):
		return extractTarGz(archivePath, dst)
	default:
		return BadArchiveError{Reason: "unsupported archive format: " + filepath.Base(archivePath)}
	}
}

// locateBundle finds the extracted bundle directory: the exact expected name,
// then a directory whose name and the expected name contain each other, then
// the staging root itself when the archive had no top-level directory.
func locateBundle(staging string, layout *types.ArchiveLayout) (string, error) {
	exact := filepath.Join(staging, layout.DirName)
	if fi, err := os.Stat(exact); err == nil && fi.IsDir() {
		return exact, nil
	}

	entries, err := os.ReadDir(staging)
	if err != nil {
		return "", BadArchiveError{Reason: "read staging dir", Err: err}
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if strings.Contains(e.Name(), layout.DirName) || strings.Contains(layout.DirName, e.Name()) {
			return filepath.Join(staging, e.Name()), nil
		}
	}

	if verifyComponents(staging, layout) == nil {
		return staging, nil
	}
	return "", BadArchiveError{Reason: "bundle directory " + layout.DirName + " not found in archive"}
}

func verifyComponents(dir string, layout *types.ArchiveLayout) error {
	for _, f := range layout.Files {
		p := filepath.Join(dir, f)
		fi, err := os.Stat(p)
		if err != nil || !fi.Mode().IsRegular() {
			return BadArchiveError{Reason: "missing component " + f}
		}
		if fi.Size() == 0 {
			return BadArchiveError{Reason: "empty component " + f}
		}
	}
	return nil
}

// safeJoin rejects entries that would escape dst.
func safeJoin(dst, name string) (string, error) {
	cleaned := filepath.Clean(name)
	if filepath.IsAbs(cleaned) || cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(os.PathSeparator)) {
		return "", BadArchiveError{Reason: "unsafe entry path " + name}
	}
	return filepath.Join(dst, cleaned), nil
}

func extractZip(archivePath, dst string) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return BadArchiveError{Reason: "open zip", Err: err}
	}
	defer r.Close()

	for _, f := range r.File {
		target, err := safeJoin(dst, f.Name)
		if err != nil {
			return err
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return BadArchiveError{Reason: "mkdir " + f.Name, Err: err}
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return BadArchiveError{Reason: "mkdir for " + f.Name, Err: err}
		}
		rc, err := f.Open()
		if err != nil {
			return BadArchiveError{Reason: "open entry " + f.Name, Err: err}
		}
		err = writeEntry(target, rc, f.Mode())
		rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func extractTarGz(archivePath, dst string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return BadArchiveError{Reason: "open archive", Err: err}
	}
	defer f.Close()
	gz, err := gzip.NewReader(f)
	if err != nil {
		return BadArchiveError{Reason: "gzip stream", Err: err}
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return BadArchiveError{Reason: "tar stream", Err: err}
		}
		target, err := safeJoin(dst, hdr.Name)
		if err != nil {
			return err
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return BadArchiveError{Reason: "mkdir " + hdr.Name, Err: err}
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return BadArchiveError{Reason: "mkdir for " + hdr.Name, Err: err}
			}
			if err := writeEntry(target, tr, os.FileMode(hdr.Mode)); err != nil {
				return err
			}
		default:
			// symlinks and special files are not part of model bundles
		}
	}
}

func writeEntry(target string, src io.Reader, mode os.FileMode) error {
	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode.Perm()|0o200)
	if err != nil {
		return BadArchiveError{Reason: "create " + filepath.Base(target), Err: err}
	}
	if _, err := io.Copy(out, src); err != nil {
		_ = out.Close()
		return BadArchiveError{Reason: "write " + filepath.Base(target), Err: err}
	}
	return out.Close()
}
