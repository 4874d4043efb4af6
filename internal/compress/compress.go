// Package compress builds optional, non-canonical archive artifacts from a
// materialized run directory. Compression is purely additive: it never
// replaces manifest.json or plan.txt, and only ever reads payload files the
// Executor already reported as copied.
package compress

import (
	"archive/tar"
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"github.com/PolymathAlchemist/WCBT/internal/model"
	"github.com/PolymathAlchemist/WCBT/internal/safepath"
)

// Format is the closed set of supported archive formats.
type Format string

const (
	FormatZip     Format = "zip"
	FormatTarZstd Format = "tar_zstd"
)

// ParseFormat maps a CLI-facing spelling to a Format.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "zip":
		return FormatZip, nil
	case "tar-zstd", "tar_zstd":
		return FormatTarZstd, nil
	default:
		return "", fmt.Errorf("compress: unsupported format %q", s)
	}
}

// ErrUnsupportedFormat is returned by Compress for any Format not in the
// closed set above.
var ErrUnsupportedFormat = errors.New("compress: unsupported format")

// Compressor builds one archive from a materialized run directory.
type Compressor interface {
	Compress(ctx context.Context, runRoot safepath.Path, format Format, results []model.OperationResult) (archivePath safepath.Path, err error)
}

// FilesystemCompressor writes zip or tar+zstd archives inside the run
// directory it compresses, beside manifest.json.
type FilesystemCompressor struct{}

// NewFilesystemCompressor returns the default Compressor.
func NewFilesystemCompressor() FilesystemCompressor {
	return FilesystemCompressor{}
}

// Compress archives every payload file results marks as copied, naming
// entries by the run directory's base name joined with each file's path
// relative to runRoot, so extracting the archive recreates a run folder.
func (FilesystemCompressor) Compress(ctx context.Context, runRoot safepath.Path, format Format, results []model.OperationResult) (safepath.Path, error) {
	files, err := copiedFiles(runRoot, results)
	if err != nil {
		return safepath.Path{}, err
	}

	baseName := runRoot.Base()

	var archiveName string
	switch format {
	case FormatZip:
		archiveName = "archive.zip"
	case FormatTarZstd:
		archiveName = "archive.tar.zst"
	default:
		return safepath.Path{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}

	archivePath := runRoot.Join(archiveName)
	if _, err := os.Stat(archivePath.String()); err == nil {
		return safepath.Path{}, fmt.Errorf("compress: refusing to overwrite existing archive: %s", archivePath)
	} else if !os.IsNotExist(err) {
		return safepath.Path{}, fmt.Errorf("compress: stat archive path: %w", err)
	}

	tmpPath := archivePath.String() + ".wcbt_tmp"
	_ = os.Remove(tmpPath)

	out, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return safepath.Path{}, fmt.Errorf("compress: creating archive: %w", err)
	}

	writeErr := func() error {
		defer out.Close()
		switch format {
		case FormatZip:
			return writeZip(ctx, out, runRoot, baseName, files)
		case FormatTarZstd:
			return writeTarZstd(ctx, out, runRoot, baseName, files)
		default:
			return fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
		}
	}()
	if writeErr != nil {
		_ = os.Remove(tmpPath)
		return safepath.Path{}, writeErr
	}

	if err := os.Rename(tmpPath, archivePath.String()); err != nil {
		_ = os.Remove(tmpPath)
		return safepath.Path{}, fmt.Errorf("compress: finalizing archive: %w", err)
	}

	return archivePath, nil
}

// copiedFiles resolves the on-disk destination path of every operation
// result with outcome "copied", skipping plan.txt/manifest.json (which are
// never OperationResult entries to begin with) and anything else.
func copiedFiles(runRoot safepath.Path, results []model.OperationResult) ([]safepath.Path, error) {
	var files []safepath.Path
	for _, r := range results {
		if r.Outcome != model.OutcomeCopied {
			continue
		}
		p, err := safepath.New(r.DestinationPath)
		if err != nil {
			return nil, fmt.Errorf("compress: resolving destination path %q: %w", r.DestinationPath, err)
		}
		if !p.Within(runRoot) {
			return nil, fmt.Errorf("compress: destination path %q escapes run root %q", p, runRoot)
		}
		files = append(files, p)
	}
	return files, nil
}

func writeZip(ctx context.Context, w io.Writer, runRoot safepath.Path, baseName string, files []safepath.Path) error {
	zw := zip.NewWriter(w)
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		arcname, err := archiveEntryName(runRoot, baseName, f)
		if err != nil {
			return err
		}
		if err := addFileToZip(zw, f.String(), arcname); err != nil {
			return err
		}
	}
	return zw.Close()
}

func addFileToZip(zw *zip.Writer, sourcePath, arcname string) error {
	info, err := os.Stat(sourcePath)
	if err != nil {
		return fmt.Errorf("compress: stat %s: %w", sourcePath, err)
	}
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	header.Name = arcname
	header.Method = zip.Deflate

	writer, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}

	in, err := os.Open(sourcePath)
	if err != nil {
		return fmt.Errorf("compress: opening %s: %w", sourcePath, err)
	}
	defer in.Close()

	_, err = io.Copy(writer, in)
	return err
}

func writeTarZstd(ctx context.Context, w io.Writer, runRoot safepath.Path, baseName string, files []safepath.Path) error {
	zstdWriter, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("compress: opening zstd stream: %w", err)
	}

	tarWriteErr := func() error {
		tw := tar.NewWriter(zstdWriter)
		defer tw.Close()

		for _, f := range files {
			if err := ctx.Err(); err != nil {
				return err
			}
			arcname, err := archiveEntryName(runRoot, baseName, f)
			if err != nil {
				return err
			}
			if err := addFileToTar(tw, f.String(), arcname); err != nil {
				return err
			}
		}
		return nil
	}()

	if closeErr := zstdWriter.Close(); tarWriteErr == nil {
		tarWriteErr = closeErr
	}
	return tarWriteErr
}

func addFileToTar(tw *tar.Writer, sourcePath, arcname string) error {
	info, err := os.Stat(sourcePath)
	if err != nil {
		return fmt.Errorf("compress: stat %s: %w", sourcePath, err)
	}
	header, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	header.Name = arcname

	if err := tw.WriteHeader(header); err != nil {
		return err
	}

	in, err := os.Open(sourcePath)
	if err != nil {
		return fmt.Errorf("compress: opening %s: %w", sourcePath, err)
	}
	defer in.Close()

	_, err = io.Copy(tw, in)
	return err
}

// archiveEntryName builds a forward-slash archive path rooted at the run
// directory's own base name, so extracting the archive recreates a run
// folder rather than spilling its files loose into the destination.
func archiveEntryName(runRoot safepath.Path, baseName string, f safepath.Path) (string, error) {
	rel, err := f.Rel(runRoot)
	if err != nil {
		return "", fmt.Errorf("compress: %s is not under run root %s: %w", f, runRoot, err)
	}
	return filepath.ToSlash(filepath.Join(baseName, rel)), nil
}
