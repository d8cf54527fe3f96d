// Package copier copies recently modified files from a source folder into a
// backup folder.
package copier

import (
	"context"
	"errors"
	"fmt"
	"hash"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/lucasew/backupclean/internal/errutil"
	"github.com/lucasew/backupclean/internal/hashutil"
)

// DefaultLookback is the copy window used when none is configured.
const DefaultLookback = 24 * time.Hour

// ErrVerifyMismatch is returned when a copied file does not hash like its source.
var ErrVerifyMismatch = errors.New("copy verification failed")

// Copier copies every regular file directly inside a source folder whose
// modification time falls within the lookback window.
//
// Subdirectories of the source are not descended into. Files already present
// in the destination are overwritten without comparing contents.
type Copier struct {
	Lookback time.Duration
	// Verify re-reads every copy and compares its digest with the source's.
	Verify   bool
	HashAlgo string
	Progress bool
	// Now anchors the lookback window; time.Now when nil.
	Now func() time.Time
}

// Failure is a file that could not be copied.
type Failure struct {
	Name string
	Err  error
}

// Report summarises one backup pass.
type Report struct {
	Source   string
	Dest     string
	Cutoff   time.Time
	Scanned  int
	Copied   []string
	Failed   []Failure
	Bytes    int64
	Duration time.Duration
}

func (c *Copier) lookback() time.Duration {
	if c.Lookback <= 0 {
		return DefaultLookback
	}
	return c.Lookback
}

func (c *Copier) hashAlgo() string {
	if c.HashAlgo == "" {
		return "sha256"
	}
	return c.HashAlgo
}

func (c *Copier) now() time.Time {
	if c.Now == nil {
		return time.Now()
	}
	return c.Now()
}

// Copy runs one backup pass from src into dst.
//
// The destination is created (non recursively) when missing. A failure on
// one file is logged and recorded and the remaining files are still copied.
// Only an unreadable source folder or a cancelled context returns an error.
func (c *Copier) Copy(ctx context.Context, src, dst string) (*Report, error) {
	began := time.Now()
	report := &Report{
		Source: src,
		Dest:   dst,
		Cutoff: c.now().Add(-c.lookback()),
	}

	if c.Verify && !hashutil.IsSupported(c.hashAlgo()) {
		return report, fmt.Errorf("%w: %s", hashutil.ErrUnsupported, c.hashAlgo())
	}

	if _, err := os.Stat(dst); errors.Is(err, os.ErrNotExist) {
		if errutil.LogMsg(os.Mkdir(dst, 0755), "Failed to create destination folder", "path", dst) {
			slog.Warn("Copies into the missing destination will fail", "path", dst)
		}
	}

	entries, err := os.ReadDir(src)
	if err != nil {
		return report, fmt.Errorf("failed to read source folder %s: %w", src, err)
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			report.Duration = time.Since(began)
			return report, err
		}

		path := filepath.Join(src, entry.Name())
		info, err := os.Stat(path)
		if err != nil {
			errutil.LogMsg(err, "Failed to stat source file", "path", path)
			continue
		}
		if !info.Mode().IsRegular() {
			continue
		}
		report.Scanned++
		if info.ModTime().Before(report.Cutoff) {
			continue
		}

		written, err := c.copyFile(path, dst, info)
		if err != nil {
			errutil.ReportError(err, "Failed to copy file", "name", entry.Name())
			report.Failed = append(report.Failed, Failure{Name: entry.Name(), Err: err})
			continue
		}
		report.Copied = append(report.Copied, entry.Name())
		report.Bytes += written
		slog.Info("File copied", "name", entry.Name(), "size", written)
	}

	report.Duration = time.Since(began)
	slog.Info("Backup completed",
		"copied", len(report.Copied),
		"failed", len(report.Failed),
		"bytes", humanize.IBytes(uint64(report.Bytes)),
	)
	return report, nil
}

// copyFile writes src into a temporary file inside dstDir and renames it over
// the final name, so a failed copy never leaves a truncated file behind.
func (c *Copier) copyFile(src, dstDir string, info os.FileInfo) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer func() { _ = in.Close() }()

	tmpFile, err := os.CreateTemp(dstDir, ".backupclean-*")
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmpFile.Name()) }()
	defer func() { _ = tmpFile.Close() }()

	writers := []io.Writer{tmpFile}
	var hasher hash.Hash
	if c.Verify {
		hasher, err = hashutil.GetHasher(c.hashAlgo())
		if err != nil {
			return 0, err
		}
		writers = append(writers, hasher)
	}
	if c.Progress {
		bar := newProgressBar(info.Size(), info.Name())
		defer func() { errutil.LogMsg(bar.Finish(), "Failed to finish progress bar") }()
		writers = append(writers, bar)
	}

	written, err := io.Copy(io.MultiWriter(writers...), in)
	if err != nil {
		return 0, fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err := tmpFile.Chmod(info.Mode().Perm()); err != nil {
		return 0, fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return 0, fmt.Errorf("failed to close temp file: %w", err)
	}

	finalPath := filepath.Join(dstDir, info.Name())
	if err := os.Rename(tmpFile.Name(), finalPath); err != nil {
		return 0, fmt.Errorf("failed to rename to final path: %w", err)
	}

	if c.Verify {
		want := hashutil.Sum(hasher)
		got, err := hashutil.File(c.hashAlgo(), finalPath)
		if err != nil {
			return 0, err
		}
		if got != want {
			errutil.LogMsg(os.Remove(finalPath), "Failed to remove corrupt copy", "path", finalPath)
			return 0, fmt.Errorf("%w: expected %s, got %s", ErrVerifyMismatch, want, got)
		}
	}

	return written, nil
}
