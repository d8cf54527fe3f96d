//go:build !windows

// Package minfree keeps a minimum amount of free space on the filesystem
// holding the backup folder.
package minfree

import (
	"fmt"
	"log/slog"

	"golang.org/x/sys/unix"
)

// Policy keeps evicting backups while the filesystem holding Path has less
// than MinFreeBytes available to unprivileged users. It reads the disk on
// every check, so deletions by the current pass are picked up directly.
type Policy struct {
	Path         string
	MinFreeBytes int64

	// bytes a dry run pretended to delete
	simulated int64
}

func (m *Policy) BytesToFree(currentSize int64) (int64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(m.Path, &stat); err != nil {
		return 0, fmt.Errorf("failed to check free space of %s: %w", m.Path, err)
	}

	available := int64(stat.Bavail)*int64(stat.Bsize) + m.simulated
	slog.Debug("Free space", "path", m.Path, "available", available, "min_free", m.MinFreeBytes)

	if available < m.MinFreeBytes {
		return m.MinFreeBytes - available, nil
	}
	return 0, nil
}

// Simulate counts freed as available space for the rest of a dry run.
func (m *Policy) Simulate(freed int64) {
	m.simulated += freed
}
