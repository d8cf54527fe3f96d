// Package dirsize computes the total size of the regular files below a
// directory.
package dirsize

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

// ErrNotDirectory is returned when the root exists but is not a directory.
var ErrNotDirectory = errors.New("not a directory")

// Calculator sums file sizes recursively.
//
// Entries that cannot be visited (permission errors, files removed while
// the walk is running) contribute zero instead of failing the walk.
type Calculator struct {
	// FollowSymlinks makes the walk descend into symlinked directories and
	// count symlinked files by their target size. Each directory is visited
	// at most once, keyed by its resolved path, so link cycles terminate.
	// When false, symlinks are neither followed nor counted.
	FollowSymlinks bool
}

// Calculate returns the sum in bytes of every regular file reachable from root.
func (c Calculator) Calculate(ctx context.Context, root string) (int64, error) {
	info, err := os.Stat(root)
	if err != nil {
		return 0, fmt.Errorf("failed to stat %s: %w", root, err)
	}
	if !info.IsDir() {
		return 0, fmt.Errorf("%w: %s", ErrNotDirectory, root)
	}

	if c.FollowSymlinks {
		w := &followWalker{visited: make(map[string]struct{})}
		return w.walk(ctx, root)
	}

	// WalkDir does not follow a symlinked root, so start from its target.
	start, err := filepath.EvalSymlinks(root)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve %s: %w", root, err)
	}

	var total int64
	err = filepath.WalkDir(start, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if path == start && d == nil {
				return err
			}
			slog.Debug("Skipping unreadable entry", "path", path, "error", err)
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			slog.Debug("Skipping vanished file", "path", path, "error", err)
			return nil
		}
		total += info.Size()
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

type followWalker struct {
	visited map[string]struct{}
}

func (w *followWalker) walk(ctx context.Context, dir string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	real, err := filepath.EvalSymlinks(dir)
	if err != nil {
		slog.Debug("Skipping unresolvable directory", "path", dir, "error", err)
		return 0, nil
	}
	if _, seen := w.visited[real]; seen {
		return 0, nil
	}
	w.visited[real] = struct{}{}

	entries, err := os.ReadDir(dir)
	if err != nil {
		slog.Debug("Skipping unreadable directory", "path", dir, "error", err)
		return 0, nil
	}

	var total int64
	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		info, err := os.Stat(path)
		if err != nil {
			slog.Debug("Skipping unreadable entry", "path", path, "error", err)
			continue
		}
		switch {
		case info.IsDir():
			n, err := w.walk(ctx, path)
			if err != nil {
				return 0, err
			}
			total += n
		case info.Mode().IsRegular():
			total += info.Size()
		}
	}
	return total, nil
}
