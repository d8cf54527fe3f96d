package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/lucasew/backupclean/internal/dirsize"
	"github.com/lucasew/backupclean/internal/eviction"
)

// LocalRepository is a folder on the local filesystem managed by the eviction manager.
//
// Listing only looks at the direct children of Dir while TotalSize walks the
// whole tree below it.
type LocalRepository struct {
	Dir   string
	sizer dirsize.Calculator
}

var _ eviction.Store = (*LocalRepository)(nil)

func NewLocalRepository(dir string, followSymlinks bool) *LocalRepository {
	return &LocalRepository{
		Dir:   dir,
		sizer: dirsize.Calculator{FollowSymlinks: followSymlinks},
	}
}

func (r *LocalRepository) Root() string {
	return r.Dir
}

func (r *LocalRepository) Check() error {
	info, err := os.Stat(r.Dir)
	if err != nil {
		return fmt.Errorf("%w: %w", eviction.ErrNotDirectory, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s", eviction.ErrNotDirectory, r.Dir)
	}
	return nil
}

// List returns the direct children of Dir. Entries that vanish between the
// directory read and their stat are dropped.
func (r *LocalRepository) List() ([]eviction.FileEntry, error) {
	dirEntries, err := os.ReadDir(r.Dir)
	if err != nil {
		return nil, err
	}

	entries := make([]eviction.FileEntry, 0, len(dirEntries))
	for _, de := range dirEntries {
		info, err := de.Info()
		if err != nil {
			continue
		}
		entries = append(entries, eviction.FileEntry{
			Path:    filepath.Join(r.Dir, de.Name()),
			Name:    de.Name(),
			Size:    info.Size(),
			ModTime: info.ModTime(),
			Mode:    info.Mode(),
		})
	}
	return entries, nil
}

func (r *LocalRepository) TotalSize(ctx context.Context) (int64, error) {
	return r.sizer.Calculate(ctx, r.Dir)
}

func (r *LocalRepository) Size(path string) (int64, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func (r *LocalRepository) Delete(path string) error {
	err := os.Remove(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
