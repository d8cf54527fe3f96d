package app

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lucasew/backupclean/internal/eviction"
	"github.com/lucasew/backupclean/internal/eviction/policy/maxsize"
	"github.com/lucasew/backupclean/internal/history"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createSparse creates a file of the given logical size without writing its blocks.
func createSparse(t *testing.T, dir, name string, size int64, modTime time.Time) {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, f.Truncate(size))
	require.NoError(t, f.Close())
	require.NoError(t, os.Chtimes(path, modTime, modTime))
}

func TestApplyArgs(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantGB  int64
		wantErr error
	}{
		{name: "defaults", args: []string{"/src", "/dst"}, wantGB: DefaultSizeLimitGB},
		{name: "explicit limit", args: []string{"/src", "/dst", "16"}, wantGB: 16},
		{name: "zero limit", args: []string{"/src", "/dst", "0"}, wantGB: 0},
		{name: "missing destination", args: []string{"/src"}, wantErr: ErrMissingArgs},
		{name: "no args", args: nil, wantErr: ErrMissingArgs},
		{name: "not a number", args: []string{"/src", "/dst", "lots"}, wantErr: ErrInvalidSizeLimit},
		{name: "negative", args: []string{"/src", "/dst", "-1"}, wantErr: ErrInvalidSizeLimit},
		{name: "largest representable", args: []string{"/src", "/dst", "8589934591"}, wantGB: maxsize.MaxGigabytes},
		{name: "budget overflows", args: []string{"/src", "/dst", "8589934592"}, wantErr: ErrInvalidSizeLimit},
		{name: "budget wraps", args: []string{"/src", "/dst", "8589934593"}, wantErr: ErrInvalidSizeLimit},
		{name: "beyond int64", args: []string{"/src", "/dst", "9223372036854775808"}, wantErr: ErrInvalidSizeLimit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			err := cfg.ApplyArgs(tt.args)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "/src", cfg.Source)
			assert.Equal(t, "/dst", cfg.Destination)
			assert.Equal(t, tt.wantGB, cfg.SizeLimitGB)
		})
	}
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Source, cfg.Destination = "/src", "/dst"
	require.NoError(t, cfg.Validate())

	bad := cfg
	bad.DeleteAttempts = 0
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.Verify = true
	bad.HashAlgo = "md5"
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.MinFreeSpace = -1
	assert.Error(t, bad.Validate())
}

func TestRun_BackupThenCleanup(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	now := time.Now()

	require.NoError(t, os.WriteFile(filepath.Join(src, "today.sql"), []byte("fresh dump"), 0644))
	createSparse(t, dst, "old.sql", maxsize.GiB, now.Add(-72*time.Hour))
	createSparse(t, dst, "recent.sql", maxsize.GiB/2, now.Add(-24*time.Hour))

	cfg := DefaultConfig()
	cfg.Source, cfg.Destination, cfg.SizeLimitGB = src, dst, 1
	cfg.HistoryDB = filepath.Join(t.TempDir(), "history.db")
	cfg.MetricsFile = filepath.Join(t.TempDir(), "backupclean.prom")

	res, err := Run(t.Context(), cfg)
	require.NoError(t, err)
	require.NotNil(t, res.Backup)
	require.NotNil(t, res.Cleanup)

	assert.Equal(t, []string{"today.sql"}, res.Backup.Copied)
	assert.Equal(t, maxsize.GiB+maxsize.GiB/2+10, res.Cleanup.InitialSize)
	require.Len(t, res.Cleanup.Deleted(), 1)
	assert.Equal(t, "old.sql", res.Cleanup.Deleted()[0].Name)
	assert.Equal(t, maxsize.GiB/2+10, res.Cleanup.FinalSize)
	assert.LessOrEqual(t, res.Cleanup.FinalSize, res.BudgetBytes)

	assert.NoFileExists(t, filepath.Join(dst, "old.sql"))
	assert.FileExists(t, filepath.Join(dst, "recent.sql"))
	assert.FileExists(t, filepath.Join(dst, "today.sql"))

	db, err := history.Open(cfg.HistoryDB)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()
	runs, err := db.ListRuns(t.Context(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, res.RunID, runs[0].ID)
	assert.Equal(t, 1, runs[0].Copied)
	assert.Equal(t, 1, runs[0].Deleted)

	evictions, err := db.Evictions(t.Context(), res.RunID)
	require.NoError(t, err)
	require.Len(t, evictions, 1)
	assert.Equal(t, filepath.Join(dst, "old.sql"), evictions[0].Path)

	prom, err := os.ReadFile(cfg.MetricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(prom), "backupclean_evicted_files")
}

func TestRun_SkipBackupDryRun(t *testing.T) {
	dst := t.TempDir()
	createSparse(t, dst, "a", 100, time.Now().Add(-time.Hour))

	cfg := DefaultConfig()
	cfg.Source, cfg.Destination, cfg.SizeLimitGB = "/nonexistent", dst, 0
	cfg.SkipBackup = true
	cfg.DryRun = true

	res, err := Run(t.Context(), cfg)
	require.NoError(t, err)
	assert.Nil(t, res.Backup)
	require.Len(t, res.Cleanup.Deleted(), 1)
	assert.FileExists(t, filepath.Join(dst, "a"))
}

func TestRun_ComponentFailuresAreJoined(t *testing.T) {
	base := t.TempDir()
	cfg := DefaultConfig()
	cfg.Source = filepath.Join(base, "missing-src")
	cfg.Destination = filepath.Join(base, "no", "parent")

	res, err := Run(t.Context(), cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.True(t, errors.Is(err, eviction.ErrNotDirectory))
	assert.NotNil(t, res.Cleanup)
	assert.Empty(t, res.Cleanup.Visited)
}

func TestRun_LimitBeyondInt64BudgetKeepsFiles(t *testing.T) {
	dst := t.TempDir()
	createSparse(t, dst, "keep.bin", 8, time.Now().Add(-time.Hour))

	cfg := DefaultConfig()
	cfg.Source, cfg.Destination = "/nonexistent", dst
	cfg.SizeLimitGB = maxsize.MaxGigabytes + 2
	cfg.SkipBackup = true

	res, err := Run(t.Context(), cfg)
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), res.BudgetBytes)
	assert.Empty(t, res.Cleanup.Deleted())
	assert.FileExists(t, filepath.Join(dst, "keep.bin"))
}

func TestRun_InterruptedRunIsJournaled(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	createSparse(t, dst, "old.sql", 10, time.Now().Add(-time.Hour))

	cfg := DefaultConfig()
	cfg.Source, cfg.Destination, cfg.SizeLimitGB = src, dst, 0
	cfg.HistoryDB = filepath.Join(t.TempDir(), "history.db")

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	res, err := Run(ctx, cfg)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, res.Cleanup)
	assert.FileExists(t, filepath.Join(dst, "old.sql"))

	db, err := history.Open(cfg.HistoryDB)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()
	runs, err := db.ListRuns(t.Context(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, res.RunID, runs[0].ID)
}
