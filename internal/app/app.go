// Package app wires the copier, the eviction manager and the optional run
// outputs into a single backup and cleanup pass.
package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lucasew/backupclean/internal/copier"
	"github.com/lucasew/backupclean/internal/errutil"
	"github.com/lucasew/backupclean/internal/eviction"
	"github.com/lucasew/backupclean/internal/eviction/policy"
	"github.com/lucasew/backupclean/internal/eviction/policy/maxsize"
	"github.com/lucasew/backupclean/internal/eviction/policy/minfree"
	"github.com/lucasew/backupclean/internal/history"
	"github.com/lucasew/backupclean/internal/metrics"
	"github.com/lucasew/backupclean/internal/repository"
)

// Result is the outcome of one pass. Backup is nil when the backup step
// was skipped.
type Result struct {
	RunID       string
	StartedAt   time.Time
	FinishedAt  time.Time
	BudgetBytes int64
	Backup      *copier.Report
	Cleanup     *eviction.Report
}

// NewManager builds the eviction manager for cfg's destination.
func NewManager(cfg Config) *eviction.Manager {
	return newManager(cfg, maxsize.FromGigabytes(cfg.SizeLimitGB))
}

func newManager(cfg Config, budget *maxsize.Policy) *eviction.Manager {
	policies := []policy.Policy{budget}
	if cfg.MinFreeSpace > 0 {
		slog.Info("Adding MinFreeSpace policy", "min_free", cfg.MinFreeSpace)
		policies = append(policies, &minfree.Policy{
			Path:         cfg.Destination,
			MinFreeBytes: cfg.MinFreeSpace,
		})
	}

	store := repository.NewLocalRepository(cfg.Destination, cfg.FollowSymlinks)
	return eviction.NewManager(store, policies,
		eviction.WithDeleteAttempts(cfg.DeleteAttempts),
		eviction.WithDryRun(cfg.DryRun),
	)
}

// Run copies recent files into the destination and then trims the
// destination to its budget.
//
// Component failures are logged and returned joined; they never stop the
// later steps. A cancelled context skips cleanup but the run is still
// recorded. The result is always non-nil.
func Run(ctx context.Context, cfg Config) (*Result, error) {
	budget := maxsize.FromGigabytes(cfg.SizeLimitGB)
	res := &Result{
		RunID:       uuid.NewString(),
		StartedAt:   time.Now(),
		BudgetBytes: budget.MaxBytes,
	}
	slog.Info("Starting run",
		"run_id", res.RunID,
		"source", cfg.Source,
		"destination", cfg.Destination,
		"size_limit_gb", cfg.SizeLimitGB,
	)

	var errs []error

	if !cfg.SkipBackup {
		c := &copier.Copier{
			Lookback: cfg.Lookback,
			Verify:   cfg.Verify,
			HashAlgo: cfg.HashAlgo,
			Progress: cfg.Progress,
		}
		report, err := c.Copy(ctx, cfg.Source, cfg.Destination)
		res.Backup = report
		if errutil.ReportError(err, "Backup failed", "source", cfg.Source) {
			errs = append(errs, err)
		}
	}

	if err := ctx.Err(); err != nil {
		slog.Warn("Run interrupted before cleanup", "run_id", res.RunID)
		if !errors.Is(errors.Join(errs...), err) {
			errs = append(errs, err)
		}
	} else {
		report, err := newManager(cfg, budget).Run(ctx)
		res.Cleanup = report
		if errutil.ReportError(err, "Cleanup failed", "destination", cfg.Destination) {
			errs = append(errs, err)
		}
	}

	res.FinishedAt = time.Now()

	// An interrupted run is still journaled.
	if cfg.HistoryDB != "" {
		errutil.LogMsg(recordHistory(context.WithoutCancel(ctx), cfg, res), "Failed to record run history", "path", cfg.HistoryDB)
	}
	if cfg.MetricsFile != "" {
		errutil.LogMsg(metrics.WriteTextfile(cfg.MetricsFile, res.snapshot(cfg)), "Failed to write metrics", "path", cfg.MetricsFile)
	}

	return res, errors.Join(errs...)
}

func recordHistory(ctx context.Context, cfg Config, res *Result) error {
	db, err := history.Open(cfg.HistoryDB)
	if err != nil {
		return err
	}
	defer func() { errutil.LogMsg(db.Close(), "Failed to close history database") }()
	return db.RecordRun(ctx, res.historyRun(cfg))
}

func (r *Result) historyRun(cfg Config) history.Run {
	run := history.Run{
		ID:          r.RunID,
		StartedAt:   r.StartedAt,
		FinishedAt:  r.FinishedAt,
		Source:      cfg.Source,
		Destination: cfg.Destination,
		BudgetBytes: r.BudgetBytes,
		DryRun:      cfg.DryRun,
	}
	if r.Backup != nil {
		run.Copied = len(r.Backup.Copied)
		run.CopyFailures = len(r.Backup.Failed)
		run.CopiedBytes = r.Backup.Bytes
	}
	if r.Cleanup != nil {
		run.InitialSize = r.Cleanup.InitialSize
		run.FinalSize = r.Cleanup.FinalSize
		run.Deleted = len(r.Cleanup.Deleted())
		run.DeletedBytes = r.Cleanup.DeletedBytes()
		run.DeleteFailures = len(r.Cleanup.Failed())
		for _, c := range r.Cleanup.Visited {
			e := history.Eviction{
				Path:    c.Path,
				Size:    c.Size,
				ModTime: c.ModTime,
				Outcome: history.OutcomeDeleted,
			}
			if c.State == eviction.StateFailed {
				e.Outcome = history.OutcomeFailed
				if c.Err != nil {
					e.Error = c.Err.Error()
				}
			}
			run.Evictions = append(run.Evictions, e)
		}
	}
	return run
}

func (r *Result) snapshot(cfg Config) metrics.Snapshot {
	run := r.historyRun(cfg)
	return metrics.Snapshot{
		Destination:   cfg.Destination,
		Copied:        run.Copied,
		CopyFailures:  run.CopyFailures,
		InitialSize:   run.InitialSize,
		FinalSize:     run.FinalSize,
		BudgetBytes:   r.BudgetBytes,
		Evicted:       run.Deleted,
		EvictedBytes:  run.DeletedBytes,
		EvictFailures: run.DeleteFailures,
		FinishedAt:    r.FinishedAt,
		RunDuration:   r.FinishedAt.Sub(r.StartedAt),
	}
}
