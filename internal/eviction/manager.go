package eviction

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/lucasew/backupclean/internal/errutil"
	"github.com/lucasew/backupclean/internal/eviction/policy"
)

// Manager evicts the oldest files of a folder until its capacity policies are satisfied.
//
// A pass lists the direct children once, computes the recursive folder size
// once and then visits the files oldest first, each at most once. The running
// size is decremented by the size of every file it deletes instead of walking
// the folder again.
//
// The size covers the whole tree but only direct children are deleted, so a
// folder whose bulk lives in subdirectories can stay above budget after every
// candidate is gone. The pass then stops and logs the remaining excess.
type Manager struct {
	store          Store
	policies       []policy.Policy
	deleteAttempts int
	dryRun         bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithDeleteAttempts sets how many times a delete is tried before the file
// is excluded from the pass (default 1).
func WithDeleteAttempts(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.deleteAttempts = n
		}
	}
}

// WithDryRun makes the manager report what it would delete without deleting.
func WithDryRun(dryRun bool) Option {
	return func(m *Manager) {
		m.dryRun = dryRun
	}
}

// NewManager creates a new eviction Manager.
func NewManager(store Store, policies []policy.Policy, opts ...Option) *Manager {
	m := &Manager{
		store:          store,
		policies:       policies,
		deleteAttempts: 1,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run performs one eviction pass.
//
// A missing folder returns ErrNotDirectory and an empty folder returns an
// empty report; neither deletes anything. Per-file failures are logged and
// recorded in the report, they never abort the pass.
func (m *Manager) Run(ctx context.Context) (*Report, error) {
	start := time.Now()
	root := m.store.Root()
	report := &Report{Root: root, DryRun: m.dryRun}

	if err := m.store.Check(); err != nil {
		slog.Warn("Folder does not exist or is not a directory", "path", root)
		return report, err
	}

	entries, err := m.store.List()
	if err != nil {
		return report, fmt.Errorf("failed to list %s: %w", root, err)
	}
	if len(entries) == 0 {
		slog.Info("Folder is empty", "path", root)
		return report, nil
	}

	total, err := m.store.TotalSize(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to compute size of %s: %w", root, err)
	}
	report.InitialSize = total
	slog.Info("Folder size", "path", root, "size", total, "human", humanize.IBytes(uint64(total)))

	queue := newCandidateQueue(entries)
	report.Candidates = queue.Len()

	for {
		toFree := m.bytesToFree(total)
		if toFree <= 0 {
			break
		}
		if err := ctx.Err(); err != nil {
			report.FinalSize = total
			report.Duration = time.Since(start)
			return report, err
		}

		c, ok := queue.next()
		if !ok {
			slog.Warn("No eviction candidates left above budget",
				"path", root, "size", total, "excess", toFree,
				"excess_human", humanize.IBytes(uint64(toFree)))
			break
		}

		freed := m.evict(c)
		if m.dryRun {
			m.simulate(freed)
		}
		total -= freed
		if total < 0 {
			total = 0
		}
		report.Visited = append(report.Visited, *c)
	}

	report.FinalSize = total
	report.Duration = time.Since(start)
	slog.Info("Cleanup completed",
		"path", root,
		"deleted", len(report.Deleted()),
		"failed", len(report.Failed()),
		"freed", humanize.IBytes(uint64(report.DeletedBytes())),
		"size", total,
		"dry_run", m.dryRun,
	)
	return report, nil
}

// evict removes one candidate and returns the number of bytes freed.
func (m *Manager) evict(c *Candidate) int64 {
	size, err := m.store.Size(c.Path)
	if err != nil {
		errutil.ReportError(err, "Failed to get file size", "path", c.Path)
		c.State = StateFailed
		c.Err = err
		return 0
	}
	c.Size = size
	slog.Debug("File size", "path", c.Path, "size", size)

	if m.dryRun {
		c.State = StateDeleted
		slog.Info("Would delete file", "name", c.Name, "size", size, "mod_time", c.ModTime)
		return size
	}

	for c.Attempts < m.deleteAttempts {
		c.Attempts++
		err = m.store.Delete(c.Path)
		if err == nil {
			c.State = StateDeleted
			slog.Info("Deleted file", "name", c.Name, "size", size, "mod_time", c.ModTime)
			return size
		}
		errutil.LogMsg(err, "Delete attempt failed", "path", c.Path, "attempt", c.Attempts)
	}

	errutil.ReportError(err, "Failed to delete file", "name", c.Name, "attempts", c.Attempts)
	c.State = StateFailed
	c.Err = err
	return 0
}

// simulate tells policies that measure the disk about a would-be deletion,
// so a dry run stops where a real run would.
func (m *Manager) simulate(freed int64) {
	if freed == 0 {
		return
	}
	for _, p := range m.policies {
		if s, ok := p.(policy.Simulator); ok {
			s.Simulate(freed)
		}
	}
}

// bytesToFree returns the largest amount any policy asks to free.
func (m *Manager) bytesToFree(current int64) int64 {
	var maxToFree int64
	for _, p := range m.policies {
		toFree, err := p.BytesToFree(current)
		if err != nil {
			errutil.ReportError(err, "Failed to check capacity policy")
			continue
		}
		if toFree > maxToFree {
			maxToFree = toFree
		}
	}
	return maxToFree
}
