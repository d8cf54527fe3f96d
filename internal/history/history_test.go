package history

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) (*DB, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state", "history.db")
	db, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, path
}

func TestRecordAndList(t *testing.T) {
	db, _ := openTestDB(t)
	ctx := t.Context()
	base := time.Unix(1_700_000_000, 0)

	first := Run{
		ID:           uuid.NewString(),
		StartedAt:    base,
		FinishedAt:   base.Add(time.Second),
		Source:       "/src",
		Destination:  "/dst",
		BudgetBytes:  60,
		Copied:       2,
		InitialSize:  100,
		FinalSize:    40,
		Deleted:      3,
		DeletedBytes: 60,
		Evictions: []Eviction{
			{Path: "/dst/file1", Size: 10, ModTime: base.Add(-3 * time.Hour), Outcome: OutcomeDeleted},
			{Path: "/dst/file2", Size: 20, ModTime: base.Add(-2 * time.Hour), Outcome: OutcomeFailed, Error: "permission denied"},
			{Path: "/dst/file3", Size: 30, ModTime: base.Add(-1 * time.Hour), Outcome: OutcomeDeleted},
		},
	}
	second := Run{
		ID:          uuid.NewString(),
		StartedAt:   base.Add(time.Hour),
		FinishedAt:  base.Add(time.Hour + time.Second),
		Source:      "/src",
		Destination: "/dst",
		BudgetBytes: 60,
		DryRun:      true,
	}

	require.NoError(t, db.RecordRun(ctx, first))
	require.NoError(t, db.RecordRun(ctx, second))

	runs, err := db.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, second.ID, runs[0].ID, "newest run first")
	assert.True(t, runs[0].DryRun)
	assert.Equal(t, first.ID, runs[1].ID)
	assert.Equal(t, int64(40), runs[1].FinalSize)
	assert.Equal(t, 3, runs[1].Deleted)
	assert.True(t, runs[1].StartedAt.Equal(base))

	limited, err := db.ListRuns(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	evictions, err := db.Evictions(ctx, first.ID)
	require.NoError(t, err)
	require.Len(t, evictions, 3)
	assert.Equal(t, "/dst/file1", evictions[0].Path)
	assert.Equal(t, OutcomeFailed, evictions[1].Outcome)
	assert.Equal(t, "permission denied", evictions[1].Error)
	assert.True(t, evictions[2].ModTime.Equal(base.Add(-time.Hour)))

	none, err := db.Evictions(ctx, second.ID)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestRecordRun_DuplicateID(t *testing.T) {
	db, _ := openTestDB(t)
	run := Run{ID: "fixed", StartedAt: time.Now(), FinishedAt: time.Now()}
	require.NoError(t, db.RecordRun(t.Context(), run))
	assert.Error(t, db.RecordRun(t.Context(), run))
}

func TestOpen_Reopen(t *testing.T) {
	db, path := openTestDB(t)
	require.NoError(t, db.RecordRun(t.Context(), Run{ID: "kept", StartedAt: time.Now(), FinishedAt: time.Now()}))
	require.NoError(t, db.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	runs, err := reopened.ListRuns(t.Context(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "kept", runs[0].ID)
}
