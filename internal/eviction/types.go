package eviction

import (
	"context"
	"errors"
	"io/fs"
	"time"
)

// ErrNotDirectory is returned when the managed folder is missing or is not a directory.
var ErrNotDirectory = errors.New("folder does not exist or is not a directory")

// FileEntry describes one direct child of the managed folder.
type FileEntry struct {
	Path    string
	Name    string
	Size    int64
	ModTime time.Time
	Mode    fs.FileMode
}

// IsRegular reports whether the entry is a plain file and thus an eviction candidate.
func (e FileEntry) IsRegular() bool {
	return e.Mode.IsRegular()
}

// State is the lifecycle of an eviction candidate within one pass.
type State int

const (
	StatePending State = iota
	StateDeleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateDeleted:
		return "deleted"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Candidate is a file considered for eviction.
// Size is the value read right before deletion, not the listing size.
type Candidate struct {
	FileEntry
	State    State
	Attempts int
	Err      error
}

// Store is the folder the manager evicts from.
type Store interface {
	// Root returns the folder path, used for logging.
	Root() string

	// Check returns ErrNotDirectory if the folder is missing or not a directory.
	Check() error

	// List returns the direct children of the folder, directories included.
	List() ([]FileEntry, error)

	// TotalSize returns the recursive size of the folder.
	TotalSize(ctx context.Context) (int64, error)

	// Size reads the current size of a file.
	Size(path string) (int64, error)

	// Delete removes a file. Removing a file that is already gone is not an error.
	Delete(path string) error
}

// Report summarises one eviction pass.
type Report struct {
	Root        string
	InitialSize int64
	FinalSize   int64
	Candidates  int
	// Visited holds every candidate that left the pending state, oldest first.
	Visited  []Candidate
	DryRun   bool
	Duration time.Duration
}

func (r *Report) filter(state State) []Candidate {
	var out []Candidate
	for _, c := range r.Visited {
		if c.State == state {
			out = append(out, c)
		}
	}
	return out
}

// Deleted returns the candidates that were removed.
func (r *Report) Deleted() []Candidate { return r.filter(StateDeleted) }

// Failed returns the candidates excluded after a failed size read or delete.
func (r *Report) Failed() []Candidate { return r.filter(StateFailed) }

// DeletedBytes is the sum of the sizes of the deleted candidates.
func (r *Report) DeletedBytes() int64 {
	var n int64
	for _, c := range r.Deleted() {
		n += c.Size
	}
	return n
}
