package eviction

import (
	"container/heap"
)

// candidateQueue is a min-heap of files keyed by modification time.
// Ties are broken by name so a pass over the same listing is deterministic.
type candidateQueue []*Candidate

func (q candidateQueue) Len() int { return len(q) }

func (q candidateQueue) Less(i, j int) bool {
	a, b := q[i], q[j]
	if !a.ModTime.Equal(b.ModTime) {
		return a.ModTime.Before(b.ModTime)
	}
	return a.Name < b.Name
}

func (q candidateQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *candidateQueue) Push(x any) {
	*q = append(*q, x.(*Candidate))
}

func (q *candidateQueue) Pop() any {
	old := *q
	n := len(old)
	c := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return c
}

// newCandidateQueue builds the queue from a folder listing.
// Only regular files are candidates; directories and symlinks are skipped.
func newCandidateQueue(entries []FileEntry) *candidateQueue {
	q := make(candidateQueue, 0, len(entries))
	for _, e := range entries {
		if !e.IsRegular() {
			continue
		}
		q = append(q, &Candidate{FileEntry: e})
	}
	heap.Init(&q)
	return &q
}

// next removes and returns the oldest pending candidate.
func (q *candidateQueue) next() (*Candidate, bool) {
	if q.Len() == 0 {
		return nil, false
	}
	return heap.Pop(q).(*Candidate), true
}
