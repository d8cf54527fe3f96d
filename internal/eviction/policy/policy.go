// Package policy holds the capacity rules that decide whether an eviction
// pass must keep deleting. They never decide which file goes next.
package policy

// Policy answers how many bytes a pass still has to free.
type Policy interface {
	// BytesToFree returns the number of bytes that should be evicted given
	// the current recursive folder size. Returns 0 once the rule is met.
	BytesToFree(currentSize int64) (int64, error)
}

// Simulator is implemented by policies that measure something a dry run
// leaves unchanged, such as free disk space. During a dry run the manager
// reports each would-be deletion through Simulate so the policy counts
// those bytes as freed.
type Simulator interface {
	Simulate(freed int64)
}
