package minfree

import "errors"

// Policy is unavailable on windows; every check fails and the manager
// falls back to the remaining policies.
type Policy struct {
	Path         string
	MinFreeBytes int64
}

func (m *Policy) BytesToFree(currentSize int64) (int64, error) {
	return 0, errors.New("free space checks are not supported on windows")
}

func (m *Policy) Simulate(freed int64) {}
