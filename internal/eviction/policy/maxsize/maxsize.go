// Package maxsize keeps a backup folder under a fixed byte budget.
package maxsize

import "math"

// GiB is the number of bytes in one gigabyte as the size limit counts them.
const GiB int64 = 1024 * 1024 * 1024

// MaxGigabytes is the largest limit whose byte budget fits in an int64.
const MaxGigabytes = math.MaxInt64 / GiB

// Policy asks for eviction while the folder's recursive size exceeds MaxBytes.
// A negative MaxBytes is treated as zero.
type Policy struct {
	MaxBytes int64
}

// FromGigabytes returns a Policy with a budget of gb whole gigabytes.
// Limits above MaxGigabytes saturate at math.MaxInt64 instead of wrapping.
func FromGigabytes(gb int64) *Policy {
	switch {
	case gb <= 0:
		return &Policy{MaxBytes: 0}
	case gb > MaxGigabytes:
		return &Policy{MaxBytes: math.MaxInt64}
	}
	return &Policy{MaxBytes: gb * GiB}
}

func (m *Policy) BytesToFree(currentSize int64) (int64, error) {
	limit := max(m.MaxBytes, 0)
	if currentSize > limit {
		return currentSize - limit, nil
	}
	return 0, nil
}
