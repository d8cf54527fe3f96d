package app

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/lucasew/backupclean/internal/copier"
	"github.com/lucasew/backupclean/internal/eviction/policy/maxsize"
	"github.com/lucasew/backupclean/internal/hashutil"
)

// DefaultSizeLimitGB is the destination budget used when none is given.
const DefaultSizeLimitGB int64 = 128

var (
	// ErrMissingArgs is returned when the source or destination folder is missing.
	ErrMissingArgs = errors.New("no parameters specified")

	// ErrInvalidSizeLimit is returned for a size limit that is not a non-negative integer.
	ErrInvalidSizeLimit = errors.New("invalid size limit")
)

// Config holds everything a run needs.
type Config struct {
	Source         string
	Destination    string
	SizeLimitGB    int64
	Lookback       time.Duration
	FollowSymlinks bool
	DeleteAttempts int
	MinFreeSpace   int64
	Verify         bool
	HashAlgo       string
	Progress       bool
	DryRun         bool
	SkipBackup     bool
	HistoryDB      string
	MetricsFile    string
}

// DefaultConfig returns a Config reproducing the plain
// "<sourceDir> <destDir> [sizeLimitGB]" invocation.
func DefaultConfig() Config {
	return Config{
		SizeLimitGB:    DefaultSizeLimitGB,
		Lookback:       copier.DefaultLookback,
		DeleteAttempts: 1,
		HashAlgo:       "sha256",
	}
}

// ApplyArgs fills the folders and the optional size limit from positional arguments.
func (c *Config) ApplyArgs(args []string) error {
	if len(args) < 2 {
		return ErrMissingArgs
	}
	c.Source = args[0]
	c.Destination = args[1]
	if len(args) >= 3 && args[2] != "" {
		gb, err := strconv.ParseInt(args[2], 10, 64)
		if err != nil {
			return fmt.Errorf("%w: %q is not an integer", ErrInvalidSizeLimit, args[2])
		}
		c.SizeLimitGB = gb
	}
	return c.Validate()
}

// Validate checks the values that would otherwise fail late in a run.
func (c *Config) Validate() error {
	if c.Source == "" || c.Destination == "" {
		return ErrMissingArgs
	}
	if c.SizeLimitGB < 0 {
		return fmt.Errorf("%w: %d is negative", ErrInvalidSizeLimit, c.SizeLimitGB)
	}
	if c.SizeLimitGB > maxsize.MaxGigabytes {
		return fmt.Errorf("%w: %d exceeds %d", ErrInvalidSizeLimit, c.SizeLimitGB, maxsize.MaxGigabytes)
	}
	if c.DeleteAttempts < 1 {
		return fmt.Errorf("delete attempts must be at least 1, got %d", c.DeleteAttempts)
	}
	if c.MinFreeSpace < 0 {
		return fmt.Errorf("min free space must not be negative, got %d", c.MinFreeSpace)
	}
	if c.Verify && !hashutil.IsSupported(c.HashAlgo) {
		return fmt.Errorf("%w: %s", hashutil.ErrUnsupported, c.HashAlgo)
	}
	return nil
}
