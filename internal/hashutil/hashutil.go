package hashutil

import (
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
)

// ErrUnsupported is returned for algorithms missing from the registry.
var ErrUnsupported = errors.New("unsupported hash algorithm")

type HashFactory func() hash.Hash

var registry = map[string]HashFactory{
	"sha1":   sha1.New,
	"sha256": sha256.New,
	"sha512": sha512.New,
}

func GetHasher(name string) (hash.Hash, error) {
	factory, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, name)
	}
	return factory(), nil
}

func IsSupported(name string) bool {
	_, ok := registry[name]
	return ok
}

// Sum returns the hex encoded digest of everything h has consumed.
func Sum(h hash.Hash) string {
	return hex.EncodeToString(h.Sum(nil))
}

// File hashes the file at path with the named algorithm.
func File(algo, path string) (string, error) {
	h, err := GetHasher(algo)
	if err != nil {
		return "", err
	}
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return Sum(h), nil
}
