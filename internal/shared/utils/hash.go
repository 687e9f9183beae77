package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// Hasher computes content hashes for package files.
type Hasher struct{}

// DefaultHasher returns the process-wide hasher.
func DefaultHasher() *Hasher {
	return &Hasher{}
}

// Hash computes the SHA-256 of the input data.
func (h *Hasher) Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashString computes the SHA-256 of a string.
func (h *Hasher) HashString(s string) string {
	return h.Hash([]byte(s))
}

// HashFile streams a file through SHA-256 without loading it into memory.
// Package files routinely exceed a gigabyte.
func (h *Hasher) HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	digest := sha256.New()
	if _, err := io.Copy(digest, f); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return hex.EncodeToString(digest.Sum(nil)), nil
}

// ShortHash returns an 8-character prefix for display.
func ShortHash(full string) string {
	if len(full) < 8 {
		return full
	}
	return full[:8]
}
