package utils

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"
)

const (
	ChecksumSHA2 = "sha2"
	ChecksumMD5  = "md5"
)

const checksumBufferSize = 128 * 1024

// NewChecksumHash returns the hash used for a checksum algorithm.
func NewChecksumHash(algo string) (hash.Hash, error) {
	switch algo {
	case ChecksumSHA2:
		return sha256.New(), nil
	case ChecksumMD5:
		return md5.New(), nil
	default:
		return nil, fmt.Errorf("unsupported checksum algorithm %q", algo)
	}
}

// FormatChecksum renders a digest in the canonical "<algo>:<base64>" form.
func FormatChecksum(algo string, digest []byte) string {
	return algo + ":" + base64.StdEncoding.EncodeToString(digest)
}

// ChecksumAlgorithm reports the algorithm of a checksum string. Bare hex
// digests are legacy md5 checksums.
func ChecksumAlgorithm(checksum string) string {
	if algo, _, ok := strings.Cut(checksum, ":"); ok {
		return algo
	}
	return ChecksumMD5
}

// NormalizeChecksum converts a checksum to the canonical "<algo>:<base64>"
// form. Unknown formats are returned unchanged.
func NormalizeChecksum(checksum string) string {
	if checksum == "" || strings.Contains(checksum, ":") {
		return checksum
	}
	digest, err := hex.DecodeString(checksum)
	if err != nil {
		return checksum
	}
	return FormatChecksum(ChecksumMD5, digest)
}

// ChecksumsEqual compares two checksums after normalization. Empty
// checksums never compare equal.
func ChecksumsEqual(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return NormalizeChecksum(a) == NormalizeChecksum(b)
}

// ReaderChecksum consumes r and returns its canonical checksum.
func ReaderChecksum(r io.Reader, algo string) (string, error) {
	h, err := NewChecksumHash(algo)
	if err != nil {
		return "", err
	}
	buf := make([]byte, checksumBufferSize)
	if _, err := io.CopyBuffer(h, r, buf); err != nil {
		return "", err
	}
	return FormatChecksum(algo, h.Sum(nil)), nil
}

// FileChecksum computes the canonical checksum of a local file.
func FileChecksum(path string, algo string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	sum, err := ReaderChecksum(file, algo)
	if err != nil {
		return "", fmt.Errorf("checksum %s: %w", path, err)
	}
	return sum, nil
}
