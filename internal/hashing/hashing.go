// Package hashing computes content fingerprints for comic archives and pages.
package hashing

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Supported algorithm names.
const (
	MD5    = "md5"
	XXHash = "xxhash"
)

// Hasher turns bytes into a lowercase hex fingerprint.
type Hasher interface {
	Algorithm() string
	Hash(data []byte) string
	HashReader(r io.Reader) (string, error)
}

// New returns the Hasher for algorithm.
func New(algorithm string) (Hasher, error) {
	switch strings.ToLower(strings.TrimSpace(algorithm)) {
	case MD5, "":
		return md5Hasher{}, nil
	case XXHash:
		return xxHasher{}, nil
	default:
		return nil, fmt.Errorf("unsupported hash algorithm %q", algorithm)
	}
}

// HashFile streams the file at path through h.
func HashFile(h Hasher, path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()
	counter := &countingReader{r: f}
	sum, err := h.HashReader(counter)
	if err != nil {
		return "", 0, fmt.Errorf("hash %s: %w", path, err)
	}
	return sum, counter.n, nil
}

type md5Hasher struct{}

func (md5Hasher) Algorithm() string { return MD5 }

func (md5Hasher) Hash(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

func (md5Hasher) HashReader(r io.Reader) (string, error) {
	return digest(md5.New(), r)
}

type xxHasher struct{}

func (xxHasher) Algorithm() string { return XXHash }

func (xxHasher) Hash(data []byte) string {
	return format64(xxhash.Sum64(data))
}

func (xxHasher) HashReader(r io.Reader) (string, error) {
	d := xxhash.New()
	if _, err := io.Copy(d, r); err != nil {
		return "", err
	}
	return format64(d.Sum64()), nil
}

func digest(h hash.Hash, r io.Reader) (string, error) {
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func format64(v uint64) string {
	s := strconv.FormatUint(v, 16)
	return strings.Repeat("0", 16-len(s)) + s
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
