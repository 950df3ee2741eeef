package hashing_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"folio/internal/hashing"
)

func TestMD5MatchesKnownDigest(t *testing.T) {
	h, err := hashing.New("MD5")
	require.NoError(t, err)
	assert.Equal(t, "md5", h.Algorithm())
	assert.Equal(t, "900150983cd24fb0d6963f7d28e17f72", h.Hash([]byte("abc")))

	sum, err := h.HashReader(bytes.NewReader([]byte("abc")))
	require.NoError(t, err)
	assert.Equal(t, h.Hash([]byte("abc")), sum)
}

func TestXXHashIsFixedWidthHex(t *testing.T) {
	h, err := hashing.New("xxhash")
	require.NoError(t, err)
	assert.Equal(t, "ef46db3751d8e999", h.Hash(nil))
	sum, err := h.HashReader(bytes.NewReader([]byte("folio")))
	require.NoError(t, err)
	assert.Len(t, sum, 16)
	assert.Equal(t, h.Hash([]byte("folio")), sum)
}

func TestHashFileReportsSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.bin")
	require.NoError(t, os.WriteFile(path, []byte("hello world"), 0o644))
	h, _ := hashing.New("md5")
	sum, size, err := hashing.HashFile(h, path)
	require.NoError(t, err)
	assert.EqualValues(t, 11, size)
	assert.Equal(t, h.Hash([]byte("hello world")), sum)

	_, _, err = hashing.HashFile(h, filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestUnknownAlgorithm(t *testing.T) {
	_, err := hashing.New("sha1")
	assert.Error(t, err)
}
