// Package crypto computes the SHA-256 digests used as file content hashes
// and artifact keys.
package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"io"
)

// DigestSize is the length of a hex encoded digest.
const DigestSize = sha256.Size * 2

// DigestReader hashes everything read through it.
type DigestReader struct {
	reader io.Reader
	sha256 hash.Hash
	size   int64
}

// NewDigestReader wraps r.
func NewDigestReader(r io.Reader) *DigestReader {
	return &DigestReader{reader: r, sha256: sha256.New()}
}

// Read implements io.Reader.
func (d *DigestReader) Read(p []byte) (int, error) {
	n, err := d.reader.Read(p)
	if n > 0 {
		d.sha256.Write(p[:n])
		d.size += int64(n)
	}
	return n, err
}

// Digest returns the hex digest of the bytes read so far.
func (d *DigestReader) Digest() string {
	return hex.EncodeToString(d.sha256.Sum(nil))
}

// Size returns the number of bytes read so far.
func (d *DigestReader) Size() int64 {
	return d.size
}

// Digest returns the lowercase hex SHA-256 of data.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ValidDigest reports whether s is a lowercase hex SHA-256 digest.
func ValidDigest(s string) bool {
	if len(s) != DigestSize {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
