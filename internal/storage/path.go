package storage

import (
	"path/filepath"

	"github.com/prn-tf/owl-middleware/internal/pkg/crypto"
)

// layout places artifacts under root, fanned out by the leading characters
// of their digest: root/ab/cd/abcd....
type layout struct {
	root   string
	levels int
	width  int
}

func newLayout(root string) layout {
	return layout{root: root, levels: 2, width: 2}
}

// shards returns the fan-out directory names of key, or nil when key is too short.
func (l layout) shards(key string) []string {
	if l.levels <= 0 || len(key) < l.levels*l.width {
		return nil
	}
	out := make([]string, l.levels)
	for i := range out {
		out[i] = key[i*l.width : (i+1)*l.width]
	}
	return out
}

// dir is the directory holding key.
func (l layout) dir(key string) string {
	return filepath.Join(append([]string{l.root}, l.shards(key)...)...)
}

// file is the full path of key.
func (l layout) file(key string) string {
	return filepath.Join(l.dir(key), key)
}

// isValidKey reports whether key is a lowercase hex SHA-256 digest.
func isValidKey(key string) bool {
	return crypto.ValidDigest(key)
}
