package rsync

import (
	"hash"
	"io"

	"github.com/pkg/errors"
	"github.com/spaolacci/murmur3"
)

// NewWholeFileHasher creates a hash.Hash using the same algorithm the engine
// uses for its block-level strong hashes (murmur3/128), for computing a
// whole-file digest that a receiver can use to verify a reconstruction
// succeeded, independent of which blocks or literals it was built from.
func NewWholeFileHasher() hash.Hash {
	return murmur3.New128()
}

// WholeFileHash hashes the entirety of r using the whole-file hash
// algorithm.
func WholeFileHash(r io.Reader) ([]byte, error) {
	hasher := NewWholeFileHasher()
	if _, err := io.Copy(hasher, r); err != nil {
		return nil, errors.Wrap(err, "unable to read data")
	}
	return hasher.Sum(nil), nil
}
