// Package localfs provides a minimal, transfer-scoped helper for opening
// paths relative to a synchronization root. It plays the same role that the
// rsync package's base-file opener has always played: hand out read handles
// for paths named relative to a root, and make sure they all get closed
// together when a transfer finishes.
package localfs

import (
	"fmt"
	"os"
	"path/filepath"
)

// Opener opens files relative to a fixed root, tracking them so that they
// can all be closed via a single Close call. It is not safe for concurrent
// use by multiple goroutines.
type Opener struct {
	// root is the filesystem path that all opened paths are relative to.
	root string
	// open tracks files opened by OpenFile so that Close can close any that
	// weren't already closed by the caller.
	open []*os.File
}

// NewOpener creates a new Opener rooted at the specified path.
func NewOpener(root string) *Opener {
	return &Opener{root: root}
}

// OpenFile opens the file at the specified path, which must be relative to
// the opener's root. The returned file also satisfies io.ReadSeekCloser,
// which the rsync engine requires for block-by-block reading of the base.
func (o *Opener) OpenFile(path string) (*os.File, error) {
	full := filepath.Join(o.root, path)
	if rel, err := filepath.Rel(o.root, full); err != nil || rel == ".." || filepath.IsAbs(rel) ||
		(len(rel) >= 3 && rel[:3] == ".."+string(filepath.Separator)) {
		return nil, fmt.Errorf("path %q escapes synchronization root", path)
	}
	file, err := os.Open(full)
	if err != nil {
		return nil, err
	}
	o.open = append(o.open, file)
	return file, nil
}

// Close closes any files opened by the Opener that haven't already been
// closed by the caller. It always returns nil, mirroring the best-effort
// cleanup semantics the rsync package expects from its file opener.
func (o *Opener) Close() error {
	for _, file := range o.open {
		file.Close()
	}
	o.open = nil
	return nil
}
