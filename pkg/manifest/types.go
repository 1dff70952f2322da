// Package manifest implements the tree walker and change filter: it
// enumerates a source tree into an ordered, flat Manifest and classifies
// each entry against a destination tree as skip, full-send, or delta.
package manifest

// Kind classifies a FileEntry.
type Kind uint8

// Entry kinds. Hardlinks and sparse files are treated as regular files, per
// this spec's resolution of that open question.
const (
	KindRegular Kind = iota
	KindDirectory
	KindSymlink
)

// String returns a human-readable name for a Kind.
func (k Kind) String() string {
	switch k {
	case KindRegular:
		return "regular"
	case KindDirectory:
		return "directory"
	case KindSymlink:
		return "symlink"
	default:
		return "unknown"
	}
}

// FileEntry is a single logical filesystem object in a sync set.
type FileEntry struct {
	// Path is the entry's path relative to the synchronization root,
	// forward-slash separated regardless of host platform.
	Path string
	// Kind classifies the entry.
	Kind Kind
	// Size is the entry's size in bytes. Meaningless for directories and
	// symlinks.
	Size uint64
	// ModTimeNanos is the entry's modification time, in nanoseconds since
	// the Unix epoch.
	ModTimeNanos int64
	// Mode holds the entry's permission bits (the low 12 bits are
	// meaningful; higher bits are ignored).
	Mode uint32
	// SymlinkTarget is the link target, populated only when Kind is
	// KindSymlink.
	SymlinkTarget string
}

// Manifest is an ordered sequence of FileEntry values produced by a tree
// walk: lexicographic on path, with every non-empty directory appearing
// before any of its descendants. Every path is unique.
type Manifest struct {
	Entries []FileEntry
}
