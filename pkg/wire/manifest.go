package wire

import "fmt"

// EntryKind classifies a ManifestEntry.
type EntryKind uint8

// Entry kinds, matching the tree walker's classification.
const (
	KindRegular EntryKind = iota
	KindDirectory
	KindSymlink
)

// ManifestEntry is the decoded form of a MANIFEST_ENTRY frame's payload: a
// single FileEntry from the sender's tree walk.
type ManifestEntry struct {
	Path          string
	Kind          EntryKind
	Size          uint64
	ModTimeNanos  int64
	Mode          uint32
	SymlinkTarget string
	// SourceHash is the sender's whole-file strong hash, populated only when
	// checksum mode is negotiated (empty otherwise, since hashing every
	// source file is wasted work when size+mtime comparison will do).
	SourceHash []byte
}

// Encode serializes a ManifestEntry for transmission.
func (m ManifestEntry) Encode() []byte {
	e := &encoder{}
	e.putString(m.Path)
	e.putUint8(uint8(m.Kind))
	e.putUint64(m.Size)
	e.putInt64(m.ModTimeNanos)
	e.putUint32(m.Mode)
	if m.Kind == KindSymlink {
		e.putString(m.SymlinkTarget)
	}
	e.putBytes(m.SourceHash)
	return e.buf
}

// DecodeManifestEntry parses a MANIFEST_ENTRY frame's payload.
func DecodeManifestEntry(payload []byte) (ManifestEntry, error) {
	d := newDecoder(payload)
	var m ManifestEntry
	var err error

	if m.Path, err = d.getString(); err != nil {
		return m, fmt.Errorf("unable to decode path: %w", err)
	}
	kind, err := d.getUint8()
	if err != nil {
		return m, fmt.Errorf("unable to decode kind: %w", err)
	}
	m.Kind = EntryKind(kind)
	if m.Size, err = d.getUint64(); err != nil {
		return m, fmt.Errorf("unable to decode size: %w", err)
	}
	if m.ModTimeNanos, err = d.getInt64(); err != nil {
		return m, fmt.Errorf("unable to decode modification time: %w", err)
	}
	if m.Mode, err = d.getUint32(); err != nil {
		return m, fmt.Errorf("unable to decode mode: %w", err)
	}
	if m.Kind == KindSymlink {
		if m.SymlinkTarget, err = d.getString(); err != nil {
			return m, fmt.Errorf("unable to decode symlink target: %w", err)
		}
	}
	sourceHash, err := d.getBytes()
	if err != nil {
		return m, fmt.Errorf("unable to decode source hash: %w", err)
	}
	m.SourceHash = append([]byte(nil), sourceHash...)

	return m, nil
}

// ManifestEnd is the decoded form of a MANIFEST_END frame's payload: the
// total entry count, so the receiver can sanity-check it saw everything.
type ManifestEnd struct {
	EntryCount uint64
}

// Encode serializes a ManifestEnd for transmission.
func (m ManifestEnd) Encode() []byte {
	e := &encoder{}
	e.putUint64(m.EntryCount)
	return e.buf
}

// DecodeManifestEnd parses a MANIFEST_END frame's payload.
func DecodeManifestEnd(payload []byte) (ManifestEnd, error) {
	d := newDecoder(payload)
	count, err := d.getUint64()
	if err != nil {
		return ManifestEnd{}, fmt.Errorf("unable to decode entry count: %w", err)
	}
	return ManifestEnd{EntryCount: count}, nil
}
