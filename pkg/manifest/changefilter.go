package manifest

// Classification is the receiver-side disposition for a source FileEntry
// relative to whatever (if anything) already exists at the same path on the
// destination.
type Classification uint8

const (
	// ClassificationSkip means the destination already matches the source
	// and nothing needs to be sent.
	ClassificationSkip Classification = iota
	// ClassificationSendFull means the destination is missing, of a
	// different kind, or too small to benefit from delta transfer, so the
	// whole file should be sent.
	ClassificationSendFull
	// ClassificationDelta means the destination is a plausible basis for
	// the rsync delta algorithm and signature exchange should proceed.
	ClassificationDelta
)

// String returns a human-readable name for a Classification.
func (c Classification) String() string {
	switch c {
	case ClassificationSkip:
		return "skip"
	case ClassificationSendFull:
		return "send-full"
	case ClassificationDelta:
		return "delta"
	default:
		return "unknown"
	}
}

// Destination describes what the receiver observed at a given path, to be
// compared against the corresponding source FileEntry. A nil *Destination
// passed to Classify means nothing exists there yet.
type Destination struct {
	Kind         Kind
	Size         uint64
	ModTimeNanos int64
	// StrongHash is the whole-file strong hash of the destination, computed
	// only when checksum mode requires it. Nil unless checksumMode is set on
	// the call to Classify.
	StrongHash []byte
}

// Classify compares a source entry against what's known about the
// destination path and decides how the sender should proceed. source must
// not be a directory; directories are always structural (created or left
// alone) and never go through delta classification. sourceStrongHash is the
// source's whole-file strong hash, required only when checksumMode is true
// and dest is non-nil; it is ignored otherwise.
func Classify(source FileEntry, dest *Destination, checksumMode bool, sourceStrongHash []byte) Classification {
	if dest == nil {
		return ClassificationSendFull
	}
	if dest.Kind != source.Kind {
		return ClassificationSendFull
	}
	if source.Kind == KindSymlink {
		return ClassificationSendFull
	}
	if dest.Size != source.Size {
		return classifyForSizeMismatch(source, dest)
	}

	if checksumMode {
		if hashesEqual(sourceStrongHash, dest.StrongHash) {
			return ClassificationSkip
		}
	} else if dest.ModTimeNanos == source.ModTimeNanos {
		return ClassificationSkip
	}

	if dest.Size < BlockSizeForFileSize(source.Size) || dest.Size == 0 {
		return ClassificationSendFull
	}
	return ClassificationDelta
}

// classifyForSizeMismatch decides between send-full and delta when the
// destination's size differs from the source's. The destination, not the
// source, is what the delta algorithm would use as its basis, so it's the
// destination's size that determines whether it's worth treating as one.
func classifyForSizeMismatch(source FileEntry, dest *Destination) Classification {
	blockSize := BlockSizeForFileSize(source.Size)
	if blockSize == 0 || dest.Size < blockSize {
		return ClassificationSendFull
	}
	return ClassificationDelta
}

func hashesEqual(a, b []byte) bool {
	if len(a) != len(b) || len(a) == 0 {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
