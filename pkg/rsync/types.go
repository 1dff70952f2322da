package rsync

import "errors"

// errNilTransmission is returned by Transmission.EnsureValid for a nil
// receiver.
var errNilTransmission = errors.New("nil transmission")

// ReceiverState is the progress snapshot that a monitoring receiver passes to
// its Monitor callback.
type ReceiverState struct {
	// Path is the path of the file currently being received.
	Path string
	// ReceivedSize and ExpectedSize are the current file's received and
	// expected byte counts.
	ReceivedSize, ExpectedSize uint64
	// ReceivedFiles and ExpectedFiles count completed and expected files.
	ReceivedFiles, ExpectedFiles uint64
	// TotalReceivedSize is the byte count received across all files.
	TotalReceivedSize uint64
}

// BlockSignature is the weak/strong hash pair computed for a single block of
// a base stream. A zero-value BlockSignature is not meaningful on its own;
// it only has meaning as an element of a SignatureIndex.
type BlockSignature struct {
	// Weak is the rolling (cheap, collidable) checksum for the block.
	Weak uint32
	// Strong is the block's strong hash digest (murmur3 128-bit, stored as
	// 16 raw bytes).
	Strong []byte
}

// SignatureIndex is the full signature of a base stream: its block size, the
// size of its final (possibly short) block, and the per-block hash pairs
// used to search for matches during delta computation.
type SignatureIndex struct {
	// BlockSize is the block size used to compute Hashes, except for the
	// last block, whose size is given by LastBlockSize.
	BlockSize uint64
	// LastBlockSize is the size of the final block. It is equal to
	// BlockSize unless the base stream's length isn't a multiple of
	// BlockSize.
	LastBlockSize uint64
	// Hashes contains one BlockSignature per block of the base stream, in
	// order.
	Hashes []*BlockSignature
}

// Instruction is a single reconstruction step: either a literal data chunk
// to append directly, or a reference to one or more contiguous blocks to
// copy from the base stream. Exactly one of Data or Count should be
// non-zero/non-empty.
type Instruction struct {
	// Data holds literal bytes to append to the target, used when no
	// matching block was found for this span of the target stream.
	Data []byte
	// Start is the index of the first matched block (meaningful only when
	// Count > 0).
	Start uint64
	// Count is the number of contiguous matched blocks starting at Start
	// (meaningful only when Data is empty).
	Count uint64
}

// Transmission represents a single message in a per-file instruction stream.
// It is the in-process analogue of the wire-level INSTR_COPY/INSTR_LITERAL/
// FILE_END frames defined in pkg/wire; encoding a Transmission stream onto
// the wire (and decoding it back) is the job of pkg/session, which keeps
// this package transport-agnostic, separate from any particular wire
// encoding.
type Transmission struct {
	// Done indicates that the instruction stream for the current file is
	// finished. If set, there will be no instruction in the message, but
	// there may be an error.
	Done bool
	// Instruction is the next instruction in the stream for the current
	// file.
	Instruction *Instruction
	// Error indicates that a non-terminal error has occurred while
	// generating or applying instructions. It will only be present if Done
	// is true.
	Error string
	// ExpectedSize is the size (in bytes) of the target file, provided
	// alongside the first instruction of its stream so a receiver can track
	// progress.
	ExpectedSize uint64
}

// resetToZeroMaintainingCapacity resets a Transmission to its zero-value,
// but leaves capacity in the instruction's data buffer so the same
// Transmission object can be reused across a decode loop without
// reallocating.
func (t *Transmission) resetToZeroMaintainingCapacity() {
	if t.Instruction != nil {
		t.Instruction.resetToZeroMaintainingCapacity()
	} else {
		t.Instruction = &Instruction{}
	}
	t.Done = false
	t.Error = ""
	t.ExpectedSize = 0
}

// EnsureValid verifies that a Transmission satisfies its invariants.
func (t *Transmission) EnsureValid() error {
	if t == nil {
		return errNilTransmission
	}
	if t.Done {
		return nil
	}
	return t.Instruction.EnsureValid()
}
