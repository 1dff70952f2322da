// Package frame implements the length-prefixed, typed frame codec that
// every message on a psync connection rides on: tag (1 byte) followed by
// length (4 bytes, big-endian) followed by payload.
package frame

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Tag identifies the type of a frame's payload.
type Tag uint8

// Frame tags, in wire order.
const (
	Hello            Tag = 0x01
	ManifestEntry    Tag = 0x02
	ManifestEnd      Tag = 0x03
	Verdict          Tag = 0x04
	SignatureBlock   Tag = 0x05
	SignatureEnd     Tag = 0x06
	InstructionCopy  Tag = 0x07
	InstructionData  Tag = 0x08
	FileEnd          Tag = 0x09
	FileAck          Tag = 0x0A
	Stats            Tag = 0x0B
	Error            Tag = 0x0C
	CompressionHint  Tag = 0x0D
)

// String returns a human-readable name for a tag, for use in log output and
// error messages.
func (t Tag) String() string {
	switch t {
	case Hello:
		return "HELLO"
	case ManifestEntry:
		return "MANIFEST_ENTRY"
	case ManifestEnd:
		return "MANIFEST_END"
	case Verdict:
		return "VERDICT"
	case SignatureBlock:
		return "SIG_BLOCK"
	case SignatureEnd:
		return "SIG_END"
	case InstructionCopy:
		return "INSTR_COPY"
	case InstructionData:
		return "INSTR_LITERAL"
	case FileEnd:
		return "FILE_END"
	case FileAck:
		return "FILE_ACK"
	case Stats:
		return "STATS"
	case Error:
		return "ERROR"
	case CompressionHint:
		return "COMPRESSION_HINT"
	default:
		return fmt.Sprintf("Tag(0x%02X)", uint8(t))
	}
}

// MaxPayloadLength is the largest payload length a frame may carry
// (length ≤ 2^24), even though the wire field itself is a full 32-bit
// big-endian integer.
const MaxPayloadLength = 1 << 24

// ErrPayloadTooLarge is returned by Write when a payload exceeds
// MaxPayloadLength.
var ErrPayloadTooLarge = fmt.Errorf("frame payload exceeds maximum length of %d bytes", MaxPayloadLength)

// Frame is a single tag/payload pair as it travels in memory between the
// codec and its caller.
type Frame struct {
	Tag     Tag
	Payload []byte
}

// Writer writes frames to an underlying stream. It is not safe for
// concurrent use.
type Writer struct {
	dest   io.Writer
	header [5]byte
}

// NewWriter creates a frame Writer around dest.
func NewWriter(dest io.Writer) *Writer {
	return &Writer{dest: dest}
}

// Write encodes and writes a single frame. It is the caller's responsibility
// to serialize calls to Write if dest is shared with other writers.
func (w *Writer) Write(tag Tag, payload []byte) error {
	if len(payload) > MaxPayloadLength {
		return ErrPayloadTooLarge
	}

	w.header[0] = byte(tag)
	binary.BigEndian.PutUint32(w.header[1:], uint32(len(payload)))

	if _, err := w.dest.Write(w.header[:]); err != nil {
		return fmt.Errorf("unable to write frame header: %w", err)
	}
	if len(payload) > 0 {
		if _, err := w.dest.Write(payload); err != nil {
			return fmt.Errorf("unable to write frame payload: %w", err)
		}
	}

	return nil
}

// Reader reads frames from an underlying stream. It is not safe for
// concurrent use. The same Frame buffer backing array is reused across
// calls to Read when capacity allows, so callers that need to retain a
// payload beyond their next Read call must copy it.
type Reader struct {
	source io.Reader
	header [5]byte
	buffer []byte
}

// NewReader creates a frame Reader around source. source should ordinarily
// be buffered (e.g. bufio.Reader) to avoid per-frame syscall overhead from
// the header and payload being read as separate reads.
func NewReader(source io.Reader) *Reader {
	return &Reader{source: source}
}

// Read reads the next frame from the stream. On a clean connection close
// between frames, it returns io.EOF unwrapped so callers can distinguish a
// natural end of stream from a mid-frame failure.
func (r *Reader) Read() (Frame, error) {
	if _, err := io.ReadFull(r.source, r.header[:]); err != nil {
		if err == io.EOF {
			return Frame{}, io.EOF
		}
		return Frame{}, fmt.Errorf("unable to read frame header: %w", err)
	}

	tag := Tag(r.header[0])
	length := binary.BigEndian.Uint32(r.header[1:])
	if length > MaxPayloadLength {
		return Frame{}, ErrPayloadTooLarge
	}

	if cap(r.buffer) < int(length) {
		r.buffer = make([]byte, length)
	}
	payload := r.buffer[:length]
	if length > 0 {
		if _, err := io.ReadFull(r.source, payload); err != nil {
			return Frame{}, fmt.Errorf("unable to read frame payload: %w", err)
		}
	}

	return Frame{Tag: tag, Payload: payload}, nil
}
