package wire

import "fmt"

// FileEnd is the decoded form of a FILE_END frame's payload: the whole-file
// strong hash the receiver must match after applying the instruction
// stream, plus an optional non-terminal error recorded during transmission.
type FileEnd struct {
	Hash  []byte
	Error string
}

// Encode serializes a FileEnd for transmission.
func (f FileEnd) Encode() []byte {
	e := &encoder{}
	e.putShortBytes(f.Hash)
	e.putString(f.Error)
	return e.buf
}

// DecodeFileEnd parses a FILE_END frame's payload.
func DecodeFileEnd(payload []byte) (FileEnd, error) {
	d := newDecoder(payload)
	var f FileEnd
	hash, err := d.getShortBytes()
	if err != nil {
		return f, fmt.Errorf("unable to decode hash: %w", err)
	}
	f.Hash = append([]byte(nil), hash...)
	if f.Error, err = d.getString(); err != nil {
		return f, fmt.Errorf("unable to decode error message: %w", err)
	}
	return f, nil
}

// FileAck is the decoded form of a FILE_ACK frame's payload: the receiver's
// acknowledgement that it finished (successfully or not) with the current
// file, unblocking the sender's pipelining rule for the next one.
type FileAck struct {
	Success bool
}

// Encode serializes a FileAck for transmission.
func (f FileAck) Encode() []byte {
	e := &encoder{}
	if f.Success {
		e.putUint8(1)
	} else {
		e.putUint8(0)
	}
	return e.buf
}

// DecodeFileAck parses a FILE_ACK frame's payload.
func DecodeFileAck(payload []byte) (FileAck, error) {
	d := newDecoder(payload)
	v, err := d.getUint8()
	if err != nil {
		return FileAck{}, fmt.Errorf("unable to decode success flag: %w", err)
	}
	return FileAck{Success: v != 0}, nil
}
