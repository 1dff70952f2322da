package wire

import "fmt"

// InstructionCopy is the decoded form of an INSTR_COPY frame's payload: a
// reference to Count contiguous blocks starting at block index Start.
type InstructionCopy struct {
	Start uint64
	Count uint64
}

// Encode serializes an InstructionCopy for transmission.
func (i InstructionCopy) Encode() []byte {
	e := &encoder{}
	e.putUint64(i.Start)
	e.putUint64(i.Count)
	return e.buf
}

// DecodeInstructionCopy parses an INSTR_COPY frame's payload.
func DecodeInstructionCopy(payload []byte) (InstructionCopy, error) {
	d := newDecoder(payload)
	var i InstructionCopy
	var err error
	if i.Start, err = d.getUint64(); err != nil {
		return i, fmt.Errorf("unable to decode start: %w", err)
	}
	if i.Count, err = d.getUint64(); err != nil {
		return i, fmt.Errorf("unable to decode count: %w", err)
	}
	return i, nil
}

// InstructionLiteral is the decoded form of an INSTR_LITERAL frame's
// payload: a chunk of literal bytes to append directly to the
// reconstruction.
type InstructionLiteral struct {
	Data []byte
}

// Encode serializes an InstructionLiteral for transmission. Unlike other
// messages, the payload is the raw data with no additional length prefix,
// since the frame codec's own length field already delimits it.
func (i InstructionLiteral) Encode() []byte {
	return i.Data
}

// DecodeInstructionLiteral parses an INSTR_LITERAL frame's payload.
func DecodeInstructionLiteral(payload []byte) (InstructionLiteral, error) {
	return InstructionLiteral{Data: payload}, nil
}
