package wire

import "fmt"

// SignatureBlock is the decoded form of a single SIG_BLOCK frame's payload:
// one receiver-side block signature, in ascending block-index order. The
// block's index and offset are implied by its position in the stream (index
// i has offset i*BlockSize), so neither is carried explicitly.
type SignatureBlock struct {
	BlockSize     uint64
	LastBlockSize uint64
	Weak          uint32
	Strong        []byte
}

// Encode serializes a SignatureBlock for transmission.
func (s SignatureBlock) Encode() []byte {
	e := &encoder{}
	e.putUint64(s.BlockSize)
	e.putUint64(s.LastBlockSize)
	e.putUint32(s.Weak)
	e.putShortBytes(s.Strong)
	return e.buf
}

// DecodeSignatureBlock parses a SIG_BLOCK frame's payload.
func DecodeSignatureBlock(payload []byte) (SignatureBlock, error) {
	d := newDecoder(payload)
	var s SignatureBlock
	var err error

	if s.BlockSize, err = d.getUint64(); err != nil {
		return s, fmt.Errorf("unable to decode block size: %w", err)
	}
	if s.LastBlockSize, err = d.getUint64(); err != nil {
		return s, fmt.Errorf("unable to decode last block size: %w", err)
	}
	if s.Weak, err = d.getUint32(); err != nil {
		return s, fmt.Errorf("unable to decode weak checksum: %w", err)
	}
	strong, err := d.getShortBytes()
	if err != nil {
		return s, fmt.Errorf("unable to decode strong hash: %w", err)
	}
	s.Strong = append([]byte(nil), strong...)

	return s, nil
}

// SignatureEnd marks the end of a file's SIG_BLOCK stream. It carries no
// payload.
type SignatureEnd struct{}

// Encode serializes a SignatureEnd for transmission.
func (SignatureEnd) Encode() []byte {
	return nil
}

// DecodeSignatureEnd parses a SIG_END frame's payload (always empty; present
// for symmetry with the other Decode functions).
func DecodeSignatureEnd(payload []byte) (SignatureEnd, error) {
	return SignatureEnd{}, nil
}
