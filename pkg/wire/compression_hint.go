package wire

import "fmt"

// CompressionHint is the decoded form of a COMPRESSION_HINT frame's
// payload: the adaptive controller's new level, announced inline so the
// decompressing peer knows to expect a level change at the next frame
// boundary.
type CompressionHint struct {
	Level uint8
}

// Encode serializes a CompressionHint for transmission.
func (c CompressionHint) Encode() []byte {
	e := &encoder{}
	e.putUint8(c.Level)
	return e.buf
}

// DecodeCompressionHint parses a COMPRESSION_HINT frame's payload.
func DecodeCompressionHint(payload []byte) (CompressionHint, error) {
	d := newDecoder(payload)
	level, err := d.getUint8()
	if err != nil {
		return CompressionHint{}, fmt.Errorf("unable to decode compression level: %w", err)
	}
	return CompressionHint{Level: level}, nil
}
