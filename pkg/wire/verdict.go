package wire

import "fmt"

// Classification is the receiver's change-filter decision for a manifest
// entry.
type Classification uint8

// Classifications, per the change filter's three-way split.
const (
	ClassificationSkip Classification = iota
	ClassificationSendFull
	ClassificationDelta
)

// Verdict is the decoded form of a VERDICT frame's payload. Verdicts are
// sent in the same order as the manifest entries they correspond to, so no
// explicit index is carried.
type Verdict struct {
	Classification Classification
}

// Encode serializes a Verdict for transmission.
func (v Verdict) Encode() []byte {
	e := &encoder{}
	e.putUint8(uint8(v.Classification))
	return e.buf
}

// DecodeVerdict parses a VERDICT frame's payload.
func DecodeVerdict(payload []byte) (Verdict, error) {
	d := newDecoder(payload)
	classification, err := d.getUint8()
	if err != nil {
		return Verdict{}, fmt.Errorf("unable to decode classification: %w", err)
	}
	return Verdict{Classification: Classification(classification)}, nil
}
