package wire

import (
	"fmt"

	"github.com/psync/psync/pkg/psyncerr"
)

// ErrorMessage is the decoded form of an ERROR frame's payload.
type ErrorMessage struct {
	Kind    psyncerr.Kind
	Message string
}

// Encode serializes an ErrorMessage for transmission.
func (m ErrorMessage) Encode() []byte {
	e := &encoder{}
	e.putUint8(uint8(m.Kind))
	e.putString(m.Message)
	return e.buf
}

// DecodeErrorMessage parses an ERROR frame's payload.
func DecodeErrorMessage(payload []byte) (ErrorMessage, error) {
	d := newDecoder(payload)
	kind, err := d.getUint8()
	if err != nil {
		return ErrorMessage{}, fmt.Errorf("unable to decode error kind: %w", err)
	}
	message, err := d.getString()
	if err != nil {
		return ErrorMessage{}, fmt.Errorf("unable to decode error message: %w", err)
	}
	return ErrorMessage{Kind: psyncerr.Kind(kind), Message: message}, nil
}
