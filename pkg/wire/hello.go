package wire

import (
	"bytes"
	"fmt"

	"github.com/psync/psync/pkg/psync"
)

// Hello is the decoded form of a HELLO frame's payload.
type Hello struct {
	ProtocolVersion uint16
	Features        uint32
}

// EncodeHello builds a HELLO payload advertising the given feature set,
// reusing psync's fixed magic/version/feature-bitmask encoding.
func EncodeHello(features uint32) []byte {
	var buf bytes.Buffer
	// SendHello cannot fail writing to a bytes.Buffer.
	_ = psync.SendHello(&buf, features)
	return buf.Bytes()
}

// DecodeHello parses a HELLO frame's payload.
func DecodeHello(payload []byte) (Hello, error) {
	version, features, err := psync.ReceiveHello(bytes.NewReader(payload))
	if err != nil {
		return Hello{}, fmt.Errorf("unable to decode hello: %w", err)
	}
	return Hello{ProtocolVersion: version, Features: features}, nil
}
