package wire

import "fmt"

// Stats is the decoded form of a STATS frame's payload: a snapshot of the
// session's TransferStats counters.
type Stats struct {
	BytesRead          uint64
	LiteralBytesSent   uint64
	CopyBytesElided    uint64
	CompressedBytesSent uint64
	FramesSent         uint64
	FramesReceived     uint64
}

// Encode serializes a Stats snapshot for transmission.
func (s Stats) Encode() []byte {
	e := &encoder{}
	e.putUint64(s.BytesRead)
	e.putUint64(s.LiteralBytesSent)
	e.putUint64(s.CopyBytesElided)
	e.putUint64(s.CompressedBytesSent)
	e.putUint64(s.FramesSent)
	e.putUint64(s.FramesReceived)
	return e.buf
}

// DecodeStats parses a STATS frame's payload.
func DecodeStats(payload []byte) (Stats, error) {
	d := newDecoder(payload)
	var s Stats
	var err error
	if s.BytesRead, err = d.getUint64(); err != nil {
		return s, fmt.Errorf("unable to decode bytes read: %w", err)
	}
	if s.LiteralBytesSent, err = d.getUint64(); err != nil {
		return s, fmt.Errorf("unable to decode literal bytes sent: %w", err)
	}
	if s.CopyBytesElided, err = d.getUint64(); err != nil {
		return s, fmt.Errorf("unable to decode copy bytes elided: %w", err)
	}
	if s.CompressedBytesSent, err = d.getUint64(); err != nil {
		return s, fmt.Errorf("unable to decode compressed bytes sent: %w", err)
	}
	if s.FramesSent, err = d.getUint64(); err != nil {
		return s, fmt.Errorf("unable to decode frames sent: %w", err)
	}
	if s.FramesReceived, err = d.getUint64(); err != nil {
		return s, fmt.Errorf("unable to decode frames received: %w", err)
	}
	return s, nil
}
