package frame

import (
	"bytes"
	"io"
	"testing"
)

// TestFrameTransport verifies that a sequence of frames round-trips through
// Writer/Reader unchanged.
func TestFrameTransport(t *testing.T) {
	testCases := []Frame{
		{Hello, nil},
		{Hello, []byte{0}},
		{ManifestEntry, []byte("a/b/c.txt")},
		{FileEnd, bytes.Repeat([]byte{0xAB}, 16)},
		{Stats, bytes.Repeat([]byte{0xFF}, 1024)},
		{Error, []byte("checksum mismatch")},
	}

	transport := &bytes.Buffer{}
	writer := NewWriter(transport)
	for i, c := range testCases {
		if err := writer.Write(c.Tag, c.Payload); err != nil {
			t.Fatalf("unable to write frame %d: %v", i, err)
		}
	}

	reader := NewReader(transport)
	for i, c := range testCases {
		decoded, err := reader.Read()
		if err != nil {
			t.Fatalf("unable to read frame %d: %v", i, err)
		}
		if decoded.Tag != c.Tag {
			t.Errorf("frame %d: tag mismatch: %v != %v", i, decoded.Tag, c.Tag)
		}
		if !bytes.Equal(decoded.Payload, c.Payload) {
			t.Errorf("frame %d: payload mismatch", i)
		}
	}

	if _, err := reader.Read(); err != io.EOF {
		t.Error("expected io.EOF at end of stream, got", err)
	}
}

// TestWritePayloadTooLarge verifies that Write rejects an over-length
// payload rather than silently truncating the length field.
func TestWritePayloadTooLarge(t *testing.T) {
	writer := NewWriter(&bytes.Buffer{})
	oversized := make([]byte, MaxPayloadLength+1)
	if err := writer.Write(Stats, oversized); err != ErrPayloadTooLarge {
		t.Error("expected ErrPayloadTooLarge, got", err)
	}
}

// TestTagString verifies that known tags stringify to their wire names and
// unknown tags don't panic.
func TestTagString(t *testing.T) {
	if Hello.String() != "HELLO" {
		t.Error("unexpected string for HELLO tag:", Hello.String())
	}
	if Tag(0xFF).String() == "" {
		t.Error("expected non-empty string for unknown tag")
	}
}
