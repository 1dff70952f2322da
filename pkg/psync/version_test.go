package psync

import (
	"bytes"
	"testing"
)

// TestHelloSendReceive tests a HELLO send/receive cycle.
func TestHelloSendReceive(t *testing.T) {
	buffer := &bytes.Buffer{}

	if err := SendHello(buffer, SupportedFeatures); err != nil {
		t.Fatal("unable to send hello:", err)
	}

	if buffer.Len() != 10 {
		t.Fatal("buffer does not contain expected byte count")
	}

	version, features, err := ReceiveHello(buffer)
	if err != nil {
		t.Fatal("unable to receive hello:", err)
	}
	if version != ProtocolVersion {
		t.Error("protocol version mismatch on receive")
	}
	if features != SupportedFeatures {
		t.Error("feature bitmask mismatch on receive")
	}
}

// TestHelloReceiveEmptyBuffer tests that receiving a hello fails when reading
// from an empty buffer.
func TestHelloReceiveEmptyBuffer(t *testing.T) {
	buffer := &bytes.Buffer{}

	if _, _, err := ReceiveHello(buffer); err == nil {
		t.Error("hello received from empty buffer")
	}
}

// TestHelloReceiveBadMagic tests that receiving a hello fails when the magic
// bytes don't match, simulating a peer that isn't speaking this protocol.
func TestHelloReceiveBadMagic(t *testing.T) {
	buffer := bytes.NewBuffer([]byte{'X', 'X', 'X', 'X', 0, 1, 0, 0, 0, 0})

	if _, _, err := ReceiveHello(buffer); err == nil {
		t.Error("hello received with invalid magic")
	}
}

// TestNegotiateFeatures tests that feature negotiation takes the
// intersection of what both peers advertise.
func TestNegotiateFeatures(t *testing.T) {
	negotiated := NegotiateFeatures(FeatureCompression|FeatureChecksumVerify, FeatureCompression)
	if negotiated != FeatureCompression {
		t.Errorf("expected only FeatureCompression, got %d", negotiated)
	}
}
