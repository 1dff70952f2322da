package wire

import (
	"bytes"
	"reflect"
	"testing"

	"github.com/psync/psync/pkg/psyncerr"
)

func TestHelloRoundTrip(t *testing.T) {
	payload := EncodeHello(FeatureFlagsForTest)
	decoded, err := DecodeHello(payload)
	if err != nil {
		t.Fatal("unable to decode hello:", err)
	}
	if decoded.Features != FeatureFlagsForTest {
		t.Error("feature mismatch:", decoded.Features, "!=", FeatureFlagsForTest)
	}
}

// FeatureFlagsForTest is an arbitrary non-zero bitmask used to exercise the
// hello round-trip without depending on psync's current feature set.
const FeatureFlagsForTest = 0x3

func TestManifestEntryRoundTrip(t *testing.T) {
	original := ManifestEntry{
		Path:         "a/b/c.txt",
		Kind:         KindRegular,
		Size:         12345,
		ModTimeNanos: 1700000000000000000,
		Mode:         0644,
	}
	decoded, err := DecodeManifestEntry(original.Encode())
	if err != nil {
		t.Fatal("unable to decode manifest entry:", err)
	}
	decoded.SourceHash, original.SourceHash = nil, nil
	if !reflect.DeepEqual(decoded, original) {
		t.Errorf("manifest entry mismatch: %+v != %+v", decoded, original)
	}
}

func TestManifestEntrySymlinkRoundTrip(t *testing.T) {
	original := ManifestEntry{
		Path:          "link",
		Kind:          KindSymlink,
		SymlinkTarget: "../target",
	}
	decoded, err := DecodeManifestEntry(original.Encode())
	if err != nil {
		t.Fatal("unable to decode manifest entry:", err)
	}
	decoded.SourceHash, original.SourceHash = nil, nil
	if !reflect.DeepEqual(decoded, original) {
		t.Errorf("manifest entry mismatch: %+v != %+v", decoded, original)
	}
}

func TestManifestEntrySourceHashRoundTrip(t *testing.T) {
	original := ManifestEntry{
		Path:       "a.txt",
		Kind:       KindRegular,
		Size:       10,
		SourceHash: []byte{1, 2, 3, 4},
	}
	decoded, err := DecodeManifestEntry(original.Encode())
	if err != nil {
		t.Fatal("unable to decode manifest entry:", err)
	}
	if !bytes.Equal(decoded.SourceHash, original.SourceHash) {
		t.Errorf("source hash mismatch: %v != %v", decoded.SourceHash, original.SourceHash)
	}
}

func TestManifestEndRoundTrip(t *testing.T) {
	original := ManifestEnd{EntryCount: 42}
	decoded, err := DecodeManifestEnd(original.Encode())
	if err != nil {
		t.Fatal("unable to decode manifest end:", err)
	}
	if decoded != original {
		t.Error("manifest end mismatch")
	}
}

func TestVerdictRoundTrip(t *testing.T) {
	for _, c := range []Classification{ClassificationSkip, ClassificationSendFull, ClassificationDelta} {
		original := Verdict{Classification: c}
		decoded, err := DecodeVerdict(original.Encode())
		if err != nil {
			t.Fatal("unable to decode verdict:", err)
		}
		if decoded != original {
			t.Error("verdict mismatch for classification", c)
		}
	}
}

func TestSignatureBlockRoundTrip(t *testing.T) {
	original := SignatureBlock{
		BlockSize:     131072,
		LastBlockSize: 4096,
		Weak:          0xDEADBEEF,
		Strong:        bytes.Repeat([]byte{0xAB}, 16),
	}
	decoded, err := DecodeSignatureBlock(original.Encode())
	if err != nil {
		t.Fatal("unable to decode signature block:", err)
	}
	if decoded.BlockSize != original.BlockSize || decoded.LastBlockSize != original.LastBlockSize ||
		decoded.Weak != original.Weak || !bytes.Equal(decoded.Strong, original.Strong) {
		t.Errorf("signature block mismatch: %+v != %+v", decoded, original)
	}
}

func TestInstructionCopyRoundTrip(t *testing.T) {
	original := InstructionCopy{Start: 7, Count: 3}
	decoded, err := DecodeInstructionCopy(original.Encode())
	if err != nil {
		t.Fatal("unable to decode instruction copy:", err)
	}
	if decoded != original {
		t.Error("instruction copy mismatch")
	}
}

func TestInstructionLiteralRoundTrip(t *testing.T) {
	original := InstructionLiteral{Data: []byte("hello world")}
	decoded, err := DecodeInstructionLiteral(original.Encode())
	if err != nil {
		t.Fatal("unable to decode instruction literal:", err)
	}
	if !bytes.Equal(decoded.Data, original.Data) {
		t.Error("instruction literal mismatch")
	}
}

func TestFileEndRoundTrip(t *testing.T) {
	original := FileEnd{Hash: bytes.Repeat([]byte{0x01}, 16), Error: "engine error: eof"}
	decoded, err := DecodeFileEnd(original.Encode())
	if err != nil {
		t.Fatal("unable to decode file end:", err)
	}
	if !bytes.Equal(decoded.Hash, original.Hash) || decoded.Error != original.Error {
		t.Errorf("file end mismatch: %+v != %+v", decoded, original)
	}
}

func TestFileAckRoundTrip(t *testing.T) {
	for _, success := range []bool{true, false} {
		original := FileAck{Success: success}
		decoded, err := DecodeFileAck(original.Encode())
		if err != nil {
			t.Fatal("unable to decode file ack:", err)
		}
		if decoded != original {
			t.Error("file ack mismatch for success =", success)
		}
	}
}

func TestStatsRoundTrip(t *testing.T) {
	original := Stats{
		BytesRead:           1,
		LiteralBytesSent:    2,
		CopyBytesElided:     3,
		CompressedBytesSent: 4,
		FramesSent:          5,
		FramesReceived:      6,
	}
	decoded, err := DecodeStats(original.Encode())
	if err != nil {
		t.Fatal("unable to decode stats:", err)
	}
	if decoded != original {
		t.Error("stats mismatch")
	}
}

func TestErrorMessageRoundTrip(t *testing.T) {
	original := ErrorMessage{Kind: psyncerr.HashMismatch, Message: "whole-file hash did not match"}
	decoded, err := DecodeErrorMessage(original.Encode())
	if err != nil {
		t.Fatal("unable to decode error message:", err)
	}
	if decoded != original {
		t.Error("error message mismatch")
	}
}

func TestCompressionHintRoundTrip(t *testing.T) {
	original := CompressionHint{Level: 12}
	decoded, err := DecodeCompressionHint(original.Encode())
	if err != nil {
		t.Fatal("unable to decode compression hint:", err)
	}
	if decoded != original {
		t.Error("compression hint mismatch")
	}
}

func TestDecodeTruncatedPayloadsFail(t *testing.T) {
	if _, err := DecodeManifestEntry(nil); err == nil {
		t.Error("expected error decoding empty manifest entry payload")
	}
	if _, err := DecodeVerdict(nil); err == nil {
		t.Error("expected error decoding empty verdict payload")
	}
	if _, err := DecodeInstructionCopy([]byte{0, 0}); err == nil {
		t.Error("expected error decoding truncated instruction copy payload")
	}
}
