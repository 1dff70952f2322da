// Package psync carries version and protocol constants shared by every
// component of the tool, along with the HELLO handshake used to negotiate a
// protocol version between peers before a sync session begins.
package psync

import (
	"encoding/binary"
	"fmt"
	"io"
)

const (
	// VersionMajor represents the current major version.
	VersionMajor = 1
	// VersionMinor represents the current minor version.
	VersionMinor = 0
	// VersionPatch represents the current patch version.
	VersionPatch = 0
)

// Version is the current version string.
var Version string

func init() {
	Version = fmt.Sprintf("%d.%d.%d", VersionMajor, VersionMinor, VersionPatch)
}

// magic is the four-byte identifier that opens every HELLO frame payload. It
// lets a peer immediately reject a connection that isn't speaking this
// protocol instead of misinterpreting a foreign stream as a corrupt frame.
var magic = [4]byte{'P', 'S', 'Y', 'N'}

// ProtocolVersion is the wire protocol version. It is independent of
// VersionMajor/Minor/Patch: the protocol can remain stable across several
// tool releases, and bumping it is the signal that peers must reject one
// another rather than attempt to interoperate.
const ProtocolVersion uint16 = 1

// Feature bits advertised in the HELLO handshake. A peer advertises the
// union of features it supports; the session only enables a feature if both
// peers advertise it.
const (
	// FeatureCompression indicates support for COMPRESSION_HINT frames and
	// the adaptive compression layer.
	FeatureCompression uint32 = 1 << iota
	// FeatureChecksumVerify indicates support for checksum mode (the
	// --checksum CLI flag), in which the change filter compares whole-file
	// hashes instead of size and modification time.
	FeatureChecksumVerify
	// FeatureDeleteExtraneous indicates support for removing destination
	// paths absent from the source manifest after a transfer completes.
	FeatureDeleteExtraneous
)

// SupportedFeatures is the feature set this build advertises.
const SupportedFeatures = FeatureCompression | FeatureChecksumVerify | FeatureDeleteExtraneous

// helloBytes is the fixed-size encoding of a HELLO payload: magic, protocol
// version, and feature bitmask.
type helloBytes [10]byte

// SendHello writes a HELLO payload to the given writer.
func SendHello(writer io.Writer, features uint32) error {
	var data helloBytes
	copy(data[:4], magic[:])
	binary.BigEndian.PutUint16(data[4:6], ProtocolVersion)
	binary.BigEndian.PutUint32(data[6:10], features)
	_, err := writer.Write(data[:])
	return err
}

// ReceiveHello reads and decodes a HELLO payload, returning the peer's
// advertised protocol version and feature bitmask. It returns an error if
// the magic bytes don't match, which indicates the remote end is not
// speaking this protocol at all (as opposed to speaking an incompatible
// version of it).
func ReceiveHello(reader io.Reader) (uint16, uint32, error) {
	var data helloBytes
	if _, err := io.ReadFull(reader, data[:]); err != nil {
		return 0, 0, fmt.Errorf("unable to read hello: %w", err)
	}
	if string(data[:4]) != string(magic[:]) {
		return 0, 0, fmt.Errorf("invalid protocol magic")
	}
	version := binary.BigEndian.Uint16(data[4:6])
	features := binary.BigEndian.Uint32(data[6:10])
	return version, features, nil
}

// NegotiateFeatures computes the feature set usable for a session given two
// peers' advertised feature bitmasks: the intersection, since a feature only
// works if both ends implement it.
func NegotiateFeatures(local, remote uint32) uint32 {
	return local & remote
}
