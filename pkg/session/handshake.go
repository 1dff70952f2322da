package session

import (
	"context"
	"io"

	"github.com/psync/psync/pkg/frame"
	"github.com/psync/psync/pkg/psync"
	"github.com/psync/psync/pkg/psyncerr"
	"github.com/psync/psync/pkg/wire"
)

// handshake performs the HELLO exchange directly over transport, before the
// session's compressed link and bounded-queue tasks are constructed: whether
// the rest of the stream is compressed is itself a HELLO outcome, so the
// handshake has to happen on the bare transport. It returns the feature
// bitmask usable for the rest of the session, the intersection of what both
// peers advertised.
func handshake(ctx context.Context, transport io.ReadWriter, config *Configuration) (uint32, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	writer := frame.NewWriter(transport)
	if err := writer.Write(frame.Hello, wire.EncodeHello(config.featureBits())); err != nil {
		return 0, psyncerr.Wrap(psyncerr.IoError, err, "unable to send hello")
	}

	reader := frame.NewReader(transport)
	f, err := reader.Read()
	if err != nil {
		return 0, psyncerr.Wrap(psyncerr.ProtocolError, err, "unable to receive peer hello")
	}
	if f.Tag != frame.Hello {
		return 0, psyncerr.New(psyncerr.ProtocolError, "expected HELLO, got %s", f.Tag)
	}
	hello, err := wire.DecodeHello(f.Payload)
	if err != nil {
		return 0, psyncerr.Wrap(psyncerr.ProtocolError, err, "malformed hello")
	}
	if hello.ProtocolVersion != psync.ProtocolVersion {
		return 0, psyncerr.New(psyncerr.VersionMismatch, "peer speaks protocol version %d, this build speaks %d", hello.ProtocolVersion, psync.ProtocolVersion)
	}

	return psync.NegotiateFeatures(config.featureBits(), hello.Features), nil
}
