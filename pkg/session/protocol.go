package session

import (
	"context"

	"github.com/psync/psync/pkg/frame"
	"github.com/psync/psync/pkg/manifest"
	"github.com/psync/psync/pkg/psyncerr"
	"github.com/psync/psync/pkg/wire"
)

// recvExpecting waits for the next frame and requires it to carry the given
// tag, treating an ERROR frame as a terminal protocol-level failure
// regardless of what was expected.
func recvExpecting(ctx context.Context, l *link, want frame.Tag) ([]byte, error) {
	f, err := l.recv(ctx)
	if err != nil {
		return nil, err
	}
	if f.Tag == frame.Error {
		msg, decodeErr := wire.DecodeErrorMessage(f.Payload)
		if decodeErr != nil {
			return nil, psyncerr.New(psyncerr.ProtocolError, "peer sent malformed error frame")
		}
		return nil, psyncerr.New(msg.Kind, "peer reported error: %s", msg.Message)
	}
	if f.Tag != want {
		return nil, psyncerr.New(psyncerr.ProtocolError, "expected %s, got %s", want, f.Tag)
	}
	return f.Payload, nil
}

// sendError announces a non-recoverable protocol-level failure to the peer.
// It does not itself terminate the session; the caller should return an
// error immediately after.
func sendError(ctx context.Context, l *link, err *psyncerr.Error) error {
	return l.send(ctx, frame.Error, wire.ErrorMessage{Kind: err.Kind, Message: err.Message}.Encode())
}

// toWireKind converts a manifest entry kind to its wire representation.
func toWireKind(k manifest.Kind) wire.EntryKind {
	switch k {
	case manifest.KindDirectory:
		return wire.KindDirectory
	case manifest.KindSymlink:
		return wire.KindSymlink
	default:
		return wire.KindRegular
	}
}

// fromWireKind converts a wire entry kind back to the manifest domain.
func fromWireKind(k wire.EntryKind) manifest.Kind {
	switch k {
	case wire.KindDirectory:
		return manifest.KindDirectory
	case wire.KindSymlink:
		return manifest.KindSymlink
	default:
		return manifest.KindRegular
	}
}

func toWireManifestEntry(e manifest.FileEntry) wire.ManifestEntry {
	return wire.ManifestEntry{
		Path:          e.Path,
		Kind:          toWireKind(e.Kind),
		Size:          e.Size,
		ModTimeNanos:  e.ModTimeNanos,
		Mode:          e.Mode,
		SymlinkTarget: e.SymlinkTarget,
	}
}

func fromWireManifestEntry(m wire.ManifestEntry) manifest.FileEntry {
	return manifest.FileEntry{
		Path:          m.Path,
		Kind:          fromWireKind(m.Kind),
		Size:          m.Size,
		ModTimeNanos:  m.ModTimeNanos,
		Mode:          m.Mode,
		SymlinkTarget: m.SymlinkTarget,
	}
}

func toWireClassification(c manifest.Classification) wire.Classification {
	switch c {
	case manifest.ClassificationSkip:
		return wire.ClassificationSkip
	case manifest.ClassificationSendFull:
		return wire.ClassificationSendFull
	default:
		return wire.ClassificationDelta
	}
}

func fromWireClassification(c wire.Classification) manifest.Classification {
	switch c {
	case wire.ClassificationSkip:
		return manifest.ClassificationSkip
	case wire.ClassificationSendFull:
		return manifest.ClassificationSendFull
	default:
		return manifest.ClassificationDelta
	}
}

