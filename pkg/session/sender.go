package session

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/psync/psync/pkg/contextutil"
	"github.com/psync/psync/pkg/frame"
	"github.com/psync/psync/pkg/localfs"
	"github.com/psync/psync/pkg/logging"
	"github.com/psync/psync/pkg/manifest"
	"github.com/psync/psync/pkg/must"
	"github.com/psync/psync/pkg/parallelism"
	"github.com/psync/psync/pkg/psyncerr"
	"github.com/psync/psync/pkg/rsync"
	"github.com/psync/psync/pkg/wire"
)

// maxLiteralOperationSize bounds the pre-compression payload of a single
// INSTR_LITERAL frame. Larger spans of unmatched target data are chunked
// into successive literal instructions of at most this size.
const maxLiteralOperationSize = 1 << 20

// runSender drives the sending side of a session: it walks the source tree,
// announces the manifest, and for every entry the receiver's change filter
// didn't skip, exchanges a base signature and transmits the resulting
// delta/full instruction stream.
func runSender(ctx context.Context, l *link, config *Configuration, sourceRoot string, stats *TransferStats, logger *logging.Logger) error {
	matcher, err := manifest.NewExcludeMatcher(config.Exclude)
	if err != nil {
		return psyncerr.Wrap(psyncerr.ConfigError, err, "invalid exclude pattern")
	}

	tree, err := manifest.Walk(sourceRoot, matcher)
	if err != nil {
		return psyncerr.Wrap(psyncerr.IoError, err, "unable to walk source tree")
	}
	entries := tree.Entries
	if !config.effectiveRecursive() {
		entries = topLevelEntries(entries)
	}

	opener := localfs.NewOpener(sourceRoot)
	defer must.Close(opener, logger)

	sourceHashes := make([][]byte, len(entries))
	if config.Checksum {
		hashEntriesInParallel(sourceRoot, entries, sourceHashes, logger)
	}

	for i, entry := range entries {
		if contextutil.IsCancelled(ctx) {
			return psyncerr.New(psyncerr.Cancelled, "sender cancelled while announcing manifest")
		}
		wireEntry := toWireManifestEntry(entry)
		wireEntry.SourceHash = sourceHashes[i]
		if err := l.send(ctx, frame.ManifestEntry, wireEntry.Encode()); err != nil {
			return err
		}
	}
	if err := l.send(ctx, frame.ManifestEnd, wire.ManifestEnd{EntryCount: uint64(len(entries))}.Encode()); err != nil {
		return err
	}

	engine := rsync.NewEngine()

	for _, entry := range entries {
		payload, err := recvExpecting(ctx, l, frame.Verdict)
		if err != nil {
			return err
		}
		verdict, err := wire.DecodeVerdict(payload)
		if err != nil {
			return psyncerr.Wrap(psyncerr.ProtocolError, err, "malformed verdict")
		}

		if entry.Kind != manifest.KindRegular {
			continue
		}
		classification := fromWireClassification(verdict.Classification)
		if classification == manifest.ClassificationSkip {
			stats.FilesSkipped++
			continue
		}
		if config.DryRun {
			continue
		}
		if err := sendFile(ctx, l, engine, opener, entry, classification, stats); err != nil {
			return err
		}
	}

	if logger != nil {
		logger.Infof("sender finished: %d entries", len(entries))
	}
	return nil
}

// topLevelEntries filters a manifest down to entries with no path separator,
// for a non-recursive run.
func topLevelEntries(entries []manifest.FileEntry) []manifest.FileEntry {
	var filtered []manifest.FileEntry
	for _, e := range entries {
		if !strings.Contains(e.Path, "/") {
			filtered = append(filtered, e)
		}
	}
	return filtered
}

// hashEntriesInParallel computes the whole-file strong hash of every regular
// file in entries, striping the work across a SIMD worker array so the
// (potentially many) hash passes over the source tree overlap rather than
// running one after another. hashes is populated in place, indexed the same
// as entries; an entry that fails to hash is simply left nil, which falls
// back to the size/modification-time comparison in manifest.Classify rather
// than failing the whole announce phase over one unreadable file.
//
// Each worker opens its files directly rather than going through the
// localfs.Opener shared with the rest of runSender, since Opener is not
// safe for concurrent use by multiple goroutines.
func hashEntriesInParallel(sourceRoot string, entries []manifest.FileEntry, hashes [][]byte, logger *logging.Logger) {
	array := parallelism.NewSIMDWorkerArray(0)
	defer array.Terminate()

	array.Do(&hashWork{sourceRoot: sourceRoot, entries: entries, hashes: hashes, logger: logger})
}

// hashWork is the parallelism.SIMDWork implementation driving
// hashEntriesInParallel.
type hashWork struct {
	sourceRoot string
	entries    []manifest.FileEntry
	hashes     [][]byte
	logger     *logging.Logger
}

// Do hashes every entry whose index falls on this worker's stride.
func (w *hashWork) Do(index, size int) error {
	for i := index; i < len(w.entries); i += size {
		entry := w.entries[i]
		if entry.Kind != manifest.KindRegular {
			continue
		}
		hash, err := hashSourceFile(w.sourceRoot, entry.Path)
		if err != nil {
			if w.logger != nil {
				w.logger.Warn(psyncerr.Wrap(psyncerr.IoError, err, "unable to hash source file %q", entry.Path))
			}
			continue
		}
		w.hashes[i] = hash
	}
	return nil
}

// hashSourceFile computes a source file's whole-file strong hash, used to
// populate MANIFEST_ENTRY's SourceHash field when checksum mode is active.
// It opens the file directly rather than through a localfs.Opener so it can
// be called concurrently from multiple hashWork workers.
func hashSourceFile(sourceRoot, path string) ([]byte, error) {
	file, err := os.Open(filepath.Join(sourceRoot, path))
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return rsync.WholeFileHash(file)
}

// sendFile performs the signature/instruction/file-end exchange for a single
// regular file classified SendFull or Delta.
func sendFile(ctx context.Context, l *link, engine *rsync.Engine, opener *localfs.Opener, entry manifest.FileEntry, classification manifest.Classification, stats *TransferStats) error {
	signature, err := recvSignature(ctx, l)
	if err != nil {
		return err
	}

	file, err := opener.OpenFile(entry.Path)
	if err != nil {
		return psyncerr.Wrap(psyncerr.IoError, err, "unable to open source file %q", entry.Path)
	}
	defer file.Close()

	hasher := rsync.NewWholeFileHasher()
	tee := io.TeeReader(file, hasher)

	transmit := func(instr *rsync.Instruction) error {
		if len(instr.Data) > 0 {
			stats.LiteralBytes += uint64(len(instr.Data))
			return l.send(ctx, frame.InstructionData, wire.InstructionLiteral{Data: instr.Data}.Encode())
		}
		stats.CopyBytesElided += instr.Count * signature.BlockSize
		return l.send(ctx, frame.InstructionCopy, wire.InstructionCopy{Start: instr.Start, Count: instr.Count}.Encode())
	}

	if err := engine.Deltafy(tee, signature, maxLiteralOperationSize, transmit); err != nil {
		return psyncerr.Wrap(psyncerr.IoError, err, "unable to deltafy %q", entry.Path)
	}

	if err := l.send(ctx, frame.FileEnd, wire.FileEnd{Hash: hasher.Sum(nil)}.Encode()); err != nil {
		return err
	}

	ackPayload, err := recvExpecting(ctx, l, frame.FileAck)
	if err != nil {
		return err
	}
	ack, err := wire.DecodeFileAck(ackPayload)
	if err != nil {
		return psyncerr.Wrap(psyncerr.ProtocolError, err, "malformed file ack")
	}
	if !ack.Success {
		stats.HashMismatches++
		return psyncerr.New(psyncerr.HashMismatch, "receiver reported hash mismatch for %q", entry.Path)
	}

	if classification == manifest.ClassificationSendFull {
		stats.FilesSentFull++
	} else {
		stats.FilesSentDelta++
	}
	stats.BytesRead += entry.Size
	return nil
}

// recvSignature reads a base file's SIG_BLOCK* / SIG_END stream from the
// receiver and reassembles it into a SignatureIndex usable by Engine.Deltafy.
func recvSignature(ctx context.Context, l *link) (*rsync.SignatureIndex, error) {
	index := &rsync.SignatureIndex{}
	for {
		f, err := l.recv(ctx)
		if err != nil {
			return nil, err
		}
		switch f.Tag {
		case frame.SignatureBlock:
			block, err := wire.DecodeSignatureBlock(f.Payload)
			if err != nil {
				return nil, psyncerr.Wrap(psyncerr.ProtocolError, err, "malformed signature block")
			}
			index.BlockSize = block.BlockSize
			index.LastBlockSize = block.LastBlockSize
			index.Hashes = append(index.Hashes, &rsync.BlockSignature{Weak: block.Weak, Strong: block.Strong})
		case frame.SignatureEnd:
			return index, nil
		case frame.Error:
			msg, decodeErr := wire.DecodeErrorMessage(f.Payload)
			if decodeErr != nil {
				return nil, psyncerr.New(psyncerr.ProtocolError, "peer sent malformed error frame")
			}
			return nil, psyncerr.New(msg.Kind, "peer reported error: %s", msg.Message)
		default:
			return nil, psyncerr.New(psyncerr.ProtocolError, "expected SIG_BLOCK or SIG_END, got %s", f.Tag)
		}
	}
}
