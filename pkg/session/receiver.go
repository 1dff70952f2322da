package session

import (
	"bytes"
	"context"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/psync/psync/pkg/contextutil"
	"github.com/psync/psync/pkg/frame"
	"github.com/psync/psync/pkg/logging"
	"github.com/psync/psync/pkg/manifest"
	"github.com/psync/psync/pkg/must"
	"github.com/psync/psync/pkg/psyncerr"
	"github.com/psync/psync/pkg/rsync"
	"github.com/psync/psync/pkg/stream"
	"github.com/psync/psync/pkg/wire"
)

// runReceiver drives the receiving side of a session: it accepts the
// sender's whole manifest up to MANIFEST_END, then classifies each entry
// against the destination tree in manifest order, and for entries that need
// data, exchanges a base signature and applies the resulting instruction
// stream into a staged temporary file before renaming it into place.
func runReceiver(ctx context.Context, l *link, config *Configuration, destRoot string, stats *TransferStats, logger *logging.Logger) error {
	engine := rsync.NewEngine()
	seen := make(map[string]bool)
	var entries []manifest.FileEntry
	var sourceHashes [][]byte

	for {
		if contextutil.IsCancelled(ctx) {
			return psyncerr.New(psyncerr.Cancelled, "receiver cancelled while accepting manifest")
		}
		f, err := l.recv(ctx)
		if err != nil {
			return err
		}
		if f.Tag == frame.ManifestEnd {
			end, decodeErr := wire.DecodeManifestEnd(f.Payload)
			if decodeErr != nil {
				return psyncerr.Wrap(psyncerr.ProtocolError, decodeErr, "malformed manifest end")
			}
			if logger != nil && uint64(len(seen)) != end.EntryCount {
				logger.Warn(psyncerr.New(psyncerr.ProtocolError, "manifest entry count mismatch: saw %d, expected %d", len(seen), end.EntryCount))
			}
			break
		}
		if f.Tag != frame.ManifestEntry {
			return psyncerr.New(psyncerr.ProtocolError, "expected MANIFEST_ENTRY or MANIFEST_END, got %s", f.Tag)
		}
		wireEntry, err := wire.DecodeManifestEntry(f.Payload)
		if err != nil {
			return psyncerr.Wrap(psyncerr.ProtocolError, err, "malformed manifest entry")
		}
		entry := fromWireManifestEntry(wireEntry)
		seen[entry.Path] = true
		entries = append(entries, entry)
		sourceHashes = append(sourceHashes, wireEntry.SourceHash)
	}

	for i, entry := range entries {
		if err := receiveEntry(ctx, l, engine, config, destRoot, entry, sourceHashes[i], stats, logger); err != nil {
			return err
		}
	}

	if config.Delete {
		if err := deleteExtraneous(destRoot, seen, stats, logger); err != nil {
			return err
		}
	}

	if logger != nil {
		logger.Infof("receiver finished: %d entries", len(seen))
	}
	return nil
}

// receiveEntry applies the structural or data-bearing reconstruction for a
// single manifest entry and reports the resulting verdict back to the
// sender, keeping both peers in lockstep one entry at a time.
func receiveEntry(ctx context.Context, l *link, engine *rsync.Engine, config *Configuration, destRoot string, entry manifest.FileEntry, sourceHash []byte, stats *TransferStats, logger *logging.Logger) error {
	full := filepath.Join(destRoot, filepath.FromSlash(entry.Path))

	switch entry.Kind {
	case manifest.KindDirectory:
		if err := os.MkdirAll(full, os.FileMode(entry.Mode)|0700); err != nil {
			return psyncerr.Wrap(psyncerr.IoError, err, "unable to create directory %q", entry.Path)
		}
		return l.send(ctx, frame.Verdict, wire.Verdict{Classification: wire.ClassificationSkip}.Encode())

	case manifest.KindSymlink:
		classification := manifest.Classify(entry, nil, false, nil)
		if err := replaceSymlink(full, entry.SymlinkTarget); err != nil {
			return psyncerr.Wrap(psyncerr.IoError, err, "unable to create symlink %q", entry.Path)
		}
		return l.send(ctx, frame.Verdict, wire.Verdict{Classification: toWireClassification(classification)}.Encode())

	default:
		dest := statDestination(full, config.Checksum)
		classification := manifest.Classify(entry, dest, config.Checksum, sourceHash)
		if config.Update && classification != manifest.ClassificationSkip &&
			dest != nil && dest.Kind == manifest.KindRegular && dest.ModTimeNanos > entry.ModTimeNanos {
			classification = manifest.ClassificationSkip
		}
		if err := l.send(ctx, frame.Verdict, wire.Verdict{Classification: toWireClassification(classification)}.Encode()); err != nil {
			return err
		}
		if classification == manifest.ClassificationSkip {
			stats.FilesSkipped++
			return nil
		}
		if config.DryRun {
			return nil
		}
		return receiveRegularFile(ctx, l, engine, full, entry, classification, stats, logger)
	}
}

// replaceSymlink creates a symlink at path pointing to target, replacing
// whatever (if anything) is already there.
func replaceSymlink(path, target string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return os.Symlink(target, path)
}

// statDestination inspects the filesystem at path and reports what's there,
// or nil if nothing exists yet. When checksumMode is set, it also computes
// the destination's whole-file strong hash for the change filter.
func statDestination(path string, checksumMode bool) *manifest.Destination {
	info, err := os.Lstat(path)
	if err != nil {
		return nil
	}

	dest := &manifest.Destination{Kind: manifest.KindRegular}
	switch {
	case info.Mode()&os.ModeSymlink != 0:
		dest.Kind = manifest.KindSymlink
	case info.IsDir():
		dest.Kind = manifest.KindDirectory
	default:
		dest.Size = uint64(info.Size())
	}
	dest.ModTimeNanos = info.ModTime().UnixNano()

	if checksumMode && dest.Kind == manifest.KindRegular {
		if file, err := os.Open(path); err == nil {
			digest, hashErr := rsync.WholeFileHash(file)
			file.Close()
			if hashErr == nil {
				dest.StrongHash = digest
			}
		}
	}

	return dest
}

// receiveRegularFile exchanges a base signature for the file already at
// full (if any), then applies the sender's instruction stream into a
// staged temporary file, verifying the result's whole-file hash before
// renaming it into place.
func receiveRegularFile(ctx context.Context, l *link, engine *rsync.Engine, full string, entry manifest.FileEntry, classification manifest.Classification, stats *TransferStats, logger *logging.Logger) error {
	signature, base, err := sendSignature(ctx, l, engine, full, entry.Size, classification)
	if err != nil {
		return err
	}
	defer must.Close(base, logger)

	tmpPath := filepath.Join(filepath.Dir(full), fmt.Sprintf(".psync-tmp-%s", uuid.New().String()))
	tmpFile, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, os.FileMode(entry.Mode)|0600)
	if err != nil {
		return psyncerr.Wrap(psyncerr.IoError, err, "unable to create staging file for %q", entry.Path)
	}

	hasher := rsync.NewWholeFileHasher()
	hashedWriter := stream.NewHashedWriter(tmpFile, hasher)

	for {
		f, err := l.recv(ctx)
		if err != nil {
			must.Close(tmpFile, logger)
			os.Remove(tmpPath)
			return err
		}

		var instr *rsync.Instruction
		switch f.Tag {
		case frame.InstructionCopy:
			copyInstr, decodeErr := wire.DecodeInstructionCopy(f.Payload)
			if decodeErr != nil {
				must.Close(tmpFile, logger)
				os.Remove(tmpPath)
				return psyncerr.Wrap(psyncerr.ProtocolError, decodeErr, "malformed copy instruction")
			}
			instr = &rsync.Instruction{Start: copyInstr.Start, Count: copyInstr.Count}
		case frame.InstructionData:
			literal, decodeErr := wire.DecodeInstructionLiteral(f.Payload)
			if decodeErr != nil {
				must.Close(tmpFile, logger)
				os.Remove(tmpPath)
				return psyncerr.Wrap(psyncerr.ProtocolError, decodeErr, "malformed literal instruction")
			}
			instr = &rsync.Instruction{Data: literal.Data}
		case frame.FileEnd:
			must.Close(tmpFile, logger)
			return finishFile(ctx, l, f.Payload, tmpPath, full, entry, classification, hasher, stats)
		default:
			must.Close(tmpFile, logger)
			os.Remove(tmpPath)
			return psyncerr.New(psyncerr.ProtocolError, "expected INSTR_COPY, INSTR_LITERAL, or FILE_END, got %s", f.Tag)
		}

		if err := engine.Patch(hashedWriter, base, signature, instr); err != nil {
			must.Close(tmpFile, logger)
			os.Remove(tmpPath)
			return psyncerr.Wrap(psyncerr.IoError, err, "unable to apply instruction for %q", entry.Path)
		}
	}
}

// sendSignature computes and transmits the SIG_BLOCK*/SIG_END stream for
// full's current contents (or an empty stream if classification is
// SendFull or nothing exists yet), returning the signature and a seekable
// handle on the base data for Engine.Patch to read matched blocks from.
// sourceSize is the source file's size as reported by the sender's
// manifest entry, used to derive the block size both peers agree on
// without negotiating it.
func sendSignature(ctx context.Context, l *link, engine *rsync.Engine, full string, sourceSize uint64, classification manifest.Classification) (*rsync.SignatureIndex, io.ReadSeekCloser, error) {
	if classification == manifest.ClassificationSendFull {
		if err := l.send(ctx, frame.SignatureEnd, wire.SignatureEnd{}.Encode()); err != nil {
			return nil, nil, err
		}
		return &rsync.SignatureIndex{}, emptyReadSeekCloser{}, nil
	}

	base, err := os.Open(full)
	if err != nil {
		return nil, nil, psyncerr.Wrap(psyncerr.IoError, err, "unable to open base file %q", full)
	}

	signature, err := engine.Signature(base, manifest.BlockSizeForFileSize(sourceSize))
	if err != nil {
		base.Close()
		return nil, nil, psyncerr.Wrap(psyncerr.IoError, err, "unable to compute signature for %q", full)
	}
	if _, err := base.Seek(0, io.SeekStart); err != nil {
		base.Close()
		return nil, nil, psyncerr.Wrap(psyncerr.IoError, err, "unable to rewind base file %q", full)
	}

	for _, h := range signature.Hashes {
		block := wire.SignatureBlock{
			BlockSize:     signature.BlockSize,
			LastBlockSize: signature.LastBlockSize,
			Weak:          h.Weak,
			Strong:        h.Strong,
		}
		if err := l.send(ctx, frame.SignatureBlock, block.Encode()); err != nil {
			base.Close()
			return nil, nil, err
		}
	}
	if err := l.send(ctx, frame.SignatureEnd, wire.SignatureEnd{}.Encode()); err != nil {
		base.Close()
		return nil, nil, err
	}

	return signature, base, nil
}

// emptyReadSeekCloser is a no-op base for files being sent in full, which
// never generate a copy instruction and so never actually read from it.
type emptyReadSeekCloser struct{}

func (emptyReadSeekCloser) Read([]byte) (int, error)                 { return 0, io.EOF }
func (emptyReadSeekCloser) Seek(int64, int) (int64, error)           { return 0, nil }
func (emptyReadSeekCloser) Close() error                             { return nil }

// finishFile validates FILE_END's whole-file hash against what was
// actually written, then commits or discards the staged file and
// acknowledges the sender.
func finishFile(ctx context.Context, l *link, payload []byte, tmpPath, full string, entry manifest.FileEntry, classification manifest.Classification, hasher hash.Hash, stats *TransferStats) error {
	fileEnd, err := wire.DecodeFileEnd(payload)
	if err != nil {
		os.Remove(tmpPath)
		return psyncerr.Wrap(psyncerr.ProtocolError, err, "malformed file end")
	}

	computed := hasher.Sum(nil)
	success := bytes.Equal(computed, fileEnd.Hash)

	if success {
		if err := os.Chmod(tmpPath, os.FileMode(entry.Mode)); err != nil {
			success = false
		} else if err := os.Chtimes(tmpPath, time.Now(), time.Unix(0, entry.ModTimeNanos)); err != nil {
			success = false
		} else if err := os.Rename(tmpPath, full); err != nil {
			success = false
		}
	}
	if !success {
		os.Remove(tmpPath)
	}

	if err := l.send(ctx, frame.FileAck, wire.FileAck{Success: success}.Encode()); err != nil {
		return err
	}

	if !success {
		stats.HashMismatches++
		return psyncerr.New(psyncerr.HashMismatch, "reconstructed hash mismatch for %q", entry.Path)
	}
	if classification == manifest.ClassificationSendFull {
		stats.FilesSentFull++
	} else {
		stats.FilesSentDelta++
	}
	stats.BytesRead += entry.Size
	return nil
}

// deleteExtraneous removes destination paths not present in seen, the set
// of paths named by the sender's manifest, implementing --delete.
func deleteExtraneous(destRoot string, seen map[string]bool, stats *TransferStats, logger *logging.Logger) error {
	existing, err := manifest.Walk(destRoot, nil)
	if err != nil {
		return psyncerr.Wrap(psyncerr.IoError, err, "unable to walk destination tree for deletion")
	}

	// Remove deepest paths first so a directory's contents are gone before
	// the directory itself is.
	for i := len(existing.Entries) - 1; i >= 0; i-- {
		entry := existing.Entries[i]
		if seen[entry.Path] {
			continue
		}
		full := filepath.Join(destRoot, filepath.FromSlash(entry.Path))
		if err := os.RemoveAll(full); err != nil {
			if logger != nil {
				logger.Warnf("unable to delete extraneous path %q: %v", entry.Path, err)
			}
			continue
		}
		stats.FilesDeleted++
	}
	return nil
}
