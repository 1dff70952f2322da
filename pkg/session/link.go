package session

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/psync/psync/pkg/compression"
	"github.com/psync/psync/pkg/frame"
	"github.com/psync/psync/pkg/logging"
	"github.com/psync/psync/pkg/psyncerr"
	"github.com/psync/psync/pkg/stream"
	"github.com/psync/psync/pkg/wire"
)

// queueDepth is the fixed bounded-channel depth used for both the inbound
// and outbound frame queues, per the concurrency model's requirement that
// queue depths be fixed at session start.
const queueDepth = 32

// outgoingFrame pairs a tag and payload for the writer task.
type outgoingFrame struct {
	tag     frame.Tag
	payload []byte
}

// link owns the transport and runs independent reader and writer tasks over
// it, communicating with the main state-machine task through bounded
// channels. It is the concrete realization of the concurrency model's
// "reader task / writer task / main task" split: the main task never
// touches the transport directly.
type link struct {
	transport io.Closer
	reader    *frame.Reader
	writer    *frame.Writer
	valve     *stream.ValveWriter
	outbound  chan outgoingFrame
	inbound   chan frame.Frame
	stats     *TransferStats
	logger    *logging.Logger
	shutOnce  sync.Once

	compressor   *compression.Writer
	decompressor io.ReadCloser
	controller   *compression.Controller
	hintedLevel  int
}

// newLink constructs a link around transport. If compress is true, outbound
// frame bytes are passed through an adaptive zstd compressor and inbound
// bytes through the matching decompressor; both sides must agree on this
// (negotiated via the HELLO feature bitmask before the link is created).
func newLink(transport io.ReadWriteCloser, stats *TransferStats, logger *logging.Logger, compress bool) (*link, error) {
	valve := stream.NewValveWriter(transport)

	l := &link{
		transport: transport,
		outbound:  make(chan outgoingFrame, queueDepth),
		inbound:   make(chan frame.Frame, queueDepth),
		stats:     stats,
		logger:    logger,
		hintedLevel: compression.MinLevel,
	}

	readSource := io.Reader(transport)
	writeDest := io.Writer(valve)

	if compress {
		controller := compression.NewController()
		compressor, err := compression.NewWriter(valve, controller, nil)
		if err != nil {
			return nil, fmt.Errorf("unable to create compressor: %w", err)
		}
		decompressor, err := compression.NewDecompressingReader(transport)
		if err != nil {
			return nil, fmt.Errorf("unable to create decompressor: %w", err)
		}
		l.controller = controller
		l.compressor = compressor
		l.decompressor = decompressor
		l.hintedLevel = controller.Level()
		writeDest = compressor
		readSource = decompressor
	}

	l.valve = valve
	l.reader = frame.NewReader(readSource)
	l.writer = frame.NewWriter(writeDest)

	return l, nil
}

// readLoop is the reader task: it pulls frames off the transport and
// delivers them to the main task via the inbound queue, in wire order. It
// returns nil on a clean EOF (the peer closed the stream) and an error
// otherwise.
func (l *link) readLoop(ctx context.Context) error {
	defer close(l.inbound)
	for {
		f, err := l.reader.Read()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return psyncerr.Wrap(psyncerr.ProtocolError, err, "frame read failed")
		}
		l.stats.addFramesReceived(1)

		// The frame Reader reuses its payload buffer across calls to Read,
		// but frames here are handed off to a channel and consumed later by
		// a different goroutine, so the payload must be copied before the
		// next Read call can overwrite it.
		payload := append([]byte(nil), f.Payload...)
		select {
		case l.inbound <- frame.Frame{Tag: f.Tag, Payload: payload}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// writeLoop is the writer task: it drains the outbound queue and emits
// frames to the transport, in the order the main task enqueued them. When
// compression is active, it also watches the controller for level changes
// and announces them with a COMPRESSION_HINT frame.
func (l *link) writeLoop(ctx context.Context) error {
	for {
		select {
		case f, ok := <-l.outbound:
			if !ok {
				return nil
			}
			blockStart := time.Now()
			err := l.writer.Write(f.tag, f.payload)
			if l.controller != nil {
				l.controller.RecordBlocked(time.Since(blockStart))
			}
			if err != nil {
				return psyncerr.Wrap(psyncerr.IoError, err, "frame write failed")
			}
			l.stats.addFramesSent(1)

			if l.controller != nil {
				if newLevel := l.controller.Level(); newLevel != l.hintedLevel {
					l.hintedLevel = newLevel
					hint := wire.CompressionHint{Level: uint8(newLevel)}.Encode()
					if err := l.writer.Write(frame.CompressionHint, hint); err != nil {
						return psyncerr.Wrap(psyncerr.IoError, err, "compression hint write failed")
					}
					l.stats.addFramesSent(1)
				}
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// send enqueues a frame for the writer task. It blocks if the outbound
// queue is full, providing the back-pressure the concurrency model relies
// on to bound memory.
func (l *link) send(ctx context.Context, tag frame.Tag, payload []byte) error {
	select {
	case l.outbound <- outgoingFrame{tag: tag, payload: payload}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// recv waits for the next inbound frame, an idle timeout, or cancellation.
func (l *link) recv(ctx context.Context) (frame.Frame, error) {
	select {
	case f, ok := <-l.inbound:
		if !ok {
			return frame.Frame{}, io.EOF
		}
		return f, nil
	case <-ctx.Done():
		return frame.Frame{}, ctx.Err()
	}
}

// shutdown closes the outbound queue (letting the writer task drain and
// exit) and shuts the valve so any write already in flight completes but no
// further bytes reach the transport, satisfying the cancellation contract
// in the concurrency model.
func (l *link) shutdown() {
	l.shutOnce.Do(func() {
		close(l.outbound)
		if l.compressor != nil {
			l.compressor.Close()
		}
		l.valve.Shut()
	})
}

func (l *link) closeTransport() error {
	if l.decompressor != nil {
		l.decompressor.Close()
	}
	if err := l.transport.Close(); err != nil {
		return fmt.Errorf("unable to close transport: %w", err)
	}
	return nil
}
