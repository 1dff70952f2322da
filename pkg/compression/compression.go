// Package compression implements the adaptive streaming compression layer:
// a zstd-based reader/writer pair plus a feedback controller that adjusts
// the compression level online based on observed transport backpressure and
// compressor CPU usage.
package compression

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

const (
	// MinLevel and MaxLevel bound the scalar compression level negotiated
	// between peers and carried in COMPRESSION_HINT frames.
	MinLevel = 1
	MaxLevel = 19

	// defaultInitialLevel is the level a new controller starts at.
	defaultInitialLevel = 3

	// defaultWindowFrames and defaultWindowBytes bound how much traffic the
	// controller observes before re-evaluating the level; whichever bound is
	// reached first closes the window.
	defaultWindowFrames = 64
	defaultWindowBytes  = 64 * 1024 * 1024

	// blockedBottleneckThreshold is the blocked-time fraction above which the
	// transport is considered the bottleneck.
	blockedBottleneckThreshold = 0.20
	// blockedSevereThreshold is the blocked-time fraction above which the
	// controller takes a double step toward more compression.
	blockedSevereThreshold = 0.50
	// cpuSaturatedThreshold is the fraction of window wall time the
	// compressor must have spent working, with zero writer blocking, before
	// the controller backs off the level.
	cpuSaturatedThreshold = 0.9
)

// EncoderLevelFor maps a scalar compression level (1-19, as negotiated on the
// wire) onto one of zstd's four discrete encoder speed tiers.
func EncoderLevelFor(level int) zstd.EncoderLevel {
	switch {
	case level <= 3:
		return zstd.SpeedFastest
	case level <= 9:
		return zstd.SpeedDefault
	case level <= 15:
		return zstd.SpeedBetterCompression
	default:
		return zstd.SpeedBestCompression
	}
}

// Controller tracks per-window compression and transport statistics for a
// single stream and decides, once per window, whether the level should
// change. A Controller is safe for concurrent use by a compressing writer
// goroutine and a transport writer goroutine.
type Controller struct {
	mu sync.Mutex

	level int

	windowFrames   int
	windowBytesIn  uint64
	windowBlocked  time.Duration
	windowCompress time.Duration
	windowStart    time.Time
}

// NewController creates a new controller at the default initial level.
func NewController() *Controller {
	return &Controller{level: defaultInitialLevel, windowStart: time.Now()}
}

// Level returns the controller's current compression level.
func (c *Controller) Level() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.level
}

// RecordBlocked folds a transport-writer blocking interval into the current
// window. It's meant to be called by the writer task each time a frame write
// to the underlying transport blocks.
func (c *Controller) RecordBlocked(duration time.Duration) {
	c.mu.Lock()
	c.windowBlocked += duration
	c.mu.Unlock()
}

// RecordCompress folds one compressor invocation's statistics into the
// current window, evaluates the window if it has closed (by frame count or
// byte count, whichever comes first), and returns the (possibly updated)
// level along with whether it changed. Hysteresis is enforced implicitly:
// the level can change at most once per window, since the window resets
// after every evaluation.
func (c *Controller) RecordCompress(bytesIn uint64, duration time.Duration) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.windowFrames++
	c.windowBytesIn += bytesIn
	c.windowCompress += duration

	if c.windowFrames < defaultWindowFrames && c.windowBytesIn < defaultWindowBytes {
		return c.level, false
	}

	previous := c.level
	elapsed := time.Since(c.windowStart)

	var blockedFraction, compressFraction float64
	if elapsed > 0 {
		blockedFraction = float64(c.windowBlocked) / float64(elapsed)
		compressFraction = float64(c.windowCompress) / float64(elapsed)
	}

	switch {
	case blockedFraction > blockedBottleneckThreshold && c.level < MaxLevel:
		step := 1
		if blockedFraction > blockedSevereThreshold {
			step = 2
		}
		if c.level += step; c.level > MaxLevel {
			c.level = MaxLevel
		}
	case compressFraction > cpuSaturatedThreshold && c.windowBlocked == 0 && c.level > MinLevel:
		c.level--
	}

	c.windowFrames = 0
	c.windowBytesIn = 0
	c.windowBlocked = 0
	c.windowCompress = 0
	c.windowStart = time.Now()

	return c.level, c.level != previous
}

// Writer wraps an underlying destination with an adaptive zstd compressor.
// Each Write is flushed immediately so that the destination (ordinarily a
// frame writer) sees a complete, self-contained compressed span per call.
// When the controller decides to change level, Writer transparently closes
// the current zstd stream and opens a new one at the new level — zstd
// readers handle a sequence of concatenated frames at different levels
// without any special handling, so this requires no decoder-side state.
type Writer struct {
	// dest is the underlying destination the compressed bytes are written to.
	dest io.Writer
	// controller drives level changes.
	controller *Controller
	// onLevelChange is invoked (with the new level) immediately after the
	// encoder is recreated at that level, so the caller can emit a
	// COMPRESSION_HINT frame before any further compressed bytes follow.
	onLevelChange func(newLevel int) error
	// encoder is the live zstd encoder, valid for controller.Level() as of
	// the last level change.
	encoder *zstd.Encoder
}

// NewWriter creates a compressing writer around dest, starting at the
// controller's current level.
func NewWriter(dest io.Writer, controller *Controller, onLevelChange func(newLevel int) error) (*Writer, error) {
	encoder, err := zstd.NewWriter(dest, zstd.WithEncoderLevel(EncoderLevelFor(controller.Level())))
	if err != nil {
		return nil, fmt.Errorf("unable to create compressor: %w", err)
	}
	return &Writer{
		dest:          dest,
		controller:    controller,
		onLevelChange: onLevelChange,
		encoder:       encoder,
	}, nil
}

// Write compresses and flushes buffer, then consults the controller to see
// whether the level should change before the next call.
func (w *Writer) Write(buffer []byte) (int, error) {
	start := time.Now()
	n, err := w.encoder.Write(buffer)
	if err != nil {
		return n, fmt.Errorf("unable to write to compressor: %w", err)
	}
	if err := w.encoder.Flush(); err != nil {
		return n, fmt.Errorf("unable to flush compressor: %w", err)
	}
	duration := time.Since(start)

	if newLevel, changed := w.controller.RecordCompress(uint64(len(buffer)), duration); changed {
		if err := w.reopen(newLevel); err != nil {
			return n, err
		}
		if w.onLevelChange != nil {
			if err := w.onLevelChange(newLevel); err != nil {
				return n, fmt.Errorf("unable to announce level change: %w", err)
			}
		}
	}

	return n, nil
}

// reopen closes the current zstd stream and starts a new one at level.
func (w *Writer) reopen(level int) error {
	if err := w.encoder.Close(); err != nil {
		return fmt.Errorf("unable to close compressor before level change: %w", err)
	}
	encoder, err := zstd.NewWriter(w.dest, zstd.WithEncoderLevel(EncoderLevelFor(level)))
	if err != nil {
		return fmt.Errorf("unable to recreate compressor at new level: %w", err)
	}
	w.encoder = encoder
	return nil
}

// Close closes the underlying zstd stream. It does not close dest.
func (w *Writer) Close() error {
	return w.encoder.Close()
}

// NewDecompressingReader wraps source in a zstd decompressor. Because level
// is purely an encoder-side concern, a single decoder transparently handles
// a stream that switches levels mid-flight at COMPRESSION_HINT boundaries.
func NewDecompressingReader(source io.Reader) (io.ReadCloser, error) {
	decoder, err := zstd.NewReader(source)
	if err != nil {
		return nil, fmt.Errorf("unable to create decompressor: %w", err)
	}
	return decoder.IOReadCloser(), nil
}
