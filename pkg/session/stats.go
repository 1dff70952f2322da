package session

import "sync/atomic"

// TransferStats accumulates counters over the lifetime of a session run.
// Fields are updated exclusively by the single task that owns them (per the
// concurrency model's "no global mutable state beyond the statistics
// counter" rule), so plain fields suffice except where a value crosses a
// goroutine boundary, in which case atomics are used.
type TransferStats struct {
	FilesSkipped    uint64
	FilesSentFull   uint64
	FilesSentDelta  uint64
	BytesRead       uint64
	LiteralBytes    uint64
	CopyBytesElided uint64
	FramesSent      uint64
	FramesReceived  uint64
	HashMismatches  uint64
	FilesDeleted    uint64
}

// addFramesSent atomically increments FramesSent; it's invoked from the
// writer task's goroutine, which runs concurrently with the main task that
// reads other stats fields at the end of a run.
func (s *TransferStats) addFramesSent(n uint64) {
	atomic.AddUint64(&s.FramesSent, n)
}

// addFramesReceived atomically increments FramesReceived; invoked from the
// reader task's goroutine.
func (s *TransferStats) addFramesReceived(n uint64) {
	atomic.AddUint64(&s.FramesReceived, n)
}
