package session

import (
	"context"
	"io"
	"sync/atomic"
	"time"

	"github.com/psync/psync/pkg/logging"
	"github.com/psync/psync/pkg/psyncerr"
	"github.com/psync/psync/pkg/timeutil"
	"github.com/psync/psync/pkg/utility"
	"golang.org/x/sync/errgroup"
)

// Run drives one side of a synchronization session to completion over
// transport, which must already be connected to the peer (an in-memory
// net.Pipe connection in local mode, or a pair of file-descriptor-like handles handed over by a
// remote transport collaborator). root is the local filesystem root: the
// source tree when this side is the sender, the destination tree when
// config.Server is set. It returns accumulated transfer statistics and, if
// the session failed, the error that caused it to terminate.
func Run(ctx context.Context, transport io.ReadWriteCloser, config Configuration, root string, logger *logging.Logger) (*TransferStats, error) {
	if err := config.EnsureValid(); err != nil {
		return nil, psyncerr.Wrap(psyncerr.ConfigError, err, "invalid configuration")
	}
	if logger == nil {
		logger = logging.RootLogger
	}
	// Defensively copy Exclude so the session never aliases a slice the
	// caller might mutate concurrently with the run.
	config.Exclude = utility.CopyStringSlice(config.Exclude)

	stats := &TransferStats{}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	negotiated, err := handshake(runCtx, transport, &config)
	if err != nil {
		transport.Close()
		return stats, err
	}
	compress := negotiated&featureCompression != 0
	config.Checksum = config.Checksum && negotiated&featureChecksumVerify != 0
	config.Delete = config.Delete && negotiated&featureDeleteExtraneous != 0

	l, err := newLink(transport, stats, logger, compress)
	if err != nil {
		transport.Close()
		return stats, err
	}

	group, groupCtx := errgroup.WithContext(runCtx)

	group.Go(func() error {
		return l.readLoop(groupCtx)
	})
	group.Go(func() error {
		return l.writeLoop(groupCtx)
	})
	group.Go(func() error {
		return watchIdle(groupCtx, stats, time.Duration(config.idleTimeout())*time.Second)
	})

	group.Go(func() error {
		defer l.shutdown()
		if config.Server {
			return runReceiver(groupCtx, l, &config, root, stats, logger)
		}
		return runSender(groupCtx, l, &config, root, stats, logger)
	})

	err = group.Wait()
	if closeErr := l.closeTransport(); err == nil {
		err = closeErr
	}
	return stats, err
}

// watchIdle cancels the group context with a Timeout error if no frame
// activity (sent or received) occurs for the given duration, per the
// concurrency model's wall-clock idle timeout. It polls on a recurring
// timer rather than a ticker so each tick can be rescheduled to exactly
// timeout/4 from "now" rather than drifting with however long the previous
// tick's work took.
func watchIdle(ctx context.Context, stats *TransferStats, timeout time.Duration) error {
	interval := timeout / 4
	timer := time.NewTimer(interval)
	defer timeutil.StopAndDrainTimer(timer)

	var lastActivity uint64
	idleSince := time.Now()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
			activity := atomic.LoadUint64(&stats.FramesSent) + atomic.LoadUint64(&stats.FramesReceived)
			if activity != lastActivity {
				lastActivity = activity
				idleSince = time.Now()
			} else if time.Since(idleSince) >= timeout {
				return psyncerr.New(psyncerr.Timeout, "no frame activity for %s", timeout)
			}
			timer.Reset(interval)
		}
	}
}
