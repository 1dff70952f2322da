package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/psync/psync/pkg/identifier"
	"github.com/psync/psync/pkg/logging"
	"github.com/psync/psync/pkg/psyncerr"
	"github.com/psync/psync/pkg/session"
	"github.com/psync/psync/pkg/stream"
)

func syncMain(command *cobra.Command, arguments []string) error {
	config := session.Configuration{
		Archive:   syncConfiguration.archive,
		Verbose:   syncConfiguration.verbose,
		Compress:  syncConfiguration.compress,
		Recursive: syncConfiguration.recursive,
		DryRun:    syncConfiguration.dryRun,
		Checksum:  syncConfiguration.checksum,
		Update:    syncConfiguration.update,
		Delete:    syncConfiguration.delete,
		Exclude:   syncConfiguration.exclude,
		Progress:  syncConfiguration.progress,
		Server:    syncConfiguration.server,
	}

	logging.DebugEnabled = syncConfiguration.verbose
	logger := logging.RootLogger.Sublogger("sync")

	transferID, err := identifier.New(identifier.PrefixTransfer)
	if err != nil {
		return psyncerr.Wrap(psyncerr.ConfigError, err, "unable to generate transfer identifier")
	}
	logger.Infof("starting transfer %s", transferID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt)
	defer signal.Stop(signals)
	go func() {
		if _, ok := <-signals; ok {
			cancel()
		}
	}()

	var stats *session.TransferStats

	if config.Server {
		if len(arguments) != 1 {
			return psyncerr.New(psyncerr.ConfigError, "server mode requires exactly one destination path")
		}
		transport := newStdioTransport()
		stats, err = session.Run(ctx, transport, config, arguments[0], logger)
	} else {
		if len(arguments) != 2 {
			return psyncerr.New(psyncerr.ConfigError, "sync requires a source and a destination path")
		}
		stats, err = runLocal(ctx, config, arguments[0], arguments[1], logger)
	}

	if syncConfiguration.progress && stats != nil {
		printSummary(stats)
	}

	if err != nil {
		os.Exit(exitCodeForError(err))
	}
	return nil
}

// runLocal drives a complete local-to-local sync by wiring a sender session
// against source and a receiver session against destination together over
// an in-memory net.Pipe connection; no OS pipe is involved.
func runLocal(ctx context.Context, config session.Configuration, source, destination string, logger *logging.Logger) (*session.TransferStats, error) {
	clientConn, serverConn := net.Pipe()

	serverConfig := config
	serverConfig.Server = true

	var wait sync.WaitGroup
	wait.Add(1)

	var serverStats *session.TransferStats
	var serverErr error
	go func() {
		defer wait.Done()
		serverStats, serverErr = session.Run(ctx, serverConn, serverConfig, destination, logger.Sublogger("receiver"))
	}()

	clientStats, clientErr := session.Run(ctx, clientConn, config, source, logger.Sublogger("sender"))
	wait.Wait()

	if clientErr != nil {
		return clientStats, clientErr
	}
	if serverErr != nil {
		return serverStats, serverErr
	}
	return clientStats, nil
}

// stdioTransport adapts the process's standard input/output streams into
// the io.ReadWriteCloser the session state machine requires, for use when
// psync is re-executed in --server mode by a remote shell transport
// collaborator.
type stdioTransport struct {
	io.Reader
	io.Writer
	io.Closer
}

func newStdioTransport() io.ReadWriteCloser {
	return &stdioTransport{
		Reader: os.Stdin,
		Writer: os.Stdout,
		Closer: stream.NewMultiCloser(os.Stdin, os.Stdout),
	}
}

// exitCodeForError maps a session error to the exit codes the external
// interface promises: 1 configuration error, 2 protocol error, 3 I/O error,
// 4 hash mismatch, 5 cancelled.
func exitCodeForError(err error) int {
	switch {
	case psyncerr.Is(err, psyncerr.ConfigError):
		return 1
	case psyncerr.Is(err, psyncerr.ProtocolError), psyncerr.Is(err, psyncerr.VersionMismatch):
		return 2
	case psyncerr.Is(err, psyncerr.IoError):
		return 3
	case psyncerr.Is(err, psyncerr.HashMismatch):
		return 4
	case psyncerr.Is(err, psyncerr.Cancelled), psyncerr.Is(err, psyncerr.Timeout):
		return 5
	default:
		return 3
	}
}

func printSummary(stats *session.TransferStats) {
	fmt.Fprintf(os.Stderr, "Transferred %s bytes (%d full, %d delta, %d skipped, %d deleted) in %s\n",
		humanize.Bytes(stats.BytesRead),
		stats.FilesSentFull, stats.FilesSentDelta, stats.FilesSkipped, stats.FilesDeleted,
		time.Now().Format(time.RFC3339))
}

var syncCommand = &cobra.Command{
	Use:   "sync <source> <destination>",
	Short: "Synchronizes a source directory tree to a destination",
	RunE:  syncMain,
}

var syncConfiguration struct {
	help      bool
	archive   bool
	verbose   bool
	compress  bool
	recursive bool
	dryRun    bool
	checksum  bool
	update    bool
	delete    bool
	exclude   []string
	progress  bool
	server    bool
}

func init() {
	flags := syncCommand.Flags()
	flags.SortFlags = false

	flags.BoolVarP(&syncConfiguration.help, "help", "h", false, "Show help information")
	flags.BoolVarP(&syncConfiguration.archive, "archive", "a", false, "Enable recursive descent, permission preservation, time preservation, and symlink-as-symlink handling")
	flags.BoolVarP(&syncConfiguration.verbose, "verbose", "v", false, "Increase observability output")
	flags.BoolVarP(&syncConfiguration.compress, "compress", "z", false, "Enable the adaptive compression path over the transport")
	flags.BoolVarP(&syncConfiguration.recursive, "recursive", "r", false, "Descend into subdirectories")
	flags.BoolVar(&syncConfiguration.dryRun, "dry-run", false, "Walk and classify the tree without sending file data")
	flags.BoolVar(&syncConfiguration.checksum, "checksum", false, "Use whole-file hashes instead of size and modification time to detect changes")
	flags.BoolVarP(&syncConfiguration.update, "update", "u", false, "Skip a file when the destination's modification time is already newer")
	flags.BoolVar(&syncConfiguration.delete, "delete", false, "Remove destination paths absent from the source manifest after the transfer completes")
	flags.StringArrayVar(&syncConfiguration.exclude, "exclude", nil, "Glob pattern to exclude from source enumeration (may be specified multiple times)")
	flags.BoolVarP(&syncConfiguration.progress, "progress", "P", false, "Emit a transfer summary after completion")
	flags.BoolVar(&syncConfiguration.server, "server", false, "Run as the receiving peer, driven over stdin/stdout")
	flags.MarkHidden("server")
}
