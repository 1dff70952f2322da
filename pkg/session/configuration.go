// Package session implements the per-peer state machine that drives a
// synchronization run from HELLO through the per-file verdict/transfer loop
// to completion, gluing together the frame codec, wire messages, tree
// walker, change filter, rsync engine, and adaptive compression layer.
package session

import "fmt"

// Configuration holds the options a synchronization run is configured with.
// It mirrors the external CLI surface directly: every field here corresponds
// to one option a caller can set, whether driven from flags or from an
// equivalent embedding configuration record.
type Configuration struct {
	// Archive enables recursive descent, permission preservation, time
	// preservation, and symlink-as-symlink handling in one switch.
	Archive bool
	// Verbose increases log output.
	Verbose bool
	// Compress enables the adaptive compression path over the transport.
	Compress bool
	// Recursive descends into subdirectories. Implied by Archive.
	Recursive bool
	// DryRun walks and classifies the tree, exchanging manifest and verdict
	// frames, but sends no file bytes.
	DryRun bool
	// Checksum forces the change filter to use whole-file strong hashes
	// instead of size+mtime comparison.
	Checksum bool
	// Update skips a file when the destination's modification time is
	// already newer than the source's.
	Update bool
	// Delete removes destination paths absent from the source manifest
	// after a transfer completes.
	Delete bool
	// Exclude lists glob patterns to drop from source enumeration.
	Exclude []string
	// Progress makes the CLI print a transfer summary after the run
	// completes. The session itself does not read it and emits no per-file
	// progress records.
	Progress bool
	// Server runs the local side as the receiving peer, driven entirely by
	// the transport rather than performing its own tree walk.
	Server bool
	// IdleTimeoutSeconds bounds how long the session will wait for frame
	// activity before aborting with a Timeout error. Zero selects the
	// default (120 seconds, per the concurrency model).
	IdleTimeoutSeconds int
}

// EnsureValid ensures that a configuration's fields are internally
// consistent before a session is started with it.
func (c *Configuration) EnsureValid() error {
	if c == nil {
		return fmt.Errorf("nil configuration")
	}
	if c.IdleTimeoutSeconds < 0 {
		return fmt.Errorf("negative idle timeout")
	}
	return nil
}

// effectiveRecursive reports whether directories should be descended into,
// honoring the Archive shorthand.
func (c *Configuration) effectiveRecursive() bool {
	return c.Archive || c.Recursive
}

// featureBits computes the HELLO feature bitmask this configuration
// advertises.
func (c *Configuration) featureBits() uint32 {
	var bits uint32
	if c.Compress {
		bits |= featureCompression
	}
	if c.Checksum {
		bits |= featureChecksumVerify
	}
	if c.Delete {
		bits |= featureDeleteExtraneous
	}
	return bits
}

const defaultIdleTimeoutSeconds = 120

func (c *Configuration) idleTimeout() int {
	if c.IdleTimeoutSeconds == 0 {
		return defaultIdleTimeoutSeconds
	}
	return c.IdleTimeoutSeconds
}
