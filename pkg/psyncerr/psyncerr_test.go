package psyncerr

import (
	"errors"
	"fmt"
	"testing"
)

// TestIsMatchesKind verifies that Is recognizes an Error of the expected
// kind and rejects one of a different kind.
func TestIsMatchesKind(t *testing.T) {
	err := New(HashMismatch, "file %q", "a.txt")
	if !Is(err, HashMismatch) {
		t.Error("expected Is to match HashMismatch")
	}
	if Is(err, IoError) {
		t.Error("expected Is not to match IoError")
	}
}

// TestIsMatchesWrapped verifies that Is sees through fmt.Errorf %w wrapping.
func TestIsMatchesWrapped(t *testing.T) {
	base := New(Timeout, "no frame activity in 120s")
	wrapped := fmt.Errorf("session failed: %w", base)
	if !Is(wrapped, Timeout) {
		t.Error("expected Is to match wrapped error")
	}
}

// TestWrapPreservesUnderlying verifies that Wrap's Error() mentions the
// underlying error and that Unwrap exposes it.
func TestWrapPreservesUnderlying(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(IoError, cause, "unable to write temp file")
	if errors.Unwrap(err) != cause {
		t.Error("expected Unwrap to return the underlying error")
	}
	if err.Error() == "" {
		t.Error("expected non-empty error string")
	}
}
