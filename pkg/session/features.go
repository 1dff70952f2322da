package session

import "github.com/psync/psync/pkg/psync"

// Feature bit aliases, kept local to this package so callers reading
// session code don't have to cross-reference the handshake package for the
// bits this layer actually interprets.
const (
	featureCompression      = psync.FeatureCompression
	featureChecksumVerify   = psync.FeatureChecksumVerify
	featureDeleteExtraneous = psync.FeatureDeleteExtraneous
)
