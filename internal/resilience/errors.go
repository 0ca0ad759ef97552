// Package resilience classifies pipeline failures for the external
// scheduler: the scheduler owns retries, so the core only reports
// which kind of failure occurred and whether a rerun can help.
package resilience

import (
	"errors"
	"net"
	"strings"
	"syscall"

	"github.com/sells-group/feedsync-cli/internal/archive"
	"github.com/sells-group/feedsync-cli/internal/feed"
	"github.com/sells-group/feedsync-cli/internal/staging"
	"github.com/sells-group/feedsync-cli/internal/transfer"
)

// Kind is the failure taxonomy for pipeline errors.
type Kind string

const (
	// KindConnectivity covers auth, connect, and timeout failures.
	// Retryable by the scheduler as-is.
	KindConnectivity Kind = "connectivity"
	// KindDataIntegrity covers size mismatches and malformed archives
	// or CSVs. A rerun without new input cannot fix these.
	KindDataIntegrity Kind = "data_integrity"
	// KindContract covers schema validation failures; they need an
	// upstream data fix.
	KindContract Kind = "contract"
	// KindPolicyGate covers date-window and month-gate failures;
	// expected, and recoverable once newer data arrives.
	KindPolicyGate Kind = "policy_gate"
	// KindUnknown is everything else.
	KindUnknown Kind = "unknown"
)

// KindOf maps an error chain onto the failure taxonomy.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, transfer.ErrConnection),
		errors.Is(err, transfer.ErrAuthentication),
		errors.Is(err, transfer.ErrRemoteFileNotFound):
		return KindConnectivity
	case errors.Is(err, transfer.ErrSizeMismatch),
		errors.Is(err, archive.ErrMalformedTabularData),
		errors.Is(err, archive.ErrNoTabularFile),
		errors.Is(err, archive.ErrArchiveNotFound),
		errors.Is(err, archive.ErrNoMatchingArchive):
		return KindDataIntegrity
	case errors.Is(err, feed.ErrContractBreached),
		errors.Is(err, feed.ErrMissingSourceColumn):
		return KindContract
	case errors.Is(err, staging.ErrDateRangeOutOfWindow),
		errors.Is(err, staging.ErrStaleMonth),
		errors.Is(err, staging.ErrAllDatesUnparseable):
		return KindPolicyGate
	case isTransientNetwork(err):
		return KindConnectivity
	default:
		return KindUnknown
	}
}

// IsRetryable reports whether an immediate rerun by the scheduler can
// succeed. Only connectivity failures qualify; policy gates clear on
// their own once new data arrives and everything else needs a fix.
func IsRetryable(err error) bool {
	return KindOf(err) == KindConnectivity
}

// isTransientNetwork matches network-level failure patterns that may
// not carry a transfer sentinel, e.g. a reset mid-copy.
func isTransientNetwork(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	msg := strings.ToLower(err.Error())
	patterns := []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"no such host",
		"i/o timeout",
		"handshake failed",
	}
	for _, p := range patterns {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}
