package transfer

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Sentinel errors for the transfer failure taxonomy. Connection and
// authentication failures are retryable by the external scheduler; a
// size mismatch is a data-integrity failure and is not.
var (
	ErrRemoteFileNotFound = eris.New("transfer: remote file not found")
	ErrAuthentication     = eris.New("transfer: authentication failed")
	ErrConnection         = eris.New("transfer: connection failed")
	ErrSizeMismatch       = eris.New("transfer: uploaded size does not match local size")
)

// classifyConnectErr maps a raw dial/login error onto the taxonomy.
// The original error text is kept in the wrap message.
func classifyConnectErr(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "unable to authenticate") ||
		strings.Contains(msg, "permission denied") ||
		strings.Contains(msg, "530") { // FTP: not logged in
		return eris.Wrapf(ErrAuthentication, "connect: %v", err)
	}
	return eris.Wrapf(ErrConnection, "connect: %v", err)
}
