package domain

import (
	"errors"
	"strings"
)

var (
	// ErrNotConnected is returned when an intent arrives with no connected actor.
	ErrNotConnected = errors.New("wallet not connected")
	// ErrEncryptionNotReady is returned when a write or verify intent arrives
	// before the encryption subsystem reached Ready.
	ErrEncryptionNotReady = errors.New("encryption subsystem not ready")
	// ErrAlreadyInProgress rejects a duplicate intent for the same target while
	// an identical one is still in flight.
	ErrAlreadyInProgress = errors.New("operation already in progress")
	// ErrUserDeclined indicates the user rejected the signing request.
	ErrUserDeclined = errors.New("user rejected transaction")
	// ErrRecordNotFound indicates the requested record id does not exist.
	ErrRecordNotFound = errors.New("record not found")
)

// userDeclinedMarker is the rejection detail wallets embed in their errors.
const userDeclinedMarker = "user rejected transaction"

// IsUserDeclined reports whether err represents a signing rejection, either
// as the sentinel or as a gateway error carrying the rejection marker.
func IsUserDeclined(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUserDeclined) {
		return true
	}
	return strings.Contains(err.Error(), userDeclinedMarker)
}
