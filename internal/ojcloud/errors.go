package ojcloud

import (
	"errors"
	"fmt"
)

// ErrSessionExpired marks a 401/403 on an authenticated call. The client
// recovers from it locally with exactly one re-login and retry.
var ErrSessionExpired = errors.New("session expired")

// AuthError means the login itself failed: rejected credentials or an
// unreachable login endpoint. Fatal to the calling cycle.
type AuthError struct {
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("auth failed: %s", e.Reason)
}

func (e *AuthError) Unwrap() error { return e.Err }

// CommunicationError covers network failures, timeouts and 5xx responses on
// authenticated calls. Absorbed by the poll scheduler's backoff, never fatal.
type CommunicationError struct {
	Op  string
	Err error
}

func (e *CommunicationError) Error() string {
	return fmt.Sprintf("%s: communication failure: %v", e.Op, e.Err)
}

func (e *CommunicationError) Unwrap() error { return e.Err }

// BusinessError is a vendor-reported non-zero error code on an otherwise
// successful exchange. Propagated to the caller, no automatic retry.
type BusinessError struct {
	Op   string
	Code int
}

func (e *BusinessError) Error() string {
	return fmt.Sprintf("%s: vendor error code %d", e.Op, e.Code)
}

// IsCommunication reports whether err should count against the connectivity
// flag and the scheduler's failure streak.
func IsCommunication(err error) bool {
	var ce *CommunicationError
	var ae *AuthError
	return errors.As(err, &ce) || errors.As(err, &ae)
}
