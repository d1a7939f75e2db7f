package portal

import (
	"errors"
	"fmt"
)

// ErrNothingPending is returned when the portal has no evaluation left to submit,
// it is a normal terminal state rather than a failure.
var ErrNothingPending = errors.New("no pending evaluations")

// TransportError is a network level failure (connection, timeout, non-2xx
// status) of one portal request.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Err.Error())
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ProtocolDriftError means a page was fetched successfully but did not contain
// any of the markers it is expected to have, usually because the portal changed
// its templates.
type ProtocolDriftError struct {
	Page   string
	Detail string
	Err    error
}

func (e *ProtocolDriftError) Error() string {
	msg := fmt.Sprintf("unrecognized %s: %s", e.Page, e.Detail)
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %s", msg, e.Err.Error())
	}
	return msg
}

func (e *ProtocolDriftError) Unwrap() error {
	return e.Err
}

// AuthenticationError is returned once every login attempt has been used up.
type AuthenticationError struct {
	Attempts int
	// Reason is the last explanation given by the portal, or the last error.
	Reason string
	// Err is the error of the last attempt, nil if the portal rejected it.
	Err error
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("login failed after %d attempt(s): %s", e.Attempts, e.Reason)
}

func (e *AuthenticationError) Unwrap() error {
	return e.Err
}
