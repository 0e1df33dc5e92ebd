package errs

import (
	"errors"
	"fmt"
)

// Доменные сентинель-ошибки для маппинга в HTTP/gRPC коды в транспортах.
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionInactive = errors.New("session is not active")
	ErrNotHost         = errors.New("caller is not the session host")
	ErrInvalidArgument = errors.New("invalid argument")
)

// SessionError carries the error kind together with the session it refers to.
// errors.Is(err, ErrSessionNotFound) and friends work through Unwrap.
type SessionError struct {
	Kind      error
	SessionID string
	Detail    string
}

func (e *SessionError) Error() string {
	msg := e.Kind.Error()
	if e.SessionID != "" {
		msg = fmt.Sprintf("%s: session %s", msg, e.SessionID)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *SessionError) Unwrap() error { return e.Kind }

// New builds a SessionError of the given kind.
func New(kind error, sessionID string) *SessionError {
	return &SessionError{Kind: kind, SessionID: sessionID}
}

// Invalid reports a malformed input, e.g. an empty movie title.
func Invalid(sessionID, detail string) *SessionError {
	return &SessionError{Kind: ErrInvalidArgument, SessionID: sessionID, Detail: detail}
}

// SessionIDOf extracts the session id from err, if it carries one.
func SessionIDOf(err error) string {
	var se *SessionError
	if errors.As(err, &se) {
		return se.SessionID
	}
	return ""
}
