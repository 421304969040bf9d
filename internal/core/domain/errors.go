package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrConnectionLost rejects pending push-channel requests the
	// moment the channel leaves the connected state.
	ErrConnectionLost = errors.New("connection lost")
	// ErrUnauthorized means the server refused the session; the client
	// must not reconnect automatically.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNotConnected is returned when an operation requires an open,
	// authenticated push channel.
	ErrNotConnected = errors.New("not connected")
	// ErrUnknownAction halts buffer replay on an unrecognised action
	// kind; skipping it would reorder dependent writes.
	ErrUnknownAction = errors.New("unknown buffered action kind")
	// ErrNotFound is returned by store lookups that miss.
	ErrNotFound = errors.New("entity not found")
)

// StatusError is a server rejection carried back from the request
// channel. Code is the HTTP status.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server rejected request: status %d", e.Code)
	}
	return fmt.Sprintf("server rejected request: status %d: %s", e.Code, e.Message)
}

// IsClientFault reports whether err is a 4xx-style rejection: the
// operation itself is invalid and must never be buffered for replay.
func IsClientFault(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code >= 400 && se.Code < 500
}

// IsServerFault reports whether err is a 5xx-style transient server
// failure, a candidate for buffering and later replay.
func IsServerFault(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code >= 500
}

// IsRetryable reports whether a failed write should stay in the action
// buffer: transport errors and server faults are retryable, explicit
// client faults are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code >= 500
	}
	// No HTTP status at all: the transport failed.
	return true
}
