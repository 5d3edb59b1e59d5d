package shared

import (
	"errors"
	"fmt"
)

// The tracker explicitly rejected the request. This is the HTTP "failure reason", or the payload
// of a UDP error action.
type TrackerFailure struct {
	Reason string
}

func (me TrackerFailure) Error() string {
	return fmt.Sprintf("tracker gave failure reason: %q", me.Reason)
}

var (
	// A receive or request deadline passed, including exhausting the UDP connect backoff.
	ErrTimeout = errors.New("timed out")
	// The tracker responded with something we couldn't make sense of.
	ErrMalformedResponse = errors.New("malformed response")
	// Scrape requests can be built, but responses aren't decoded.
	ErrScrapeUnsupported = errors.New("scrape not supported")
)

// Failure beneath the tracker protocol: sockets, DNS, HTTP status.
type TransportError struct {
	Op  string
	Err error
}

func (me *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", me.Op, me.Err)
}

func (me *TransportError) Unwrap() error {
	return me.Err
}

type ErrorKind int

const (
	ErrorKindNone ErrorKind = iota
	ErrorKindTrackerFailure
	ErrorKindTimeout
	ErrorKindMalformedResponse
	ErrorKindTransport
	ErrorKindOther
)

var errorKindStrings = []string{"none", "tracker failure", "timeout", "malformed response", "transport", "other"}

func (k ErrorKind) String() string {
	if k < 0 || int(k) >= len(errorKindStrings) {
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
	return errorKindStrings[k]
}

// Classifies an error returned from an announce. Tracker failures take precedence, then timeouts,
// since transport errors can wrap timeouts.
func ErrorKindOf(err error) ErrorKind {
	if err == nil {
		return ErrorKindNone
	}
	var tf TrackerFailure
	if errors.As(err, &tf) {
		return ErrorKindTrackerFailure
	}
	if errors.Is(err, ErrTimeout) {
		return ErrorKindTimeout
	}
	if errors.Is(err, ErrMalformedResponse) {
		return ErrorKindMalformedResponse
	}
	var te *TransportError
	if errors.As(err, &te) {
		return ErrorKindTransport
	}
	return ErrorKindOther
}

// Wraps a network error, turning timeouts into ErrTimeout.
func WrapNetError(op string, err error) error {
	if err == nil {
		return nil
	}
	var to interface{ Timeout() bool }
	if errors.As(err, &to) && to.Timeout() {
		return fmt.Errorf("%s: %w: %w", op, ErrTimeout, err)
	}
	return &TransportError{Op: op, Err: err}
}
