package catalog

import (
	"errors"
	"fmt"
)

// ErrNetwork matches every catalog failure via errors.Is.
var ErrNetwork = errors.New("catalog request failed")

// NetworkError describes a failed catalog call: a transport failure, a non-2xx
// response, or a response body that could not be understood.
type NetworkError struct {
	// Op is the catalog operation, e.g. OpListRasterFiles
	Op string
	// StatusCode is the HTTP status, or 0 when no response was received
	StatusCode int
	// Message is the response status text for non-2xx responses
	Message string
	Err     error
}

func (e *NetworkError) Error() string {
	msg := e.Message
	if msg == "" && e.StatusCode != 0 {
		msg = fmt.Sprintf("status %d", e.StatusCode)
	}
	switch {
	case msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, msg, e.Err)
	case msg != "":
		return fmt.Sprintf("%s: %s", e.Op, msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return e.Op + ": " + ErrNetwork.Error()
	}
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// Is reports true for ErrNetwork so callers need not type-assert.
func (e *NetworkError) Is(target error) bool {
	return target == ErrNetwork
}

// Retryable reports whether repeating the request could succeed: transport
// failures, 5xx responses and 429.
func (e *NetworkError) Retryable() bool {
	if e.StatusCode == 0 {
		return e.Err != nil
	}
	return e.StatusCode >= 500 || e.StatusCode == 429
}
