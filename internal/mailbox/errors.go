package mailbox

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration marks errors caused by missing setup. They are never retried.
	ErrConfiguration = errors.New("configuration error")
	// ErrTransport marks fetch failures: network errors, non-2xx responses
	// and malformed payloads.
	ErrTransport = errors.New("transport error")
	// ErrReconciliationAnomaly is reported when the first page is still
	// served as an empty non-first page after a prune. It is wrapped in a
	// TransportError and not retried.
	ErrReconciliationAnomaly = errors.New("reconciliation anomaly: empty page after prune")
)

// ConfigurationError reports a required setting that is unset.
type ConfigurationError struct {
	Field string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s is not set", e.Field)
}

func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

// TransportError wraps a failed fetch.
type TransportError struct {
	Op         string
	StatusCode int // 0 when no response was received
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("%s: http %d: %v", e.Op, e.StatusCode, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: http %d", e.Op, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return e.Op + ": transport error"
	}
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

// asTransportError wraps err unless it already is a transport or
// configuration error.
func asTransportError(op string, err error) error {
	if errors.Is(err, ErrTransport) || errors.Is(err, ErrConfiguration) {
		return err
	}
	return &TransportError{Op: op, Err: err}
}
