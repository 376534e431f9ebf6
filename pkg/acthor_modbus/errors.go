package acthor_modbus

import (
	"fmt"
)

// ConnectionState tracks the health of a Session's link to the device.
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateDegraded
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDegraded:
		return "degraded"
	default:
		return fmt.Sprintf("ConnectionState(%d)", int(s))
	}
}

type RequestErrorKind int

const (
	// RequestBusy: another request is already in flight on this Session.
	RequestBusy RequestErrorKind = iota
	// RequestTimeout: the request deadline elapsed before a response arrived.
	RequestTimeout
	// RequestProtocol: the device answered with an exception code or a
	// malformed response.
	RequestProtocol
	// RequestTransport: a connection-level failure. Always hard.
	RequestTransport
)

func (k RequestErrorKind) String() string {
	switch k {
	case RequestBusy:
		return "busy"
	case RequestTimeout:
		return "timeout"
	case RequestProtocol:
		return "protocol"
	case RequestTransport:
		return "transport"
	default:
		return fmt.Sprintf("RequestErrorKind(%d)", int(k))
	}
}

// RequestError describes a failed read or write request. Busy, Timeout and
// Protocol are soft failures, Transport is a hard failure that closes the
// connection.
type RequestError struct {
	Kind RequestErrorKind
	// ExceptionCode carries the Modbus exception code for protocol errors.
	ExceptionCode uint8
	Err           error
}

func (e *RequestError) Error() string {
	switch {
	case e.Kind == RequestProtocol && e.ExceptionCode > 0:
		return fmt.Sprintf("modbus request: %s (exception 0x%02x): %v", e.Kind, e.ExceptionCode, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("modbus request: %s: %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("modbus request: %s", e.Kind)
	}
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// Soft reports whether the failure is recoverable by retrying the request.
func (e *RequestError) Soft() bool {
	return e.Kind != RequestTransport
}

// ConnectError is returned by Session.Connect when the transport cannot be
// opened. The caller decides when to retry.
type ConnectError struct {
	Err error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("modbus connect: %v", e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// DecodeError indicates raw register words that do not match the field's
// declared shape. Never retried: it points at a register map mismatch.
type DecodeError struct {
	Field  string
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %s", e.Field, e.Reason)
}

// EncodeError indicates a domain value that cannot be written to a field.
type EncodeError struct {
	Field      string
	Reason     string
	OutOfRange bool
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("encode %s: %s", e.Field, e.Reason)
}

// PollError wraps the failure that aborted a poll cycle after retries were
// exhausted (soft failures) or immediately (hard and decode failures).
type PollError struct {
	Attempts int
	Err      error
}

func (e *PollError) Error() string {
	return fmt.Sprintf("poll cycle failed after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *PollError) Unwrap() error {
	return e.Err
}

// UnknownDeviceModelError is returned at construction time when the device
// identity read on connect does not map to a supported register map.
type UnknownDeviceModelError struct {
	Serial string
}

func (e *UnknownDeviceModelError) Error() string {
	return fmt.Sprintf("unknown device model for serial number %q", e.Serial)
}
