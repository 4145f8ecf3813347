package metaapi

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrConnectionClosed is returned to every in-flight request when the
	// client is closed.
	ErrConnectionClosed = errors.New("connection closed")
	// ErrClientClosed is returned when an operation is attempted on a closed
	// client.
	ErrClientClosed = errors.New("client closed")
)

// ValidationError means the server rejected the request schema. Details
// carries the server-side validation report.
type ValidationError struct {
	Message string
	Details json.RawMessage
}

func (e *ValidationError) Error() string { return e.Message }

// NotFoundError means the requested entity does not exist on the server.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// NotSynchronizedError means the operation requires terminal state that has
// not been synchronized yet.
type NotSynchronizedError struct {
	Message string
}

func (e *NotSynchronizedError) Error() string { return e.Message }

// NotConnectedError means the server-side connection to the trading terminal
// is not established.
type NotConnectedError struct {
	Message string
}

func (e *NotConnectedError) Error() string { return e.Message }

// TimeoutError means a request deadline expired before the server replied.
type TimeoutError struct {
	Message string
}

func (e *TimeoutError) Error() string { return e.Message }

// TradeError means the trade was rejected by the trading platform. It carries
// the platform return codes.
type TradeError struct {
	Message     string
	NumericCode int
	StringCode  string
}

func (e *TradeError) Error() string { return e.Message }

// UnauthorizedError means the auth token was rejected. It is fatal: the client
// closes the transport before reporting it.
type UnauthorizedError struct {
	Message string
}

func (e *UnauthorizedError) Error() string { return e.Message }

// InternalError is any other server-side failure.
type InternalError struct {
	Message string
}

func (e *InternalError) Error() string { return e.Message }

// processingError is the wire envelope of an RPC failure pushed by the server.
type processingError struct {
	RequestID   string          `json:"requestId"`
	Name        string          `json:"error"`
	Message     string          `json:"message"`
	Details     json.RawMessage `json:"details,omitempty"`
	NumericCode int             `json:"numericCode,omitempty"`
	StringCode  string          `json:"stringCode,omitempty"`
}

// errorFromWire translates a server error name into a typed error. This is the
// only place wire names are interpreted.
func errorFromWire(pe processingError) error {
	switch pe.Name {
	case "ValidationError":
		return &ValidationError{Message: pe.Message, Details: pe.Details}
	case "NotFoundError":
		return &NotFoundError{Message: pe.Message}
	case "NotSynchronizedError":
		return &NotSynchronizedError{Message: pe.Message}
	case "TimeoutError":
		return &TimeoutError{Message: pe.Message}
	case "NotAuthenticatedError":
		return &NotConnectedError{Message: pe.Message}
	case "TradeError":
		return &TradeError{Message: pe.Message, NumericCode: pe.NumericCode, StringCode: pe.StringCode}
	case "UnauthorizedError":
		return &UnauthorizedError{Message: pe.Message}
	default:
		return &InternalError{Message: fmt.Sprintf("%s: %s", pe.Name, pe.Message)}
	}
}

// isErrorFatal returns whether the error must tear down the transport in
// addition to being reported to the caller that received it.
func isErrorFatal(err error) bool {
	var unauthorized *UnauthorizedError
	return errors.As(err, &unauthorized)
}
