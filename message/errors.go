package message

import (
	"encoding/json"
	"fmt"
)

// ErrorCode classifies a failure. Codes up to GenericError travel on the wire inside a CallError;
// Timeout and ConnectionClosed are only ever produced locally.
type ErrorCode string

const (
	CodeNotImplemented               ErrorCode = "NotImplemented"
	CodeNotSupported                 ErrorCode = "NotSupported"
	CodeInternalError                ErrorCode = "InternalError"
	CodeProtocolError                ErrorCode = "ProtocolError"
	CodeSecurityError                ErrorCode = "SecurityError"
	CodeFormationViolation           ErrorCode = "FormationViolation"
	CodePropertyConstraintViolation  ErrorCode = "PropertyConstraintViolation"
	CodeOccurenceConstraintViolation ErrorCode = "OccurenceConstraintViolation"
	CodeTypeConstraintViolation      ErrorCode = "TypeConstraintViolation"
	CodeGenericError                 ErrorCode = "GenericError"
	CodeMessageTypeNotSupported      ErrorCode = "MessageTypeNotSupported"

	CodeTimeout          ErrorCode = "Timeout"
	CodeConnectionClosed ErrorCode = "ConnectionClosed"
)

// Wire reports whether c may be sent to the peer in a CallError.
func (c ErrorCode) Wire() bool {
	switch c {
	case CodeNotImplemented, CodeNotSupported, CodeInternalError, CodeProtocolError, CodeSecurityError,
		CodeFormationViolation, CodePropertyConstraintViolation, CodeOccurenceConstraintViolation,
		CodeTypeConstraintViolation, CodeGenericError, CodeMessageTypeNotSupported:
		return true
	}
	return false
}

// Known reports whether c is one of the codes above, local ones included.
func (c ErrorCode) Known() bool {
	return c.Wire() || c == CodeTimeout || c == CodeConnectionClosed
}

// Error is a classified protocol failure. It is what handlers return to produce a specific CallError,
// and what Call returns when the peer answered with one.
type Error struct {
	Code        ErrorCode
	Description string
	Details     json.RawMessage
}

func (e *Error) Error() string {
	if e.Description == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// NewError builds an *Error with a formatted description.
func NewError(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Description: fmt.Sprintf(format, args...)}
}

// WithDetails returns a copy of e carrying details marshalled as a JSON object.
func (e *Error) WithDetails(details map[string]any) *Error {
	out := *e
	if raw, err := json.Marshal(details); err == nil {
		out.Details = raw
	}
	return &out
}

// ToCallError builds the envelope answering the Call identified by id.
func (e *Error) ToCallError(id string) *CallError {
	details := e.Details
	if len(details) == 0 {
		details = EmptyPayload
	}
	return &CallError{ID: id, Code: e.Code, Description: e.Description, Details: details}
}

var (
	ErrTimeout          = &Error{Code: CodeTimeout, Description: "no response before the deadline"}
	ErrConnectionClosed = &Error{Code: CodeConnectionClosed, Description: "connection closed while the call was pending"}
)
