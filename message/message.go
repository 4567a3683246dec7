// Package message defines the OCPP-J envelopes exchanged between the two endpoints of a session.
//
// Every frame on the wire is one of three shapes, told apart by a small integer tag:
//
//	Call:       [2, id, action, payload]
//	CallResult: [3, id, payload]
//	CallError:  [4, id, errorCode, errorDescription, errorDetails]
//
// The id of a CallResult/CallError always echoes the id of a Call sent by the other endpoint.
package message

import "encoding/json"

// Type is the leading tag of every envelope.
type Type int

const (
	TypeCall       Type = 2
	TypeCallResult Type = 3
	TypeCallError  Type = 4
)

func (t Type) String() string {
	switch t {
	case TypeCall:
		return "Call"
	case TypeCallResult:
		return "CallResult"
	case TypeCallError:
		return "CallError"
	default:
		return "Unknown"
	}
}

// Envelope is implemented by *Call, *CallResult and *CallError.
type Envelope interface {
	MessageType() Type
	UniqueID() string
}

// Call carries a request for Action.
//
//   - Payload is a JSON object, possibly empty ("{}").
type Call struct {
	ID      string
	Action  string
	Payload json.RawMessage
}

// CallResult is the successful answer to a Call with the same ID.
type CallResult struct {
	ID      string
	Payload json.RawMessage
}

// CallError is the failed answer to a Call with the same ID.
type CallError struct {
	ID          string
	Code        ErrorCode
	Description string
	Details     json.RawMessage // JSON object, "{}" when there is nothing to add
}

func (c *Call) MessageType() Type       { return TypeCall }
func (c *Call) UniqueID() string        { return c.ID }
func (c *CallResult) MessageType() Type { return TypeCallResult }
func (c *CallResult) UniqueID() string  { return c.ID }
func (c *CallError) MessageType() Type  { return TypeCallError }
func (c *CallError) UniqueID() string   { return c.ID }

// Err turns the envelope into the error a caller observes.
func (c *CallError) Err() *Error {
	return &Error{Code: c.Code, Description: c.Description, Details: c.Details}
}

// Request is an outbound payload that knows which action it belongs to.
type Request interface {
	Action() string
}

// EmptyPayload is the payload used when a shape requires an object but nothing was supplied.
var EmptyPayload = json.RawMessage("{}")
