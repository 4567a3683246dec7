// Package codec turns envelopes into frames and back.
//
// JSON is the OCPP-J wire format and the default. Binary is a compact length-prefixed layout of the
// same three shapes, used by the framed stream transport when both ends agree on it.
package codec

import (
	"fmt"

	"ocpp-rpc/message"
)

type Type byte

const (
	TypeJSON   Type = 0
	TypeBinary Type = 1
)

type Codec interface {
	Encode(env message.Envelope) ([]byte, error)
	// Decode never returns a nil error together with a nil envelope. Failures are *DecodeError.
	Decode(data []byte) (message.Envelope, error)
	Type() Type
}

// Get returns the codec for a type byte, falling back to JSON.
func Get(t Type) Codec {
	if t == TypeBinary {
		return &BinaryCodec{}
	}
	return &JSONCodec{}
}

// DecodeError is a classified decode failure. Type and ID are filled when the frame got far enough
// for them to be read, so the session can still answer the peer or resolve a pending call.
type DecodeError struct {
	Type message.Type
	ID   string
	Err  *message.Error
}

func (e *DecodeError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("decode envelope: %v", e.Err)
	}
	return fmt.Sprintf("decode envelope %s: %v", e.ID, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func formation(format string, args ...any) *message.Error {
	return message.NewError(message.CodeFormationViolation, format, args...)
}
