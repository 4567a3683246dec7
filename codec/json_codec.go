package codec

import (
	"bytes"
	stdjson "encoding/json"
	"fmt"

	jsoniter "github.com/json-iterator/go"

	"ocpp-rpc/message"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// JSONCodec reads and writes OCPP-J arrays.
type JSONCodec struct{}

func (c *JSONCodec) Encode(env message.Envelope) ([]byte, error) {
	if env == nil || env.UniqueID() == "" {
		return nil, fmt.Errorf("JSONCodec: envelope without id")
	}
	switch e := env.(type) {
	case *message.Call:
		if e.Action == "" {
			return nil, fmt.Errorf("JSONCodec: call %s without action", e.ID)
		}
		payload, err := objectOrEmpty(e.Payload)
		if err != nil {
			return nil, err
		}
		return json.Marshal([]any{int(message.TypeCall), e.ID, e.Action, payload})
	case *message.CallResult:
		payload, err := objectOrEmpty(e.Payload)
		if err != nil {
			return nil, err
		}
		return json.Marshal([]any{int(message.TypeCallResult), e.ID, payload})
	case *message.CallError:
		if e.Code == "" {
			return nil, fmt.Errorf("JSONCodec: call error %s without code", e.ID)
		}
		details, err := objectOrEmpty(e.Details)
		if err != nil {
			return nil, err
		}
		return json.Marshal([]any{int(message.TypeCallError), e.ID, string(e.Code), e.Description, details})
	default:
		return nil, fmt.Errorf("JSONCodec: unsupported envelope %T", env)
	}
}

func (c *JSONCodec) Decode(data []byte) (message.Envelope, error) {
	var fields []stdjson.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, &DecodeError{Err: formation("envelope is not a JSON array")}
	}
	if len(fields) == 0 {
		return nil, &DecodeError{Err: formation("empty envelope")}
	}

	var tag int
	if err := json.Unmarshal(fields[0], &tag); err != nil {
		return nil, &DecodeError{Err: formation("message type is not an integer")}
	}
	de := &DecodeError{Type: message.Type(tag)}
	if len(fields) > 1 {
		de.ID, _ = decodeString(fields[1])
	}

	var arity int
	switch de.Type {
	case message.TypeCall:
		arity = 4
	case message.TypeCallResult:
		arity = 3
	case message.TypeCallError:
		arity = 5
	default:
		de.Err = message.NewError(message.CodeMessageTypeNotSupported, "message type %d is not supported", tag)
		return nil, de
	}
	if len(fields) != arity {
		de.Err = formation("%s needs %d elements, got %d", de.Type, arity, len(fields))
		return nil, de
	}
	if de.ID == "" {
		de.Err = formation("unique id must be a non-empty string")
		return nil, de
	}

	switch de.Type {
	case message.TypeCall:
		action, ok := decodeString(fields[2])
		if !ok || action == "" {
			de.Err = formation("action must be a non-empty string")
			return nil, de
		}
		if !isObject(fields[3]) {
			de.Err = formation("payload of %s must be a JSON object", action)
			return nil, de
		}
		return &message.Call{ID: de.ID, Action: action, Payload: clone(fields[3])}, nil
	case message.TypeCallResult:
		if !isObject(fields[2]) {
			de.Err = formation("payload must be a JSON object")
			return nil, de
		}
		return &message.CallResult{ID: de.ID, Payload: clone(fields[2])}, nil
	default:
		code, ok := decodeString(fields[2])
		if !ok || code == "" {
			de.Err = formation("error code must be a non-empty string")
			return nil, de
		}
		desc, ok := decodeString(fields[3])
		if !ok {
			de.Err = formation("error description must be a string")
			return nil, de
		}
		if !isObject(fields[4]) {
			de.Err = formation("error details must be a JSON object")
			return nil, de
		}
		return &message.CallError{
			ID:          de.ID,
			Code:        message.ErrorCode(code),
			Description: desc,
			Details:     clone(fields[4]),
		}, nil
	}
}

func (c *JSONCodec) Type() Type {
	return TypeJSON
}

func decodeString(raw stdjson.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '"' {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

func isObject(raw []byte) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) >= 2 && raw[0] == '{' && raw[len(raw)-1] == '}' && json.Valid(raw)
}

func objectOrEmpty(raw stdjson.RawMessage) (stdjson.RawMessage, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return message.EmptyPayload, nil
	}
	if !isObject(raw) {
		return nil, fmt.Errorf("JSONCodec: payload must be a JSON object")
	}
	return raw, nil
}

func clone(raw []byte) stdjson.RawMessage {
	return append(stdjson.RawMessage(nil), bytes.TrimSpace(raw)...)
}
