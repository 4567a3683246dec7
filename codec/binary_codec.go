package codec

import (
	"encoding/binary"
	"fmt"
	"math"

	"ocpp-rpc/message"
)

// BinaryCodec lays an envelope out as length-prefixed fields:
//
//	Call:       tag(1) idLen(2) id actionLen(2) action payloadLen(4) payload
//	CallResult: tag(1) idLen(2) id payloadLen(4) payload
//	CallError:  tag(1) idLen(2) id codeLen(2) code descLen(2) desc detailsLen(4) details
type BinaryCodec struct{}

func (c *BinaryCodec) Encode(env message.Envelope) ([]byte, error) {
	if env == nil || env.UniqueID() == "" {
		return nil, fmt.Errorf("BinaryCodec: envelope without id")
	}
	w := &binaryWriter{}
	w.byte(byte(env.MessageType()))
	w.short(env.UniqueID())

	switch e := env.(type) {
	case *message.Call:
		if e.Action == "" {
			return nil, fmt.Errorf("BinaryCodec: call %s without action", e.ID)
		}
		payload, err := objectOrEmpty(e.Payload)
		if err != nil {
			return nil, err
		}
		w.short(e.Action)
		w.long(payload)
	case *message.CallResult:
		payload, err := objectOrEmpty(e.Payload)
		if err != nil {
			return nil, err
		}
		w.long(payload)
	case *message.CallError:
		if e.Code == "" {
			return nil, fmt.Errorf("BinaryCodec: call error %s without code", e.ID)
		}
		details, err := objectOrEmpty(e.Details)
		if err != nil {
			return nil, err
		}
		w.short(string(e.Code))
		w.short(e.Description)
		w.long(details)
	default:
		return nil, fmt.Errorf("BinaryCodec: unsupported envelope %T", env)
	}
	if w.err != nil {
		return nil, w.err
	}
	return w.buf, nil
}

func (c *BinaryCodec) Decode(data []byte) (message.Envelope, error) {
	r := &binaryReader{data: data}
	tag, ok := r.byte()
	if !ok {
		return nil, &DecodeError{Err: formation("empty frame")}
	}
	de := &DecodeError{Type: message.Type(tag)}
	switch de.Type {
	case message.TypeCall, message.TypeCallResult, message.TypeCallError:
	default:
		// A readable id still lets the session answer the peer.
		de.ID, _ = r.short()
		de.Err = message.NewError(message.CodeMessageTypeNotSupported, "message type %d is not supported", tag)
		return nil, de
	}
	id, ok := r.short()
	if !ok {
		de.Err = formation("truncated unique id")
		return nil, de
	}
	de.ID = id

	var env message.Envelope
	switch de.Type {
	case message.TypeCall:
		action, ok1 := r.short()
		payload, ok2 := r.long()
		if !ok1 || !ok2 {
			de.Err = formation("truncated call")
			return nil, de
		}
		if action == "" {
			de.Err = formation("action must be a non-empty string")
			return nil, de
		}
		if !isObject(payload) {
			de.Err = formation("payload of %s must be a JSON object", action)
			return nil, de
		}
		env = &message.Call{ID: id, Action: action, Payload: clone(payload)}
	case message.TypeCallResult:
		payload, ok := r.long()
		if !ok {
			de.Err = formation("truncated call result")
			return nil, de
		}
		if !isObject(payload) {
			de.Err = formation("payload must be a JSON object")
			return nil, de
		}
		env = &message.CallResult{ID: id, Payload: clone(payload)}
	case message.TypeCallError:
		code, ok1 := r.short()
		desc, ok2 := r.short()
		details, ok3 := r.long()
		if !ok1 || !ok2 || !ok3 {
			de.Err = formation("truncated call error")
			return nil, de
		}
		if code == "" {
			de.Err = formation("error code must be a non-empty string")
			return nil, de
		}
		if !isObject(details) {
			de.Err = formation("error details must be a JSON object")
			return nil, de
		}
		env = &message.CallError{ID: id, Code: message.ErrorCode(code), Description: desc, Details: clone(details)}
	}

	if id == "" {
		de.Err = formation("unique id must be a non-empty string")
		return nil, de
	}
	if r.off != len(data) {
		de.Err = formation("%d trailing bytes", len(data)-r.off)
		return nil, de
	}
	return env, nil
}

func (c *BinaryCodec) Type() Type {
	return TypeBinary
}

type binaryWriter struct {
	buf []byte
	err error
}

func (w *binaryWriter) byte(b byte) {
	w.buf = append(w.buf, b)
}

// short writes a string with a 2-byte length prefix.
func (w *binaryWriter) short(s string) {
	if len(s) > math.MaxUint16 {
		w.err = fmt.Errorf("BinaryCodec: field of %d bytes exceeds 65535", len(s))
		return
	}
	w.buf = binary.BigEndian.AppendUint16(w.buf, uint16(len(s)))
	w.buf = append(w.buf, s...)
}

// long writes bytes with a 4-byte length prefix.
func (w *binaryWriter) long(b []byte) {
	w.buf = binary.BigEndian.AppendUint32(w.buf, uint32(len(b)))
	w.buf = append(w.buf, b...)
}

type binaryReader struct {
	data []byte
	off  int
}

func (r *binaryReader) byte() (byte, bool) {
	if r.off+1 > len(r.data) {
		return 0, false
	}
	b := r.data[r.off]
	r.off++
	return b, true
}

func (r *binaryReader) short() (string, bool) {
	if r.off+2 > len(r.data) {
		return "", false
	}
	n := int(binary.BigEndian.Uint16(r.data[r.off : r.off+2]))
	r.off += 2
	if r.off+n > len(r.data) {
		return "", false
	}
	s := string(r.data[r.off : r.off+n])
	r.off += n
	return s, true
}

func (r *binaryReader) long() ([]byte, bool) {
	if r.off+4 > len(r.data) {
		return nil, false
	}
	n := int(binary.BigEndian.Uint32(r.data[r.off : r.off+4]))
	r.off += 4
	if n < 0 || r.off+n > len(r.data) {
		return nil, false
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b, true
}
