// Package protocol implements the frame layer used when envelopes travel over a raw byte stream
// instead of a message-oriented connection such as a websocket.
//
// A fixed 10-byte header followed by a variable-length body keeps frame boundaries intact on TCP.
//
// Frame format:
//
//	0      3  4  5  6         10
//	┌──────┬──┬──┬──┬─────────┬───────────────┐
//	│magic │v │ct│fk│ bodyLen │    body ...    │
//	│ ocp  │01│  │  │ uint32  │ bodyLen bytes  │
//	└──────┴──┴──┴──┴─────────┴───────────────┘
//
// Correlation is not part of the frame: the envelope inside the body carries its own unique id.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	MagicByte1 byte = 0x6f // 'o'
	MagicByte2 byte = 0x63 // 'c'
	MagicByte3 byte = 0x70 // 'p'
	Version    byte = 0x01
	HeaderSize int  = 10 // 3 (magic) + 1 (version) + 1 (codec) + 1 (kind) + 4 (bodyLen)

	// DefaultMaxBodyLen bounds a single frame so a corrupt length cannot make the reader allocate gigabytes.
	DefaultMaxBodyLen uint32 = 4 << 20
)

var (
	ErrInvalidMagic       = errors.New("protocol: invalid magic")
	ErrUnsupportedVersion = errors.New("protocol: unsupported version")
	ErrPayloadTooLarge    = errors.New("protocol: payload too large")
)

// Kind distinguishes envelope frames from keepalive frames.
type Kind byte

const (
	KindEnvelope  Kind = 0
	KindHeartbeat Kind = 1 // no body
)

// Header is the fixed frame header.
type Header struct {
	CodecType byte // codec.Type of the body
	Kind      Kind
	BodyLen   uint32
}

// Encode writes header and body to w as a single Write so that a frame is never split between
// concurrent writers. The caller still serializes writers.
func Encode(w io.Writer, h *Header, body []byte) error {
	buf := make([]byte, HeaderSize+len(body))
	buf[0], buf[1], buf[2] = MagicByte1, MagicByte2, MagicByte3
	buf[3] = Version
	buf[4] = h.CodecType
	buf[5] = byte(h.Kind)
	binary.BigEndian.PutUint32(buf[6:10], uint32(len(body)))
	copy(buf[HeaderSize:], body)

	_, err := w.Write(buf)
	return err
}

// Decode reads one frame from r, rejecting bodies larger than maxBodyLen (0 means DefaultMaxBodyLen).
func Decode(r io.Reader, maxBodyLen uint32) (*Header, []byte, error) {
	if maxBodyLen == 0 {
		maxBodyLen = DefaultMaxBodyLen
	}
	headerBuf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, headerBuf); err != nil {
		return nil, nil, err
	}

	if headerBuf[0] != MagicByte1 || headerBuf[1] != MagicByte2 || headerBuf[2] != MagicByte3 {
		return nil, nil, fmt.Errorf("%w: %x", ErrInvalidMagic, headerBuf[0:3])
	}
	if headerBuf[3] != Version {
		return nil, nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, headerBuf[3])
	}
	kind := Kind(headerBuf[5])
	if kind != KindEnvelope && kind != KindHeartbeat {
		return nil, nil, fmt.Errorf("protocol: unsupported frame kind: %d", kind)
	}

	bodyLen := binary.BigEndian.Uint32(headerBuf[6:10])
	if bodyLen > maxBodyLen {
		return nil, nil, fmt.Errorf("%w: %d > %d", ErrPayloadTooLarge, bodyLen, maxBodyLen)
	}
	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, nil, err
	}

	return &Header{
		CodecType: headerBuf[4],
		Kind:      kind,
		BodyLen:   bodyLen,
	}, body, nil
}
