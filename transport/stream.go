package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"ocpp-rpc/codec"
	"ocpp-rpc/protocol"
)

type StreamOptions struct {
	Codec codec.Type
	// HeartbeatInterval is how often an empty keepalive frame is written. Zero disables it.
	HeartbeatInterval time.Duration
	MaxBodyLen        uint32
	Logger            *zap.Logger
}

// Stream carries envelopes over a byte stream such as TCP using protocol frames.
//
//	writer ──Send──┐
//	heartbeat ─────┼──(writeMu)──→ net.Conn ──→ peer
//	               │
//	Receive ←── envelope frames (heartbeats skipped)
type Stream struct {
	conn    net.Conn
	opts    StreamOptions
	logger  *zap.Logger
	writeMu sync.Mutex // a frame must reach the conn in one piece

	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// NewStream wraps conn and starts the heartbeat loop when enabled.
func NewStream(conn net.Conn, opts StreamOptions) *Stream {
	if opts.MaxBodyLen == 0 {
		opts.MaxBodyLen = protocol.DefaultMaxBodyLen
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Stream{
		conn:   conn,
		opts:   opts,
		logger: logger.With(zap.String("remote", conn.RemoteAddr().String())),
		done:   make(chan struct{}),
	}
	if opts.HeartbeatInterval > 0 {
		go s.heartbeatLoop(opts.HeartbeatInterval)
	}
	return s
}

// DialStream connects to addr over TCP.
func DialStream(ctx context.Context, addr string, opts StreamOptions) (*Stream, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return NewStream(conn, opts), nil
}

// Codec returns the envelope codec matching the codec byte this stream writes.
func (s *Stream) Codec() codec.Codec {
	return codec.Get(s.opts.Codec)
}

func (s *Stream) Send(ctx context.Context, frame []byte) error {
	return s.write(ctx, protocol.KindEnvelope, frame)
}

func (s *Stream) write(ctx context.Context, kind protocol.Kind, body []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	deadline, _ := ctx.Deadline()
	if err := s.conn.SetWriteDeadline(deadline); err != nil {
		return s.mapErr(ctx, err)
	}
	header := &protocol.Header{CodecType: byte(s.opts.Codec), Kind: kind}
	if err := protocol.Encode(s.conn, header, body); err != nil {
		return s.mapErr(ctx, err)
	}
	return nil
}

// Receive returns the body of the next envelope frame.
func (s *Stream) Receive(ctx context.Context) ([]byte, error) {
	if err := s.conn.SetReadDeadline(time.Time{}); err != nil {
		return nil, s.mapErr(ctx, err)
	}
	stop := context.AfterFunc(ctx, func() {
		s.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	for {
		header, body, err := protocol.Decode(s.conn, s.opts.MaxBodyLen)
		if err != nil {
			return nil, s.mapErr(ctx, err)
		}
		if header.Kind == protocol.KindHeartbeat {
			continue
		}
		if codec.Type(header.CodecType) != s.opts.Codec {
			return nil, fmt.Errorf("transport: peer uses codec %d, expected %d", header.CodecType, s.opts.Codec)
		}
		return body, nil
	}
}

func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}

func (s *Stream) heartbeatLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			err := s.write(ctx, protocol.KindHeartbeat, nil)
			cancel()
			if err != nil {
				s.logger.Debug("heartbeat stopped", zap.Error(err))
				return
			}
		}
	}
}

func (s *Stream) mapErr(ctx context.Context, err error) error {
	select {
	case <-s.done:
		return ErrClosed
	default:
	}
	if errors.Is(err, os.ErrDeadlineExceeded) && ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, net.ErrClosed) {
		return ErrClosed
	}
	return err
}
