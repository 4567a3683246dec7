package session

import (
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ocpp-rpc/codec"
	"ocpp-rpc/observability"
)

type Config struct {
	// CallTimeout bounds how long Call waits for the peer, including time spent waiting for Open.
	CallTimeout time.Duration
	// SingleOutstandingCall allows at most one outbound call in flight; others wait their turn.
	SingleOutstandingCall bool
	// MaxInboundConcurrency is how many inbound calls may be handled at once. 1 serializes them.
	MaxInboundConcurrency int64
	// InboundQueueSize is how many inbound calls may wait for a handler slot. Calls arriving when
	// the queue is full are answered with GenericError.
	InboundQueueSize int
	SendQueueSize    int
}

func DefaultConfig() Config {
	return Config{
		CallTimeout:           30 * time.Second,
		MaxInboundConcurrency: 4,
		InboundQueueSize:      16,
		SendQueueSize:         64,
	}
}

type Option func(*Session)

func WithConfig(cfg Config) Option {
	return func(s *Session) {
		s.cfg = cfg
	}
}

func WithObserver(o observability.Observer) Option {
	return func(s *Session) {
		s.observer = o
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithCodec replaces the codec picked in New: the transport's own when it has one, OCPP-J JSON otherwise.
func WithCodec(c codec.Codec) Option {
	return func(s *Session) {
		s.codec = c
	}
}

// WithIDGenerator sets the source of unique ids for outbound calls.
func WithIDGenerator(next func() string) Option {
	return func(s *Session) {
		s.nextID = next
	}
}

// SequentialIDs numbers outbound calls "1", "2", ... in issue order.
func SequentialIDs() Option {
	var n atomic.Uint64
	return WithIDGenerator(func() string {
		return strconv.FormatUint(n.Add(1), 10)
	})
}

func uuidIDs() string {
	return uuid.NewString()
}
