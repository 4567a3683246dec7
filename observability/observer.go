// Package observability carries the hooks a session reports through instead of a process-wide logger.
package observability

import (
	"time"

	"go.uber.org/zap"

	"ocpp-rpc/message"
)

// Observer receives the events a session cannot act on itself. Implementations must be safe for
// concurrent use and must not block.
type Observer interface {
	// UnexpectedResponse is a CallResult/CallError whose id matches no pending call.
	UnexpectedResponse(id string, typ message.Type)
	// DecodeFailure is an inbound frame that could not be decoded.
	DecodeFailure(err error)
	// HandlerFault is an inbound call whose handler failed with an undeclared error or panicked.
	HandlerFault(action string, err error)
	// CallFinished is an outbound call that completed, successfully or not.
	CallFinished(action string, took time.Duration, err error)
	StateChanged(from, to string)
}

// Nop discards every event.
var Nop Observer = nopObserver{}

type nopObserver struct{}

func (nopObserver) UnexpectedResponse(string, message.Type)   {}
func (nopObserver) DecodeFailure(error)                       {}
func (nopObserver) HandlerFault(string, error)                {}
func (nopObserver) CallFinished(string, time.Duration, error) {}
func (nopObserver) StateChanged(string, string)               {}

// Multi fans events out to every observer in order.
func Multi(observers ...Observer) Observer {
	return multi(observers)
}

type multi []Observer

func (m multi) UnexpectedResponse(id string, typ message.Type) {
	for _, o := range m {
		o.UnexpectedResponse(id, typ)
	}
}

func (m multi) DecodeFailure(err error) {
	for _, o := range m {
		o.DecodeFailure(err)
	}
}

func (m multi) HandlerFault(action string, err error) {
	for _, o := range m {
		o.HandlerFault(action, err)
	}
}

func (m multi) CallFinished(action string, took time.Duration, err error) {
	for _, o := range m {
		o.CallFinished(action, took, err)
	}
}

func (m multi) StateChanged(from, to string) {
	for _, o := range m {
		o.StateChanged(from, to)
	}
}

// LogObserver writes every event to a zap logger.
type LogObserver struct {
	logger *zap.Logger
}

func NewLogObserver(logger *zap.Logger) *LogObserver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogObserver{logger: logger}
}

func (o *LogObserver) UnexpectedResponse(id string, typ message.Type) {
	o.logger.Warn("unexpected response", zap.String("id", id), zap.Stringer("type", typ))
}

func (o *LogObserver) DecodeFailure(err error) {
	o.logger.Warn("dropping undecodable frame", zap.Error(err))
}

func (o *LogObserver) HandlerFault(action string, err error) {
	o.logger.Error("handler failed", zap.String("action", action), zap.Error(err))
}

func (o *LogObserver) CallFinished(action string, took time.Duration, err error) {
	if err != nil {
		o.logger.Info("call failed", zap.String("action", action), zap.Duration("took", took), zap.Error(err))
		return
	}
	o.logger.Debug("call finished", zap.String("action", action), zap.Duration("took", took))
}

func (o *LogObserver) StateChanged(from, to string) {
	o.logger.Info("session state", zap.String("from", from), zap.String("to", to))
}
