package main

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"ocpp-rpc/message"
	v16 "ocpp-rpc/ocpp/v16"
	"ocpp-rpc/session"
)

// chargePoint answers the calls a central system sends. Its methods become router actions.
type chargePoint struct {
	logger *zap.Logger
}

func (cp *chargePoint) ReserveNow(ctx context.Context, req *v16.ReserveNowRequest) (*v16.ReserveNowResponse, error) {
	cp.logger.Info("reservation requested",
		zap.Int("connectorId", *req.ConnectorId),
		zap.Int("reservationId", *req.ReservationId),
		zap.String("idTag", req.IdTag),
		zap.Time("expiryDate", req.ExpiryDate))
	return &v16.ReserveNowResponse{Status: v16.ReservationAccepted}, nil
}

type model struct {
	Model  string
	Vendor string
}

var defaultModel = model{Model: "EVity-01", Vendor: "IBS Corp."}

// bootNotification registers with the central system and returns the heartbeat interval it asked for.
func bootNotification(ctx context.Context, sess *session.Session, m model, logger *zap.Logger) (time.Duration, error) {
	var resp v16.BootNotificationResponse
	err := sess.Call(ctx, v16.BootNotificationRequest{ChargePointModel: m.Model, ChargePointVendor: m.Vendor}, &resp)
	if err != nil {
		return 0, err
	}
	if resp.Status == v16.RegistrationAccepted {
		logger.Info("connected to central system", zap.Int("interval", *resp.Interval))
	} else {
		logger.Warn("boot notification not accepted", zap.String("status", string(resp.Status)))
	}
	return time.Duration(*resp.Interval) * time.Second, nil
}

func authorize(ctx context.Context, sess *session.Session, idTag string, logger *zap.Logger) error {
	var resp v16.AuthorizeResponse
	if err := sess.Call(ctx, v16.AuthorizeRequest{IdTag: idTag}, &resp); err != nil {
		return err
	}
	if resp.IdTagInfo.Status == v16.AuthorizationAccepted {
		logger.Info("id tag authorized", zap.String("idTag", idTag))
		return nil
	}
	logger.Warn("id tag not authorized", zap.String("idTag", idTag), zap.String("status", string(resp.IdTagInfo.Status)))
	return nil
}

// heartbeat keeps sending Heartbeat every interval until ctx ends. Failed heartbeats are logged and
// retried on the next tick.
func heartbeat(ctx context.Context, sess *session.Session, interval time.Duration, logger *zap.Logger) error {
	if interval <= 0 {
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			var resp v16.HeartbeatResponse
			if err := sess.Call(ctx, v16.HeartbeatRequest{}, &resp); err != nil {
				if ctx.Err() != nil || errors.Is(err, message.ErrConnectionClosed) {
					return nil
				}
				logger.Warn("heartbeat failed", zap.Error(err))
				continue
			}
			logger.Debug("heartbeat", zap.Time("currentTime", resp.CurrentTime))
		}
	}
}
