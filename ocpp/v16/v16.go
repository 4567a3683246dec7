// Package v16 holds the OCPP 1.6 payloads used by the charge point example: the two calls it sends
// (BootNotification, Authorize), Heartbeat, and the ReserveNow call it answers.
//
// Field constraints follow the 1.6 JSON schemas and are checked by package schema.
package v16

import (
	"time"

	"ocpp-rpc/message"
)

const Subprotocol = "ocpp1.6"

const (
	ActionBootNotification = "BootNotification"
	ActionAuthorize        = "Authorize"
	ActionHeartbeat        = "Heartbeat"
	ActionReserveNow       = "ReserveNow"
)

type RegistrationStatus string

const (
	RegistrationAccepted RegistrationStatus = "Accepted"
	RegistrationPending  RegistrationStatus = "Pending"
	RegistrationRejected RegistrationStatus = "Rejected"
)

type AuthorizationStatus string

const (
	AuthorizationAccepted     AuthorizationStatus = "Accepted"
	AuthorizationBlocked      AuthorizationStatus = "Blocked"
	AuthorizationExpired      AuthorizationStatus = "Expired"
	AuthorizationInvalid      AuthorizationStatus = "Invalid"
	AuthorizationConcurrentTx AuthorizationStatus = "ConcurrentTx"
)

type ReservationStatus string

const (
	ReservationAccepted    ReservationStatus = "Accepted"
	ReservationFaulted     ReservationStatus = "Faulted"
	ReservationOccupied    ReservationStatus = "Occupied"
	ReservationRejected    ReservationStatus = "Rejected"
	ReservationUnavailable ReservationStatus = "Unavailable"
)

type BootNotificationRequest struct {
	ChargePointModel        string `json:"chargePointModel" validate:"required,max=20"`
	ChargePointVendor       string `json:"chargePointVendor" validate:"required,max=20"`
	ChargeBoxSerialNumber   string `json:"chargeBoxSerialNumber,omitempty" validate:"max=25"`
	ChargePointSerialNumber string `json:"chargePointSerialNumber,omitempty" validate:"max=25"`
	FirmwareVersion         string `json:"firmwareVersion,omitempty" validate:"max=50"`
	Iccid                   string `json:"iccid,omitempty" validate:"max=20"`
	Imsi                    string `json:"imsi,omitempty" validate:"max=20"`
	MeterSerialNumber       string `json:"meterSerialNumber,omitempty" validate:"max=25"`
	MeterType               string `json:"meterType,omitempty" validate:"max=25"`
}

func (BootNotificationRequest) Action() string { return ActionBootNotification }

type BootNotificationResponse struct {
	Status      RegistrationStatus `json:"status" validate:"required,oneof=Accepted Pending Rejected"`
	CurrentTime time.Time          `json:"currentTime" validate:"required"`
	Interval    *int               `json:"interval" validate:"required,gte=0"`
}

type AuthorizeRequest struct {
	IdTag string `json:"idTag" validate:"required,max=20"`
}

func (AuthorizeRequest) Action() string { return ActionAuthorize }

type IdTagInfo struct {
	Status      AuthorizationStatus `json:"status" validate:"required,oneof=Accepted Blocked Expired Invalid ConcurrentTx"`
	ExpiryDate  *time.Time          `json:"expiryDate,omitempty"`
	ParentIdTag string              `json:"parentIdTag,omitempty" validate:"max=20"`
}

type AuthorizeResponse struct {
	IdTagInfo IdTagInfo `json:"idTagInfo" validate:"required"`
}

type HeartbeatRequest struct{}

func (HeartbeatRequest) Action() string { return ActionHeartbeat }

type HeartbeatResponse struct {
	CurrentTime time.Time `json:"currentTime" validate:"required"`
}

type ReserveNowRequest struct {
	ConnectorId   *int      `json:"connectorId" validate:"required,gte=0"`
	ExpiryDate    time.Time `json:"expiryDate" validate:"required"`
	IdTag         string    `json:"idTag" validate:"required,max=20"`
	ParentIdTag   string    `json:"parentIdTag,omitempty" validate:"max=20"`
	ReservationId *int      `json:"reservationId" validate:"required"`
}

func (ReserveNowRequest) Action() string { return ActionReserveNow }

type ReserveNowResponse struct {
	Status ReservationStatus `json:"status" validate:"required,oneof=Accepted Faulted Occupied Rejected Unavailable"`
}

// Int returns a pointer to v, for the required integer fields.
func Int(v int) *int { return &v }

var (
	_ message.Request = BootNotificationRequest{}
	_ message.Request = AuthorizeRequest{}
	_ message.Request = HeartbeatRequest{}
	_ message.Request = ReserveNowRequest{}
)
