package v16

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ocpp-rpc/message"
	"ocpp-rpc/schema"
)

func TestBootNotificationConstraints(t *testing.T) {
	ok := BootNotificationRequest{ChargePointModel: "EVity-01", ChargePointVendor: "IBS Corp."}
	assert.NoError(t, schema.Validate(ok))

	tooLong := ok
	tooLong.ChargePointModel = "a-model-name-longer-than-twenty"
	err := schema.Validate(tooLong)
	assert.True(t, errors.Is(err, &message.Error{Code: message.CodeFormationViolation}))
	assert.Contains(t, err.Error(), "chargePointModel")
}

func TestReserveNowBind(t *testing.T) {
	var req ReserveNowRequest
	err := schema.Bind(json.RawMessage(`{
		"connectorId": 1,
		"expiryDate": "2026-10-19T12:00:00Z",
		"idTag": "123456",
		"parentIdTag": "",
		"reservationId": 7
	}`), &req)
	require.NoError(t, err)
	require.NotNil(t, req.ConnectorId)
	assert.Equal(t, 1, *req.ConnectorId)
	assert.Equal(t, 7, *req.ReservationId)
	assert.Equal(t, 2026, req.ExpiryDate.Year())

	err = schema.Bind(json.RawMessage(`{"connectorId":1,"idTag":"123456","reservationId":7}`), &ReserveNowRequest{})
	require.Error(t, err)
	var pe *message.Error
	require.True(t, errors.As(err, &pe))
	assert.Contains(t, string(pe.Details), "expiryDate")
}

func TestAuthorizeResponseNestedStatus(t *testing.T) {
	var resp AuthorizeResponse
	require.NoError(t, schema.Bind(json.RawMessage(`{"idTagInfo":{"status":"Accepted"}}`), &resp))
	assert.Equal(t, AuthorizationAccepted, resp.IdTagInfo.Status)

	err := schema.Bind(json.RawMessage(`{"idTagInfo":{"status":"Maybe"}}`), &AuthorizeResponse{})
	var pe *message.Error
	require.True(t, errors.As(err, &pe))
	assert.Contains(t, string(pe.Details), "idTagInfo.status")
}

func TestActions(t *testing.T) {
	assert.Equal(t, "BootNotification", BootNotificationRequest{}.Action())
	assert.Equal(t, "Authorize", AuthorizeRequest{}.Action())
	assert.Equal(t, "Heartbeat", HeartbeatRequest{}.Action())
	assert.Equal(t, "ReserveNow", ReserveNowRequest{}.Action())
}

func TestReserveNowRequiresIntegerFields(t *testing.T) {
	err := schema.Bind(json.RawMessage(`{"expiryDate":"2026-10-19T12:00:00Z","idTag":"x"}`), &ReserveNowRequest{})
	var pe *message.Error
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, message.CodeFormationViolation, pe.Code)
	assert.JSONEq(t, `{"fields":{"connectorId":"required","reservationId":"required"}}`, string(pe.Details))

	err = schema.Bind(json.RawMessage(`{"connectorId":"one","expiryDate":"2026-10-19T12:00:00Z","idTag":"x","reservationId":1}`), &ReserveNowRequest{})
	require.True(t, errors.As(err, &pe))
	assert.JSONEq(t, `{"fields":{"connectorId":"type"}}`, string(pe.Details))

	var req ReserveNowRequest
	require.NoError(t, schema.Bind(json.RawMessage(`{"connectorId":0,"expiryDate":"2026-10-19T12:00:00Z","idTag":"x","reservationId":0}`), &req))
	assert.Equal(t, 0, *req.ConnectorId)
}

func TestBootNotificationResponseRequiredFields(t *testing.T) {
	err := schema.Bind(json.RawMessage(`{"status":"Accepted"}`), &BootNotificationResponse{})
	var pe *message.Error
	require.True(t, errors.As(err, &pe))
	assert.JSONEq(t, `{"fields":{"currentTime":"required","interval":"required"}}`, string(pe.Details))

	var resp BootNotificationResponse
	require.NoError(t, schema.Bind(json.RawMessage(`{"status":"Pending","currentTime":"2026-10-19T10:00:00Z","interval":0}`), &resp))
	assert.Equal(t, 0, *resp.Interval)
}
