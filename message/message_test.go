package message

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelopeTypes(t *testing.T) {
	var envs = []struct {
		env  Envelope
		want Type
	}{
		{&Call{ID: "1", Action: "Heartbeat", Payload: EmptyPayload}, TypeCall},
		{&CallResult{ID: "2", Payload: EmptyPayload}, TypeCallResult},
		{&CallError{ID: "3", Code: CodeInternalError}, TypeCallError},
	}
	for _, tc := range envs {
		assert.Equal(t, tc.want, tc.env.MessageType())
	}
	assert.Equal(t, "Call", TypeCall.String())
	assert.Equal(t, "Unknown", Type(7).String())
}

func TestErrorIsMatchesOnCode(t *testing.T) {
	remote := (&CallError{ID: "1", Code: CodeTimeout, Description: "late"}).Err()
	wrapped := fmt.Errorf("boot notification: %w", remote)

	assert.True(t, errors.Is(wrapped, ErrTimeout))
	assert.False(t, errors.Is(wrapped, ErrConnectionClosed))

	var pe *Error
	require.True(t, errors.As(wrapped, &pe))
	assert.Equal(t, "late", pe.Description)
}

func TestToCallErrorDefaultsDetails(t *testing.T) {
	ce := NewError(CodeNotSupported, "connector %d", 3).ToCallError("42")
	assert.Equal(t, "42", ce.ID)
	assert.Equal(t, CodeNotSupported, ce.Code)
	assert.Equal(t, "connector 3", ce.Description)
	assert.JSONEq(t, `{}`, string(ce.Details))

	withDetails := NewError(CodeFormationViolation, "bad").WithDetails(map[string]any{"fields": []string{"idTag"}})
	assert.JSONEq(t, `{"fields":["idTag"]}`, string(withDetails.ToCallError("1").Details))
}

func TestWireCodes(t *testing.T) {
	assert.True(t, CodeFormationViolation.Wire())
	assert.True(t, CodeMessageTypeNotSupported.Wire())
	assert.False(t, CodeTimeout.Wire())
	assert.False(t, CodeConnectionClosed.Wire())
	assert.False(t, ErrorCode("Bogus").Wire())

	assert.True(t, CodeTimeout.Known())
	assert.True(t, CodeGenericError.Known())
	assert.False(t, ErrorCode("Bogus").Known())
}
