package codec

import (
	stdjson "encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ocpp-rpc/message"
)

var envelopes = []message.Envelope{
	&message.Call{ID: "1", Action: "BootNotification", Payload: stdjson.RawMessage(`{"chargePointModel":"EVity-01","chargePointVendor":"IBS Corp."}`)},
	&message.Call{ID: "hb", Action: "Heartbeat", Payload: stdjson.RawMessage(`{}`)},
	&message.CallResult{ID: "1", Payload: stdjson.RawMessage(`{"status":"Accepted"}`)},
	&message.CallResult{ID: "x", Payload: stdjson.RawMessage(`{}`)},
	&message.CallError{ID: "9", Code: message.CodeNotImplemented, Description: "no handler for Foo", Details: stdjson.RawMessage(`{}`)},
	&message.CallError{ID: "10", Code: message.CodeFormationViolation, Description: "", Details: stdjson.RawMessage(`{"fields":{"idTag":"required"}}`)},
}

func TestRoundTrip(t *testing.T) {
	for _, cdc := range []Codec{Get(TypeJSON), Get(TypeBinary)} {
		for _, env := range envelopes {
			data, err := cdc.Encode(env)
			require.NoError(t, err)

			out, err := cdc.Decode(data)
			require.NoError(t, err, "codec %d, frame %q", cdc.Type(), data)
			assert.Equal(t, env, out)
		}
	}
}

func TestJSONWireShape(t *testing.T) {
	cdc := &JSONCodec{}
	data, err := cdc.Encode(&message.Call{ID: "2", Action: "Authorize", Payload: stdjson.RawMessage(`{"idTag":"123456"}`)})
	require.NoError(t, err)
	assert.JSONEq(t, `[2,"2","Authorize",{"idTag":"123456"}]`, string(data))

	data, err = cdc.Encode(&message.CallResult{ID: "2"})
	require.NoError(t, err)
	assert.JSONEq(t, `[3,"2",{}]`, string(data))

	data, err = cdc.Encode(&message.CallError{ID: "3", Code: message.CodeInternalError, Description: "boom"})
	require.NoError(t, err)
	assert.JSONEq(t, `[4,"3","InternalError","boom",{}]`, string(data))
}

func TestJSONDecodeClassification(t *testing.T) {
	cases := []struct {
		name  string
		frame string
		code  message.ErrorCode
		typ   message.Type
		id    string
	}{
		{"not json", `hello`, message.CodeFormationViolation, 0, ""},
		{"object", `{"a":1}`, message.CodeFormationViolation, 0, ""},
		{"empty array", `[]`, message.CodeFormationViolation, 0, ""},
		{"string tag", `["2","1","Heartbeat",{}]`, message.CodeFormationViolation, 0, ""},
		{"unknown tag", `[5,"7","Heartbeat",{}]`, message.CodeMessageTypeNotSupported, 5, "7"},
		{"call arity", `[2,"1","Heartbeat"]`, message.CodeFormationViolation, message.TypeCall, "1"},
		{"result arity", `[3,"1",{},{}]`, message.CodeFormationViolation, message.TypeCallResult, "1"},
		{"error arity", `[4,"1","InternalError",{}]`, message.CodeFormationViolation, message.TypeCallError, "1"},
		{"empty id", `[2,"","Heartbeat",{}]`, message.CodeFormationViolation, message.TypeCall, ""},
		{"numeric id", `[2,17,"Heartbeat",{}]`, message.CodeFormationViolation, message.TypeCall, ""},
		{"empty action", `[2,"1","",{}]`, message.CodeFormationViolation, message.TypeCall, "1"},
		{"array payload", `[2,"1","Heartbeat",[]]`, message.CodeFormationViolation, message.TypeCall, "1"},
		{"null payload", `[3,"1",null]`, message.CodeFormationViolation, message.TypeCallResult, "1"},
		{"empty code", `[4,"1","","x",{}]`, message.CodeFormationViolation, message.TypeCallError, "1"},
		{"numeric description", `[4,"1","InternalError",3,{}]`, message.CodeFormationViolation, message.TypeCallError, "1"},
	}
	cdc := &JSONCodec{}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env, err := cdc.Decode([]byte(tc.frame))
			require.Error(t, err)
			assert.Nil(t, env)

			var de *DecodeError
			require.True(t, errors.As(err, &de))
			assert.Equal(t, tc.code, de.Err.Code)
			assert.Equal(t, tc.typ, de.Type)
			assert.Equal(t, tc.id, de.ID)
			assert.True(t, errors.Is(err, &message.Error{Code: tc.code}))
		})
	}
}

func TestEncodeRejectsInvalidEnvelopes(t *testing.T) {
	for _, cdc := range []Codec{&JSONCodec{}, &BinaryCodec{}} {
		_, err := cdc.Encode(&message.Call{Action: "Heartbeat"})
		assert.Error(t, err)
		_, err = cdc.Encode(&message.Call{ID: "1"})
		assert.Error(t, err)
		_, err = cdc.Encode(&message.CallResult{ID: "1", Payload: stdjson.RawMessage(`[1,2]`)})
		assert.Error(t, err)
		_, err = cdc.Encode(&message.CallError{ID: "1"})
		assert.Error(t, err)
	}
}

func TestBinaryDecodeTruncated(t *testing.T) {
	cdc := &BinaryCodec{}
	data, err := cdc.Encode(envelopes[0])
	require.NoError(t, err)

	for _, n := range []int{0, 1, 3, len(data) - 1} {
		_, err := cdc.Decode(data[:n])
		var de *DecodeError
		require.True(t, errors.As(err, &de), "prefix %d", n)
		assert.Equal(t, message.CodeFormationViolation, de.Err.Code)
	}

	_, err = cdc.Decode(append(data, 0x00))
	assert.Error(t, err)

	_, err = cdc.Decode([]byte{9, 0, 1, 'a'})
	var de *DecodeError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, message.CodeMessageTypeNotSupported, de.Err.Code)
	assert.Equal(t, "a", de.ID)

	// An unknown tag wins over a truncated id.
	_, err = cdc.Decode([]byte{9, 0})
	require.True(t, errors.As(err, &de))
	assert.Equal(t, message.CodeMessageTypeNotSupported, de.Err.Code)
	assert.Empty(t, de.ID)
}

func BenchmarkCodecJSON(b *testing.B) {
	benchmarkCodec(b, Get(TypeJSON))
}

func BenchmarkCodecBinary(b *testing.B) {
	benchmarkCodec(b, Get(TypeBinary))
}

func benchmarkCodec(b *testing.B, cdc Codec) {
	env := envelopes[0]
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		data, _ := cdc.Encode(env)
		_, _ = cdc.Decode(data)
	}
}
