package rqjob

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewID(t *testing.T) {
	id, err := NewID()
	require.NoError(t, err)
	require.Len(t, id, 32)

	other, err := NewID()
	require.NoError(t, err)
	require.NotEqual(t, id, other)
}

func TestNewEnvelope_NoArg(t *testing.T) {
	env, err := NewEnvelope("SendEmail", "abc123", nil)
	require.NoError(t, err)
	require.Equal(t, "SendEmail", env.Class)
	require.Equal(t, "abc123", env.ID)
	require.Empty(t, env.Args)

	_, ok := env.Argument()
	require.False(t, ok)
	require.JSONEq(t, `[]`, string(env.GetArguments()))
}

func TestNewEnvelope_WithArg(t *testing.T) {
	env, err := NewEnvelope("SendEmail", "", map[string]string{"to": "a@example.com"})
	require.NoError(t, err)

	arg, ok := env.Argument()
	require.True(t, ok)
	require.JSONEq(t, `{"to":"a@example.com"}`, string(arg))
	require.JSONEq(t, `{"to":"a@example.com"}`, string(env.GetArguments()))
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	env, err := NewEnvelope("ChargeCard", "job-1", 42)
	require.NoError(t, err)

	raw, err := env.Encode()
	require.NoError(t, err)

	decoded, err := Decode(raw)
	require.NoError(t, err)
	require.Equal(t, env.Class, decoded.Class)
	require.Equal(t, env.ID, decoded.ID)

	arg, ok := decoded.Argument()
	require.True(t, ok)
	require.JSONEq(t, `42`, string(arg))
}

func TestEncode_WireShape(t *testing.T) {
	env, err := NewEnvelope("Noop", "", nil)
	require.NoError(t, err)

	raw, err := env.Encode()
	require.NoError(t, err)

	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &fields))
	require.Contains(t, fields, "class")
	require.NotContains(t, fields, "id", "omitempty should drop a blank id")
	require.NotContains(t, fields, "args", "omitempty should drop absent args")
}

func TestDecode_Malformed(t *testing.T) {
	_, err := Decode([]byte("not json"))
	require.Error(t, err)
}
