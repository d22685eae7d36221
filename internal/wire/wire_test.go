package wire

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientFrameMarshalFlattensTypeAndPayload(t *testing.T) {
	f := ClientFrame{
		Type: ClientUpdatePresence,
		Payload: UpdatePresencePayload{
			Data: map[string]any{"x": 1},
		},
	}
	data, err := json.Marshal(f)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, float64(100), decoded["type"])
	assert.NotNil(t, decoded["data"])
}

func TestServerEnvelopeCapturesRawForRedecoding(t *testing.T) {
	raw := []byte(`{"type":101,"actor":4,"info":{"name":"x"}}`)
	var env ServerEnvelope
	require.NoError(t, json.Unmarshal(raw, &env))
	assert.Equal(t, ServerUserJoined, env.Type)

	var msg UserJoinedMessage
	require.NoError(t, json.Unmarshal(env.Raw, &msg))
	assert.Equal(t, 4, msg.Actor)
	assert.Equal(t, "x", msg.Info["name"])
}

func TestUpdateObjectFieldDeletionDiscriminant(t *testing.T) {
	op := Op{Kind: OpUpdateObject, Fields: []Field{
		{Key: "present", Value: nil},
		{Key: "absent", Deleted: true},
	}}
	data, err := json.Marshal(op)
	require.NoError(t, err)

	var decoded Op
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Len(t, decoded.Fields, 2)
	assert.False(t, decoded.Fields[0].Deleted)
	assert.True(t, decoded.Fields[1].Deleted)
}
