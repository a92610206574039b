package websocket

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcher(t *testing.T) {
	d := NewDispatcher()
	d.RegisterFunc(ActionUserGet, func(ctx context.Context, msg *Message) (*Message, error) {
		id, _ := UserIDFrom(ctx)
		return NewResponse(msg.ID, msg.Action, map[string]string{"id": id})
	})
	assert.True(t, d.HasHandler(ActionUserGet))
	assert.False(t, d.HasHandler("nope"))

	req, err := NewRequest("1", ActionUserGet, nil)
	require.NoError(t, err)
	resp, err := d.Dispatch(WithUserID(context.Background(), "user-1"), req)
	require.NoError(t, err)
	assert.Equal(t, MessageTypeResponse, resp.Type)
	assert.Equal(t, "1", resp.ID)

	var body map[string]string
	require.NoError(t, resp.ParsePayload(&body))
	assert.Equal(t, "user-1", body["id"])
}

func TestDispatcher_UnknownAction(t *testing.T) {
	req, err := NewRequest("7", "bogus.action", nil)
	require.NoError(t, err)

	resp, err := NewDispatcher().Dispatch(context.Background(), req)
	require.NoError(t, err)
	payload, ok := resp.Error()
	require.True(t, ok)
	assert.Equal(t, ErrorCodeUnknownAction, payload.Code)
	assert.Equal(t, "7", resp.ID)
}

func TestUserIDFrom_Missing(t *testing.T) {
	_, ok := UserIDFrom(context.Background())
	assert.False(t, ok)
}

func TestMessage_ErrorOnResponse(t *testing.T) {
	resp, err := NewResponse("1", ActionUserGet, nil)
	require.NoError(t, err)
	_, ok := resp.Error()
	assert.False(t, ok)
	assert.NoError(t, resp.ParsePayload(&struct{}{}))
}
