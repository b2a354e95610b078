package gateway

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/agentdesk/internal/domain"
)

func TestFrameConstructors(t *testing.T) {
	req, err := NewRequest("req-1", "session.update", sessionUpdateParams{Section: "tools", Patch: json.RawMessage(`{"maxNudges":2}`)})
	require.NoError(t, err)
	assert.Equal(t, FrameTypeRequest, req.Type)
	assert.Equal(t, "session.update", req.Method)
	assert.JSONEq(t, `{"section":"tools","patch":{"maxNudges":2}}`, string(req.Params))

	res, err := NewResponse("req-1", map[string]bool{"muted": true})
	require.NoError(t, err)
	require.NotNil(t, res.OK)
	assert.True(t, *res.OK)
	assert.Nil(t, res.Error)

	errRes := NewErrorResponse("req-2", ErrorShape{Code: "no_session", Message: "no agent is open"})
	require.NotNil(t, errRes.OK)
	assert.False(t, *errRes.OK)
	assert.Equal(t, "no_session", errRes.Error.Code)
	assert.Empty(t, errRes.Payload)
}

func TestAutosaveEventWireShape(t *testing.T) {
	frame, err := NewEvent(EventAutosaveStatus, map[string]any{
		"agentId": "sales_bot_1a2b",
		"status":  domain.AutoSaveStatus{State: domain.SaveSaving},
	}, 7)
	require.NoError(t, err)

	data, err := json.Marshal(frame)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"type": "event",
		"event": "autosave.status",
		"seq": 7,
		"payload": {"agentId": "sales_bot_1a2b", "status": {"status": "saving"}}
	}`, string(data))
}

func TestErrorResponseWireShape(t *testing.T) {
	data, err := json.Marshal(NewErrorResponse("req-9", ErrorShape{Code: "forbidden", Message: "denied"}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"res","id":"req-9","ok":false,"error":{"code":"forbidden","message":"denied"}}`, string(data))
}

func TestConnectParams_OmitsNilAuth(t *testing.T) {
	data, err := json.Marshal(ConnectParams{
		MinProtocol: ProtocolVersion,
		MaxProtocol: ProtocolVersion,
		Client:      ClientInfo{ID: "dashboard", Version: "1.0.0", Platform: "web"},
	})
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"auth"`)
}

func TestHelloOKFieldNames(t *testing.T) {
	data, err := json.Marshal(HelloOK{
		Protocol:     ProtocolVersion,
		Server:       ServerInfo{Version: "1.0.0", ConnID: "conn-1"},
		Features:     Features{Methods: []string{"health"}, Events: PushedEvents},
		Policy:       ServerPolicy{MaxPayload: maxPayload, TickIntervalMs: 30000},
		Organization: "Acme",
	})
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "Acme", decoded["organization"])
	features := decoded["features"].(map[string]any)
	assert.Len(t, features["events"], len(PushedEvents))
	assert.Equal(t, float64(maxPayload), decoded["policy"].(map[string]any)["maxPayload"])
}
