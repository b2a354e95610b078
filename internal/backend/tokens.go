package backend

import (
	"context"
	"errors"
	"net/http"
	"net/url"
)

// CallToken is what the voice transport needs to join an agent's room.
type CallToken struct {
	Token               string `json:"token"`
	RoomName            string `json:"room_name"`
	AgentName           string `json:"agent_name"`
	LiveKitURL          string `json:"livekit_url"`
	ParticipantIdentity string `json:"participant_identity"`
	ParticipantName     string `json:"participant_name"`
}

// GenerateCallToken asks the backend for a room token for agentName.
func (c *Client) GenerateCallToken(ctx context.Context, agentName string) (CallToken, error) {
	var tok CallToken
	path := "/tokens/generate?agent_name=" + url.QueryEscape(agentName)
	if _, err := c.do(ctx, http.MethodPost, path, nil, &tok); err != nil {
		return CallToken{}, err
	}
	if tok.Token == "" {
		return CallToken{}, errors.New("token response did not include a token")
	}
	return tok, nil
}
