// ABOUTME: Tests for wire frame encoding and message DTO mapping
// ABOUTME: Also covers the pre-upgrade authentication gate on the websocket endpoint

package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PirateKingAkshit/agritech-support-gateway/internal/auth"
	"github.com/PirateKingAkshit/agritech-support-gateway/internal/media"
	"github.com/PirateKingAkshit/agritech-support-gateway/internal/store"
)

func TestEncodeEvent(t *testing.T) {
	frame, err := encodeEvent(EventConversationJoined, joinedPayload{ConversationID: "conv-1"})
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(frame, &env))
	assert.Equal(t, EventConversationJoined, env.Event)

	var p joinedPayload
	require.NoError(t, json.Unmarshal(env.Data, &p))
	assert.Equal(t, "conv-1", p.ConversationID)
}

func TestNewMessageDTO(t *testing.T) {
	now := time.Now().UTC()
	msg := &store.Message{
		ID:             "msg-1",
		ConversationID: "conv-1",
		SenderID:       "user-1",
		Type:           store.MessageTypeImage,
		MediaRef:       "leaf-photo-1",
		DeliveredAt:    now,
		CreatedAt:      now,
	}

	dto := NewMessageDTO(msg, &media.Info{URL: "https://media.test/leaf-photo-1", Format: "image/png", Size: 2048})
	require.NotNil(t, dto.Media)
	assert.Equal(t, "leaf-photo-1", dto.Media.Ref)
	assert.Equal(t, "https://media.test/leaf-photo-1", dto.Media.URL)
	assert.Equal(t, int64(2048), dto.Media.Size)

	// Text messages carry no media block
	text := &store.Message{ID: "msg-2", Type: store.MessageTypeText, Content: "hello"}
	dto = NewMessageDTO(text, nil)
	assert.Nil(t, dto.Media)
	assert.Equal(t, "hello", dto.Content)
}

func TestServeWSRejectsBadCredentials(t *testing.T) {
	verifier := auth.NewJWTVerifier([]byte("test-secret"))
	gw := New(nil, nil, nil, verifier, nil)

	// No token at all
	rec := httptest.NewRecorder()
	gw.ServeWS(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Token signed with the wrong secret
	other := auth.NewJWTVerifier([]byte("wrong-secret"))
	token, err := other.Generate(auth.Identity{ID: "user-1", Role: auth.RoleUser}, time.Hour)
	require.NoError(t, err)

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ws?token="+token, nil)
	gw.ServeWS(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
