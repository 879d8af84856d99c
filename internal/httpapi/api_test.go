// ABOUTME: Tests for the REST facade
// ABOUTME: Drives real handlers over httptest with the in-memory store behind the service

package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PirateKingAkshit/agritech-support-gateway/internal/auth"
	"github.com/PirateKingAkshit/agritech-support-gateway/internal/chat"
	"github.com/PirateKingAkshit/agritech-support-gateway/internal/media"
	"github.com/PirateKingAkshit/agritech-support-gateway/internal/store"
)

type fixture struct {
	router   *gin.Engine
	verifier *auth.JWTVerifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st := store.NewMockStore()
	strategy, err := chat.NewStrategy(chat.PolicySingle, []string{"support-1"}, st, nil)
	require.NoError(t, err)
	svc := chat.NewService(st, strategy, media.NewClient("http://unused", time.Second, 0, nil), nil)

	verifier := auth.NewJWTVerifier([]byte("test-secret"))
	router := gin.New()
	NewHandler(svc, nil).Register(router, verifier)
	return &fixture{router: router, verifier: verifier}
}

func (f *fixture) token(t *testing.T, id string, role auth.Role) string {
	t.Helper()
	token, err := f.verifier.Generate(auth.Identity{ID: id, Role: role}, time.Hour)
	require.NoError(t, err)
	return token
}

func (f *fixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	var envelope struct {
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	if out != nil {
		require.NoError(t, json.Unmarshal(envelope.Data, out))
	}
}

func TestUnauthorized(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/conversations", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/conversations", "garbage-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateConversation(t *testing.T) {
	f := newFixture(t)
	userToken := f.token(t, "user-1", auth.RoleUser)

	rec := f.do(t, http.MethodPost, "/api/conversations", userToken, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	var conv conversationDTO
	decodeData(t, rec, &conv)
	assert.Equal(t, "user-1", conv.UserID)
	assert.Equal(t, "support-1", conv.SupportID)
	assert.Equal(t, "open", conv.Status)

	// Idempotent: the second call finds the same conversation with a 200
	rec = f.do(t, http.MethodPost, "/api/conversations", userToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var again conversationDTO
	decodeData(t, rec, &again)
	assert.Equal(t, conv.ID, again.ID)
}

func TestCreateConversationStaffForbidden(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/conversations", f.token(t, "support-1", auth.RoleSupport), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestMessageFlow(t *testing.T) {
	f := newFixture(t)
	userToken := f.token(t, "user-1", auth.RoleUser)
	supportToken := f.token(t, "support-1", auth.RoleSupport)

	rec := f.do(t, http.MethodPost, "/api/conversations", userToken, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var conv conversationDTO
	decodeData(t, rec, &conv)

	// Send a text message
	rec = f.do(t, http.MethodPost, "/api/messages", userToken, gin.H{
		"conversationId": conv.ID,
		"type":           "text",
		"content":        "my wheat is wilting",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var msg messageDTO
	decodeData(t, rec, &msg)
	assert.Equal(t, "user-1", msg.SenderID)
	assert.False(t, msg.IsRead)

	// The conversation now shows the unread count and waiting status
	rec = f.do(t, http.MethodGet, "/api/conversations/"+conv.ID, supportToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeData(t, rec, &conv)
	assert.Equal(t, 1, conv.UnreadSupport)
	assert.Equal(t, "waiting", conv.Status)

	// History is visible to the assigned agent
	rec = f.do(t, http.MethodGet, "/api/conversations/"+conv.ID+"/messages", supportToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var msgs []messageDTO
	decodeData(t, rec, &msgs)
	require.Len(t, msgs, 1)

	// The agent reads the message
	rec = f.do(t, http.MethodPatch, "/api/messages/"+msg.ID+"/read", supportToken, gin.H{
		"conversationId": conv.ID,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/conversations/"+conv.ID, supportToken, nil)
	decodeData(t, rec, &conv)
	assert.Equal(t, 0, conv.UnreadSupport)
}

func TestSendMessageValidation(t *testing.T) {
	f := newFixture(t)
	userToken := f.token(t, "user-1", auth.RoleUser)

	rec := f.do(t, http.MethodPost, "/api/conversations", userToken, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var conv conversationDTO
	decodeData(t, rec, &conv)

	// Text without content
	rec = f.do(t, http.MethodPost, "/api/messages", userToken, gin.H{
		"conversationId": conv.ID,
		"type":           "text",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Unknown type
	rec = f.do(t, http.MethodPost, "/api/messages", userToken, gin.H{
		"conversationId": conv.ID,
		"type":           "sticker",
		"content":        "x",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Unknown conversation
	rec = f.do(t, http.MethodPost, "/api/messages", userToken, gin.H{
		"conversationId": "nope",
		"type":           "text",
		"content":        "hello",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatusUpdate(t *testing.T) {
	f := newFixture(t)
	userToken := f.token(t, "user-1", auth.RoleUser)
	supportToken := f.token(t, "support-1", auth.RoleSupport)

	rec := f.do(t, http.MethodPost, "/api/conversations", userToken, nil)
	var conv conversationDTO
	decodeData(t, rec, &conv)
	path := fmt.Sprintf("/api/conversations/%s/status", conv.ID)

	// Users cannot change status
	rec = f.do(t, http.MethodPatch, path, userToken, gin.H{"status": "resolved"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodPatch, path, supportToken, gin.H{"status": "resolved"})
	require.Equal(t, http.StatusOK, rec.Code)
	decodeData(t, rec, &conv)
	assert.Equal(t, "resolved", conv.Status)

	rec = f.do(t, http.MethodPatch, path, supportToken, gin.H{"status": "archived"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMarkConversationRead(t *testing.T) {
	f := newFixture(t)
	userToken := f.token(t, "user-1", auth.RoleUser)
	supportToken := f.token(t, "support-1", auth.RoleSupport)

	rec := f.do(t, http.MethodPost, "/api/conversations", userToken, nil)
	var conv conversationDTO
	decodeData(t, rec, &conv)

	for i := 0; i < 3; i++ {
		rec = f.do(t, http.MethodPost, "/api/messages", userToken, gin.H{
			"conversationId": conv.ID,
			"type":           "text",
			"content":        "ping",
		})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec = f.do(t, http.MethodPatch, "/api/conversations/"+conv.ID+"/read", supportToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeData(t, rec, &conv)
	assert.Equal(t, 0, conv.UnreadSupport)
}

func TestDeleteConversation(t *testing.T) {
	f := newFixture(t)
	userToken := f.token(t, "user-1", auth.RoleUser)
	supportToken := f.token(t, "support-1", auth.RoleSupport)

	rec := f.do(t, http.MethodPost, "/api/conversations", userToken, nil)
	var conv conversationDTO
	decodeData(t, rec, &conv)

	// Agents cannot delete
	rec = f.do(t, http.MethodDelete, "/api/conversations/"+conv.ID, supportToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodDelete, "/api/conversations/"+conv.ID, userToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Gone for participants afterwards
	rec = f.do(t, http.MethodGet, "/api/conversations/"+conv.ID, userToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteMessage(t *testing.T) {
	f := newFixture(t)
	userToken := f.token(t, "user-1", auth.RoleUser)
	supportToken := f.token(t, "support-1", auth.RoleSupport)

	rec := f.do(t, http.MethodPost, "/api/conversations", userToken, nil)
	var conv conversationDTO
	decodeData(t, rec, &conv)

	rec = f.do(t, http.MethodPost, "/api/messages", userToken, gin.H{
		"conversationId": conv.ID,
		"type":           "text",
		"content":        "oops",
	})
	var msg messageDTO
	decodeData(t, rec, &msg)

	// Not the sender
	rec = f.do(t, http.MethodDelete, "/api/messages/"+msg.ID, supportToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodDelete, "/api/messages/"+msg.ID, userToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodDelete, "/api/messages/"+msg.ID, userToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListConversationsFilter(t *testing.T) {
	f := newFixture(t)
	userToken := f.token(t, "user-1", auth.RoleUser)
	supportToken := f.token(t, "support-1", auth.RoleSupport)

	rec := f.do(t, http.MethodPost, "/api/conversations", userToken, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/conversations?status=open", supportToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var convs []conversationDTO
	decodeData(t, rec, &convs)
	assert.Len(t, convs, 1)

	rec = f.do(t, http.MethodGet, "/api/conversations?status=resolved", supportToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeData(t, rec, &convs)
	assert.Empty(t, convs)

	rec = f.do(t, http.MethodGet, "/api/conversations?status=bogus", supportToken, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
