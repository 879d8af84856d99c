// ABOUTME: REST facade over the chat service: conversation lifecycle, history, receipts
// ABOUTME: Every handler delegates to the same service as the websocket gateway

package httpapi

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/PirateKingAkshit/agritech-support-gateway/internal/auth"
	"github.com/PirateKingAkshit/agritech-support-gateway/internal/chat"
	"github.com/PirateKingAkshit/agritech-support-gateway/internal/media"
	"github.com/PirateKingAkshit/agritech-support-gateway/internal/store"
)

// Handler serves the REST surface. State changes made here are not pushed
// to websocket rooms; clients polling over REST re-sync on their own.
type Handler struct {
	chat   *chat.Service
	logger *slog.Logger
}

// NewHandler creates a Handler. Pass nil logger for default.
func NewHandler(svc *chat.Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		chat:   svc,
		logger: logger.With("component", "httpapi"),
	}
}

// Register mounts all routes under /api, authenticated by verifier.
func (h *Handler) Register(r *gin.Engine, verifier auth.TokenVerifier) {
	r.Use(requestLogger(h.logger))

	api := r.Group("/api", authMiddleware(verifier))

	api.POST("/conversations", h.createConversation)
	api.GET("/conversations", h.listConversations)
	api.GET("/conversations/:id", h.getConversation)
	api.PATCH("/conversations/:id/status", h.updateStatus)
	api.PATCH("/conversations/:id/read", h.markConversationRead)
	api.DELETE("/conversations/:id", h.deleteConversation)
	api.GET("/conversations/:id/messages", h.listMessages)

	api.POST("/messages", h.sendMessage)
	api.PATCH("/messages/:id/read", h.markMessageRead)
	api.DELETE("/messages/:id", h.deleteMessage)
}

// conversationDTO is the client-facing conversation representation.
type conversationDTO struct {
	ID            string    `json:"id"`
	UserID        string    `json:"userId"`
	SupportID     string    `json:"supportId"`
	Status        string    `json:"status"`
	LastMessageID *string   `json:"lastMessageId,omitempty"`
	UnreadUser    int       `json:"unreadUser"`
	UnreadSupport int       `json:"unreadSupport"`
	IsActive      bool      `json:"isActive"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

func newConversationDTO(c *store.Conversation) conversationDTO {
	return conversationDTO{
		ID:            c.ID,
		UserID:        c.UserID,
		SupportID:     c.SupportID,
		Status:        string(c.Status),
		LastMessageID: c.LastMessageID,
		UnreadUser:    c.UnreadUser,
		UnreadSupport: c.UnreadSupport,
		IsActive:      c.IsActive,
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
	}
}

type messageDTO struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversationId"`
	SenderID       string     `json:"senderId"`
	Type           string     `json:"type"`
	Content        string     `json:"content,omitempty"`
	MediaRef       string     `json:"mediaId,omitempty"`
	IsRead         bool       `json:"isRead"`
	ReadAt         *time.Time `json:"readAt,omitempty"`
	DeliveredAt    time.Time  `json:"deliveredAt"`
	CreatedAt      time.Time  `json:"createdAt"`
}

func newMessageDTO(m *store.Message) messageDTO {
	return messageDTO{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Type:           string(m.Type),
		Content:        m.Content,
		MediaRef:       m.MediaRef,
		IsRead:         m.IsRead,
		ReadAt:         m.ReadAt,
		DeliveredAt:    m.DeliveredAt,
		CreatedAt:      m.CreatedAt,
	}
}

func identity(c *gin.Context) auth.Identity {
	return auth.MustFromContext(c.Request.Context())
}

func pageParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.Query("page"))
	pageSize, _ := strconv.Atoi(c.Query("pageSize"))
	return page, pageSize
}

func respond(c *gin.Context, status int, message string, data any) {
	c.JSON(status, gin.H{"message": message, "data": data})
}

func (h *Handler) fail(c *gin.Context, err error) {
	status := httpStatus(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"error", err)
		c.JSON(status, gin.H{"message": "internal error"})
		return
	}
	c.JSON(status, gin.H{"message": err.Error()})
}

// httpStatus maps the service error taxonomy onto HTTP codes.
func httpStatus(err error) int {
	switch {
	case errors.Is(err, chat.ErrInvalidPayload),
		errors.Is(err, chat.ErrInvalidStatus),
		errors.Is(err, chat.ErrSelfRead),
		errors.Is(err, chat.ErrConversationClosed):
		return http.StatusBadRequest
	case errors.Is(err, chat.ErrNotParticipant),
		errors.Is(err, chat.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, media.ErrMediaNotFound):
		return http.StatusNotFound
	case errors.Is(err, chat.ErrNoSupportAvailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) createConversation(c *gin.Context) {
	conv, created, err := h.chat.CreateOrGetConversation(c.Request.Context(), identity(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	if created {
		respond(c, http.StatusCreated, "conversation created", newConversationDTO(conv))
		return
	}
	respond(c, http.StatusOK, "conversation found", newConversationDTO(conv))
}

func (h *Handler) listConversations(c *gin.Context) {
	page, pageSize := pageParams(c)
	status := store.ConversationStatus(c.Query("status"))

	convs, err := h.chat.ListConversations(c.Request.Context(), identity(c), status, page, pageSize)
	if err != nil {
		h.fail(c, err)
		return
	}

	dtos := make([]conversationDTO, 0, len(convs))
	for _, conv := range convs {
		dtos = append(dtos, newConversationDTO(conv))
	}
	respond(c, http.StatusOK, "conversations listed", dtos)
}

func (h *Handler) getConversation(c *gin.Context) {
	conv, err := h.chat.GetConversation(c.Request.Context(), identity(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "conversation found", newConversationDTO(conv))
}

func (h *Handler) updateStatus(c *gin.Context) {
	var body struct {
		Status string `json:"status"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "malformed request body"})
		return
	}

	conv, err := h.chat.UpdateStatus(c.Request.Context(), identity(c), c.Param("id"), store.ConversationStatus(body.Status))
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "status updated", newConversationDTO(conv))
}

func (h *Handler) markConversationRead(c *gin.Context) {
	conv, err := h.chat.MarkConversationRead(c.Request.Context(), identity(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "conversation marked read", newConversationDTO(conv))
}

func (h *Handler) deleteConversation(c *gin.Context) {
	if err := h.chat.SoftDelete(c.Request.Context(), identity(c), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "conversation deleted", nil)
}

func (h *Handler) listMessages(c *gin.Context) {
	page, pageSize := pageParams(c)

	msgs, err := h.chat.ListMessages(c.Request.Context(), identity(c), c.Param("id"), page, pageSize)
	if err != nil {
		h.fail(c, err)
		return
	}

	dtos := make([]messageDTO, 0, len(msgs))
	for _, m := range msgs {
		dtos = append(dtos, newMessageDTO(m))
	}
	respond(c, http.StatusOK, "messages listed", dtos)
}

func (h *Handler) sendMessage(c *gin.Context) {
	var body struct {
		ConversationID string `json:"conversationId"`
		Type           string `json:"type"`
		Content        string `json:"content"`
		MediaID        string `json:"mediaId"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "malformed request body"})
		return
	}

	res, err := h.chat.SendMessage(c.Request.Context(), identity(c), chat.SendMessageInput{
		ConversationID: body.ConversationID,
		Type:           store.MessageType(body.Type),
		Content:        body.Content,
		MediaRef:       body.MediaID,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusCreated, "message sent", newMessageDTO(res.Message))
}

func (h *Handler) markMessageRead(c *gin.Context) {
	var body struct {
		ConversationID string `json:"conversationId"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "malformed request body"})
		return
	}

	receipt, err := h.chat.MarkMessageRead(c.Request.Context(), identity(c), c.Param("id"), body.ConversationID)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "message marked read", gin.H{
		"messageId":      receipt.MessageID,
		"conversationId": receipt.ConversationID,
		"readerId":       receipt.ReaderID,
		"readAt":         receipt.ReadAt,
		"changed":        receipt.Changed,
	})
}

func (h *Handler) deleteMessage(c *gin.Context) {
	msg, err := h.chat.DeleteMessage(c.Request.Context(), identity(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "message deleted", gin.H{
		"messageId":      msg.ID,
		"conversationId": msg.ConversationID,
	})
}
