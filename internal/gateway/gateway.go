// ABOUTME: Connection gateway: authenticates websockets, records presence, routes the core events
// ABOUTME: Broadcasts happen only after persistence succeeds, so room members see append order

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/gorilla/websocket"

	"github.com/PirateKingAkshit/agritech-support-gateway/internal/auth"
	"github.com/PirateKingAkshit/agritech-support-gateway/internal/chat"
	"github.com/PirateKingAkshit/agritech-support-gateway/internal/media"
	"github.com/PirateKingAkshit/agritech-support-gateway/internal/presence"
	"github.com/PirateKingAkshit/agritech-support-gateway/internal/push"
	"github.com/PirateKingAkshit/agritech-support-gateway/internal/store"
)

// opTimeout bounds each event handler's persistence work.
const opTimeout = 10 * time.Second

// heartbeatInterval is how often a live connection refreshes its presence
// TTL in the shared registry.
const heartbeatInterval = 20 * time.Second

// Gateway is the realtime transport. Each accepted websocket becomes a
// Client whose events are dispatched here; all state changes delegate to
// the chat service.
type Gateway struct {
	hub      *Hub
	chat     *chat.Service
	presence presence.Registry
	notifier push.Notifier
	verifier auth.TokenVerifier
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// New creates a Gateway. Pass nil logger for default.
func New(svc *chat.Service, reg presence.Registry, notifier push.Notifier, verifier auth.TokenVerifier, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		hub:      NewHub(logger),
		chat:     svc,
		presence: reg,
		notifier: notifier,
		verifier: verifier,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// TODO: restrict origins to the configured frontend domains
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger.With("component", "gateway"),
	}
}

// Hub exposes the room bookkeeping, mainly for tests.
func (g *Gateway) Hub() *Hub { return g.hub }

// ServeWS authenticates and upgrades an incoming websocket request.
// Authentication happens before the upgrade so a bad credential is a plain
// 401, not a half-open socket.
func (g *Gateway) ServeWS(w http.ResponseWriter, r *http.Request) {
	identity, err := auth.Authenticate(r, g.verifier)
	if err != nil {
		g.logger.Debug("websocket authentication failed", "error", err)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := newClient(g, conn, identity)
	g.hub.Register(client)
	g.hub.Join(identityRoom(identity.ID), client)

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	if err := g.presence.SetOnline(ctx, identity.ID); err != nil {
		g.logger.Error("recording presence", "identity", identity.ID, "error", err)
	}
	cancel()

	g.broadcastPresence(EventPresenceOnline, identity.ID)
	g.logger.Info("connection established", "identity", identity.ID, "role", identity.Role)

	go client.writePump()
	go g.heartbeat(client)
	go client.readPump()
}

// heartbeat refreshes the shared presence TTL while the connection lives.
func (g *Gateway) heartbeat(c *Client) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
			if err := g.presence.Heartbeat(ctx, c.identity.ID); err != nil {
				g.logger.Warn("presence heartbeat failed", "identity", c.identity.ID, "error", err)
			}
			cancel()
		case <-c.done:
			return
		}
	}
}

// handleDisconnect clears room membership and presence for a dropped client.
func (g *Gateway) handleDisconnect(c *Client) {
	g.hub.Unregister(c)
	c.close()

	// Another tab may still be connected for this identity
	if g.hub.IdentityConnected(c.identity.ID) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	if err := g.presence.SetOffline(ctx, c.identity.ID); err != nil {
		g.logger.Error("clearing presence", "identity", c.identity.ID, "error", err)
	}

	g.broadcastPresence(EventPresenceOffline, c.identity.ID)
	g.logger.Info("connection closed", "identity", c.identity.ID)
}

func (g *Gateway) broadcastPresence(event, identityID string) {
	frame, err := encodeEvent(event, presencePayload{
		Identity:  identityID,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		g.logger.Error("encoding presence event", "error", err)
		return
	}
	g.hub.BroadcastAll(frame)
}

// dispatch routes one inbound frame to its handler. Handlers for a single
// connection run sequentially on its read goroutine.
func (g *Gateway) dispatch(c *Client, raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.sendError("malformed event frame")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	ctx = auth.WithIdentity(ctx, c.identity)

	switch env.Event {
	case EventConversationJoin:
		g.handleJoin(ctx, c, env.Data)
	case EventConversationLeave:
		g.handleLeave(c, env.Data)
	case EventMessageSend:
		g.handleSend(ctx, c, env.Data)
	case EventTypingStart, EventTypingStop:
		g.handleTyping(c, env.Event, env.Data)
	case EventMessageRead:
		g.handleRead(ctx, c, env.Data)
	case EventMarkAllRead:
		g.handleMarkAllRead(ctx, c, env.Data)
	default:
		c.sendError("unknown event: " + env.Event)
	}
}

func (g *Gateway) handleJoin(ctx context.Context, c *Client, data json.RawMessage) {
	var p joinPayload
	if err := json.Unmarshal(data, &p); err != nil || p.ConversationID == "" {
		c.sendError("conversation:join requires conversationId")
		return
	}

	// Participancy gate; non-participants are refused but stay connected
	if _, err := g.chat.GetConversation(ctx, c.identity, p.ConversationID); err != nil {
		c.sendError(userMessage(err))
		return
	}

	g.hub.Join(conversationRoom(p.ConversationID), c)
	c.sendEvent(EventConversationJoined, joinedPayload{ConversationID: p.ConversationID})
}

func (g *Gateway) handleLeave(c *Client, data json.RawMessage) {
	var p joinPayload
	if err := json.Unmarshal(data, &p); err != nil || p.ConversationID == "" {
		c.sendError("conversation:leave requires conversationId")
		return
	}
	g.hub.Leave(conversationRoom(p.ConversationID), c)
}

func (g *Gateway) handleSend(ctx context.Context, c *Client, data json.RawMessage) {
	var p sendPayload
	if err := json.Unmarshal(data, &p); err != nil {
		c.sendError("malformed message:send payload")
		return
	}

	res, err := g.chat.SendMessage(ctx, c.identity, chat.SendMessageInput{
		ConversationID: p.ConversationID,
		Type:           store.MessageType(p.Type),
		Content:        p.Content,
		MediaRef:       p.MediaID,
	})
	if err != nil {
		c.sendError(userMessage(err))
		return
	}

	dto := NewMessageDTO(res.Message, res.Media)
	room := conversationRoom(p.ConversationID)

	// Everyone in the room, sender included, sees the same append order
	if frame, err := encodeEvent(EventMessageNew, messageNewPayload{
		ConversationID: p.ConversationID,
		Message:        dto,
	}); err == nil {
		g.hub.Broadcast(room, frame, nil)
	}

	g.notifyRecipient(ctx, res, dto, room)

	c.sendEvent(EventMessageSent, messageSentPayload{
		MessageID: res.Message.ID,
		Timestamp: res.Message.DeliveredAt,
	})
}

// notifyRecipient delivers the out-of-room notice: a direct event when the
// recipient is online elsewhere, a push task when they are offline.
func (g *Gateway) notifyRecipient(ctx context.Context, res *chat.SendResult, dto MessageDTO, room string) {
	recipient := res.RecipientID
	if g.hub.IdentityInRoom(room, recipient) {
		return
	}

	online, err := g.presence.IsOnline(ctx, recipient)
	if err != nil {
		g.logger.Error("checking recipient presence", "identity", recipient, "error", err)
		return
	}

	if online {
		if frame, err := encodeEvent(EventNotificationMessage, notificationPayload{
			ConversationID: res.Conversation.ID,
			Message:        dto,
			Sender:         res.Message.SenderID,
		}); err == nil {
			g.hub.SendToIdentity(recipient, frame)
		}
		return
	}

	if err := g.notifier.NotifyNewMessage(ctx, push.NewMessage{
		RecipientID:    recipient,
		ConversationID: res.Conversation.ID,
		MessageID:      res.Message.ID,
		SenderID:       res.Message.SenderID,
		Preview:        preview(res.Message),
	}); err != nil {
		g.logger.Error("enqueueing push notification", "identity", recipient, "error", err)
	}
}

func (g *Gateway) handleTyping(c *Client, event string, data json.RawMessage) {
	var p typingPayload
	if err := json.Unmarshal(data, &p); err != nil || p.ConversationID == "" {
		c.sendError(event + " requires conversationId")
		return
	}

	// Joining already enforced participancy; a client not in the room has
	// nothing to say here. Ephemeral, never persisted, sender excluded.
	room := conversationRoom(p.ConversationID)
	if !g.hub.IdentityInRoom(room, c.identity.ID) {
		return
	}
	frame, err := encodeEvent(event, typingBroadcastPayload{
		ConversationID: p.ConversationID,
		Identity:       c.identity.ID,
	})
	if err != nil {
		return
	}
	g.hub.Broadcast(room, frame, c)
}

func (g *Gateway) handleRead(ctx context.Context, c *Client, data json.RawMessage) {
	var p readPayload
	if err := json.Unmarshal(data, &p); err != nil || p.MessageID == "" || p.ConversationID == "" {
		c.sendError("message:read requires messageId and conversationId")
		return
	}

	receipt, err := g.chat.MarkMessageRead(ctx, c.identity, p.MessageID, p.ConversationID)
	if err != nil {
		c.sendError(userMessage(err))
		return
	}
	// A repeat read changes nothing; re-broadcasting would duplicate receipts
	if !receipt.Changed {
		return
	}

	if frame, err := encodeEvent(EventMessageReadReceipt, readReceiptPayload{
		MessageID:      receipt.MessageID,
		ConversationID: receipt.ConversationID,
		ReaderID:       receipt.ReaderID,
		ReadAt:         receipt.ReadAt,
	}); err == nil {
		g.hub.Broadcast(conversationRoom(p.ConversationID), frame, nil)
	}
}

func (g *Gateway) handleMarkAllRead(ctx context.Context, c *Client, data json.RawMessage) {
	var p joinPayload
	if err := json.Unmarshal(data, &p); err != nil || p.ConversationID == "" {
		c.sendError("conversation:mark-all-read requires conversationId")
		return
	}

	if _, err := g.chat.MarkConversationRead(ctx, c.identity, p.ConversationID); err != nil {
		c.sendError(userMessage(err))
		return
	}

	if frame, err := encodeEvent(EventConversationAllRead, allReadPayload{
		ConversationID: p.ConversationID,
		ReaderID:       c.identity.ID,
		ReadAt:         time.Now().UTC(),
	}); err == nil {
		g.hub.Broadcast(conversationRoom(p.ConversationID), frame, nil)
	}
}

// preview trims a text message body for the push payload, cutting on a
// rune boundary so the payload stays valid UTF-8.
func preview(m *store.Message) string {
	if m.Type != store.MessageTypeText {
		return ""
	}
	const max = 120
	if len(m.Content) <= max {
		return m.Content
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(m.Content[cut]) {
		cut--
	}
	return m.Content[:cut]
}

// userMessage maps taxonomy errors to client-safe strings. Storage details
// never leak onto the wire.
func userMessage(err error) string {
	switch {
	case errors.Is(err, chat.ErrNotParticipant):
		return "not a participant of this conversation"
	case errors.Is(err, chat.ErrForbidden):
		return "operation not permitted"
	case errors.Is(err, chat.ErrInvalidPayload),
		errors.Is(err, chat.ErrInvalidStatus),
		errors.Is(err, chat.ErrSelfRead),
		errors.Is(err, chat.ErrConversationClosed):
		return err.Error()
	case errors.Is(err, store.ErrNotFound):
		return "not found"
	case errors.Is(err, media.ErrMediaNotFound):
		return "media not found"
	case errors.Is(err, chat.ErrNoSupportAvailable):
		return "no support agent available"
	default:
		return "internal error"
	}
}
