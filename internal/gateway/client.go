// ABOUTME: One websocket connection: buffered outbound channel, read and write pumps
// ABOUTME: Ping/pong deadlines detect dead peers; slow clients are disconnected, not blocked on

package gateway

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/PirateKingAkshit/agritech-support-gateway/internal/auth"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 64
)

// Client wraps a single websocket connection for an authenticated identity.
// All writes go through the buffered send channel; the write pump owns the
// socket's write side. The send channel is never closed: shutdown is
// signalled only through done, so a broadcast racing a disconnect enqueues
// into a channel nobody drains instead of panicking.
type Client struct {
	identity auth.Identity
	conn     *websocket.Conn
	send     chan []byte
	done     chan struct{}
	gw       *Gateway

	closeOnce sync.Once
}

func newClient(gw *Gateway, conn *websocket.Conn, identity auth.Identity) *Client {
	return &Client{
		identity: identity,
		conn:     conn,
		send:     make(chan []byte, sendBufferSize),
		done:     make(chan struct{}),
		gw:       gw,
	}
}

// enqueue hands a frame to the write pump. If the client's buffer is full
// the connection is closed: a reader that far behind will re-sync over
// REST anyway, and blocking here would stall a room broadcast.
func (c *Client) enqueue(payload []byte) {
	select {
	case <-c.done:
		return
	default:
	}
	select {
	case c.send <- payload:
	default:
		c.gw.logger.Warn("send buffer full, dropping connection", "identity", c.identity.ID)
		c.close()
	}
}

// sendEvent marshals and enqueues an event for this connection only.
func (c *Client) sendEvent(event string, data any) {
	frame, err := encodeEvent(event, data)
	if err != nil {
		c.gw.logger.Error("encoding event", "event", event, "error", err)
		return
	}
	c.enqueue(frame)
}

// sendError surfaces an operation rejection. The connection stays usable.
func (c *Client) sendError(msg string) {
	c.sendEvent(EventError, errorPayload{Message: msg})
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// readPump reads frames off the socket and dispatches them until the peer
// disappears. It runs on the connection's handler goroutine; handlers for
// one connection therefore never run concurrently with each other.
func (c *Client) readPump() {
	defer func() {
		c.gw.handleDisconnect(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.gw.logger.Debug("websocket read error", "identity", c.identity.ID, "error", err)
			}
			return
		}
		c.gw.dispatch(c, data)
	}
}

// writePump drains the send channel onto the socket and keeps the
// connection alive with periodic pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
