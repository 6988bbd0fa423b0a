package websocket

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// Members never send anything but control frames
	maxMessageSize = 512

	// sendBuffer is how many events may queue for one connection before it
	// is considered a slow consumer
	sendBuffer = 64
)

// Client is one authenticated connection of a member
type Client struct {
	id       string
	memberID int32
	conn     *websocket.Conn
	hub      *Hub

	outbound chan []byte
	done     chan struct{}
	once     sync.Once
}

// NewClient wraps an upgraded connection for memberID
func NewClient(conn *websocket.Conn, memberID int32, hub *Hub) *Client {
	return &Client{
		id:       uuid.New().String(),
		memberID: memberID,
		conn:     conn,
		hub:      hub,
		outbound: make(chan []byte, sendBuffer),
		done:     make(chan struct{}),
	}
}

// ID returns the connection's unique identifier
func (c *Client) ID() string {
	return c.id
}

// MemberID returns the member the connection authenticated as
func (c *Client) MemberID() int32 {
	return c.memberID
}

// Send queues data without blocking. It fails with ErrClientClosed after
// Close and with ErrSlowConsumer when the queue is full.
func (c *Client) Send(data []byte) error {
	select {
	case <-c.done:
		return ErrClientClosed
	default:
	}

	select {
	case c.outbound <- data:
		return nil
	case <-c.done:
		return ErrClientClosed
	default:
		return ErrSlowConsumer
	}
}

// Close stops both pumps and closes the connection. It is idempotent.
func (c *Client) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		err = c.conn.Close()
	})
	return err
}

// ReadPump keeps the read deadline moving with pongs and unregisters the
// client once the peer goes away. Run it in its own goroutine.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Str("client_id", c.id).Int32("member_id", c.memberID).Msg("WebSocket unexpected close")
			}
			return
		}
	}
}

// WritePump delivers queued events and keeps the connection alive with pings.
// Run it in its own goroutine.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case message := <-c.outbound:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Warn().Err(err).Str("client_id", c.id).Int32("member_id", c.memberID).Msg("WebSocket write error")
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
