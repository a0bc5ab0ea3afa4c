package relay

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"golang.org/x/time/rate"
)

const writeTimeout = 10 * time.Second

// Client is one realtime connection. Its user is unknown until it joins.
type Client struct {
	conn       *websocket.Conn
	hub        *Hub
	MessageCh  chan Event
	messageLim *rate.Limiter
	typingLim  *rate.Limiter

	// userID is only touched by the hub goroutine.
	userID string
}

func NewClient(conn *websocket.Conn, buffer int) *Client {
	if buffer <= 0 {
		buffer = 64
	}
	return &Client{
		conn:      conn,
		MessageCh: make(chan Event, buffer),
	}
}

func newLimiter(requests int, window time.Duration) *rate.Limiter {
	if requests <= 0 || window <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Every(window/time.Duration(requests)), requests)
}

func (c *Client) SetMessageLimiter(requests int, window time.Duration) {
	c.messageLim = newLimiter(requests, window)
}

func (c *Client) SetTypingLimiter(requests int, window time.Duration) {
	c.typingLim = newLimiter(requests, window)
}

func allow(l *rate.Limiter) bool {
	return l == nil || l.Allow()
}

// send queues ev without blocking. A full buffer drops the event.
func (c *Client) send(ev Event) {
	select {
	case c.MessageCh <- ev:
	default:
		slog.Warn("dropping event, client buffer full",
			"event", ev.Name,
			"user_id", c.userID)
	}
}

// WriteMessage drains MessageCh onto the websocket until the hub closes it.
func (c *Client) WriteMessage(ctx context.Context) {
	for {
		select {
		case ev, ok := <-c.MessageCh:
			if !ok {
				c.conn.Close(websocket.StatusNormalClosure, "channel closed")
				return
			}

			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(writeCtx, c.conn, ev)
			cancel()
			if err != nil {
				slog.WarnContext(ctx, "failed to write event",
					"error", err,
					"event", ev.Name)
				continue
			}

		case <-ctx.Done():
			c.conn.Close(websocket.StatusGoingAway, "context cancelled")
			return
		}
	}
}

// ReadMessage forwards frames from the websocket to the hub. It unregisters
// the client when the connection ends.
func (c *Client) ReadMessage(ctx context.Context) {
	defer func() {
		c.hub.unregister(c)
		c.conn.CloseNow()
	}()

	for {
		msgType, p, err := c.conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure &&
				status != websocket.StatusGoingAway &&
				status != -1 {
				slog.WarnContext(ctx, "websocket read failed", "error", err)
			}
			return
		}

		// text frames only
		if msgType != websocket.MessageText {
			continue
		}

		var ev RawEvent
		if err := json.Unmarshal(p, &ev); err != nil {
			slog.DebugContext(ctx, "failed to decode event", "error", err)
			ev = RawEvent{}
		}

		if !c.hub.submit(ctx, Inbound{Client: c, Event: ev}) {
			return
		}
	}
}

// Keepalive pings the peer every interval and closes the connection when a
// ping goes unanswered.
func (c *Client) Keepalive(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				slog.DebugContext(ctx, "ping failed, closing connection", "error", err)
				c.conn.CloseNow()
				return
			}
		}
	}
}
