package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/park285/Cheese-Arena/internal/auth"
	"nhooyr.io/websocket"
)

// client is one websocket connection. It is the room member the engine
// joins to sessions, so Send must never block.
type client struct {
	id       string
	identity auth.Identity
	conn     *websocket.Conn
	send     chan []byte

	done      chan struct{}
	closeOnce sync.Once
}

func newClient(id string, identity auth.Identity, conn *websocket.Conn, buffer int) *client {
	if buffer <= 0 {
		buffer = 64
	}
	return &client{
		id:       id,
		identity: identity,
		conn:     conn,
		send:     make(chan []byte, buffer),
		done:     make(chan struct{}),
	}
}

func (c *client) ID() string            { return c.id }
func (c *client) ParticipantID() string { return c.identity.ID }

// Send enqueues frame; a full buffer or closed client drops it.
func (c *client) Send(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

func (c *client) close(code websocket.StatusCode, reason string) {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close(code, reason)
	})
}

// writePump drains the send buffer until the client closes.
func (c *client) writePump(ctx context.Context, timeout time.Duration) {
	for {
		select {
		case <-c.done:
			return
		case <-ctx.Done():
			return
		case frame := <-c.send:
			wctx, cancel := context.WithTimeout(ctx, timeout)
			err := c.conn.Write(wctx, websocket.MessageText, frame)
			cancel()
			if err != nil {
				c.close(websocket.StatusGoingAway, "write failure")
				return
			}
		}
	}
}

// pingLoop closes the connection after two consecutive ping failures.
func (c *client) pingLoop(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	failures := 0
	for {
		select {
		case <-c.done:
			return
		case <-ctx.Done():
			return
		case <-t.C:
			pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
			err := c.conn.Ping(pctx)
			cancel()
			if err != nil {
				failures++
				if failures >= 2 {
					c.close(websocket.StatusGoingAway, "ping failure")
					return
				}
				continue
			}
			failures = 0
		}
	}
}
