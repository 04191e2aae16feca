package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/teris-io/shortid"

	"github.com/codearena/realtime/internal/types"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 8192
	authTimeout    = 10 * time.Second
)

// Client is one live connection session. A session starts unauthenticated;
// until an in-band authenticate succeeds, identity-bound requests are
// rejected but the transport connection stays open.
type Client struct {
	sessionId string
	conn      *websocket.Conn
	rs        *RealtimeServer
	log       *log.Logger
	user      types.User
	authed    bool
	send      chan *ServerMessage
	stop      chan struct{}
	stopOnce  sync.Once
	deregOnce sync.Once
}

func NewClient(conn *websocket.Conn, rs *RealtimeServer, l *log.Logger) (*Client, error) {
	sid, err := shortid.Generate()
	if err != nil {
		return nil, fmt.Errorf("generate session id: %w", err)
	}

	return &Client{
		sessionId: sid,
		conn:      conn,
		rs:        rs,
		log:       l,
		send:      make(chan *ServerMessage, 256),
		stop:      make(chan struct{}),
	}, nil
}

func (c *Client) SessionId() string {
	return c.sessionId
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.log.Printf("session %s: write exiting", c.sessionId)
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}

			bytes, err := serializeMessage(msg)
			if err != nil {
				c.log.Println("failed to serialize message:", err)
				continue
			}

			if !c.sendMessage(websocket.TextMessage, bytes) {
				return
			}
		case <-c.stop:
			return
		case <-ticker.C:
			if !c.sendMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Client) Read() {
	defer func() {
		c.conn.Close()
		c.cleanup()
		c.log.Printf("session %s: read exiting", c.sessionId)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Printf("ws: read: %v", err)
			}
			break
		}

		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.log.Println("error parsing message:", err)
			c.queueMessage(ErrInvalidMessage(-1))
			continue
		}

		msg.client = c
		msg.Timestamp = Now()
		c.handleMessage(&msg)
	}
}

func (c *Client) handleMessage(msg *ClientMessage) {
	switch {
	case msg.Auth != nil:
		c.handleAuth(msg)
	case msg.Publish != nil:
		if !c.authed {
			c.queueMessage(ErrUnauthorized(msg.Id))
			return
		}
		c.publish(msg)
	default:
		c.queueMessage(ErrInvalidMessage(msg.Id))
	}
}

// handleAuth verifies the presented credential and binds the session to the
// resolved identity. A failed or timed out attempt leaves the session open
// and unauthenticated so the client can retry.
func (c *Client) handleAuth(msg *ClientMessage) {
	if c.authed {
		c.queueMessage(NoErrOK(msg.Id, c.user))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), authTimeout)
	defer cancel()

	user, err := c.rs.verifier.VerifyCredential(ctx, msg.Auth.Token)
	if err != nil {
		c.log.Printf("authenticate session %s: %v", c.sessionId, err)
		c.queueMessage(ErrUnauthorized(msg.Id))
		return
	}

	c.user = user
	c.rs.bindSession(c)
	c.queueMessage(NoErrOK(msg.Id, user))
}

func (c *Client) publish(msg *ClientMessage) {
	select {
	case c.rs.publishChan <- msg:
	default:
		c.log.Printf("publish channel full, rejecting message %d from session %s", msg.Id, c.sessionId)
		c.queueMessage(ErrServiceUnavailable(msg.Id))
	}
}

func (c *Client) queueMessage(msg *ServerMessage) bool {
	select {
	case c.send <- msg:
	default:
		c.log.Printf("send buffer full for session %s, dropping message", c.sessionId)
		return false
	}

	return true
}

func (c *Client) sendMessage(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Printf("write message: %s", err)
		}
		return false
	}

	return true
}

func (c *Client) stopClient() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
}

// cleanup deregisters the session exactly once, no matter how many teardown
// paths race to it.
func (c *Client) cleanup() {
	c.deregOnce.Do(func() {
		c.rs.DeregisterClient(c)
	})
	c.stopClient()
}
