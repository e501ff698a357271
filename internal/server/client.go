package server

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait = 10 * time.Second
	pongWait  = 60 * time.Second
	pingEvery = (pongWait * 9) / 10
	readLimit = 1 << 20
)

type clientRequest struct {
	Type string `json:"type"`
}

// client wraps one websocket. gorilla connections allow a single concurrent
// writer, so every write goes through mu.
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
	once sync.Once
	done chan struct{}
}

func newClient(conn *websocket.Conn) *client {
	conn.SetReadLimit(readLimit)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	return &client{conn: conn, done: make(chan struct{})}
}

func (c *client) send(messageType int, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(messageType, payload)
}

func (c *client) sendJSON(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.send(websocket.TextMessage, payload)
}

// serve pings the peer and reads requests until the socket fails. Non-nil
// answers from reply are written back to this client only.
func (c *client) serve(reply func(clientRequest) any) {
	go c.keepAlive()
	for {
		messageType, payload, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		var req clientRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			continue
		}
		if answer := reply(req); answer != nil {
			if err := c.sendJSON(answer); err != nil {
				return
			}
		}
	}
}

func (c *client) keepAlive() {
	ticker := time.NewTicker(pingEvery)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.send(websocket.PingMessage, nil); err != nil {
				_ = c.conn.Close()
				return
			}
		}
	}
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}
