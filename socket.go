/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
)

const (
	clientBuffer   = 32
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 4096

	closeRoomNotFound = 4000
	closeRejected     = 4001
)

// outgoing is either a prepared frame or, when closeCode is set, a request
// to send a close frame and hang up.
type outgoing struct {
	msg       *websocket.PreparedMessage
	closeCode int
	closeText string
}

// Client is one accepted socket. Its role and id are fixed for its lifetime.
type Client struct {
	conn *websocket.Conn
	send chan outgoing
	role string
	id   string
	name string
}

func newUpgrader(cfg *Config) *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return originAllowed(cfg, r.Header.Get("Origin"))
		},
	}
}

// serveRoomSocket upgrades GET /api/room/:code/websocket?role=&id=&name= and
// hands the connection to the room's hub.
func serveRoomSocket(cfg *Config, m *Manager) httprouter.Handle {
	upgrader := newUpgrader(cfg)

	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		code := ps.ByName("code")
		q := r.URL.Query()

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logf(cfg, "ERROR: Upgrade for room %s from %s failed: %v", code, realIP(r), err)
			return
		}

		client := &Client{
			conn: conn,
			send: make(chan outgoing, clientBuffer),
			role: q.Get("role"),
			id:   q.Get("id"),
			name: q.Get("name"),
		}

		for attempt := 0; attempt < 2; attempt++ {
			hub, err := m.activate(r.Context(), code)
			if err != nil {
				if !errors.Is(err, errRoomNotFound) {
					errorf("activating room %s: %v", code, err)
				}
				refuse(conn, errRoomNotFound)
				return
			}

			if hub.join(client) {
				go client.writePump()
				client.readPump(hub)
				return
			}
		}

		refuse(conn, errRoomNotFound)
	}
}

// refuse tells a socket the room does not exist and closes it.
func refuse(conn *websocket.Conn, err error) {
	defer conn.Close()

	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(errorMessage(err)); err != nil {
		return
	}
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(closeRoomNotFound, err.Error()))
}

func (c *Client) readPump(h *Hub) {
	defer func() {
		h.leave(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var cmd Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			// ignore malformed frames
			continue
		}

		switch cmd.Type {
		case "start", "randomize", "replay", "reveal", "select", "mark", "ready":
			h.submit(c, cmd)
		default:
			// ignore unknown types
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case out, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if out.closeCode != 0 {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(out.closeCode, out.closeText))
				return
			}

			if err := c.conn.WritePreparedMessage(out.msg); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
