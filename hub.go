/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
)

const (
	hubQueueSize = 64
	storeTimeout = 5 * time.Second
)

type clientCommand struct {
	client *Client
	cmd    Command
}

// Hub is the single owner of one room. Every connect, disconnect, command
// and lifecycle wake-up for the room is handled on its run goroutine, one at
// a time, so Room needs no locking of its own.
type Hub struct {
	code    string
	cfg     *Config
	rules   rules
	manager *Manager

	room  *Room
	conns *connIndex

	register chan *Client
	unreg    chan *Client
	commands chan clientCommand
	wake     chan struct{}
	done     chan struct{}
}

func newHub(m *Manager, room *Room) *Hub {
	return &Hub{
		code:    room.Code,
		cfg:     m.cfg,
		rules:   m.rules,
		manager: m,
		room:    room,
		conns:   newConnIndex(),

		register: make(chan *Client),
		unreg:    make(chan *Client),
		commands: make(chan clientCommand, hubQueueSize),
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// join hands c to the hub. It fails once the hub has shut down.
func (h *Hub) join(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) leave(c *Client) {
	select {
	case h.unreg <- c:
	case <-h.done:
	}
}

func (h *Hub) submit(c *Client, cmd Command) {
	select {
	case h.commands <- clientCommand{client: c, cmd: cmd}:
	case <-h.done:
	}
}

// poke asks the hub to re-evaluate whether the room should expire.
func (h *Hub) poke() {
	select {
	case h.wake <- struct{}{}:
	default:
	}
}

func (h *Hub) run() {
	defer close(h.done)

	for {
		select {
		case c := <-h.register:
			h.handleRegister(c)

		case c := <-h.unreg:
			h.handleUnregister(c)

		case cc := <-h.commands:
			if _, ok := h.conns.all[cc.client]; !ok {
				continue
			}
			e := h.room.handle(sender{role: cc.client.role, id: cc.client.id}, cc.cmd, h.rules)
			h.apply(cc.client, e)

		case <-h.wake:
			if h.expire() {
				return
			}

		case <-h.manager.quit:
			h.shutdown()
			return
		}
	}
}

func (h *Hub) handleRegister(c *Client) {
	e, err := h.room.join(sender{role: c.role, id: c.id}, c.name)
	if err != nil {
		logf(h.cfg, "ROOMS: Rejected %s %q in room %s: %v", c.role, c.id, h.code, err)
		if pm, perr := prepare(errorMessage(err)); perr == nil {
			c.send <- outgoing{msg: pm}
		}
		c.send <- outgoing{closeCode: closeRejected, closeText: err.Error()}
		close(c.send)
		return
	}

	h.conns.add(c)
	logf(h.cfg, "ROOMS: %s %q connected to room %s (%d connections)", c.role, c.id, h.code, h.conns.len())

	h.apply(c, e)
}

func (h *Hub) handleUnregister(c *Client) {
	if !h.conns.remove(c) {
		return
	}
	close(c.send)

	logf(h.cfg, "ROOMS: %s %q disconnected from room %s (%d connections)", c.role, c.id, h.code, h.conns.len())

	e := h.room.leave(sender{role: c.role, id: c.id}, h.conns.connected(c.id))
	h.apply(nil, e)

	h.manager.lifecycle.schedule(h.code, h.manager.now().Add(h.cfg.disconnectGrace))
}

// expire closes the room if it has been abandoned or has outlived its
// maximum lifetime, and reports whether the hub should stop.
func (h *Hub) expire() bool {
	age := h.manager.now().Sub(h.room.CreatedAt)

	if h.conns.len() > 0 && age <= h.cfg.maxLifetime {
		h.manager.lifecycle.schedule(h.code, h.room.CreatedAt.Add(h.cfg.maxLifetime))
		return false
	}

	logf(h.cfg, "ROOMS: Expiring room %s after %s with %d connections", h.code, age.Round(time.Second), h.conns.len())

	h.closeAll(websocket.CloseNormalClosure, "room expired")

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	if err := h.manager.store.Delete(ctx, h.code); err != nil {
		errorf("deleting room %s: %v", h.code, err)
	}

	h.room = nil
	h.manager.release(h)

	return true
}

// shutdown closes every socket and saves the room with everyone offline, so
// the next process can match returning players by name.
func (h *Hub) shutdown() {
	h.closeAll(websocket.CloseGoingAway, "server shutting down")

	h.room.disconnectAll()
	if err := h.save(); err != nil {
		errorf("saving room %s on shutdown: %v", h.code, err)
	}
}

func (h *Hub) closeAll(code int, text string) {
	for _, c := range h.conns.clients() {
		h.conns.remove(c)
		select {
		case c.send <- outgoing{closeCode: code, closeText: text}:
		default:
		}
		close(c.send)
	}
}

func (h *Hub) save() error {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	return h.manager.store.Save(ctx, h.room)
}

// apply persists and then delivers the effects of a handler. self is the
// connection the triggering event arrived on, if any.
func (h *Hub) apply(self *Client, e effects) {
	if e.save {
		if err := h.save(); err != nil {
			if e.bestEffort {
				logf(h.cfg, "STORE: Best-effort save of room %s failed: %v", h.code, err)
			} else {
				errorf("saving room %s: %v", h.code, err)
			}
		}
	}

	var dropped []*Client

	for _, o := range e.out {
		pm, err := prepare(o.msg)
		if err != nil {
			errorf("encoding message for room %s: %v", h.code, err)
			continue
		}

		for _, c := range h.recipients(self, o) {
			select {
			case c.send <- outgoing{msg: pm}:
			default:
				dropped = append(dropped, c)
			}
		}
	}

	for _, c := range dropped {
		logf(h.cfg, "ROOMS: Dropping slow %s %q from room %s", c.role, c.id, h.code)
		_ = c.conn.Close()
		h.handleUnregister(c)
	}
}

func (h *Hub) recipients(self *Client, o outbound) []*Client {
	switch o.to {
	case toAll:
		return h.conns.clients()

	case toSelf:
		if self == nil {
			return nil
		}
		if _, ok := h.conns.all[self]; !ok {
			return nil
		}
		return []*Client{self}

	case toID:
		return h.conns.forID(o.id)

	// Only the room's own moderator id gets past join, so every
	// moderator socket belongs to it.
	case toModerator:
		return h.conns.forRole(roleModerator)

	case toConnectedPlayers:
		return h.conns.forRole(rolePlayer)
	}

	return nil
}

// prepare encodes msg once so a broadcast does not re-marshal it per client.
func prepare(msg any) (*websocket.PreparedMessage, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}

	return websocket.NewPreparedMessage(websocket.TextMessage, data)
}
