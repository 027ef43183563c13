/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"maps"
	"math/big"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	roomCodeLength = 6
	roomCodeChars  = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

	maxCodeAttempts = 16
)

// InitRequest describes a room to be created. Code is normally left empty
// and generated.
type InitRequest struct {
	Code             string `json:"-"`
	ModeratorName    string `json:"name"`
	Mode             string `json:"mode"`
	HintsOn          bool   `json:"hintsOn"`
	ModeratorPlaying bool   `json:"playing"`
}

type InitResponse struct {
	Room        string `json:"room"`
	ModeratorID string `json:"moderatorId"`
}

// Manager holds the active hubs keyed by room code, so each code is its
// own isolated session. Hubs are activated on demand from the store and
// released when the lifecycle expires them.
type Manager struct {
	cfg       *Config
	rules     rules
	store     Store
	lifecycle *Lifecycle
	now       func() time.Time

	mu   sync.Mutex
	hubs map[string]*Hub

	quit     chan struct{}
	quitOnce sync.Once
}

func newManager(cfg *Config, store Store) *Manager {
	m := &Manager{
		cfg: cfg,
		rules: rules{
			minPlayers:        cfg.minPlayers,
			minPlayersPlaying: cfg.minPlayersPlaying,
		},
		store: store,
		now:   time.Now,
		hubs:  make(map[string]*Hub),
		quit:  make(chan struct{}),
	}
	m.lifecycle = newLifecycle(m.expire)

	return m
}

func generateRoomCode() (string, error) {
	code := make([]byte, roomCodeLength)
	for i := range code {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(roomCodeChars))))
		if err != nil {
			return "", err
		}
		code[i] = roomCodeChars[n.Int64()]
	}
	return string(code), nil
}

// newRoomCode generates a room code that is neither active nor stored.
func (m *Manager) newRoomCode(ctx context.Context) (string, error) {
	for range maxCodeAttempts {
		code, err := generateRoomCode()
		if err != nil {
			return "", fmt.Errorf("generating room code: %w", err)
		}

		m.mu.Lock()
		_, active := m.hubs[code]
		m.mu.Unlock()
		if active {
			continue
		}

		_, err = m.store.Load(ctx, code)
		switch {
		case errors.Is(err, errRoomNotFound):
			return code, nil
		case err != nil:
			return "", err
		}
	}

	return "", errors.New("no free room code found")
}

// Create initializes a room, persists it and arms its lifetime wake-up.
func (m *Manager) Create(ctx context.Context, req InitRequest) (InitResponse, error) {
	code := req.Code
	if code == "" {
		var err error
		code, err = m.newRoomCode(ctx)
		if err != nil {
			return InitResponse{}, err
		}
	}

	room := newRoom(code, uuid.NewString(), req, m.now())

	if err := m.store.Save(ctx, room); err != nil {
		return InitResponse{}, err
	}

	hub := newHub(m, room)

	m.mu.Lock()
	if _, ok := m.hubs[code]; ok {
		m.mu.Unlock()
		return InitResponse{}, fmt.Errorf("room %s is already active", code)
	}
	m.hubs[code] = hub
	m.mu.Unlock()

	go hub.run()

	m.lifecycle.schedule(code, room.CreatedAt.Add(m.cfg.maxLifetime))

	logf(m.cfg, "ROOMS: Created room %s (mode %s, moderator playing: %t)", code, room.Mode, room.ModeratorPlaying)

	return InitResponse{Room: code, ModeratorID: room.ModeratorID}, nil
}

func (m *Manager) active(code string) (*Hub, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.hubs[code]
	return h, ok
}

// activate returns the running hub for code, reloading the room's last
// snapshot from the store if no hub is running.
func (m *Manager) activate(ctx context.Context, code string) (*Hub, error) {
	if h, ok := m.active(code); ok {
		return h, nil
	}

	room, err := m.store.Load(ctx, code)
	if err != nil {
		return nil, err
	}
	room.disconnectAll()

	m.mu.Lock()
	if h, ok := m.hubs[code]; ok {
		m.mu.Unlock()
		return h, nil
	}
	h := newHub(m, room)
	m.hubs[code] = h
	m.mu.Unlock()

	go h.run()

	m.lifecycle.ensure(code, room.CreatedAt.Add(m.cfg.maxLifetime))

	logf(m.cfg, "ROOMS: Activated room %s from store", code)

	return h, nil
}

// release forgets h. Called by the hub itself as it shuts down.
func (m *Manager) release(h *Hub) {
	m.mu.Lock()
	if m.hubs[h.code] == h {
		delete(m.hubs, h.code)
	}
	m.mu.Unlock()

	m.lifecycle.cancel(h.code)
}

// expire is the lifecycle callback. An active hub decides for itself; a room
// with no hub has no connections and is deleted outright. A code that no
// longer exists anywhere is ignored.
func (m *Manager) expire(code string) {
	if h, ok := m.active(code); ok {
		h.poke()
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	if _, err := m.store.Load(ctx, code); err != nil {
		if !errors.Is(err, errRoomNotFound) {
			errorf("loading room %s for expiry: %v", code, err)
		}
		return
	}

	if err := m.store.Delete(ctx, code); err != nil {
		errorf("deleting room %s: %v", code, err)
		return
	}

	logf(m.cfg, "ROOMS: Expired inactive room %s", code)
}

// restore re-arms wake-ups for rooms an earlier process left in the store.
// None of them has a live connection, so each gets the disconnect grace,
// capped at its lifetime. Rooms already past their lifetime are deleted.
func (m *Manager) restore(ctx context.Context) error {
	rooms, err := m.store.List(ctx)
	if err != nil {
		return err
	}

	now := m.now()
	armed := 0

	for _, r := range rooms {
		end := r.CreatedAt.Add(m.cfg.maxLifetime)
		if !now.Before(end) {
			if err := m.store.Delete(ctx, r.Code); err != nil {
				return err
			}
			logf(m.cfg, "ROOMS: Deleted room %s, expired while offline", r.Code)
			continue
		}

		at := now.Add(m.cfg.disconnectGrace)
		if end.Before(at) {
			at = end
		}
		m.lifecycle.ensure(r.Code, at)
		armed++
	}

	logf(m.cfg, "ROOMS: Restored wake-ups for %d stored rooms", armed)

	return nil
}

// closeAll stops every hub and pending wake-up, and waits for the hubs to
// save their rooms. Used on shutdown.
func (m *Manager) closeAll() {
	m.quitOnce.Do(func() {
		m.lifecycle.stop()
		close(m.quit)
	})

	m.mu.Lock()
	hubs := slices.Collect(maps.Values(m.hubs))
	m.mu.Unlock()

	for _, h := range hubs {
		<-h.done
	}
}
