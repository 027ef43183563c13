/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"
)

// storedRoom is what the lifecycle needs to know about a snapshot when the
// process starts.
type storedRoom struct {
	Code      string    `json:"code"`
	CreatedAt time.Time `json:"createdAt"`
}

// Store persists whole-room snapshots. Load returns errRoomNotFound for a
// code with no snapshot, and Delete of such a code is not an error.
type Store interface {
	List(ctx context.Context) ([]storedRoom, error)
	Load(ctx context.Context, code string) (*Room, error)
	Save(ctx context.Context, room *Room) error
	Delete(ctx context.Context, code string) error
	Close() error
}

func openStore(cfg *Config) (Store, error) {
	if cfg.databaseURL == "" {
		logf(cfg, "STORE: Using in-memory room store")
		return newMemoryStore(), nil
	}

	return newPostgresStore(cfg)
}

// memoryStore keeps encoded snapshots, so a loaded room never aliases the
// live one it was saved from.
type memoryStore struct {
	mu    sync.RWMutex
	rooms map[string][]byte
}

func newMemoryStore() *memoryStore {
	return &memoryStore{rooms: make(map[string][]byte)}
}

// List returns every stored room, oldest first.
func (s *memoryStore) List(_ context.Context) ([]storedRoom, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rooms := make([]storedRoom, 0, len(s.rooms))
	for code, data := range s.rooms {
		var r storedRoom
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, fmt.Errorf("decoding room %s: %w", code, err)
		}
		rooms = append(rooms, r)
	}

	slices.SortFunc(rooms, func(a, b storedRoom) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})

	return rooms, nil
}

func (s *memoryStore) Load(_ context.Context, code string) (*Room, error) {
	s.mu.RLock()
	data, ok := s.rooms[code]
	s.mu.RUnlock()

	if !ok {
		return nil, errRoomNotFound
	}

	return decodeRoom(data)
}

func (s *memoryStore) Save(_ context.Context, room *Room) error {
	data, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("encoding room %s: %w", room.Code, err)
	}

	s.mu.Lock()
	s.rooms[room.Code] = data
	s.mu.Unlock()

	return nil
}

func (s *memoryStore) Delete(_ context.Context, code string) error {
	s.mu.Lock()
	delete(s.rooms, code)
	s.mu.Unlock()

	return nil
}

func (s *memoryStore) Close() error {
	return nil
}

func decodeRoom(data []byte) (*Room, error) {
	var room Room
	if err := json.Unmarshal(data, &room); err != nil {
		return nil, fmt.Errorf("decoding room: %w", err)
	}

	if room.Boards == nil {
		room.Boards = map[string]Board{}
	}
	if room.PendingSelections == nil {
		room.PendingSelections = map[string]Selection{}
	}

	return &room, nil
}
