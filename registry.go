/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"slices"
)

type joinOutcome int

const (
	joinedNew joinOutcome = iota
	rejoinedByID
	rejoinedByName
)

func (rm *Room) findPlayer(id string) *Player {
	for i := range rm.Players {
		if rm.Players[i].ID == id {
			return &rm.Players[i]
		}
	}
	return nil
}

// resolvePlayer maps a player connection onto the roster. An exact id match
// wins; failing that, the first disconnected player with the same name is
// taken over and rekeyed to id; otherwise a new player is appended.
//
// Two disconnected players sharing a name resolve to whichever joined first.
func (rm *Room) resolvePlayer(id, name string) (*Player, joinOutcome) {
	if p := rm.findPlayer(id); p != nil {
		p.Connected = true
		return p, rejoinedByID
	}

	for i := range rm.Players {
		p := &rm.Players[i]
		if p.Name != name || p.Connected {
			continue
		}

		rm.rekey(p.ID, id)
		p.ID = id
		p.Connected = true

		return p, rejoinedByName
	}

	rm.Players = append(rm.Players, Player{ID: id, Name: name, Connected: true})

	return &rm.Players[len(rm.Players)-1], joinedNew
}

// rekey moves everything held under a player's old id over to its new one.
func (rm *Room) rekey(oldID, newID string) {
	if oldID == newID {
		return
	}

	if b, ok := rm.Boards[oldID]; ok {
		rm.Boards[newID] = b
		delete(rm.Boards, oldID)
	}

	if sel, ok := rm.PendingSelections[oldID]; ok {
		rm.PendingSelections[newID] = sel
		delete(rm.PendingSelections, oldID)
	}

	for _, ids := range [][]string{rm.PendingReadyIDs, rm.Winners} {
		if i := slices.Index(ids, oldID); i >= 0 {
			ids[i] = newID
		}
	}
}

// join admits a freshly accepted connection. A rejected connection gets the
// returned error and is closed by the caller.
func (rm *Room) join(s sender, name string) (effects, error) {
	var e effects

	switch s.role {
	case roleModerator:
		if s.id != rm.ModeratorID {
			return e, errWrongModerator
		}

	case rolePlayer:
		if name == "" {
			return e, errNameRequired
		}

		p, outcome := rm.resolvePlayer(s.id, name)
		if outcome == joinedNew {
			e.send(toAll, PlayerListMessage{Type: "player_joined", Players: rm.playerList()})
		} else {
			e.send(toAll, PlayerEventMessage{Type: "player_reconnected", PlayerID: p.ID, PlayerName: p.Name})
		}

		e.save = true
		e.bestEffort = true

	default:
		return e, errUnknownRole
	}

	e.send(toSelf, JoinedMessage{
		Type:             "joined",
		PlayerID:         s.id,
		Players:          rm.playerList(),
		Phase:            rm.Phase,
		ModeratorName:    rm.ModeratorName,
		ModeratorPlaying: rm.ModeratorPlaying,
	})

	if rm.Phase == phasePlaying {
		var boardID *string
		if _, ok := rm.Boards[s.id]; ok {
			id := s.id
			boardID = &id
		}
		e.send(toSelf, rm.gameState(boardID))
	}

	return e, nil
}

// leave handles a connection going away. stillConnected reports whether the
// same id has other live connections, in which case the player stays online.
func (rm *Room) leave(s sender, stillConnected bool) effects {
	var e effects

	if s.role == roleModerator {
		if s.id == rm.ModeratorID && !stillConnected {
			e.send(toAll, SimpleMessage{Type: "moderator_disconnected"})
		}
		return e
	}

	p := rm.findPlayer(s.id)
	if p == nil || stillConnected {
		return e
	}

	p.Connected = false
	e.save = true
	e.send(toAll, PlayerEventMessage{Type: "player_disconnected", PlayerID: p.ID, PlayerName: p.Name})

	return e
}

// disconnectAll marks every player offline. A room loaded from the store has
// no live sockets, whatever its snapshot says.
func (rm *Room) disconnectAll() {
	for i := range rm.Players {
		rm.Players[i].Connected = false
	}
}

// connIndex tracks the live connections of one room by player id, so
// delivery never has to walk the roster.
type connIndex struct {
	all    map[*Client]struct{}
	byID   map[string]map[*Client]struct{}
	byRole map[string]map[*Client]struct{}
}

func newConnIndex() *connIndex {
	return &connIndex{
		all:    make(map[*Client]struct{}),
		byID:   make(map[string]map[*Client]struct{}),
		byRole: make(map[string]map[*Client]struct{}),
	}
}

func (ix *connIndex) add(c *Client) {
	ix.all[c] = struct{}{}
	addTo(ix.byID, c.id, c)
	addTo(ix.byRole, c.role, c)
}

// remove reports whether c was indexed.
func (ix *connIndex) remove(c *Client) bool {
	if _, ok := ix.all[c]; !ok {
		return false
	}
	delete(ix.all, c)
	removeFrom(ix.byID, c.id, c)
	removeFrom(ix.byRole, c.role, c)

	return true
}

func addTo(sets map[string]map[*Client]struct{}, key string, c *Client) {
	set, ok := sets[key]
	if !ok {
		set = make(map[*Client]struct{})
		sets[key] = set
	}
	set[c] = struct{}{}
}

func removeFrom(sets map[string]map[*Client]struct{}, key string, c *Client) {
	set, ok := sets[key]
	if !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(sets, key)
	}
}

func members(set map[*Client]struct{}) []*Client {
	out := make([]*Client, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	return out
}

func (ix *connIndex) forID(id string) []*Client {
	return members(ix.byID[id])
}

func (ix *connIndex) forRole(role string) []*Client {
	return members(ix.byRole[role])
}

func (ix *connIndex) connected(id string) bool {
	return len(ix.byID[id]) > 0
}

func (ix *connIndex) len() int {
	return len(ix.all)
}

func (ix *connIndex) clients() []*Client {
	return members(ix.all)
}
