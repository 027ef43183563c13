/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"maps"
	"math/rand/v2"
	"slices"
	"time"
)

const (
	phaseLobby   = "lobby"
	phasePlaying = "playing"

	roleModerator = "moderator"
	rolePlayer    = "player"

	unknownPlayerName = "Unknown"
)

type Player struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Connected bool   `json:"connected"`
}

type Selection struct {
	R int `json:"r"`
	C int `json:"c"`
}

// Room is the authoritative state of one game. It is owned by exactly one
// hub goroutine and persisted as a whole after every mutation.
type Room struct {
	Code              string               `json:"code"`
	ModeratorID       string               `json:"moderatorId"`
	ModeratorName     string               `json:"moderatorName"`
	ModeratorPlaying  bool                 `json:"moderatorPlaying"`
	Players           []Player             `json:"players"`
	Mode              string               `json:"mode"`
	HintsOn           bool                 `json:"hintsOn"`
	GamePool          []string             `json:"gamePool"`
	Boards            map[string]Board     `json:"boards"`
	CalledChars       []string             `json:"calledChars"`
	CurrentChar       *string              `json:"currentChar"`
	PendingChar       *string              `json:"pendingChar"`
	PendingSelections map[string]Selection `json:"pendingSelections"`
	PendingReadyIDs   []string             `json:"pendingReadyIds"`
	Phase             string               `json:"phase"`
	Winners           []string             `json:"winners"`
	CreatedAt         time.Time            `json:"createdAt"`
}

// rules holds the tunables a room is played under.
type rules struct {
	minPlayers        int
	minPlayersPlaying int
}

// sender identifies the connection a command arrived on. Both fields are
// fixed when the connection is accepted.
type sender struct {
	role string
	id   string
}

type audience int

const (
	toAll audience = iota
	toSelf
	toID
	toModerator
	toConnectedPlayers
)

type outbound struct {
	to  audience
	id  string
	msg any
}

// effects is what a handler asks the hub to do once it returns. When save is
// set the room is persisted before any message goes out.
type effects struct {
	save       bool
	bestEffort bool
	out        []outbound
}

func (e *effects) send(to audience, msg any) {
	e.out = append(e.out, outbound{to: to, msg: msg})
}

func (e *effects) sendTo(id string, msg any) {
	e.out = append(e.out, outbound{to: toID, id: id, msg: msg})
}

func reply(err error) effects {
	var e effects
	e.send(toSelf, errorMessage(err))
	return e
}

func newRoom(code, moderatorID string, req InitRequest, now time.Time) *Room {
	return &Room{
		Code:              code,
		ModeratorID:       moderatorID,
		ModeratorName:     req.ModeratorName,
		ModeratorPlaying:  req.ModeratorPlaying,
		Players:           []Player{},
		Mode:              req.Mode,
		HintsOn:           req.HintsOn,
		GamePool:          []string{},
		Boards:            map[string]Board{},
		CalledChars:       []string{},
		PendingSelections: map[string]Selection{},
		PendingReadyIDs:   []string{},
		Phase:             phaseLobby,
		Winners:           []string{},
		CreatedAt:         now,
	}
}

func (rm *Room) isModerator(s sender) bool {
	return s.role == roleModerator && s.id == rm.ModeratorID
}

// canPlay reports whether s may act on a board of its own.
func (rm *Room) canPlay(s sender) bool {
	return s.role == rolePlayer || (rm.isModerator(s) && rm.ModeratorPlaying)
}

// playerList is the roster as clients see it, with a playing moderator first.
func (rm *Room) playerList() []Player {
	list := make([]Player, 0, len(rm.Players)+1)
	if rm.ModeratorPlaying {
		list = append(list, Player{ID: rm.ModeratorID, Name: rm.ModeratorName, Connected: true})
	}
	return append(list, rm.Players...)
}

func (rm *Room) displayName(id string) string {
	if id == rm.ModeratorID {
		return rm.ModeratorName
	}
	if p := rm.findPlayer(id); p != nil {
		return p.Name
	}
	return unknownPlayerName
}

func (rm *Room) called(char string) bool {
	return slices.Contains(rm.CalledChars, char)
}

func (rm *Room) handle(s sender, cmd Command, rl rules) effects {
	switch cmd.Type {
	case "start":
		return rm.start(s, cmd.ModeratorPlaying, rl)
	case "randomize":
		return rm.randomize(s)
	case "replay":
		return rm.replay(s)
	case "reveal":
		return rm.reveal(s)
	case "select":
		if cmd.R == nil || cmd.C == nil {
			return effects{}
		}
		return rm.selectCell(s, *cmd.R, *cmd.C)
	case "mark":
		if cmd.R == nil || cmd.C == nil {
			return effects{}
		}
		return rm.mark(s, *cmd.R, *cmd.C)
	case "ready":
		return rm.ready(s)
	default:
		return effects{}
	}
}

func (rm *Room) start(s sender, moderatorPlaying *bool, rl rules) effects {
	if !rm.isModerator(s) {
		return reply(errNotModerator)
	}

	playing := rm.ModeratorPlaying
	if moderatorPlaying != nil {
		playing = *moderatorPlaying
	}

	need := rl.minPlayers
	if playing {
		need = rl.minPlayersPlaying
	}

	if len(rm.Players) < need {
		return reply(errNotEnoughPlayers)
	}

	pool := buildPool(rm.Mode)

	boards := make(map[string]Board, len(rm.Players)+1)
	ids := make([]string, 0, len(rm.Players)+1)
	for _, p := range rm.Players {
		ids = append(ids, p.ID)
	}
	if playing {
		ids = append(ids, rm.ModeratorID)
	}
	for _, id := range ids {
		b, err := generateBoard(pool)
		if err != nil {
			return reply(err)
		}
		boards[id] = b
	}

	rm.ModeratorPlaying = playing
	rm.GamePool = pool
	rm.Boards = boards
	rm.CalledChars = []string{}
	rm.CurrentChar = nil
	rm.PendingChar = nil
	rm.PendingSelections = map[string]Selection{}
	rm.PendingReadyIDs = []string{}
	rm.Winners = []string{}
	rm.Phase = phasePlaying

	e := effects{save: true}

	players := rm.playerList()

	var moderatorBoard *string
	if rm.ModeratorPlaying {
		id := rm.ModeratorID
		moderatorBoard = &id
	}
	e.sendTo(rm.ModeratorID, rm.gameStart(players, moderatorBoard))

	for _, p := range rm.Players {
		e.sendTo(p.ID, rm.gameStart(players, &p.ID))
	}

	return e
}

func (rm *Room) gameStart(players []Player, boardID *string) GameStartMessage {
	return GameStartMessage{
		Type:        "game_start",
		Boards:      rm.Boards,
		GamePool:    rm.GamePool,
		Players:     players,
		YourBoardID: boardID,
		HintsOn:     rm.HintsOn,
	}
}

// gameState is the snapshot sent to a connection joining a game in progress.
func (rm *Room) gameState(boardID *string) GameStateMessage {
	return GameStateMessage{
		GameStartMessage: rm.gameStart(rm.playerList(), boardID),
		CalledChars:      rm.CalledChars,
		CurrentChar:      rm.CurrentChar,
		PendingChar:      rm.PendingChar,
		Winners:          rm.Winners,
		PendingReadyIDs:  rm.PendingReadyIDs,
	}
}

func (rm *Room) randomize(s sender) effects {
	if !rm.isModerator(s) || rm.Phase != phasePlaying || rm.PendingChar != nil {
		return effects{}
	}

	remaining := make([]string, 0, len(rm.GamePool))
	for _, ch := range rm.GamePool {
		if !rm.called(ch) {
			remaining = append(remaining, ch)
		}
	}
	if len(remaining) == 0 {
		return reply(errNoCharsLeft)
	}

	char := remaining[rand.IntN(len(remaining))]
	rm.PendingChar = &char
	rm.PendingSelections = map[string]Selection{}
	rm.PendingReadyIDs = []string{}

	e := effects{save: true}
	e.send(toModerator, RandomizedMessage{Type: "randomized", PendingChar: char})
	e.send(toConnectedPlayers, CharMessage{Type: "char_pending", Char: char})
	if rm.ModeratorPlaying {
		e.send(toModerator, CharMessage{Type: "char_pending_moderator", Char: char})
	}

	return e
}

func (rm *Room) replay(s sender) effects {
	if !rm.isModerator(s) || rm.PendingChar == nil {
		return effects{}
	}

	msg := CharMessage{Type: "char_replay", Char: *rm.PendingChar}

	var e effects
	e.send(toConnectedPlayers, msg)
	if rm.ModeratorPlaying {
		e.send(toModerator, msg)
	}

	return e
}

func (rm *Room) reveal(s sender) effects {
	if !rm.isModerator(s) || rm.PendingChar == nil {
		return effects{}
	}

	char := *rm.PendingChar
	rm.PendingChar = nil
	rm.CurrentChar = &char
	rm.CalledChars = append(rm.CalledChars, char)

	results := make(map[string]SelectionResult, len(rm.PendingSelections))
	for _, id := range slices.Sorted(maps.Keys(rm.PendingSelections)) {
		sel := rm.PendingSelections[id]
		b, ok := rm.Boards[id]
		if !ok || !b.inBounds(sel.R, sel.C) {
			continue
		}

		valid := b[sel.R][sel.C].Char == char
		if valid {
			b[sel.R][sel.C].Marked = true
			rm.Boards[id] = b
		}
		results[id] = SelectionResult{R: sel.R, C: sel.C, Valid: valid}
	}
	rm.PendingSelections = map[string]Selection{}
	rm.PendingReadyIDs = []string{}

	e := effects{save: true}
	e.send(toAll, RevealedMessage{
		Type:        "revealed",
		Char:        char,
		CalledChars: rm.CalledChars,
		Selections:  results,
	})

	for _, id := range slices.Sorted(maps.Keys(results)) {
		if !results[id].Valid {
			continue
		}
		if win, ok := rm.evaluateWin(id); ok {
			e.send(toAll, win)
		}
	}

	return e
}

func (rm *Room) selectCell(s sender, r, c int) effects {
	if rm.PendingChar == nil || !rm.canPlay(s) {
		return effects{}
	}

	b, ok := rm.Boards[s.id]
	if !ok || !b.inBounds(r, c) {
		return effects{}
	}
	if cell := b[r][c]; cell.Marked || cell.Free {
		return effects{}
	}

	if prev, ok := rm.PendingSelections[s.id]; ok && prev.R == r && prev.C == c {
		delete(rm.PendingSelections, s.id)
	} else {
		rm.PendingSelections[s.id] = Selection{R: r, C: c}
	}

	return effects{save: true}
}

func (rm *Room) mark(s sender, r, c int) effects {
	if rm.Phase != phasePlaying || !rm.canPlay(s) {
		return effects{}
	}

	b, ok := rm.Boards[s.id]
	if !ok || !b.inBounds(r, c) {
		return effects{}
	}
	cell := b[r][c]
	if cell.Marked || cell.Free {
		return effects{}
	}

	if !rm.called(cell.Char) {
		// Only the sender's own sockets hear about a miss.
		var e effects
		e.sendTo(s.id, MarkResultMessage{Type: "mark_result", PlayerID: s.id, R: r, C: c})
		return e
	}

	b[r][c].Marked = true
	rm.Boards[s.id] = b

	e := effects{save: true}
	e.send(toAll, MarkResultMessage{Type: "mark_result", PlayerID: s.id, R: r, C: c, Valid: true})
	if win, ok := rm.evaluateWin(s.id); ok {
		e.send(toAll, win)
	}

	return e
}

func (rm *Room) ready(s sender) effects {
	if rm.PendingChar == nil || !rm.canPlay(s) {
		return effects{}
	}

	if i := slices.Index(rm.PendingReadyIDs, s.id); i >= 0 {
		rm.PendingReadyIDs = slices.Delete(rm.PendingReadyIDs, i, i+1)
	} else {
		rm.PendingReadyIDs = append(rm.PendingReadyIDs, s.id)
	}

	e := effects{save: true}
	e.send(toAll, ReadyUpdateMessage{Type: "ready_update", ReadyPlayerIDs: rm.PendingReadyIDs})

	return e
}

// evaluateWin records id as a winner the first time its board completes a line.
func (rm *Room) evaluateWin(id string) (WinMessage, bool) {
	if slices.Contains(rm.Winners, id) {
		return WinMessage{}, false
	}

	b, ok := rm.Boards[id]
	if !ok {
		return WinMessage{}, false
	}

	line, ok := checkWin(b)
	if !ok {
		return WinMessage{}, false
	}

	rm.Winners = append(rm.Winners, id)

	return WinMessage{
		Type:       "win",
		PlayerID:   id,
		PlayerName: rm.displayName(id),
		WinLine:    line,
	}, true
}
