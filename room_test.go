package main

import (
	"slices"
	"testing"
	"time"
)

var testRules = rules{minPlayers: 2, minPlayersPlaying: 1}

var (
	moderator = sender{role: roleModerator, id: "mod"}
	alice     = sender{role: rolePlayer, id: "p1"}
	bob       = sender{role: rolePlayer, id: "p2"}
)

func intPtr(i int) *int { return &i }

func boolPtr(b bool) *bool { return &b }

func newTestRoom(t *testing.T, mode string, playing bool) *Room {
	t.Helper()

	return newRoom("ABC234", moderator.id, InitRequest{
		ModeratorName:    "Teacher",
		Mode:             mode,
		ModeratorPlaying: playing,
	}, time.Now())
}

// startedRoom returns a consonants room with Alice and Bob joined and the
// game started.
func startedRoom(t *testing.T) *Room {
	t.Helper()

	rm := newTestRoom(t, modeConsonants, false)
	rm.resolvePlayer(alice.id, "Alice")
	rm.resolvePlayer(bob.id, "Bob")

	e := rm.handle(moderator, Command{Type: "start"}, testRules)
	if rm.Phase != phasePlaying {
		t.Fatalf("start failed: %+v", e.out)
	}
	return rm
}

// pending draws a char and returns it.
func pending(t *testing.T, rm *Room) string {
	t.Helper()

	rm.handle(moderator, Command{Type: "randomize"}, testRules)
	if rm.PendingChar == nil {
		t.Fatal("randomize left no pending char")
	}
	return *rm.PendingChar
}

// findCell locates char on id's board.
func findCell(rm *Room, id, char string) (int, int, bool) {
	b := rm.Boards[id]
	for r := range boardSize {
		for c := range boardSize {
			if b[r][c].Char == char {
				return r, c, true
			}
		}
	}
	return 0, 0, false
}

// unmarkedCell returns a cell on id's board whose char differs from char.
func unmarkedCell(rm *Room, id, char string) (int, int) {
	b := rm.Boards[id]
	for r := range boardSize {
		for c := range boardSize {
			if !b[r][c].Free && !b[r][c].Marked && b[r][c].Char != char {
				return r, c
			}
		}
	}
	return -1, -1
}

func errorsIn(e effects) []string {
	var out []string
	for _, o := range e.out {
		if m, ok := o.msg.(ErrorMessage); ok {
			out = append(out, m.Message)
		}
	}
	return out
}

func messagesOf[T any](e effects) []T {
	var out []T
	for _, o := range e.out {
		if m, ok := o.msg.(T); ok {
			out = append(out, m)
		}
	}
	return out
}

func TestStartRequiresModerator(t *testing.T) {
	rm := newTestRoom(t, modeConsonants, false)
	rm.resolvePlayer(alice.id, "Alice")
	rm.resolvePlayer(bob.id, "Bob")

	impostor := sender{role: roleModerator, id: "someone-else"}

	for _, s := range []sender{alice, impostor} {
		e := rm.handle(s, Command{Type: "start"}, testRules)

		if got := errorsIn(e); !slices.Equal(got, []string{errNotModerator.Error()}) {
			t.Errorf("errors = %v, want %v", got, errNotModerator)
		}
		if e.save {
			t.Error("rejected start asked for a save")
		}
		if e.out[0].to != toSelf {
			t.Errorf("error audience = %v, want toSelf", e.out[0].to)
		}
	}

	if rm.Phase != phaseLobby {
		t.Errorf("phase = %q, want %q", rm.Phase, phaseLobby)
	}
}

func TestStartNeedsEnoughPlayers(t *testing.T) {
	rm := newTestRoom(t, modeConsonants, false)
	rm.resolvePlayer(alice.id, "Alice")

	e := rm.handle(moderator, Command{Type: "start"}, testRules)
	if got := errorsIn(e); !slices.Equal(got, []string{errNotEnoughPlayers.Error()}) {
		t.Errorf("errors = %v, want %v", got, errNotEnoughPlayers)
	}
	if rm.Phase != phaseLobby {
		t.Errorf("phase = %q, want %q", rm.Phase, phaseLobby)
	}

	// A playing moderator only needs one other player.
	e = rm.handle(moderator, Command{Type: "start", ModeratorPlaying: boolPtr(true)}, testRules)
	if got := errorsIn(e); len(got) != 0 {
		t.Fatalf("errors = %v, want none", got)
	}
	if rm.Phase != phasePlaying {
		t.Errorf("phase = %q, want %q", rm.Phase, phasePlaying)
	}
	if !rm.ModeratorPlaying {
		t.Error("moderatorPlaying not applied")
	}
}

func TestStartDealsBoards(t *testing.T) {
	rm := newTestRoom(t, modeConsonants, true)
	rm.resolvePlayer(alice.id, "Alice")
	rm.resolvePlayer(bob.id, "Bob")

	e := rm.handle(moderator, Command{Type: "start"}, testRules)

	if !e.save {
		t.Error("start did not ask for a save")
	}
	if len(rm.GamePool) != 42 {
		t.Errorf("len(gamePool) = %d, want 42", len(rm.GamePool))
	}

	for _, id := range []string{moderator.id, alice.id, bob.id} {
		if _, ok := rm.Boards[id]; !ok {
			t.Errorf("no board for %s", id)
		}
	}
	if len(rm.Boards) != 3 {
		t.Errorf("len(boards) = %d, want 3", len(rm.Boards))
	}

	starts := messagesOf[GameStartMessage](e)
	if len(starts) != 3 {
		t.Fatalf("got %d game_start messages, want 3", len(starts))
	}

	for i, o := range e.out {
		msg := o.msg.(GameStartMessage)
		if o.to != toID {
			t.Errorf("game_start %d audience = %v, want toID", i, o.to)
		}
		if msg.YourBoardID == nil || *msg.YourBoardID != o.id {
			t.Errorf("game_start to %s has yourBoardId %v", o.id, msg.YourBoardID)
		}
		if len(msg.Boards) != 3 {
			t.Errorf("game_start to %s carries %d boards, want 3", o.id, len(msg.Boards))
		}
	}
}

func TestStartWithoutPlayingModeratorHasNoModeratorBoard(t *testing.T) {
	rm := startedRoom(t)

	if _, ok := rm.Boards[moderator.id]; ok {
		t.Error("non-playing moderator was dealt a board")
	}

	e := rm.handle(moderator, Command{Type: "start"}, testRules)
	for _, o := range e.out {
		msg := o.msg.(GameStartMessage)
		if o.id == moderator.id && msg.YourBoardID != nil {
			t.Errorf("moderator yourBoardId = %q, want nil", *msg.YourBoardID)
		}
	}
}

func TestRestartResetsState(t *testing.T) {
	rm := startedRoom(t)
	pending(t, rm)
	rm.handle(moderator, Command{Type: "reveal"}, testRules)
	rm.Winners = append(rm.Winners, alice.id)

	rm.handle(moderator, Command{Type: "start"}, testRules)

	if len(rm.CalledChars) != 0 || rm.CurrentChar != nil || rm.PendingChar != nil {
		t.Errorf("turn state not reset: called=%v current=%v pending=%v", rm.CalledChars, rm.CurrentChar, rm.PendingChar)
	}
	if len(rm.Winners) != 0 {
		t.Errorf("winners = %v, want none", rm.Winners)
	}
	if rm.Phase != phasePlaying {
		t.Errorf("phase = %q, want %q", rm.Phase, phasePlaying)
	}
}

func TestRandomize(t *testing.T) {
	rm := startedRoom(t)
	rm.PendingSelections[alice.id] = Selection{R: 0, C: 0}
	rm.PendingReadyIDs = []string{bob.id}

	e := rm.handle(moderator, Command{Type: "randomize"}, testRules)

	if rm.PendingChar == nil {
		t.Fatal("no pending char")
	}
	char := *rm.PendingChar
	if !slices.Contains(rm.GamePool, char) {
		t.Errorf("pending char %q not in pool", char)
	}
	if len(rm.PendingSelections) != 0 || len(rm.PendingReadyIDs) != 0 {
		t.Error("pending selections or ready ids not cleared")
	}

	randomized := messagesOf[RandomizedMessage](e)
	if len(randomized) != 1 || randomized[0].PendingChar != char {
		t.Errorf("randomized = %+v, want one with %q", randomized, char)
	}

	chars := messagesOf[CharMessage](e)
	if len(chars) != 1 || chars[0].Type != "char_pending" || chars[0].Char != char {
		t.Errorf("char messages = %+v, want one char_pending", chars)
	}
	if e.out[1].to != toConnectedPlayers {
		t.Errorf("char_pending audience = %v, want toConnectedPlayers", e.out[1].to)
	}

	// A second randomize while a char is pending is ignored.
	e = rm.handle(moderator, Command{Type: "randomize"}, testRules)
	if len(e.out) != 0 || *rm.PendingChar != char {
		t.Error("randomize replaced a pending char")
	}
}

func TestRandomizeNotifiesPlayingModerator(t *testing.T) {
	rm := newTestRoom(t, modeVowels, true)
	rm.resolvePlayer(alice.id, "Alice")
	rm.handle(moderator, Command{Type: "start"}, testRules)

	e := rm.handle(moderator, Command{Type: "randomize"}, testRules)

	var types []string
	for _, m := range messagesOf[CharMessage](e) {
		types = append(types, m.Type)
	}
	if !slices.Equal(types, []string{"char_pending", "char_pending_moderator"}) {
		t.Errorf("char message types = %v", types)
	}
}

func TestRandomizeExhaustsPool(t *testing.T) {
	rm := startedRoom(t)

	for range len(rm.GamePool) {
		pending(t, rm)
		rm.handle(moderator, Command{Type: "reveal"}, testRules)
	}

	e := rm.handle(moderator, Command{Type: "randomize"}, testRules)
	if got := errorsIn(e); !slices.Equal(got, []string{errNoCharsLeft.Error()}) {
		t.Errorf("errors = %v, want %v", got, errNoCharsLeft)
	}
	if rm.PendingChar != nil {
		t.Error("pending char set with an exhausted pool")
	}
	if dup := firstDuplicate(rm.CalledChars); dup != "" {
		t.Errorf("char %q called twice", dup)
	}
}

func TestModeratorOnlyCommandsIgnoreOthers(t *testing.T) {
	rm := startedRoom(t)

	for _, typ := range []string{"randomize", "replay", "reveal"} {
		e := rm.handle(alice, Command{Type: typ}, testRules)
		if len(e.out) != 0 || e.save {
			t.Errorf("%s from a player produced %+v", typ, e)
		}
	}
	if rm.PendingChar != nil {
		t.Error("player drew a char")
	}
}

func TestReplay(t *testing.T) {
	rm := startedRoom(t)

	if e := rm.handle(moderator, Command{Type: "replay"}, testRules); len(e.out) != 0 {
		t.Errorf("replay without pending char produced %+v", e.out)
	}

	char := pending(t, rm)
	e := rm.handle(moderator, Command{Type: "replay"}, testRules)

	msgs := messagesOf[CharMessage](e)
	if len(msgs) != 1 || msgs[0].Type != "char_replay" || msgs[0].Char != char {
		t.Errorf("replay = %+v, want char_replay %q", msgs, char)
	}
	if e.save {
		t.Error("replay asked for a save")
	}
}

func TestRevealWithoutSelections(t *testing.T) {
	rm := startedRoom(t)
	char := pending(t, rm)

	e := rm.handle(moderator, Command{Type: "reveal"}, testRules)

	if rm.PendingChar != nil {
		t.Error("pending char not cleared")
	}
	if rm.CurrentChar == nil || *rm.CurrentChar != char {
		t.Errorf("current char = %v, want %q", rm.CurrentChar, char)
	}

	revealed := messagesOf[RevealedMessage](e)
	if len(revealed) != 1 {
		t.Fatalf("got %d revealed messages, want 1", len(revealed))
	}
	got := revealed[0]
	if got.Char != char || !slices.Equal(got.CalledChars, []string{char}) || len(got.Selections) != 0 {
		t.Errorf("revealed = %+v", got)
	}
	if e.out[0].to != toAll {
		t.Errorf("revealed audience = %v, want toAll", e.out[0].to)
	}
}

func TestRevealValidatesSelections(t *testing.T) {
	for attempt := 0; ; attempt++ {
		rm := startedRoom(t)
		char := pending(t, rm)

		r, c, ok := findCell(rm, alice.id, char)
		if !ok {
			if attempt > 50 {
				t.Fatal("pending char never landed on Alice's board")
			}
			continue
		}

		rm.handle(alice, Command{Type: "select", R: intPtr(r), C: intPtr(c)}, testRules)
		br, bc := unmarkedCell(rm, bob.id, char)
		rm.handle(bob, Command{Type: "select", R: intPtr(br), C: intPtr(bc)}, testRules)

		e := rm.handle(moderator, Command{Type: "reveal"}, testRules)

		sel := messagesOf[RevealedMessage](e)[0].Selections
		if !sel[alice.id].Valid {
			t.Errorf("alice selection = %+v, want valid", sel[alice.id])
		}
		if sel[bob.id].Valid {
			t.Errorf("bob selection = %+v, want invalid", sel[bob.id])
		}
		if !rm.Boards[alice.id][r][c].Marked {
			t.Error("valid selection not marked")
		}
		if rm.Boards[bob.id][br][bc].Marked {
			t.Error("invalid selection marked")
		}
		if len(rm.PendingSelections) != 0 {
			t.Error("pending selections not cleared")
		}
		return
	}
}

func TestSelectToggles(t *testing.T) {
	rm := startedRoom(t)

	if e := rm.handle(alice, Command{Type: "select", R: intPtr(0), C: intPtr(0)}, testRules); e.save {
		t.Error("select without a pending char asked for a save")
	}
	if len(rm.PendingSelections) != 0 {
		t.Fatal("select staged without a pending char")
	}

	pending(t, rm)

	rm.handle(alice, Command{Type: "select", R: intPtr(0), C: intPtr(0)}, testRules)
	if got := rm.PendingSelections[alice.id]; got != (Selection{R: 0, C: 0}) {
		t.Errorf("selection = %+v, want (0,0)", got)
	}

	rm.handle(alice, Command{Type: "select", R: intPtr(1), C: intPtr(3)}, testRules)
	if got := rm.PendingSelections[alice.id]; got != (Selection{R: 1, C: 3}) {
		t.Errorf("selection = %+v, want (1,3)", got)
	}

	e := rm.handle(alice, Command{Type: "select", R: intPtr(1), C: intPtr(3)}, testRules)
	if _, ok := rm.PendingSelections[alice.id]; ok {
		t.Error("selecting the same cell twice did not clear it")
	}
	if len(e.out) != 0 {
		t.Errorf("select broadcast %+v", e.out)
	}
}

func TestSelectRejectsFreeAndOutOfRange(t *testing.T) {
	rm := startedRoom(t)
	pending(t, rm)

	cmds := []Command{
		{Type: "select", R: intPtr(2), C: intPtr(2)},
		{Type: "select", R: intPtr(5), C: intPtr(0)},
		{Type: "select", R: intPtr(-1), C: intPtr(0)},
		{Type: "select"},
	}
	for _, cmd := range cmds {
		rm.handle(alice, cmd, testRules)
	}

	if len(rm.PendingSelections) != 0 {
		t.Errorf("selections = %+v, want none", rm.PendingSelections)
	}
}

func TestSelectByNonPlayingModeratorIgnored(t *testing.T) {
	rm := startedRoom(t)
	pending(t, rm)

	rm.handle(moderator, Command{Type: "select", R: intPtr(0), C: intPtr(0)}, testRules)

	if len(rm.PendingSelections) != 0 {
		t.Error("non-playing moderator staged a selection")
	}
}

func TestReadyToggles(t *testing.T) {
	rm := startedRoom(t)

	if e := rm.handle(alice, Command{Type: "ready"}, testRules); len(e.out) != 0 {
		t.Error("ready without a pending char broadcast")
	}

	pending(t, rm)
	before := slices.Clone(rm.PendingReadyIDs)

	e := rm.handle(alice, Command{Type: "ready"}, testRules)
	updates := messagesOf[ReadyUpdateMessage](e)
	if len(updates) != 1 || !slices.Equal(updates[0].ReadyPlayerIDs, []string{alice.id}) {
		t.Errorf("ready_update = %+v, want [%s]", updates, alice.id)
	}

	rm.handle(alice, Command{Type: "ready"}, testRules)
	if !slices.Equal(rm.PendingReadyIDs, before) {
		t.Errorf("ready ids = %v, want %v", rm.PendingReadyIDs, before)
	}
}

func TestMark(t *testing.T) {
	rm := startedRoom(t)
	char := pending(t, rm)
	rm.handle(moderator, Command{Type: "reveal"}, testRules)

	r, c, ok := findCell(rm, alice.id, char)
	if !ok {
		// Mark an uncalled char instead.
		r, c = unmarkedCell(rm, alice.id, char)
		e := rm.handle(alice, Command{Type: "mark", R: intPtr(r), C: intPtr(c)}, testRules)

		results := messagesOf[MarkResultMessage](e)
		if len(results) != 1 || results[0].Valid {
			t.Errorf("mark_result = %+v, want one invalid", results)
		}
		if e.out[0].to != toID || e.out[0].id != alice.id {
			t.Errorf("invalid mark audience = %v %q, want the sender's id", e.out[0].to, e.out[0].id)
		}
		if rm.Boards[alice.id][r][c].Marked || e.save {
			t.Error("invalid mark changed state")
		}
		return
	}

	e := rm.handle(alice, Command{Type: "mark", R: intPtr(r), C: intPtr(c)}, testRules)
	results := messagesOf[MarkResultMessage](e)
	if len(results) != 1 || !results[0].Valid || results[0].PlayerID != alice.id {
		t.Errorf("mark_result = %+v, want one valid for %s", results, alice.id)
	}
	if !rm.Boards[alice.id][r][c].Marked {
		t.Error("cell not marked")
	}

	// Marking again is rejected outright.
	e = rm.handle(alice, Command{Type: "mark", R: intPtr(r), C: intPtr(c)}, testRules)
	if len(e.out) != 0 || e.save {
		t.Errorf("second mark produced %+v", e)
	}
}

func TestMarkWinsOnce(t *testing.T) {
	rm := startedRoom(t)

	b := rm.Boards[alice.id]
	for c := range boardSize {
		rm.CalledChars = append(rm.CalledChars, b[0][c].Char)
	}

	var wins []WinMessage
	for c := range boardSize {
		e := rm.handle(alice, Command{Type: "mark", R: intPtr(0), C: intPtr(c)}, testRules)
		wins = append(wins, messagesOf[WinMessage](e)...)
	}

	if len(wins) != 1 {
		t.Fatalf("got %d wins, want 1", len(wins))
	}
	want := []Coord{{0, 0}, {0, 1}, {0, 2}, {0, 3}, {0, 4}}
	if wins[0].PlayerName != "Alice" || !slices.Equal(wins[0].WinLine, want) {
		t.Errorf("win = %+v", wins[0])
	}
	if !slices.Equal(rm.Winners, []string{alice.id}) {
		t.Errorf("winners = %v", rm.Winners)
	}

	// Completing a second line does not announce again.
	for r := 1; r < boardSize; r++ {
		rm.CalledChars = append(rm.CalledChars, b[r][0].Char)
	}
	for r := 1; r < boardSize; r++ {
		e := rm.handle(alice, Command{Type: "mark", R: intPtr(r), C: intPtr(0)}, testRules)
		if got := messagesOf[WinMessage](e); len(got) != 0 {
			t.Errorf("second win announced: %+v", got)
		}
	}
}

func TestModeratorWinUsesModeratorName(t *testing.T) {
	rm := newTestRoom(t, modeConsonants, true)
	rm.resolvePlayer(alice.id, "Alice")
	rm.handle(moderator, Command{Type: "start"}, testRules)

	b := rm.Boards[moderator.id]
	var wins []WinMessage
	for r := range boardSize {
		if r == 2 {
			continue
		}
		rm.CalledChars = append(rm.CalledChars, b[r][2].Char)
		e := rm.handle(moderator, Command{Type: "mark", R: intPtr(r), C: intPtr(2)}, testRules)
		wins = append(wins, messagesOf[WinMessage](e)...)
	}

	if len(wins) != 1 || wins[0].PlayerName != "Teacher" {
		t.Errorf("wins = %+v, want one for Teacher", wins)
	}
}

func TestUnknownCommandIgnored(t *testing.T) {
	rm := startedRoom(t)

	e := rm.handle(alice, Command{Type: "cheat"}, testRules)
	if len(e.out) != 0 || e.save {
		t.Errorf("unknown command produced %+v", e)
	}
}

func TestGameStateSnapshot(t *testing.T) {
	rm := startedRoom(t)
	char := pending(t, rm)

	id := alice.id
	msg := rm.gameState(&id)

	if msg.Type != "game_start" {
		t.Errorf("type = %q, want game_start", msg.Type)
	}
	if msg.PendingChar == nil || *msg.PendingChar != char {
		t.Errorf("pendingChar = %v, want %q", msg.PendingChar, char)
	}
	if len(msg.Boards) != 2 {
		t.Errorf("len(boards) = %d, want 2", len(msg.Boards))
	}
}
