package main

// Messages coming from clients
type Command struct {
	Type             string `json:"type"`                       // "start", "randomize", "replay", "reveal", "select", "mark", "ready"
	ModeratorPlaying *bool  `json:"moderatorPlaying,omitempty"` // start
	R                *int   `json:"r,omitempty"`                // select / mark
	C                *int   `json:"c,omitempty"`                // select / mark
}

// Messages sent to clients
type ErrorMessage struct {
	Type    string `json:"type"` // "error"
	Message string `json:"message"`
}

type JoinedMessage struct {
	Type             string   `json:"type"` // "joined"
	PlayerID         string   `json:"playerId"`
	Players          []Player `json:"players"`
	Phase            string   `json:"phase"`
	ModeratorName    string   `json:"moderatorName"`
	ModeratorPlaying bool     `json:"moderatorPlaying"`
}

type PlayerListMessage struct {
	Type    string   `json:"type"` // "player_joined"
	Players []Player `json:"players"`
}

type PlayerEventMessage struct {
	Type       string `json:"type"` // "player_reconnected", "player_disconnected"
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`
}

type SimpleMessage struct {
	Type string `json:"type"` // "moderator_disconnected"
}

type GameStartMessage struct {
	Type        string           `json:"type"` // "game_start"
	Boards      map[string]Board `json:"boards"`
	GamePool    []string         `json:"gamePool"`
	Players     []Player         `json:"players"`
	YourBoardID *string          `json:"yourBoardId"`
	HintsOn     bool             `json:"hintsOn"`
}

// GameStateMessage is a game_start carrying enough turn state for a client
// joining mid-game to rebuild its view.
type GameStateMessage struct {
	GameStartMessage
	CalledChars     []string `json:"calledChars"`
	CurrentChar     *string  `json:"currentChar"`
	PendingChar     *string  `json:"pendingChar"`
	Winners         []string `json:"winners"`
	PendingReadyIDs []string `json:"pendingReadyIds"`
}

type RandomizedMessage struct {
	Type        string `json:"type"` // "randomized"
	PendingChar string `json:"pendingChar"`
}

type CharMessage struct {
	Type string `json:"type"` // "char_pending", "char_pending_moderator", "char_replay"
	Char string `json:"char"`
}

type SelectionResult struct {
	R     int  `json:"r"`
	C     int  `json:"c"`
	Valid bool `json:"valid"`
}

type RevealedMessage struct {
	Type        string                     `json:"type"` // "revealed"
	Char        string                     `json:"char"`
	CalledChars []string                   `json:"calledChars"`
	Selections  map[string]SelectionResult `json:"selections"`
}

type MarkResultMessage struct {
	Type     string `json:"type"` // "mark_result"
	PlayerID string `json:"playerId"`
	R        int    `json:"r"`
	C        int    `json:"c"`
	Valid    bool   `json:"valid"`
}

type ReadyUpdateMessage struct {
	Type           string   `json:"type"` // "ready_update"
	ReadyPlayerIDs []string `json:"readyPlayerIds"`
}

type WinMessage struct {
	Type       string  `json:"type"` // "win"
	PlayerID   string  `json:"playerId"`
	PlayerName string  `json:"playerName"`
	WinLine    []Coord `json:"winLine"`
}

func errorMessage(err error) ErrorMessage {
	return ErrorMessage{Type: "error", Message: err.Error()}
}
