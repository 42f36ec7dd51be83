package game

import "time"

type RoomPhase int

const (
	PHASE_LOBBY RoomPhase = iota
	PHASE_PROMPT
	PHASE_WRITING
	PHASE_VOTING
	PHASE_REVEAL
	PHASE_FINAL
)

func (p RoomPhase) String() string {
	switch p {
	case PHASE_LOBBY:
		return "lobby"
	case PHASE_PROMPT:
		return "prompt"
	case PHASE_WRITING:
		return "writing"
	case PHASE_VOTING:
		return "voting"
	case PHASE_REVEAL:
		return "reveal"
	case PHASE_FINAL:
		return "final"
	}
	return "unknown"
}

// --- Gameplay constants ---
const GRACE_PERIOD = time.Minute * 5 // Disconnected players keep their seat this long.
const MIN_ACTIVE_PLAYERS = 2         // Needed to start a game or auto-end writing.
const MAX_NAME_LEN = 20
const MAX_ANSWER_LEN = 100
const MAX_CHAT_LEN = 150
const MAX_THEME_LEN = 60
const MAX_EXACT_QUESTION_LEN = 200
const MAX_GUIDANCE_LEN = 300
const MAX_PROMPT_LEN = 200 // AI responses at or above this are rejected.
const ROUND_HISTORY_LEN = 5
const PROMPT_TIMEOUT = time.Second * 30

// Round limits a host may pick. 0 means endless.
var validRoundLimits = map[int]bool{0: true, 3: true, 5: true, 10: true}

// presence is the liveness tag for a player: either connected, or
// disconnected since a known instant.
type presence struct {
	connected      bool
	disconnectedAt time.Time
}

func connectedPresence() presence {
	return presence{connected: true}
}

func disconnectedSince(t time.Time) presence {
	return presence{disconnectedAt: t}
}

type playerState struct {
	id        string
	name      string
	score     int
	winStreak int
	voyeur    bool
	admin     bool
	presence  presence
}

type promptSource string

const (
	SOURCE_AI       promptSource = "ai"
	SOURCE_FALLBACK promptSource = "fallback"
	SOURCE_ADMIN    promptSource = "admin"
)

type roundRecord struct {
	prompt     string
	topAnswers []string
}

// gameState is the room's authoritative aggregate. It is owned by the room
// actor goroutine and never leaves it; everything the outside world sees is
// a projection (project.go).
type gameState struct {
	phase      RoomPhase
	round      int
	roundLimit int // 0 = endless

	players map[string]*playerState
	order   []string // player ids in join order, drives host failover
	hostID  string   // "" when no active player can hold host

	theme            string
	currentPrompt    string
	promptSource     promptSource
	nextPrompt       string
	nextPromptSource promptSource

	answers     map[string]string
	votes       map[string]string // voter id -> voted-for player id
	answerOrder []string          // shuffled ids of answerers, the anonymous voting identity

	generating    bool
	promptLoading bool
	generationID  uint64

	roundHistory []roundRecord
	revealTally  map[string]int // counted votes of the round just finished, for the reveal view

	exactQuestion  string // one-shot admin override
	promptGuidance string // persistent admin override
}

func newGameState() gameState {
	return gameState{
		phase:   PHASE_LOBBY,
		players: make(map[string]*playerState),
		answers: make(map[string]string),
		votes:   make(map[string]string),
	}
}

type chatEntry struct {
	id         string
	playerID   string
	playerName string // snapshot at send time
	text       string
	sentAt     time.Time
	system     bool
}

// clientEnvelope is one inbound frame, routed through the room inbox.
type clientEnvelope struct {
	from    client
	msgType string
	payload []byte
}
