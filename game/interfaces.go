package game

import (
	"context"
	"time"

	"github.com/thebenlamm/shtus-sub000/ai"
)

// client is one websocket connection as the room actor sees it. Send must
// never block the actor; implementations drop when the peer cannot keep up.
type client interface {
	Send(data []byte)
	Ping()
	CloseWith(code string)
}

// Conn is the raw socket surface a session drives.
type Conn interface {
	Read() ([]byte, error)
	Write(data []byte) error
	Ping() error
	Close(code string)
}

// Completer produces one chat-completion. Implemented by *ai.Client; mocked
// in tests. A nil Completer puts a room in permanent fallback-prompt mode.
type Completer interface {
	Complete(ctx context.Context, req ai.CompletionRequest) (string, error)
}

// Lobby is what a room needs from its parent.
type Lobby interface {
	RemoveRoom(roomID string)
}

// PeriodicTickerChannelCreator abstracts time.Ticker so lobby tests can
// drive ticks by hand.
type PeriodicTickerChannelCreator interface {
	Create(duration time.Duration) <-chan time.Time
}
