package game

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type roomConfig struct {
	adminSecret string
	chatEnabled bool
}

// room owns one game: the state aggregate, the chat log, the rate buckets,
// and the attached connections. Every mutation happens inside GameLoop's
// goroutine; the exported surface just feeds its channels.
type room struct {
	id    string
	state gameState
	chat  chatLog

	sessions map[client]*clientState

	inbox           chan clientEnvelope
	attachRequests  chan client
	removalRequests chan client
	ticks           chan time.Time
	pings           chan struct{}
	asyncEvents     chan asyncEvent
	done            chan struct{}
	closeOnce       sync.Once

	parentLobby Lobby
	completer   Completer
	cfg         roomConfig
	createdAt   time.Time

	// Injected for tests; production uses time.Now, a seeded rng, and `go`.
	clock func() time.Time
	rng   *rand.Rand
	spawn func(func())

	log zerolog.Logger
}

// clientState is the actor-owned binding of a connection to a player. admin
// is per-connection: it is proven on join and dies with the socket.
type clientState struct {
	playerID string
	admin    bool
}

func newRoom(id string, parent Lobby, completer Completer, cfg roomConfig) *room {
	return &room{
		id:              id,
		state:           newGameState(),
		chat:            newChatLog(),
		sessions:        make(map[client]*clientState),
		inbox:           make(chan clientEnvelope, 1024),
		attachRequests:  make(chan client, 64),
		removalRequests: make(chan client, 64),
		ticks:           make(chan time.Time, 24),
		pings:           make(chan struct{}, 4),
		asyncEvents:     make(chan asyncEvent, 16),
		done:            make(chan struct{}),
		parentLobby:     parent,
		completer:       completer,
		cfg:             cfg,
		createdAt:       time.Now(),
		clock:           time.Now,
		rng:             rand.New(rand.NewSource(time.Now().UnixNano())),
		spawn:           func(f func()) { go f() },
		log:             log.With().Str("room", id).Logger(),
	}
}

// Attach hands a freshly-upgraded connection to the room actor.
func (r *room) Attach(ctx context.Context, c client) {
	select {
	case r.attachRequests <- c:
	case <-r.done:
		c.CloseWith("room-closed")
	case <-ctx.Done():
	}
}

// Detach reports a dead connection. Called from the session read pump.
func (r *room) Detach(c client) {
	select {
	case r.removalRequests <- c:
	case <-r.done:
	}
}

// Deliver routes one inbound frame into the actor.
func (r *room) Deliver(ctx context.Context, env clientEnvelope) {
	select {
	case r.inbox <- env:
	case <-r.done:
	case <-ctx.Done():
	}
}

// Tick is the lobby's periodic nudge; dropped when the room is busy, the
// next tick will catch up.
func (r *room) Tick(now time.Time) {
	select {
	case r.ticks <- now:
	default:
	}
}

func (r *room) PingClients() {
	select {
	case r.pings <- struct{}{}:
	default:
	}
}

func (r *room) CloseAndRelease() {
	r.closeOnce.Do(func() { close(r.done) })
}

// GameLoop is the room actor: the single goroutine allowed to touch state.
func (r *room) GameLoop() {
	r.log.Info().Msg("room started")
	for {
		select {
		case <-r.done:
			for c := range r.sessions {
				c.CloseWith("room-closed")
			}
			r.log.Info().Msg("room stopped")
			return
		case env := <-r.inbox:
			r.dispatch(env)
		case c := <-r.attachRequests:
			r.handleAttach(c)
		case c := <-r.removalRequests:
			r.handleDetach(c)
		case now := <-r.ticks:
			r.handleTick(now)
		case <-r.pings:
			for c := range r.sessions {
				c.Ping()
			}
		case ev := <-r.asyncEvents:
			r.handleAsyncEvent(ev)
		}
	}
}

// postAsync re-enters the actor loop with the outcome of an external call.
func (r *room) postAsync(ev asyncEvent) {
	select {
	case r.asyncEvents <- ev:
	case <-r.done:
	}
}

// pumpAsync drains queued async events synchronously. Test helper; the
// production path consumes the same channel inside GameLoop.
func (r *room) pumpAsync() {
	for {
		select {
		case ev := <-r.asyncEvents:
			r.handleAsyncEvent(ev)
		default:
			return
		}
	}
}
