package game

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/thebenlamm/shtus-sub000/logger"
)

type connectRequest struct {
	roomID string
	conn   Conn
}

// lobby owns the room map. Like the rooms it manages, it is an actor: the
// map is touched only inside LobbyActor.
type lobby struct {
	rooms map[string]*room

	connectReqs    chan connectRequest
	removeRoomChan chan string

	tickerCreator PeriodicTickerChannelCreator
	completer     Completer
	cfg           roomConfig

	log zerolog.Logger
}

func NewLobby(tickerCreator PeriodicTickerChannelCreator, completer Completer, adminSecret string, chatEnabled bool) *lobby {
	return &lobby{
		rooms:          map[string]*room{},
		connectReqs:    make(chan connectRequest, 256),
		removeRoomChan: make(chan string, 32),
		tickerCreator:  tickerCreator,
		completer:      completer,
		cfg: roomConfig{
			adminSecret: adminSecret,
			chatEnabled: chatEnabled,
		},
		log: logger.For("lobby"),
	}
}

// Connect routes an upgraded socket to its room, creating the room on
// first use of a code.
func (l *lobby) Connect(ctx context.Context, roomID string, conn Conn) {
	select {
	case l.connectReqs <- connectRequest{roomID: roomID, conn: conn}:
	case <-ctx.Done():
		conn.Close("server-busy")
	}
}

// RemoveRoom is called by rooms that found themselves empty past the
// linger. Non-blocking; a dropped request is retried on the next tick.
func (l *lobby) RemoveRoom(roomID string) {
	select {
	case l.removeRoomChan <- roomID:
	default:
	}
}

func (l *lobby) LobbyActor(started chan struct{}) {
	ticker := l.tickerCreator.Create(time.Second)
	pingTicker := l.tickerCreator.Create(time.Second * 30)

	close(started)

	for {
		select {
		case now := <-ticker:
			for _, r := range l.rooms {
				r.Tick(now)
			}

		case <-pingTicker:
			for _, r := range l.rooms {
				r.PingClients()
			}

		case req := <-l.connectReqs:
			l.handleConnect(req)

		case roomID := <-l.removeRoomChan:
			l.handleRemoveRoom(roomID)
		}
	}
}

func (l *lobby) handleConnect(req connectRequest) {
	r, ok := l.rooms[req.roomID]
	if !ok {
		r = newRoom(req.roomID, l, l.completer, l.cfg)
		l.rooms[req.roomID] = r
		go r.GameLoop()
		l.log.Info().Str("room", req.roomID).Msg("room created")
	}

	s := newSession(req.conn, r)
	go s.ReadPump()
	go s.WritePump()
	r.Attach(context.Background(), s)
}

func (l *lobby) handleRemoveRoom(roomID string) {
	r, ok := l.rooms[roomID]
	if !ok {
		return
	}
	delete(l.rooms, roomID)
	r.CloseAndRelease()
	l.log.Info().Str("room", roomID).Msg("room removed")
}
