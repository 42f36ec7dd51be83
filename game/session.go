package game

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// session pairs one socket with the room it feeds. It owns two goroutines
// (ReadPump/WritePump) and implements client for the room actor side.
type session struct {
	conn    Conn
	room    *room
	limiter *rate.Limiter

	outbox   chan []byte
	pingChan chan struct{}

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once

	log zerolog.Logger
}

func newSession(conn Conn, r *room) *session {
	ctx, cancel := context.WithCancel(context.Background())
	return &session{
		conn: conn,
		room: r,
		// Transport-level flood guard, distinct from the chat rate limit.
		limiter:  rate.NewLimiter(rate.Limit(10), 20),
		outbox:   make(chan []byte, 256),
		pingChan: make(chan struct{}, 1),
		ctx:      ctx,
		cancel:   cancel,
		log:      r.log.With().Str("part", "session").Logger(),
	}
}

// ReadPump parses inbound frames and forwards them to the room inbox until
// the socket dies, then reports the disconnect.
func (s *session) ReadPump() {
	defer func() {
		s.room.Detach(s)
		s.close("")
	}()

	for {
		data, err := s.conn.Read()
		if err != nil {
			return
		}
		if s.ctx.Err() != nil {
			return
		}
		if !s.limiter.Allow() {
			continue
		}

		var frame struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(data, &frame); err != nil || frame.Type == "" {
			s.log.Debug().Err(err).Msg("dropping unparseable frame")
			continue
		}

		s.room.Deliver(s.ctx, clientEnvelope{from: s, msgType: frame.Type, payload: data})
	}
}

func (s *session) WritePump() {
	defer s.close("")
	for {
		select {
		case data, ok := <-s.outbox:
			if !ok {
				return
			}
			if err := s.conn.Write(data); err != nil {
				return
			}
		case <-s.pingChan:
			if err := s.conn.Ping(); err != nil {
				return
			}
		case <-s.ctx.Done():
			return
		}
	}
}

// Send queues an outbound payload without ever blocking the room actor. A
// full outbox means the peer stopped draining; dropping a state frame is
// fine, the next broadcast supersedes it.
func (s *session) Send(data []byte) {
	select {
	case s.outbox <- data:
	default:
		s.log.Debug().Msg("outbox full, dropping frame")
	}
}

func (s *session) Ping() {
	select {
	case s.pingChan <- struct{}{}:
	default:
	}
}

func (s *session) CloseWith(code string) {
	s.close(code)
}

func (s *session) close(code string) {
	s.closeOnce.Do(func() {
		s.cancel()
		s.conn.Close(code)
	})
}
