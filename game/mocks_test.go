package game

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/thebenlamm/shtus-sub000/ai"
)

// --- Completer ---

type MockCompleter struct {
	mock.Mock
}

func (m *MockCompleter) Complete(ctx context.Context, req ai.CompletionRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

// --- Lobby ---

type MockLobby struct {
	mock.Mock
}

func (m *MockLobby) RemoveRoom(roomID string) {
	m.Called(roomID)
}

// --- Conn ---

type MockConn struct {
	mock.Mock
}

func (m *MockConn) Read() ([]byte, error) {
	args := m.Called()
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockConn) Write(data []byte) error {
	args := m.Called(data)
	return args.Error(0)
}

func (m *MockConn) Ping() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockConn) Close(code string) {
	m.Called(code)
}

// --- client recorder ---

// recorderClient captures everything the room sends so tests can assert on
// decoded payloads instead of raw bytes.
type recorderClient struct {
	mu     sync.Mutex
	sent   []serverMessage
	pings  int
	closed []string
}

func (rc *recorderClient) Send(data []byte) {
	var msg serverMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		panic("recorderClient: room sent unparseable frame: " + err.Error())
	}
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.sent = append(rc.sent, msg)
}

func (rc *recorderClient) Ping() {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.pings++
}

func (rc *recorderClient) CloseWith(code string) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.closed = append(rc.closed, code)
}

func (rc *recorderClient) lastState(t *testing.T) stateView {
	t.Helper()
	rc.mu.Lock()
	defer rc.mu.Unlock()
	for i := len(rc.sent) - 1; i >= 0; i-- {
		if rc.sent[i].Type == "state" {
			return *rc.sent[i].State
		}
	}
	require.FailNow(t, "no state message received")
	return stateView{}
}

func (rc *recorderClient) messagesOfType(msgType string) []serverMessage {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	var out []serverMessage
	for _, m := range rc.sent {
		if m.Type == msgType {
			out = append(out, m)
		}
	}
	return out
}

// --- clock ---

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1700000000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// --- room setup helpers ---

// newTestRoom builds a room with a controllable clock, a deterministic rng,
// synchronous spawn, and no Completer (permanent fallback-prompt mode).
func newTestRoom(t *testing.T) (*room, *fakeClock) {
	t.Helper()
	l := &MockLobby{}
	l.On("RemoveRoom", mock.Anything).Return().Maybe()

	r := newRoom("TESTROOM", l, nil, roomConfig{adminSecret: "s3cret", chatEnabled: true})
	clk := newFakeClock()
	r.clock = clk.Now
	r.rng = rand.New(rand.NewSource(7))
	r.spawn = func(f func()) { f() }
	return r, clk
}

// joinPlayer attaches a connection and joins it under name, returning the
// recorder and the joined player.
func joinPlayer(t *testing.T, r *room, name string) (*recorderClient, *playerState) {
	t.Helper()
	c := &recorderClient{}
	r.handleAttach(c)
	cs := r.sessions[c]
	require.NotNil(t, cs)
	r.handleJoin(c, cs, joinPayload{Name: name})
	require.NotEmpty(t, cs.playerID)
	return c, r.state.players[cs.playerID]
}

func startGame(t *testing.T, r *room, host *playerState, roundLimit int) {
	t.Helper()
	cs := sessionOf(t, r, host.id)
	r.handleStart(cs, startPayload{Theme: "office party", RoundLimit: &roundLimit})
}

func sessionOf(t *testing.T, r *room, playerID string) *clientState {
	t.Helper()
	for _, cs := range r.sessions {
		if cs.playerID == playerID {
			return cs
		}
	}
	require.FailNow(t, "no session for player "+playerID)
	return nil
}

func clientOf(t *testing.T, r *room, playerID string) client {
	t.Helper()
	for c, cs := range r.sessions {
		if cs.playerID == playerID {
			return c
		}
	}
	require.FailNow(t, "no client for player "+playerID)
	return nil
}

func answerAs(t *testing.T, r *room, p *playerState, text string) {
	t.Helper()
	r.handleAnswer(sessionOf(t, r, p.id), text)
}

// voteFor casts p's vote for target via target's anonymous index.
func voteFor(t *testing.T, r *room, p *playerState, target *playerState) {
	t.Helper()
	idx := answerIndexOf(t, r, target.id)
	r.handleVote(sessionOf(t, r, p.id), &idx)
}

func answerIndexOf(t *testing.T, r *room, playerID string) int {
	t.Helper()
	for i, id := range r.state.answerOrder {
		if id == playerID {
			return i
		}
	}
	require.FailNow(t, "player has no answer slot: "+playerID)
	return -1
}
