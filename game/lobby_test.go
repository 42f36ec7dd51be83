package game

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chanConn is a channel-backed Conn for end-to-end actor tests: the test
// plays the remote peer.
type chanConn struct {
	incoming chan []byte
	written  chan []byte
	closed   chan string
}

func newChanConn() *chanConn {
	return &chanConn{
		incoming: make(chan []byte, 16),
		written:  make(chan []byte, 64),
		closed:   make(chan string, 4),
	}
}

func (c *chanConn) Read() ([]byte, error) {
	data, ok := <-c.incoming
	if !ok {
		return nil, net.ErrClosed
	}
	return data, nil
}

func (c *chanConn) Write(data []byte) error {
	c.written <- data
	return nil
}

func (c *chanConn) Ping() error { return nil }

func (c *chanConn) Close(code string) {
	select {
	case c.closed <- code:
	default:
	}
}

// nextMessage blocks until the peer receives a frame of the wanted type,
// skipping others.
func (c *chanConn) nextMessage(t *testing.T, msgType string) serverMessage {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case data := <-c.written:
			var msg serverMessage
			require.NoError(t, json.Unmarshal(data, &msg))
			if msg.Type == msgType {
				return msg
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q frame", msgType)
		}
	}
}

type fakeTickerCreator struct {
	ticks chan time.Time
}

func (f *fakeTickerCreator) Create(time.Duration) <-chan time.Time {
	return f.ticks
}

func TestLobbyConnectJoinAndPlayEndToEnd(t *testing.T) {
	ft := &fakeTickerCreator{ticks: make(chan time.Time)}
	l := NewLobby(ft, nil, "", true)

	started := make(chan struct{})
	go l.LobbyActor(started)
	<-started

	peer := newChanConn()
	l.Connect(context.Background(), "PARTY1", peer)

	// Fresh connection protocol: ack, chat history, state.
	ack := peer.nextMessage(t, "connected")
	assert.Equal(t, "PARTY1", ack.RoomID)
	peer.nextMessage(t, "chat_history")
	view := peer.nextMessage(t, "state").State
	assert.Equal(t, "lobby", view.Phase)
	assert.Empty(t, view.Players)

	// Join and watch the roster update land.
	peer.incoming <- []byte(`{"type":"join","name":"Ana"}`)
	for {
		view = peer.nextMessage(t, "state").State
		if len(view.Players) == 1 {
			break
		}
	}
	assert.Equal(t, "Ana", view.Players[0].Name)
	assert.Equal(t, view.Players[0].ID, view.HostID)

	// A second connection shares the room.
	peer2 := newChanConn()
	l.Connect(context.Background(), "PARTY1", peer2)
	view2 := peer2.nextMessage(t, "state").State
	assert.Len(t, view2.Players, 1)

	close(peer.incoming)
	close(peer2.incoming)
}

func TestLobbyRemoveRoomClosesClients(t *testing.T) {
	ft := &fakeTickerCreator{ticks: make(chan time.Time)}
	l := NewLobby(ft, nil, "", true)

	started := make(chan struct{})
	go l.LobbyActor(started)
	<-started

	peer := newChanConn()
	l.Connect(context.Background(), "DOOMED", peer)
	peer.nextMessage(t, "connected")

	l.RemoveRoom("DOOMED")

	select {
	case code := <-peer.closed:
		assert.Equal(t, "room-closed", code)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the room to close the connection")
	}
	close(peer.incoming)
}

func TestLobbyRemoveUnknownRoomIsANoOp(t *testing.T) {
	ft := &fakeTickerCreator{ticks: make(chan time.Time)}
	l := NewLobby(ft, nil, "", true)

	started := make(chan struct{})
	go l.LobbyActor(started)
	<-started

	// Must not wedge the actor: a later connect still works.
	l.RemoveRoom("NEVER-EXISTED")

	peer := newChanConn()
	l.Connect(context.Background(), "STILLWORKS", peer)
	peer.nextMessage(t, "connected")
	close(peer.incoming)
}
