package game

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin filtering happens in the server middleware.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type GameHandler struct {
	lobby *lobby
}

func NewGameHandler(l *lobby) *GameHandler {
	return &GameHandler{lobby: l}
}

// ConnectHandler upgrades the socket and hands it to the lobby. The room
// code comes from the path; an unknown code creates the room.
func (h *GameHandler) ConnectHandler(ctx *gin.Context) {
	code := sanitizeRoomCode(ctx.Param("roomid"))
	if code == "" {
		ctx.String(http.StatusBadRequest, "invalid-room-code")
		return
	}

	conn, err := upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		return
	}

	// The request context dies with this handler; the socket outlives it.
	h.lobby.Connect(context.Background(), code, NewWebsocketConnection(conn))
}
