package main

import (
	"net/http"
	"slices"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/thebenlamm/shtus-sub000/ai"
	"github.com/thebenlamm/shtus-sub000/config"
	"github.com/thebenlamm/shtus-sub000/game"
	"github.com/thebenlamm/shtus-sub000/logger"
)

func CreateServer(allowedOrigins []string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/health", func(ctx *gin.Context) { ctx.String(http.StatusOK, "healthy") })

	if len(allowedOrigins) == 0 {
		// Local/dev mode: no origin restrictions configured.
		return r
	}

	r.Use(func(ctx *gin.Context) {
		origin := ctx.Request.Header.Get("Origin")
		if origin == "" || slices.Contains(allowedOrigins, origin) {
			ctx.Next()
			return
		}
		ctx.String(http.StatusForbidden, "forbidden origin")
		ctx.Abort()
	})

	r.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowCredentials: true,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{
			"Content-Type",
			"Upgrade",
			"Connection",
			"Sec-WebSocket-Key",
			"Sec-WebSocket-Version",
			"Sec-WebSocket-Extensions",
			"Sec-WebSocket-Protocol",
		},
	}))

	return r
}

func main() {
	cfg := config.Load()
	logger.Setup(cfg.Debug)

	var completer game.Completer
	if cfg.AIAPIKey != "" {
		completer = ai.NewClient(cfg.AIBaseURL, cfg.AIAPIKey, cfg.AIModel)
	} else {
		log.Warn().Msg("no AI api key configured, running in permanent fallback-prompt mode")
	}
	if cfg.AdminSecret == "" {
		log.Warn().Msg("no admin secret configured, admin features disabled")
	}

	lobby := game.NewLobby(game.NewTickerGen(), completer, cfg.AdminSecret, cfg.ChatEnabled)

	lobbyStarted := make(chan struct{})
	go lobby.LobbyActor(lobbyStarted)
	<-lobbyStarted

	r := CreateServer(cfg.AllowedOrigins)
	gameHandler := game.NewGameHandler(lobby)
	r.GET("/ws/:roomid", gameHandler.ConnectHandler)

	log.Info().Str("addr", cfg.Addr).Bool("chat", cfg.ChatEnabled).Msg("server listening")
	if err := r.Run(cfg.Addr); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}
