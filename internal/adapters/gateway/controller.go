// Package gateway adapts a gorilla WebSocket to the core: one wsConn per
// socket, a fresh connection id per upgrade, read/write pumps, and a
// {"type","data"} envelope handed to the dispatcher.
package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/chattrix/chattrix/internal/auth"
	"github.com/chattrix/chattrix/internal/core"
	"github.com/chattrix/chattrix/internal/dispatch"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type Controller struct {
	Dispatch   *dispatch.Dispatcher
	Secret     []byte
	ReadLimit  int64
	PingPeriod time.Duration
}

// HandleSocket upgrades the request and runs the connection until it drops.
// A ?token= query parameter, when present, pins the connection's identity to
// the verified claims before any user:join arrives.
func (ctl *Controller) HandleSocket(ctx context.Context, c *gin.Context) {
	var verified *core.Identity
	if tokenString := c.Query("token"); tokenString != "" {
		claims, err := auth.ValidateToken(ctl.Secret, tokenString)
		if err != nil {
			log.Warn().Err(err).Str("module", "gateway").Msg("rejected ws token")
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}
		verified = &core.Identity{UserID: claims.UserID, Username: claims.Username}
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "gateway").Msg("ws upgrade")
		return
	}

	connID := core.ConnID(uuid.NewString())
	conn := &wsConn{
		conn: ws,
		send: make(chan []byte, 256),
	}
	ctl.Dispatch.Rooms.Connect(connID, conn)
	log.Info().Str("module", "gateway").Str("conn", string(connID)).
		Str("client", c.GetString("client_token")).Bool("token", verified != nil).Msg("connection opened")

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, cancel, connID, verified, conn)
}
