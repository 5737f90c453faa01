package http

import (
	"context"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/chattrix/chattrix/internal/adapters/gateway"
	"github.com/chattrix/chattrix/internal/config"
	"github.com/chattrix/chattrix/internal/dispatch"
	"github.com/chattrix/chattrix/internal/store"
)

// ClientTokenMiddleware gives every browser a stable opaque token, kept in
// the session cookie. It identifies the client across reconnects in logs;
// the per-socket connection id is minted fresh on every upgrade.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		s := sessions.Default(c)
		token, _ := s.Get("ct").(string)
		if token == "" {
			token = uuid.NewString()
			s.Set("ct", token)
			_ = s.Save()
		}
		c.Set("client_token", token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, st *store.Store, d *dispatch.Dispatcher) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	cookieStore := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("ChattrixSessions", cookieStore))
	r.Use(ClientTokenMiddleware())

	authHandlers := &AuthHandlers{
		Store:    st,
		Secret:   []byte(cfg.Secret),
		TokenTTL: cfg.TokenTTL,
	}

	api := r.Group("/api")
	api.POST("/auth/register", authHandlers.Register)
	api.POST("/auth/login", authHandlers.Login)
	api.GET("/auth/verify", authHandlers.Verify)

	wsCtl := &gateway.Controller{
		Dispatch:   d,
		Secret:     []byte(cfg.Secret),
		ReadLimit:  cfg.ReadLimit,
		PingPeriod: cfg.PingPeriod,
	}
	api.GET("/ws", func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Str("client", c.GetString("client_token")).Msg("ws endpoint hit")
		wsCtl.HandleSocket(ctx, c)
	})

	return r
}
