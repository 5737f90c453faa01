package gateway

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/chattrix/chattrix/internal/core"
)

const (
	writeWait = 10 * time.Second
	pongWait  = 60 * time.Second
)

func (ctl *Controller) writePump(ctx context.Context, c *wsConn) {
	pingPeriod := ctl.PingPeriod
	if pingPeriod <= 0 {
		pingPeriod = (pongWait * 9) / 10
	}
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "gateway").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				log.Error().Err(err).Str("module", "gateway").Msg("writePump write error")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (ctl *Controller) readPump(ctx context.Context, cancel context.CancelFunc, connID core.ConnID, verified *core.Identity, c *wsConn) {
	defer func() {
		log.Info().Str("module", "gateway").Str("conn", string(connID)).Msg("connection closing")
		ctl.Dispatch.Disconnect(connID)
		cancel()
		c.Close()
	}()

	if ctl.ReadLimit > 0 {
		c.conn.SetReadLimit(ctl.ReadLimit)
	}
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Warn().Err(err).Str("module", "gateway").Str("conn", string(connID)).Msg("unexpected close")
				}
				return
			}
			ctl.handleFrame(connID, verified, data)
		}
	}
}

// handleFrame decodes the inbound envelope and hands the event to the
// dispatcher. Events are processed to completion, in arrival order, on this
// goroutine; that is the per-connection ordering guarantee.
func (ctl *Controller) handleFrame(connID core.ConnID, verified *core.Identity, data []byte) {
	var env struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("module", "gateway").Str("conn", string(connID)).Msg("bad frame")
		return
	}
	if env.Type == "" {
		log.Warn().Str("module", "gateway").Str("conn", string(connID)).Msg("frame without type")
		return
	}
	if len(env.Data) == 0 {
		env.Data = json.RawMessage("{}")
	}
	ctl.Dispatch.Dispatch(connID, verified, env.Type, env.Data)
}
