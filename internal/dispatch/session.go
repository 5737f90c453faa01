package dispatch

import (
	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/chattrix/chattrix/internal/core"
)

type userJoinPayload struct {
	UserID   string `json:"userId" validate:"required"`
	Username string `json:"username" validate:"required"`
}

// handleUserJoin binds the connection to an identity and announces the new
// roster. When the connection presented a token at handshake, the claimed
// identity must match the verified one; anything else is rejected, closing
// the gap where anyone able to open a socket could act as any user.
func (d *Dispatcher) handleUserJoin(conn core.ConnID, verified *core.Identity, data json.RawMessage) {
	var p userJoinPayload
	if !d.decode(conn, "user:join", data, &p) {
		return
	}
	if verified != nil && verified.UserID != p.UserID {
		log.Warn().Str("module", "dispatch").Str("conn", string(conn)).
			Str("claimed", p.UserID).Str("verified", verified.UserID).Msg("identity mismatch")
		d.replyErr(conn, "user:join", "identity does not match token")
		return
	}
	if verified != nil {
		p.UserID = verified.UserID
		p.Username = verified.Username
	}

	d.Sessions.Register(conn, p.UserID, p.Username)
	log.Info().Str("module", "dispatch").Str("user", p.UserID).Str("username", p.Username).Msg("user joined")
	d.Rooms.BroadcastAll("users:online", d.Sessions.Online())
}

type channelRoomPayload struct {
	ChannelID string `json:"channelId" validate:"required"`
}

func (d *Dispatcher) handleChannelJoin(conn core.ConnID, data json.RawMessage) {
	var p channelRoomPayload
	if !d.decode(conn, "channel:join", data, &p) {
		return
	}
	d.Rooms.Join(conn, core.ChannelRoom(p.ChannelID))
}

func (d *Dispatcher) handleChannelLeave(conn core.ConnID, data json.RawMessage) {
	var p channelRoomPayload
	if !d.decode(conn, "channel:leave", data, &p) {
		return
	}
	d.Rooms.Leave(conn, core.ChannelRoom(p.ChannelID))
}
