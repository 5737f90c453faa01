// Package dispatch is the fan-out engine: every inbound domain event goes
// through validate -> persist -> normalize -> broadcast, in that order. A
// failed persist suppresses the broadcast and surfaces an error frame to the
// initiating connection only, never to the room.
package dispatch

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/chattrix/chattrix/internal/core"
	"github.com/chattrix/chattrix/internal/store"
)

type Dispatcher struct {
	Store    *store.Store
	Sessions *core.SessionRegistry
	Presence *core.PresenceTracker
	Rooms    *core.Router

	validate *validator.Validate
}

func New(st *store.Store, sessions *core.SessionRegistry, presence *core.PresenceTracker, rooms *core.Router) *Dispatcher {
	return &Dispatcher{
		Store:    st,
		Sessions: sessions,
		Presence: presence,
		Rooms:    rooms,
		validate: validator.New(),
	}
}

// Dispatch routes one inbound event. verified carries the identity bound to
// the connection at handshake time, nil when the client connected without a
// token.
func (d *Dispatcher) Dispatch(conn core.ConnID, verified *core.Identity, event string, data json.RawMessage) {
	switch event {
	case "user:join":
		d.handleUserJoin(conn, verified, data)
	case "channel:join":
		d.handleChannelJoin(conn, data)
	case "channel:leave":
		d.handleChannelLeave(conn, data)
	case "message:send":
		d.handleMessageSend(conn, data)
	case "message:edit":
		d.handleMessageEdit(conn, data)
	case "message:delete":
		d.handleMessageDelete(conn, data)
	case "message:pin":
		d.handleMessagePin(conn, data)
	case "message:reaction:add":
		d.handleReactionAdd(conn, data)
	case "message:reaction:remove":
		d.handleReactionRemove(conn, data)
	case "thread:create":
		d.handleThreadCreate(conn, data)
	case "dm:send":
		d.handleDMSend(conn, data)
	case "dm:edit":
		d.handleDMEdit(conn, data)
	case "dm:delete":
		d.handleDMDelete(conn, data)
	case "dm:reaction:add":
		d.handleDMReactionAdd(conn, data)
	case "dm:reaction:remove":
		d.handleDMReactionRemove(conn, data)
	case "dm:history":
		d.handleDMHistory(conn, data)
	case "dm:open":
		d.handleDMOpen(conn, data)
	case "dm:close":
		d.handleDMClose(conn, data)
	case "presence:update":
		d.handlePresenceUpdate(conn, data)
	case "presence:get-online":
		d.handlePresenceGetOnline(conn)
	case "presence:typing":
		d.handleTyping(conn, data)
	case "presence:stop-typing":
		d.handleStopTyping(conn, data)
	case "presence:activity":
		d.handleActivity(conn, data)
	case "server:create":
		d.handleServerCreate(conn, data)
	case "server:join":
		d.handleServerJoin(conn, data)
	case "server:leave":
		d.handleServerLeave(conn, data)
	case "role:create":
		d.handleRoleCreate(conn, data)
	case "member:role:add":
		d.handleMemberRoleAdd(conn, data)
	case "member:role:remove":
		d.handleMemberRoleRemove(conn, data)
	case "member:ban":
		d.handleMemberBan(conn, data)
	case "member:kick":
		d.handleMemberKick(conn, data)
	case "invite:create":
		d.handleInviteCreate(conn, data)
	default:
		log.Warn().Str("module", "dispatch").Str("event", event).Msg("unknown event")
		d.replyErr(conn, event, "unknown event")
	}
}

// Disconnect is the single teardown path for a dropped connection. Order
// matters: presence goes offline and the session unbinds before room
// cleanup, so the offline broadcast still reaches the rooms being left.
func (d *Dispatcher) Disconnect(conn core.ConnID) {
	d.Presence.MarkOffline(conn)
	if id, ok := d.Sessions.Unregister(conn); ok {
		log.Info().Str("module", "dispatch").Str("user", id.UserID).Msg("user left")
		d.Rooms.BroadcastAll("users:online", d.Sessions.Online())
	}
	d.Rooms.CleanupConnection(conn)
	d.Rooms.Disconnect(conn)
}

// decode unmarshals and validates an inbound payload. A malformed or
// incomplete payload is rejected before anything is persisted.
func (d *Dispatcher) decode(conn core.ConnID, event string, data json.RawMessage, out any) bool {
	if err := json.Unmarshal(data, out); err != nil {
		log.Warn().Err(err).Str("module", "dispatch").Str("event", event).Msg("bad payload")
		d.replyErr(conn, event, "bad payload")
		return false
	}
	if err := d.validate.Struct(out); err != nil {
		log.Warn().Err(err).Str("module", "dispatch").Str("event", event).Msg("invalid payload")
		d.replyErr(conn, event, "invalid payload: "+err.Error())
		return false
	}
	return true
}

type errPayload struct {
	Event string `json:"event"`
	Error string `json:"error"`
}

func (d *Dispatcher) replyErr(conn core.ConnID, event, msg string) {
	d.Rooms.SendTo(conn, "error", errPayload{Event: event, Error: msg})
}

// persistFailed maps a store error onto the caller-only error frame and
// reports whether the event must be dropped.
func (d *Dispatcher) persistFailed(conn core.ConnID, event string, err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		d.replyErr(conn, event, "not found")
	case errors.Is(err, store.ErrConflict):
		d.replyErr(conn, event, "already exists")
	default:
		log.Error().Err(err).Str("module", "dispatch").Str("event", event).Msg("persist failed")
		d.replyErr(conn, event, "persist failed")
	}
	return true
}
