package dispatch

import (
	"github.com/goccy/go-json"

	"github.com/chattrix/chattrix/internal/core"
	"github.com/chattrix/chattrix/internal/domain"
)

type presenceUpdatePayload struct {
	UserID        string        `json:"userId" validate:"required"`
	Username      string        `json:"username" validate:"required"`
	Status        domain.Status `json:"status" validate:"required"`
	StatusMessage string        `json:"statusMessage"`
}

func (d *Dispatcher) handlePresenceUpdate(conn core.ConnID, data json.RawMessage) {
	var p presenceUpdatePayload
	if !d.decode(conn, "presence:update", data, &p) {
		return
	}
	if !p.Status.Valid() {
		d.replyErr(conn, "presence:update", "unknown status")
		return
	}
	// SetPresence broadcasts presence:updated itself once the persist lands;
	// a persist failure keeps the in-memory snapshot and stays quiet.
	if _, err := d.Presence.SetPresence(conn, p.UserID, p.Username, p.Status, p.StatusMessage); err != nil {
		d.replyErr(conn, "presence:update", "persist failed")
	}
}

func (d *Dispatcher) handlePresenceGetOnline(conn core.ConnID) {
	d.Rooms.SendTo(conn, "presence:online-list", d.Presence.ListOnline())
}

type typingPayload struct {
	ChannelID string `json:"channelId" validate:"required"`
	UserID    string `json:"userId" validate:"required"`
	Username  string `json:"username"`
}

// Typing indicators fan out to the channel room minus the typist; nothing is
// persisted.
func (d *Dispatcher) handleTyping(conn core.ConnID, data json.RawMessage) {
	var p typingPayload
	if !d.decode(conn, "presence:typing", data, &p) {
		return
	}
	d.Rooms.Broadcast(core.ChannelRoom(p.ChannelID), "presence:user-typing", map[string]any{
		"userId":   p.UserID,
		"username": p.Username,
	}, conn)
}

func (d *Dispatcher) handleStopTyping(conn core.ConnID, data json.RawMessage) {
	var p typingPayload
	if !d.decode(conn, "presence:stop-typing", data, &p) {
		return
	}
	d.Rooms.Broadcast(core.ChannelRoom(p.ChannelID), "presence:user-stop-typing", map[string]any{
		"userId": p.UserID,
	}, conn)
}

type activityPayload struct {
	UserID       string `json:"userId" validate:"required"`
	ActivityName string `json:"activityName" validate:"required"`
	ActivityType string `json:"activityType" validate:"required,oneof=PLAYING STREAMING LISTENING WATCHING"`
}

func (d *Dispatcher) handleActivity(conn core.ConnID, data json.RawMessage) {
	var p activityPayload
	if !d.decode(conn, "presence:activity", data, &p) {
		return
	}
	d.Rooms.BroadcastAll("presence:activity-update", map[string]any{
		"userId":       p.UserID,
		"activityName": p.ActivityName,
		"activityType": p.ActivityType,
	})
}
