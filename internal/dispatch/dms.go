package dispatch

import (
	"time"

	"github.com/goccy/go-json"

	"github.com/chattrix/chattrix/internal/core"
	"github.com/chattrix/chattrix/internal/domain"
)

// DM delivery policy: every DM event fans out to the two personal rooms of
// sender and recipient, not to a shared pair room. dm:open still subscribes
// the connection to both orderings of the pair room so either side's open
// reuses the same logical channel, but nothing is delivered there.

type dmSendPayload struct {
	RecipientID  string            `json:"recipientId" validate:"required"`
	Content      string            `json:"content" validate:"required"`
	SenderID     string            `json:"senderId" validate:"required"`
	SenderName   string            `json:"senderName" validate:"required"`
	SenderAvatar string            `json:"senderAvatar"`
	Embeds       []json.RawMessage `json:"embeds"`
	Attachments  []json.RawMessage `json:"attachments"`
}

func (d *Dispatcher) handleDMSend(conn core.ConnID, data json.RawMessage) {
	var p dmSendPayload
	if !d.decode(conn, "dm:send", data, &p) {
		return
	}
	dm := domain.DirectMessage{
		ID:           domain.NewID("dm"),
		Content:      p.Content,
		SenderID:     p.SenderID,
		SenderName:   p.SenderName,
		SenderAvatar: p.SenderAvatar,
		RecipientID:  p.RecipientID,
		Reactions:    []domain.Reaction{},
		Embeds:       orEmpty(p.Embeds),
		Attachments:  orEmpty(p.Attachments),
		CreatedAt:    time.Now().UTC(),
	}
	if d.persistFailed(conn, "dm:send", d.Store.CreateDM(dm)) {
		return
	}
	d.broadcastDM(p.SenderID, p.RecipientID, "dm:new", dm)
}

// broadcastDM targets both participants' personal rooms, regardless of which
// one is sender.
func (d *Dispatcher) broadcastDM(senderID, recipientID, event string, payload any) {
	d.Rooms.Broadcast(core.UserRoom(recipientID), event, payload)
	d.Rooms.Broadcast(core.UserRoom(senderID), event, payload)
}

type dmEditPayload struct {
	DMID        string `json:"dmId" validate:"required"`
	Content     string `json:"content" validate:"required"`
	RecipientID string `json:"recipientId" validate:"required"`
	SenderID    string `json:"senderId" validate:"required"`
}

func (d *Dispatcher) handleDMEdit(conn core.ConnID, data json.RawMessage) {
	var p dmEditPayload
	if !d.decode(conn, "dm:edit", data, &p) {
		return
	}
	dm, err := d.Store.EditDM(p.DMID, p.Content)
	if d.persistFailed(conn, "dm:edit", err) {
		return
	}
	d.broadcastDM(p.SenderID, p.RecipientID, "dm:updated", map[string]any{
		"dmId":     dm.ID,
		"content":  dm.Content,
		"editedAt": dm.EditedAt,
	})
}

type dmRefPayload struct {
	DMID        string `json:"dmId" validate:"required"`
	RecipientID string `json:"recipientId" validate:"required"`
	SenderID    string `json:"senderId" validate:"required"`
}

func (d *Dispatcher) handleDMDelete(conn core.ConnID, data json.RawMessage) {
	var p dmRefPayload
	if !d.decode(conn, "dm:delete", data, &p) {
		return
	}
	if d.persistFailed(conn, "dm:delete", d.Store.DeleteDM(p.DMID)) {
		return
	}
	d.broadcastDM(p.SenderID, p.RecipientID, "dm:deleted", map[string]any{"dmId": p.DMID})
}

type dmReactionPayload struct {
	DMID        string `json:"dmId" validate:"required"`
	Emoji       string `json:"emoji" validate:"required"`
	RecipientID string `json:"recipientId" validate:"required"`
	SenderID    string `json:"senderId" validate:"required"`
	UserID      string `json:"userId" validate:"required"`
}

func (d *Dispatcher) handleDMReactionAdd(conn core.ConnID, data json.RawMessage) {
	var p dmReactionPayload
	if !d.decode(conn, "dm:reaction:add", data, &p) {
		return
	}
	if d.persistFailed(conn, "dm:reaction:add", d.Store.AddDMReaction(p.DMID, p.Emoji, p.UserID)) {
		return
	}
	d.broadcastDM(p.SenderID, p.RecipientID, "dm:reaction:added", map[string]any{
		"dmId":   p.DMID,
		"emoji":  p.Emoji,
		"userId": p.UserID,
	})
}

func (d *Dispatcher) handleDMReactionRemove(conn core.ConnID, data json.RawMessage) {
	var p dmReactionPayload
	if !d.decode(conn, "dm:reaction:remove", data, &p) {
		return
	}
	if d.persistFailed(conn, "dm:reaction:remove", d.Store.RemoveDMReaction(p.DMID, p.Emoji, p.UserID)) {
		return
	}
	d.broadcastDM(p.SenderID, p.RecipientID, "dm:reaction:removed", map[string]any{
		"dmId":   p.DMID,
		"emoji":  p.Emoji,
		"userId": p.UserID,
	})
}

type dmHistoryPayload struct {
	UserID1 string `json:"userId1" validate:"required"`
	UserID2 string `json:"userId2" validate:"required"`
	Limit   int    `json:"limit"`
}

func (d *Dispatcher) handleDMHistory(conn core.ConnID, data json.RawMessage) {
	var p dmHistoryPayload
	if !d.decode(conn, "dm:history", data, &p) {
		return
	}
	messages, err := d.Store.ListDMs(p.UserID1, p.UserID2, p.Limit)
	if err != nil {
		d.replyErr(conn, "dm:history", "history unavailable")
		return
	}
	if messages == nil {
		messages = []domain.DirectMessage{}
	}
	d.Rooms.SendTo(conn, "dm:history-response", map[string]any{"messages": messages})
}

type dmPairPayload struct {
	RecipientID string `json:"recipientId" validate:"required"`
	UserID      string `json:"userId" validate:"required"`
}

func (d *Dispatcher) handleDMOpen(conn core.ConnID, data json.RawMessage) {
	var p dmPairPayload
	if !d.decode(conn, "dm:open", data, &p) {
		return
	}
	d.Rooms.Join(conn, core.DMRoom(p.UserID, p.RecipientID))
	d.Rooms.Join(conn, core.DMRoom(p.RecipientID, p.UserID))
}

func (d *Dispatcher) handleDMClose(conn core.ConnID, data json.RawMessage) {
	var p dmPairPayload
	if !d.decode(conn, "dm:close", data, &p) {
		return
	}
	d.Rooms.Leave(conn, core.DMRoom(p.UserID, p.RecipientID))
	d.Rooms.Leave(conn, core.DMRoom(p.RecipientID, p.UserID))
}
