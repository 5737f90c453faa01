package dispatch

import (
	"time"

	"github.com/goccy/go-json"

	"github.com/chattrix/chattrix/internal/core"
	"github.com/chattrix/chattrix/internal/domain"
)

type messageSendPayload struct {
	ChannelID   string            `json:"channelId" validate:"required"`
	Content     string            `json:"content" validate:"required"`
	UserID      string            `json:"userId" validate:"required"`
	Username    string            `json:"username" validate:"required"`
	Avatar      string            `json:"avatar"`
	Embeds      []json.RawMessage `json:"embeds"`
	Attachments []json.RawMessage `json:"attachments"`
}

func (d *Dispatcher) handleMessageSend(conn core.ConnID, data json.RawMessage) {
	var p messageSendPayload
	if !d.decode(conn, "message:send", data, &p) {
		return
	}

	msg := domain.Message{
		ID:           domain.NewID("msg"),
		Content:      p.Content,
		AuthorID:     p.UserID,
		AuthorName:   p.Username,
		AuthorAvatar: p.Avatar,
		ChannelID:    p.ChannelID,
		Reactions:    []domain.Reaction{},
		Embeds:       orEmpty(p.Embeds),
		Attachments:  orEmpty(p.Attachments),
		CreatedAt:    time.Now().UTC(),
	}
	if d.persistFailed(conn, "message:send", d.Store.CreateMessage(msg)) {
		return
	}
	d.Rooms.Broadcast(core.ChannelRoom(p.ChannelID), "message:new", msg)
}

type messageEditPayload struct {
	MessageID string `json:"messageId" validate:"required"`
	Content   string `json:"content" validate:"required"`
	ChannelID string `json:"channelId" validate:"required"`
}

func (d *Dispatcher) handleMessageEdit(conn core.ConnID, data json.RawMessage) {
	var p messageEditPayload
	if !d.decode(conn, "message:edit", data, &p) {
		return
	}
	msg, err := d.Store.EditMessage(p.MessageID, p.Content)
	if d.persistFailed(conn, "message:edit", err) {
		return
	}
	d.Rooms.Broadcast(core.ChannelRoom(p.ChannelID), "message:updated", map[string]any{
		"messageId": msg.ID,
		"content":   msg.Content,
		"editedAt":  msg.EditedAt,
	})
}

type messageRefPayload struct {
	MessageID string `json:"messageId" validate:"required"`
	ChannelID string `json:"channelId" validate:"required"`
}

func (d *Dispatcher) handleMessageDelete(conn core.ConnID, data json.RawMessage) {
	var p messageRefPayload
	if !d.decode(conn, "message:delete", data, &p) {
		return
	}
	_, err := d.Store.DeleteMessage(p.MessageID)
	if d.persistFailed(conn, "message:delete", err) {
		return
	}
	d.Rooms.Broadcast(core.ChannelRoom(p.ChannelID), "message:deleted", map[string]any{
		"messageId": p.MessageID,
	})
}

type messagePinPayload struct {
	MessageID string `json:"messageId" validate:"required"`
	ChannelID string `json:"channelId" validate:"required"`
	Pinned    bool   `json:"pinned"`
}

func (d *Dispatcher) handleMessagePin(conn core.ConnID, data json.RawMessage) {
	var p messagePinPayload
	if !d.decode(conn, "message:pin", data, &p) {
		return
	}
	msg, err := d.Store.PinMessage(p.MessageID, p.Pinned)
	if d.persistFailed(conn, "message:pin", err) {
		return
	}
	d.Rooms.Broadcast(core.ChannelRoom(p.ChannelID), "message:pinned", map[string]any{
		"messageId": msg.ID,
		"pinned":    msg.Pinned,
	})
}

type reactionPayload struct {
	MessageID string `json:"messageId" validate:"required"`
	Emoji     string `json:"emoji" validate:"required"`
	ChannelID string `json:"channelId" validate:"required"`
	UserID    string `json:"userId" validate:"required"`
}

func (d *Dispatcher) handleReactionAdd(conn core.ConnID, data json.RawMessage) {
	var p reactionPayload
	if !d.decode(conn, "message:reaction:add", data, &p) {
		return
	}
	if d.persistFailed(conn, "message:reaction:add", d.Store.AddReaction(p.MessageID, p.Emoji, p.UserID)) {
		return
	}
	d.Rooms.Broadcast(core.ChannelRoom(p.ChannelID), "message:reaction:added", map[string]any{
		"messageId": p.MessageID,
		"emoji":     p.Emoji,
		"userId":    p.UserID,
	})
}

func (d *Dispatcher) handleReactionRemove(conn core.ConnID, data json.RawMessage) {
	var p reactionPayload
	if !d.decode(conn, "message:reaction:remove", data, &p) {
		return
	}
	if d.persistFailed(conn, "message:reaction:remove", d.Store.RemoveReaction(p.MessageID, p.Emoji, p.UserID)) {
		return
	}
	d.Rooms.Broadcast(core.ChannelRoom(p.ChannelID), "message:reaction:removed", map[string]any{
		"messageId": p.MessageID,
		"emoji":     p.Emoji,
		"userId":    p.UserID,
	})
}

type threadCreatePayload struct {
	MessageID  string `json:"messageId" validate:"required"`
	ThreadName string `json:"threadName" validate:"required"`
	ChannelID  string `json:"channelId" validate:"required"`
}

func (d *Dispatcher) handleThreadCreate(conn core.ConnID, data json.RawMessage) {
	var p threadCreatePayload
	if !d.decode(conn, "thread:create", data, &p) {
		return
	}
	thread := domain.Thread{
		ID:        domain.NewID("thread"),
		Name:      p.ThreadName,
		MessageID: p.MessageID,
		ChannelID: p.ChannelID,
		CreatedAt: time.Now().UTC(),
	}
	if d.persistFailed(conn, "thread:create", d.Store.CreateThread(thread)) {
		return
	}
	d.Rooms.Broadcast(core.ChannelRoom(p.ChannelID), "thread:created", map[string]any{
		"threadId":   thread.ID,
		"messageId":  thread.MessageID,
		"threadName": thread.Name,
	})
}

func orEmpty(in []json.RawMessage) []json.RawMessage {
	if in == nil {
		return []json.RawMessage{}
	}
	return in
}
