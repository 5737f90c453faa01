package dispatch

import (
	"crypto/rand"
	"time"

	"github.com/goccy/go-json"

	"github.com/chattrix/chattrix/internal/core"
	"github.com/chattrix/chattrix/internal/domain"
)

type serverCreatePayload struct {
	Name    string `json:"name" validate:"required"`
	OwnerID string `json:"ownerId" validate:"required"`
	Icon    string `json:"icon"`
}

// handleServerCreate writes server + owner membership + default "general"
// channel as one group, replies to the creator only, then hints everyone
// that the server list changed.
func (d *Dispatcher) handleServerCreate(conn core.ConnID, data json.RawMessage) {
	var p serverCreatePayload
	if !d.decode(conn, "server:create", data, &p) {
		return
	}
	now := time.Now().UTC()
	srv := domain.Server{
		ID:        domain.NewID("srv"),
		Name:      p.Name,
		OwnerID:   p.OwnerID,
		Icon:      p.Icon,
		CreatedAt: now,
	}
	owner := domain.Member{
		ID:       domain.NewID("mem"),
		UserID:   p.OwnerID,
		ServerID: srv.ID,
		JoinedAt: now,
	}
	general := domain.Channel{
		ID:        domain.NewID("ch"),
		Name:      "general",
		ServerID:  srv.ID,
		Type:      "text",
		Position:  0,
		CreatedAt: now,
	}
	if d.persistFailed(conn, "server:create", d.Store.CreateServer(srv, owner, general)) {
		return
	}
	d.Rooms.SendTo(conn, "server:created", map[string]any{
		"serverId": srv.ID,
		"name":     srv.Name,
		"icon":     srv.Icon,
		"channels": []map[string]string{{"id": general.ID, "name": general.Name}},
	})
	d.Rooms.BroadcastAll("server:list:update", nil, conn)
}

type serverMemberPayload struct {
	ServerID string `json:"serverId" validate:"required"`
	UserID   string `json:"userId" validate:"required"`
}

func (d *Dispatcher) handleServerJoin(conn core.ConnID, data json.RawMessage) {
	var p serverMemberPayload
	if !d.decode(conn, "server:join", data, &p) {
		return
	}
	member := domain.Member{
		ID:       domain.NewID("mem"),
		UserID:   p.UserID,
		ServerID: p.ServerID,
		JoinedAt: time.Now().UTC(),
	}
	if d.persistFailed(conn, "server:join", d.Store.AddMember(member)) {
		return
	}
	d.Rooms.Join(conn, core.ServerRoom(p.ServerID))
	d.Rooms.Broadcast(core.ServerRoom(p.ServerID), "server:member:joined", map[string]any{
		"userId": p.UserID,
	})
}

func (d *Dispatcher) handleServerLeave(conn core.ConnID, data json.RawMessage) {
	var p serverMemberPayload
	if !d.decode(conn, "server:leave", data, &p) {
		return
	}
	if d.persistFailed(conn, "server:leave", d.Store.RemoveMember(p.ServerID, p.UserID)) {
		return
	}
	// Broadcast before the leaver unsubscribes so they see their own exit.
	d.Rooms.Broadcast(core.ServerRoom(p.ServerID), "server:member:left", map[string]any{
		"userId": p.UserID,
	})
	d.Rooms.Leave(conn, core.ServerRoom(p.ServerID))
}

type roleCreatePayload struct {
	ServerID    string `json:"serverId" validate:"required"`
	Name        string `json:"name" validate:"required"`
	Color       string `json:"color"`
	Permissions string `json:"permissions"`
}

func (d *Dispatcher) handleRoleCreate(conn core.ConnID, data json.RawMessage) {
	var p roleCreatePayload
	if !d.decode(conn, "role:create", data, &p) {
		return
	}
	role := domain.Role{
		ID:          domain.NewID("role"),
		ServerID:    p.ServerID,
		Name:        p.Name,
		Color:       p.Color,
		Permissions: p.Permissions,
		CreatedAt:   time.Now().UTC(),
	}
	if d.persistFailed(conn, "role:create", d.Store.CreateRole(role)) {
		return
	}
	d.Rooms.Broadcast(core.ServerRoom(p.ServerID), "role:created", map[string]any{
		"roleId": role.ID,
		"name":   role.Name,
		"color":  role.Color,
	})
}

type memberRolePayload struct {
	ServerID string `json:"serverId" validate:"required"`
	UserID   string `json:"userId" validate:"required"`
	RoleID   string `json:"roleId" validate:"required"`
}

// Role changes resolve the member's internal id from (userId, serverId)
// first; a missing membership row answers the caller with not-found instead
// of silently doing nothing.
func (d *Dispatcher) handleMemberRoleAdd(conn core.ConnID, data json.RawMessage) {
	var p memberRolePayload
	if !d.decode(conn, "member:role:add", data, &p) {
		return
	}
	member, err := d.Store.GetMember(p.ServerID, p.UserID)
	if d.persistFailed(conn, "member:role:add", err) {
		return
	}
	if d.persistFailed(conn, "member:role:add", d.Store.AddMemberRole(member.ID, p.RoleID)) {
		return
	}
	d.Rooms.Broadcast(core.ServerRoom(p.ServerID), "member:role:added", map[string]any{
		"userId": p.UserID,
		"roleId": p.RoleID,
	})
}

func (d *Dispatcher) handleMemberRoleRemove(conn core.ConnID, data json.RawMessage) {
	var p memberRolePayload
	if !d.decode(conn, "member:role:remove", data, &p) {
		return
	}
	member, err := d.Store.GetMember(p.ServerID, p.UserID)
	if d.persistFailed(conn, "member:role:remove", err) {
		return
	}
	if d.persistFailed(conn, "member:role:remove", d.Store.RemoveMemberRole(member.ID, p.RoleID)) {
		return
	}
	d.Rooms.Broadcast(core.ServerRoom(p.ServerID), "member:role:removed", map[string]any{
		"userId": p.UserID,
		"roleId": p.RoleID,
	})
}

type banPayload struct {
	ServerID string `json:"serverId" validate:"required"`
	UserID   string `json:"userId" validate:"required"`
	Reason   string `json:"reason"`
	BannedBy string `json:"bannedBy" validate:"required"`
}

func (d *Dispatcher) handleMemberBan(conn core.ConnID, data json.RawMessage) {
	var p banPayload
	if !d.decode(conn, "member:ban", data, &p) {
		return
	}
	ban := domain.Ban{
		ID:        domain.NewID("ban"),
		ServerID:  p.ServerID,
		UserID:    p.UserID,
		Reason:    p.Reason,
		BannedBy:  p.BannedBy,
		CreatedAt: time.Now().UTC(),
	}
	if d.persistFailed(conn, "member:ban", d.Store.BanMember(ban)) {
		return
	}
	d.Rooms.Broadcast(core.ServerRoom(p.ServerID), "member:banned", map[string]any{
		"userId": p.UserID,
		"reason": p.Reason,
	})
}

type kickPayload struct {
	ServerID string `json:"serverId" validate:"required"`
	UserID   string `json:"userId" validate:"required"`
	Reason   string `json:"reason"`
}

func (d *Dispatcher) handleMemberKick(conn core.ConnID, data json.RawMessage) {
	var p kickPayload
	if !d.decode(conn, "member:kick", data, &p) {
		return
	}
	if d.persistFailed(conn, "member:kick", d.Store.RemoveMember(p.ServerID, p.UserID)) {
		return
	}
	d.Rooms.Broadcast(core.ServerRoom(p.ServerID), "member:kicked", map[string]any{
		"userId": p.UserID,
		"reason": p.Reason,
	})
}

type inviteCreatePayload struct {
	ServerID  string     `json:"serverId" validate:"required"`
	CreatedBy string     `json:"createdBy" validate:"required"`
	ExpiresAt *time.Time `json:"expiresAt"`
	MaxUses   int        `json:"maxUses"`
}

func (d *Dispatcher) handleInviteCreate(conn core.ConnID, data json.RawMessage) {
	var p inviteCreatePayload
	if !d.decode(conn, "invite:create", data, &p) {
		return
	}
	inv := domain.Invite{
		Code:      newInviteCode(),
		ServerID:  p.ServerID,
		CreatedBy: p.CreatedBy,
		ExpiresAt: p.ExpiresAt,
		MaxUses:   p.MaxUses,
		CreatedAt: time.Now().UTC(),
	}
	if d.persistFailed(conn, "invite:create", d.Store.CreateInvite(inv)) {
		return
	}
	d.Rooms.SendTo(conn, "invite:created", map[string]any{"code": inv.Code})
}

// inviteAlphabet omits 0/O/1/I so a code read aloud or retyped in any case
// stays unambiguous.
const inviteAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const inviteCodeLen = 8

func newInviteCode() string {
	buf := make([]byte, inviteCodeLen)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	for i, b := range buf {
		buf[i] = inviteAlphabet[int(b)%len(inviteAlphabet)]
	}
	return string(buf)
}
