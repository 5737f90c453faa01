package dispatch

import (
	"errors"
	"sync"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"github.com/chattrix/chattrix/internal/broker"
	"github.com/chattrix/chattrix/internal/core"
	"github.com/chattrix/chattrix/internal/domain"
	"github.com/chattrix/chattrix/internal/store"
)

type fakeSender struct {
	mu     sync.Mutex
	frames [][]byte
}

func (f *fakeSender) TrySend(frame []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, frame)
	return nil
}

type frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// collect returns every frame of the given type, decoded.
func (f *fakeSender) collect(t *testing.T, event string) []json.RawMessage {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []json.RawMessage
	for _, raw := range f.frames {
		var fr frame
		require.NoError(t, json.Unmarshal(raw, &fr))
		if fr.Type == event {
			out = append(out, fr.Data)
		}
	}
	return out
}

func (f *fakeSender) one(t *testing.T, event string, out any) {
	t.Helper()
	frames := f.collect(t, event)
	require.Len(t, frames, 1, "expected exactly one %q frame", event)
	require.NoError(t, json.Unmarshal(frames[0], out))
}

func newTestDispatcher(t *testing.T) *Dispatcher {
	t.Helper()
	st, err := store.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	rooms := core.NewRouter(broker.NewLocal())
	sessions := core.NewSessionRegistry(rooms)
	presence := core.NewPresenceTracker(st, rooms)
	return New(st, sessions, presence, rooms)
}

func connect(d *Dispatcher, id core.ConnID) *fakeSender {
	s := &fakeSender{}
	d.Rooms.Connect(id, s)
	return s
}

func send(t *testing.T, d *Dispatcher, conn core.ConnID, event string, payload any) {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	d.Dispatch(conn, nil, event, data)
}

func TestScenario_MessageSendFansOutToChannel(t *testing.T) {
	req := require.New(t)
	d := newTestDispatcher(t)
	x := connect(d, "cx")
	y := connect(d, "cy")
	z := connect(d, "cz") // never joins the channel

	send(t, d, "cx", "user:join", map[string]any{"userId": "u1", "username": "alice"})
	send(t, d, "cx", "channel:join", map[string]any{"channelId": "general"})
	send(t, d, "cy", "channel:join", map[string]any{"channelId": "general"})
	send(t, d, "cx", "message:send", map[string]any{
		"channelId": "general", "content": "hi", "userId": "u1", "username": "alice",
	})

	// Every member of channel:general, sender included, got message:new.
	for _, s := range []*fakeSender{x, y} {
		var msg domain.Message
		s.one(t, "message:new", &msg)
		req.Equal("alice", msg.AuthorName)
		req.Equal("hi", msg.Content)
		req.Regexp(`^msg_`, msg.ID)
		req.NotNil(msg.Reactions)
		req.Empty(msg.Reactions)
		req.NotNil(msg.Embeds)
		req.NotNil(msg.Attachments)
	}
	req.Empty(z.collect(t, "message:new"))
}

func TestScenario_DMReachesBothPersonalRooms(t *testing.T) {
	req := require.New(t)
	d := newTestDispatcher(t)
	a := connect(d, "ca")
	b := connect(d, "cb")

	send(t, d, "ca", "user:join", map[string]any{"userId": "u1", "username": "alice"})
	send(t, d, "cb", "user:join", map[string]any{"userId": "u2", "username": "bob"})
	send(t, d, "ca", "dm:open", map[string]any{"userId": "u1", "recipientId": "u2"})
	send(t, d, "cb", "dm:open", map[string]any{"userId": "u2", "recipientId": "u1"})

	send(t, d, "ca", "dm:send", map[string]any{
		"recipientId": "u2", "content": "psst", "senderId": "u1", "senderName": "alice",
	})

	// Recipient and sender both get dm:new, regardless of who sent.
	var got domain.DirectMessage
	b.one(t, "dm:new", &got)
	req.Equal("psst", got.Content)
	req.Equal("u1", got.SenderID)
	a.one(t, "dm:new", &got)
	req.Equal("u2", got.RecipientID)
}

func TestScenario_DisconnectBroadcastsOffline(t *testing.T) {
	req := require.New(t)
	d := newTestDispatcher(t)
	connect(d, "ca")
	watcher := connect(d, "cw")

	send(t, d, "ca", "user:join", map[string]any{"userId": "u1", "username": "alice"})
	send(t, d, "ca", "presence:update", map[string]any{
		"userId": "u1", "username": "alice", "status": "online",
	})

	// The connection drops without an explicit offline update.
	d.Disconnect("ca")

	updates := watcher.collect(t, "presence:updated")
	req.NotEmpty(updates)
	var last core.Snapshot
	req.NoError(json.Unmarshal(updates[len(updates)-1], &last))
	req.Equal("u1", last.UserID)
	req.Equal(domain.StatusOffline, last.Status)
}

func TestScenario_ServerCreate(t *testing.T) {
	req := require.New(t)
	d := newTestDispatcher(t)
	creator := connect(d, "cc")
	other := connect(d, "co")

	send(t, d, "cc", "server:create", map[string]any{"name": "Guild", "ownerId": "u1"})

	var created struct {
		ServerID string `json:"serverId"`
		Name     string `json:"name"`
		Channels []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"channels"`
	}
	creator.one(t, "server:created", &created)
	req.Equal("Guild", created.Name)
	req.Len(created.Channels, 1)
	req.Equal("general", created.Channels[0].Name)

	// The creation hint reached the other connections.
	req.Len(other.collect(t, "server:list:update"), 1)
	req.Empty(other.collect(t, "server:created"))
}

func TestUserJoin_BroadcastsRoster(t *testing.T) {
	req := require.New(t)
	d := newTestDispatcher(t)
	a := connect(d, "ca")
	connect(d, "cb")

	send(t, d, "cb", "user:join", map[string]any{"userId": "u2", "username": "bob"})

	var roster []core.Identity
	a.one(t, "users:online", &roster)
	req.Len(roster, 1)
	req.Equal("u2", roster[0].UserID)
}

func TestUserJoin_RejectsIdentityMismatch(t *testing.T) {
	req := require.New(t)
	d := newTestDispatcher(t)
	a := connect(d, "ca")

	verified := &core.Identity{UserID: "u1", Username: "alice"}
	data, err := json.Marshal(map[string]any{"userId": "u999", "username": "mallory"})
	req.NoError(err)
	d.Dispatch("ca", verified, "user:join", data)

	req.Len(a.collect(t, "error"), 1)
	_, ok := d.Sessions.Lookup("ca")
	req.False(ok)
}

func TestReactionAdd_DuplicateErrorsCallerOnly(t *testing.T) {
	req := require.New(t)
	d := newTestDispatcher(t)
	a := connect(d, "ca")
	b := connect(d, "cb")
	send(t, d, "ca", "channel:join", map[string]any{"channelId": "general"})
	send(t, d, "cb", "channel:join", map[string]any{"channelId": "general"})

	payload := map[string]any{
		"messageId": "msg_1", "emoji": "🔥", "channelId": "general", "userId": "u1",
	}
	send(t, d, "ca", "message:reaction:add", payload)
	send(t, d, "ca", "message:reaction:add", payload)

	// One broadcast for the first add; the duplicate only errored the caller.
	req.Len(b.collect(t, "message:reaction:added"), 1)
	req.Len(a.collect(t, "message:reaction:added"), 1)
	req.Len(a.collect(t, "error"), 1)
	req.Empty(b.collect(t, "error"))
}

func TestReactionRemove_MissingIsStillBroadcastNoOp(t *testing.T) {
	req := require.New(t)
	d := newTestDispatcher(t)
	a := connect(d, "ca")
	send(t, d, "ca", "channel:join", map[string]any{"channelId": "general"})

	send(t, d, "ca", "message:reaction:remove", map[string]any{
		"messageId": "msg_1", "emoji": "🔥", "channelId": "general", "userId": "u1",
	})

	// Removing a reaction that never existed succeeds.
	req.Empty(a.collect(t, "error"))
	req.Len(a.collect(t, "message:reaction:removed"), 1)
}

func TestTyping_ExcludesTypist(t *testing.T) {
	req := require.New(t)
	d := newTestDispatcher(t)
	typist := connect(d, "ct")
	watcher := connect(d, "cw")
	send(t, d, "ct", "channel:join", map[string]any{"channelId": "general"})
	send(t, d, "cw", "channel:join", map[string]any{"channelId": "general"})

	send(t, d, "ct", "presence:typing", map[string]any{
		"channelId": "general", "userId": "u1", "username": "alice",
	})
	send(t, d, "ct", "presence:stop-typing", map[string]any{
		"channelId": "general", "userId": "u1",
	})

	req.Empty(typist.collect(t, "presence:user-typing"))
	req.Empty(typist.collect(t, "presence:user-stop-typing"))
	req.Len(watcher.collect(t, "presence:user-typing"), 1)
	req.Len(watcher.collect(t, "presence:user-stop-typing"), 1)
}

func TestMemberRoleAdd_MissingMembershipIsExplicitNotFound(t *testing.T) {
	req := require.New(t)
	d := newTestDispatcher(t)
	a := connect(d, "ca")
	send(t, d, "ca", "server:join", map[string]any{"serverId": "srv_1", "userId": "u1"})

	send(t, d, "ca", "member:role:add", map[string]any{
		"serverId": "srv_1", "userId": "u_ghost", "roleId": "role_1",
	})

	frames := a.collect(t, "error")
	req.Len(frames, 1)
	var e errPayload
	req.NoError(json.Unmarshal(frames[0], &e))
	req.Equal("member:role:add", e.Event)
	req.Equal("not found", e.Error)

	req.Empty(a.collect(t, "member:role:added"))
}

func TestServerLeave_BroadcastReachesLeaver(t *testing.T) {
	req := require.New(t)
	d := newTestDispatcher(t)
	a := connect(d, "ca")
	send(t, d, "ca", "server:join", map[string]any{"serverId": "srv_1", "userId": "u1"})

	send(t, d, "ca", "server:leave", map[string]any{"serverId": "srv_1", "userId": "u1"})

	// The leaver sees their own exit before unsubscribing.
	req.Len(a.collect(t, "server:member:left"), 1)
	req.Zero(d.Rooms.MemberCount(core.ServerRoom("srv_1")))
}

func TestDMHistory_RepliesToCallerOnly(t *testing.T) {
	req := require.New(t)
	d := newTestDispatcher(t)
	a := connect(d, "ca")
	b := connect(d, "cb")
	send(t, d, "ca", "user:join", map[string]any{"userId": "u1", "username": "alice"})
	send(t, d, "cb", "user:join", map[string]any{"userId": "u2", "username": "bob"})

	send(t, d, "ca", "dm:send", map[string]any{
		"recipientId": "u2", "content": "first", "senderId": "u1", "senderName": "alice",
	})
	send(t, d, "cb", "dm:send", map[string]any{
		"recipientId": "u1", "content": "second", "senderId": "u2", "senderName": "bob",
	})

	send(t, d, "ca", "dm:history", map[string]any{"userId1": "u1", "userId2": "u2"})

	var resp struct {
		Messages []domain.DirectMessage `json:"messages"`
	}
	a.one(t, "dm:history-response", &resp)
	req.Len(resp.Messages, 2)
	req.Equal("first", resp.Messages[0].Content)
	req.Equal("second", resp.Messages[1].Content)
	req.Empty(b.collect(t, "dm:history-response"))
}

func TestDispatch_MalformedPayloadRejectedBeforePersist(t *testing.T) {
	req := require.New(t)
	d := newTestDispatcher(t)
	a := connect(d, "ca")
	b := connect(d, "cb")
	send(t, d, "ca", "channel:join", map[string]any{"channelId": "general"})
	send(t, d, "cb", "channel:join", map[string]any{"channelId": "general"})

	// content is required; nothing may be persisted or broadcast.
	send(t, d, "ca", "message:send", map[string]any{
		"channelId": "general", "userId": "u1", "username": "alice",
	})

	req.Len(a.collect(t, "error"), 1)
	req.Empty(b.collect(t, "message:new"))
}

func TestDispatch_UnknownEvent(t *testing.T) {
	req := require.New(t)
	d := newTestDispatcher(t)
	a := connect(d, "ca")

	send(t, d, "ca", "voice:join", map[string]any{})

	frames := a.collect(t, "error")
	req.Len(frames, 1)
	var e errPayload
	req.NoError(json.Unmarshal(frames[0], &e))
	req.Equal("voice:join", e.Event)
}

func TestPersistFailed_MapsStoreErrors(t *testing.T) {
	req := require.New(t)
	d := newTestDispatcher(t)
	a := connect(d, "ca")

	req.False(d.persistFailed("ca", "x", nil))
	req.True(d.persistFailed("ca", "x", store.ErrNotFound))
	req.True(d.persistFailed("ca", "x", store.ErrConflict))
	req.True(d.persistFailed("ca", "x", errors.New("disk on fire")))
	req.Len(a.collect(t, "error"), 3)
}
