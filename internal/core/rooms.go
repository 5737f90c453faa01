package core

import (
	"context"
	"sync"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/chattrix/chattrix/internal/broker"
)

// Room name derivation. Four kinds of rooms exist, told apart by prefix.
func ChannelRoom(channelID string) string { return "channel:" + channelID }
func ServerRoom(serverID string) string   { return "server:" + serverID }
func UserRoom(userID string) string       { return "user:" + userID }
func DMRoom(userID, otherID string) string {
	return "dm:" + userID + ":" + otherID
}

// roomGlobal addresses every connection on every instance; used for
// presence and roster updates.
const roomGlobal = "global"

// relayFrame is what actually travels through the broker: the serialized
// wire frame plus the connections the caller wants skipped. Connection ids
// are uuids, so the exclusion survives a trip through redis.
type relayFrame struct {
	Frame   json.RawMessage `json:"frame"`
	Exclude []ConnID        `json:"exclude,omitempty"`
}

// Router owns the room topology: a set of connection ids per room name plus
// the Sender handle for each live connection. Rooms appear on first join;
// empty member sets are deleted eagerly, though nothing depends on that.
type Router struct {
	mu     sync.RWMutex
	conns  map[ConnID]Sender
	rooms  map[string]map[ConnID]struct{}
	broker broker.Broker
}

func NewRouter(b broker.Broker) *Router {
	r := &Router{
		conns:  make(map[ConnID]Sender),
		rooms:  make(map[string]map[ConnID]struct{}),
		broker: b,
	}
	b.Subscribe(r.deliver)
	return r
}

func (r *Router) Connect(id ConnID, s Sender) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[id] = s
	log.Info().Str("module", "core.rooms").Str("conn", string(id)).Msg("connection registered")
}

// Disconnect drops the transport handle. CleanupConnection must run first so
// that departure broadcasts still found the handle.
func (r *Router) Disconnect(id ConnID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, id)
}

// Join is idempotent: joining a room twice leaves a single membership.
func (r *Router) Join(id ConnID, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	members, ok := r.rooms[room]
	if !ok {
		members = make(map[ConnID]struct{})
		r.rooms[room] = members
	}
	members[id] = struct{}{}
	log.Debug().Str("module", "core.rooms").Str("conn", string(id)).Str("room", room).Msg("joined room")
}

// Leave of a non-member is a no-op, never an error.
func (r *Router) Leave(id ConnID, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(id, room)
}

func (r *Router) leaveLocked(id ConnID, room string) {
	members, ok := r.rooms[room]
	if !ok {
		return
	}
	delete(members, id)
	if len(members) == 0 {
		delete(r.rooms, room)
	}
}

// CleanupConnection removes the connection from every room it belongs to.
// Called once per disconnect, after presence and session teardown.
func (r *Router) CleanupConnection(id ConnID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for room := range r.rooms {
		r.leaveLocked(id, room)
	}
	log.Info().Str("module", "core.rooms").Str("conn", string(id)).Msg("connection cleaned up")
}

func (r *Router) MemberCount(room string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[room])
}

// SendTo delivers one event to a single local connection, bypassing the
// broker; used for direct replies to the initiating connection.
func (r *Router) SendTo(id ConnID, event string, data any) {
	r.mu.RLock()
	s, ok := r.conns[id]
	r.mu.RUnlock()
	if !ok {
		return
	}
	frame, err := json.Marshal(Frame{Type: event, Data: data})
	if err != nil {
		log.Error().Err(err).Str("module", "core.rooms").Str("event", event).Msg("marshal frame")
		return
	}
	if err := s.TrySend(frame); err != nil {
		log.Warn().Err(err).Str("module", "core.rooms").Str("conn", string(id)).Str("event", event).Msg("send failed")
	}
}

// Broadcast delivers the event to every member of the room, minus the
// excluded connections. Sender inclusion is the caller's decision: message
// fan-out excludes nobody, typing fan-out excludes the originator.
func (r *Router) Broadcast(room, event string, data any, exclude ...ConnID) {
	r.publish(room, event, data, exclude)
}

// BroadcastAll delivers the event to every connection.
func (r *Router) BroadcastAll(event string, data any, exclude ...ConnID) {
	r.publish(roomGlobal, event, data, exclude)
}

func (r *Router) publish(room, event string, data any, exclude []ConnID) {
	frame, err := json.Marshal(Frame{Type: event, Data: data})
	if err != nil {
		log.Error().Err(err).Str("module", "core.rooms").Str("event", event).Msg("marshal frame")
		return
	}
	relay, err := json.Marshal(relayFrame{Frame: frame, Exclude: exclude})
	if err != nil {
		log.Error().Err(err).Str("module", "core.rooms").Str("event", event).Msg("marshal relay")
		return
	}
	if err := r.broker.Publish(context.Background(), room, relay); err != nil {
		log.Error().Err(err).Str("module", "core.rooms").Str("room", room).Str("event", event).Msg("publish")
	}
}

// deliver is the broker subscription: fan the frame out to the local members
// of the room. Slow consumers lose the frame, not the room.
func (r *Router) deliver(room string, payload []byte) {
	var relay relayFrame
	if err := json.Unmarshal(payload, &relay); err != nil {
		log.Error().Err(err).Str("module", "core.rooms").Str("room", room).Msg("bad relay frame")
		return
	}
	skip := make(map[ConnID]struct{}, len(relay.Exclude))
	for _, id := range relay.Exclude {
		skip[id] = struct{}{}
	}

	r.mu.RLock()
	targets := make(map[ConnID]Sender)
	if room == roomGlobal {
		for id, s := range r.conns {
			targets[id] = s
		}
	} else {
		for id := range r.rooms[room] {
			if s, ok := r.conns[id]; ok {
				targets[id] = s
			}
		}
	}
	r.mu.RUnlock()

	for id, s := range targets {
		if _, excluded := skip[id]; excluded {
			continue
		}
		if err := s.TrySend(relay.Frame); err != nil {
			log.Warn().Err(err).Str("module", "core.rooms").Str("conn", string(id)).Str("room", room).Msg("dropped frame")
		}
	}
}
