package core

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/chattrix/chattrix/internal/domain"
)

// Snapshot is one user's presence as broadcast to everyone.
type Snapshot struct {
	UserID        string        `json:"userId"`
	Username      string        `json:"username"`
	Status        domain.Status `json:"status"`
	StatusMessage string        `json:"statusMessage,omitempty"`
	LastSeen      time.Time     `json:"lastSeen"`

	conn ConnID
}

// PresenceStore is the slice of the datastore presence needs.
type PresenceStore interface {
	UpdateUserStatus(id string, status domain.Status, statusMessage string) error
}

// Broadcaster is the slice of the router presence needs.
type Broadcaster interface {
	BroadcastAll(event string, data any, exclude ...ConnID)
}

// PresenceTracker maps userId to the current presence snapshot. Persistence
// is best effort: the in-memory snapshot always updates, the global
// presence:updated broadcast fires only after the store write succeeded.
type PresenceTracker struct {
	mu      sync.Mutex
	entries map[string]*Snapshot
	locks   map[string]*sync.Mutex
	store   PresenceStore
	cast    Broadcaster
}

func NewPresenceTracker(store PresenceStore, cast Broadcaster) *PresenceTracker {
	return &PresenceTracker{
		entries: make(map[string]*Snapshot),
		locks:   make(map[string]*sync.Mutex),
		store:   store,
		cast:    cast,
	}
}

// userLock serializes updates per user so the broadcast order matches the
// completion order of SetPresence calls for that user. Different users
// proceed independently.
func (t *PresenceTracker) userLock(userID string) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		t.locks[userID] = l
	}
	return l
}

func (t *PresenceTracker) SetPresence(conn ConnID, userID, username string, status domain.Status, statusMessage string) (Snapshot, error) {
	l := t.userLock(userID)
	l.Lock()
	defer l.Unlock()

	snap := Snapshot{
		UserID:        userID,
		Username:      username,
		Status:        status,
		StatusMessage: statusMessage,
		LastSeen:      time.Now().UTC(),
		conn:          conn,
	}
	t.mu.Lock()
	t.entries[userID] = &snap
	t.mu.Unlock()

	if err := t.store.UpdateUserStatus(userID, status, statusMessage); err != nil {
		log.Error().Err(err).Str("module", "core.presence").Str("user", userID).Msg("presence persist failed, broadcast suppressed")
		return snap, err
	}

	t.cast.BroadcastAll("presence:updated", snap)
	return snap, nil
}

// MarkOffline runs on disconnect: the entry owned by this connection is
// forced offline, persisted, broadcast and removed. A connection that never
// set presence is a silent no-op. The entry is matched by owning connection,
// so a reconnect that already re-registered the user is left alone.
func (t *PresenceTracker) MarkOffline(conn ConnID) {
	t.mu.Lock()
	var owned *Snapshot
	for _, e := range t.entries {
		if e.conn == conn {
			owned = e
			break
		}
	}
	t.mu.Unlock()
	if owned == nil {
		return
	}

	l := t.userLock(owned.UserID)
	l.Lock()
	defer l.Unlock()

	t.mu.Lock()
	current, ok := t.entries[owned.UserID]
	if !ok || current.conn != conn {
		t.mu.Unlock()
		return
	}
	delete(t.entries, owned.UserID)
	t.mu.Unlock()

	if err := t.store.UpdateUserStatus(owned.UserID, domain.StatusOffline, ""); err != nil {
		log.Error().Err(err).Str("module", "core.presence").Str("user", owned.UserID).Msg("offline persist failed, broadcast suppressed")
		return
	}

	t.cast.BroadcastAll("presence:updated", Snapshot{
		UserID:   owned.UserID,
		Username: owned.Username,
		Status:   domain.StatusOffline,
		LastSeen: time.Now().UTC(),
	})
}

// ListOnline returns every snapshot whose status is not offline.
func (t *PresenceTracker) ListOnline() []Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	entries := lo.Values(t.entries)
	entries = lo.Filter(entries, func(e *Snapshot, _ int) bool {
		return e.Status != domain.StatusOffline
	})
	return lo.Map(entries, func(e *Snapshot, _ int) Snapshot { return *e })
}
