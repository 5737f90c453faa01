package core

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Identity is the authenticated pair a connection acts as.
type Identity struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

type sessionEntry struct {
	identity Identity
	conn     ConnID
}

// SessionRegistry binds one user to exactly one live connection; a second
// join for the same user replaces the first (last join wins). Registering
// auto-subscribes the connection to its personal room.
type SessionRegistry struct {
	mu     sync.RWMutex
	byUser map[string]*sessionEntry
	byConn map[ConnID]string
	router *Router
}

func NewSessionRegistry(router *Router) *SessionRegistry {
	return &SessionRegistry{
		byUser: make(map[string]*sessionEntry),
		byConn: make(map[ConnID]string),
		router: router,
	}
}

func (s *SessionRegistry) Register(conn ConnID, userID, username string) {
	s.mu.Lock()
	if prev, ok := s.byUser[userID]; ok {
		delete(s.byConn, prev.conn)
	}
	s.byUser[userID] = &sessionEntry{
		identity: Identity{UserID: userID, Username: username},
		conn:     conn,
	}
	s.byConn[conn] = userID
	s.mu.Unlock()

	s.router.Join(conn, UserRoom(userID))
	log.Info().Str("module", "core.sessions").Str("conn", string(conn)).Str("user", userID).Str("username", username).Msg("session registered")
}

// Unregister removes the binding owned by this connection. A connection that
// never completed user:join is a no-op, not an error.
func (s *SessionRegistry) Unregister(conn ConnID) (Identity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	userID, ok := s.byConn[conn]
	if !ok {
		return Identity{}, false
	}
	entry := s.byUser[userID]
	delete(s.byConn, conn)
	// Only drop the user entry if this connection still owns it; a newer
	// registration for the same user must survive the old socket's teardown.
	if entry != nil && entry.conn == conn {
		delete(s.byUser, userID)
	}
	log.Info().Str("module", "core.sessions").Str("conn", string(conn)).Str("user", userID).Msg("session unregistered")
	if entry == nil {
		return Identity{UserID: userID}, true
	}
	return entry.identity, true
}

func (s *SessionRegistry) Lookup(conn ConnID) (Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	userID, ok := s.byConn[conn]
	if !ok {
		return Identity{}, false
	}
	entry, ok := s.byUser[userID]
	if !ok {
		return Identity{}, false
	}
	return entry.identity, true
}

// Online lists the identities with a live session, for the users:online
// roster broadcast.
func (s *SessionRegistry) Online() []Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Identity, 0, len(s.byUser))
	for _, e := range s.byUser {
		out = append(out, e.identity)
	}
	return out
}
