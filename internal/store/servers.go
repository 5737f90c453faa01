package store

import (
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/chattrix/chattrix/internal/domain"
)

func serverKey(id string) string { return "server:" + id }

func channelKey(serverID, id string) string {
	return fmt.Sprintf("channel:%s:%s", serverID, id)
}

func memberKey(serverID, userID string) string {
	return fmt.Sprintf("member:%s:%s", serverID, userID)
}

func roleKey(serverID, id string) string {
	return fmt.Sprintf("role:%s:%s", serverID, id)
}

func memberRoleKey(memberID, roleID string) string {
	return fmt.Sprintf("memberrole:%s:%s", memberID, roleID)
}

func banKey(serverID, userID string) string {
	return fmt.Sprintf("ban:%s:%s", serverID, userID)
}

func inviteKey(code string) string { return "invite:" + code }

// CreateServer writes the server, the owner's membership row and the default
// channel in a single transaction; either all three land or none do.
func (s *Store) CreateServer(srv domain.Server, owner domain.Member, general domain.Channel) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if err := setJSON(txn, serverKey(srv.ID), srv); err != nil {
			return err
		}
		if err := setJSON(txn, memberKey(owner.ServerID, owner.UserID), owner); err != nil {
			return err
		}
		return setJSON(txn, channelKey(general.ServerID, general.ID), general)
	})
}

func (s *Store) GetServer(id string) (domain.Server, error) {
	var srv domain.Server
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, serverKey(id), &srv)
	})
	return srv, err
}

func (s *Store) AddMember(m domain.Member) error {
	return s.db.Update(func(txn *badger.Txn) error {
		key := memberKey(m.ServerID, m.UserID)
		taken, err := exists(txn, key)
		if err != nil {
			return err
		}
		if taken {
			return ErrConflict
		}
		return setJSON(txn, key, m)
	})
}

func (s *Store) GetMember(serverID, userID string) (domain.Member, error) {
	var m domain.Member
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, memberKey(serverID, userID), &m)
	})
	return m, err
}

func (s *Store) RemoveMember(serverID, userID string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		key := memberKey(serverID, userID)
		taken, err := exists(txn, key)
		if err != nil {
			return err
		}
		if !taken {
			return ErrNotFound
		}
		return txn.Delete([]byte(key))
	})
}

func (s *Store) CreateRole(r domain.Role) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return setJSON(txn, roleKey(r.ServerID, r.ID), r)
	})
}

func (s *Store) AddMemberRole(memberID, roleID string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		// INSERT OR IGNORE semantics: a duplicate junction row is fine.
		return txn.Set([]byte(memberRoleKey(memberID, roleID)), []byte{})
	})
}

func (s *Store) RemoveMemberRole(memberID, roleID string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(memberRoleKey(memberID, roleID)))
	})
}

// BanMember records the ban and drops the membership row in one transaction.
func (s *Store) BanMember(b domain.Ban) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if err := setJSON(txn, banKey(b.ServerID, b.UserID), b); err != nil {
			return err
		}
		return txn.Delete([]byte(memberKey(b.ServerID, b.UserID)))
	})
}

func (s *Store) CreateInvite(inv domain.Invite) error {
	return s.db.Update(func(txn *badger.Txn) error {
		key := inviteKey(inv.Code)
		taken, err := exists(txn, key)
		if err != nil {
			return err
		}
		if taken {
			return ErrConflict
		}
		return setJSON(txn, key, inv)
	})
}

func (s *Store) GetInvite(code string) (domain.Invite, error) {
	var inv domain.Invite
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, inviteKey(code), &inv)
	})
	return inv, err
}
