package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/chattrix/chattrix/internal/domain"
)

func userKey(id string) string     { return "user:" + id }
func userEmailKey(e string) string { return "useremail:" + e }

// CreateUser writes the user plus a unique email index entry.
// A second registration with the same email fails with ErrConflict.
func (s *Store) CreateUser(u domain.User) error {
	return s.db.Update(func(txn *badger.Txn) error {
		taken, err := exists(txn, userEmailKey(u.Email))
		if err != nil {
			return err
		}
		if taken {
			return ErrConflict
		}
		if err := setJSON(txn, userKey(u.ID), u); err != nil {
			return err
		}
		return txn.Set([]byte(userEmailKey(u.Email)), []byte(u.ID))
	})
}

func (s *Store) GetUser(id string) (domain.User, error) {
	var u domain.User
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, userKey(id), &u)
	})
	return u, err
}

func (s *Store) GetUserByEmail(email string) (domain.User, error) {
	var u domain.User
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(userEmailKey(email)))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		var id string
		if err := item.Value(func(val []byte) error {
			id = string(val)
			return nil
		}); err != nil {
			return err
		}
		return getJSON(txn, userKey(id), &u)
	})
	return u, err
}

// UpdateUserStatus persists presence fields. Like an SQL UPDATE that matches
// zero rows, an unknown user id is a successful no-op: presence is tracked
// for users the auth service never wrote here.
func (s *Store) UpdateUserStatus(id string, status domain.Status, statusMessage string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		var u domain.User
		if err := getJSON(txn, userKey(id), &u); err != nil {
			return err
		}
		u.Status = status
		u.StatusMessage = statusMessage
		u.UpdatedAt = time.Now().UTC()
		return setJSON(txn, userKey(id), u)
	})
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("update status for %s: %w", id, err)
	}
	return nil
}
