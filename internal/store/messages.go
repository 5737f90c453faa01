package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/chattrix/chattrix/internal/domain"
)

// Message keys are "msg:{channelId}:{timestamp_padded}:{id}": the 19-digit
// zero padding makes a prefix scan return channel history in time order.
// A point index "msgidx:{id}" maps the id back to the full key so edits and
// deletes stay O(1).
func messageKey(m domain.Message) string {
	return fmt.Sprintf("msg:%s:%019d:%s", m.ChannelID, m.CreatedAt.UnixNano(), m.ID)
}

func messageIdxKey(id string) string { return "msgidx:" + id }

func reactionKey(messageID, emoji, userID string) string {
	return fmt.Sprintf("react:%s:%s:%s", messageID, emoji, userID)
}

func threadKey(id string) string { return "thread:" + id }

func (s *Store) CreateMessage(m domain.Message) error {
	key := messageKey(m)
	return s.db.Update(func(txn *badger.Txn) error {
		if err := setJSON(txn, key, m); err != nil {
			return err
		}
		return txn.Set([]byte(messageIdxKey(m.ID)), []byte(key))
	})
}

func (s *Store) GetMessage(id string) (domain.Message, error) {
	var m domain.Message
	err := s.db.View(func(txn *badger.Txn) error {
		key, err := resolveIndex(txn, messageIdxKey(id))
		if err != nil {
			return err
		}
		return getJSON(txn, key, &m)
	})
	return m, err
}

func (s *Store) updateMessage(id string, mutate func(*domain.Message)) (domain.Message, error) {
	var m domain.Message
	err := s.db.Update(func(txn *badger.Txn) error {
		key, err := resolveIndex(txn, messageIdxKey(id))
		if err != nil {
			return err
		}
		if err := getJSON(txn, key, &m); err != nil {
			return err
		}
		mutate(&m)
		return setJSON(txn, key, m)
	})
	return m, err
}

func (s *Store) EditMessage(id, content string) (domain.Message, error) {
	now := time.Now().UTC()
	return s.updateMessage(id, func(m *domain.Message) {
		m.Content = content
		m.EditedAt = &now
	})
}

// DeleteMessage is a soft delete: the row stays, DeletedAt is set.
func (s *Store) DeleteMessage(id string) (domain.Message, error) {
	now := time.Now().UTC()
	return s.updateMessage(id, func(m *domain.Message) {
		m.DeletedAt = &now
	})
}

func (s *Store) PinMessage(id string, pinned bool) (domain.Message, error) {
	return s.updateMessage(id, func(m *domain.Message) {
		m.Pinned = pinned
	})
}

// AddReaction enforces uniqueness of (message, emoji, user) through the key
// itself; a duplicate add fails with ErrConflict.
func (s *Store) AddReaction(messageID, emoji, userID string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		key := reactionKey(messageID, emoji, userID)
		taken, err := exists(txn, key)
		if err != nil {
			return err
		}
		if taken {
			return ErrConflict
		}
		return setJSON(txn, key, domain.Reaction{
			Emoji:     emoji,
			UserID:    userID,
			CreatedAt: time.Now().UTC(),
		})
	})
}

// RemoveReaction of a reaction that never existed is a successful no-op.
func (s *Store) RemoveReaction(messageID, emoji, userID string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(reactionKey(messageID, emoji, userID)))
	})
}

func (s *Store) CountReactions(messageID, emoji string) (int, error) {
	count := 0
	prefix := []byte(fmt.Sprintf("react:%s:%s:", messageID, emoji))
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

func (s *Store) CreateThread(t domain.Thread) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return setJSON(txn, threadKey(t.ID), t)
	})
}

func resolveIndex(txn *badger.Txn, idxKey string) (string, error) {
	item, err := txn.Get([]byte(idxKey))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	var key string
	err = item.Value(func(val []byte) error {
		key = string(val)
		return nil
	})
	return key, err
}
