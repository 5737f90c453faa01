package store

import (
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/chattrix/chattrix/internal/domain"
)

// PairKey is the canonical name of a DM conversation: both orderings of the
// participants map to the same key, so either side's history scan hits the
// same prefix.
func PairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + ":" + b
}

func dmKey(dm domain.DirectMessage) string {
	return fmt.Sprintf("dm:%s:%019d:%s",
		PairKey(dm.SenderID, dm.RecipientID), dm.CreatedAt.UnixNano(), dm.ID)
}

func dmIdxKey(id string) string { return "dmidx:" + id }

func dmReactionKey(dmID, emoji, userID string) string {
	return fmt.Sprintf("dmreact:%s:%s:%s", dmID, emoji, userID)
}

func (s *Store) CreateDM(dm domain.DirectMessage) error {
	key := dmKey(dm)
	return s.db.Update(func(txn *badger.Txn) error {
		if err := setJSON(txn, key, dm); err != nil {
			return err
		}
		return txn.Set([]byte(dmIdxKey(dm.ID)), []byte(key))
	})
}

func (s *Store) EditDM(id, content string) (domain.DirectMessage, error) {
	var dm domain.DirectMessage
	now := time.Now().UTC()
	err := s.db.Update(func(txn *badger.Txn) error {
		key, err := resolveIndex(txn, dmIdxKey(id))
		if err != nil {
			return err
		}
		if err := getJSON(txn, key, &dm); err != nil {
			return err
		}
		dm.Content = content
		dm.EditedAt = &now
		return setJSON(txn, key, dm)
	})
	return dm, err
}

// DeleteDM removes the row outright; direct messages have no soft delete.
func (s *Store) DeleteDM(id string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		key, err := resolveIndex(txn, dmIdxKey(id))
		if err != nil {
			return err
		}
		if err := txn.Delete([]byte(key)); err != nil {
			return err
		}
		return txn.Delete([]byte(dmIdxKey(id)))
	})
}

func (s *Store) AddDMReaction(dmID, emoji, userID string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		key := dmReactionKey(dmID, emoji, userID)
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

func (s *Store) RemoveDMReaction(dmID, emoji, userID string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(dmReactionKey(dmID, emoji, userID)))
	})
}

// ListDMs returns the most recent messages between the two users in
// chronological order. The reverse iterator collects the newest entries
// first, then the slice is flipped.
func (s *Store) ListDMs(userA, userB string, limit int) ([]domain.DirectMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	prefixStr := "dm:" + PairKey(userA, userB) + ":"
	prefix := []byte(prefixStr)

	var out []domain.DirectMessage
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		seekKey := append([]byte{}, prefix...)
		seekKey = append(seekKey, []byte("9999999999999999999")...)
		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			if len(out) == limit {
				break
			}
			var dm domain.DirectMessage
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &dm)
			})
			if err != nil {
				return err
			}
			out = append(out, dm)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
